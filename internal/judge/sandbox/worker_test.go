package sandbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"classjudge/internal/judge/sandbox"
	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/result"
	"classjudge/internal/judge/sandbox/runner"
	pkgerrors "classjudge/pkg/errors"
)

type fakeRunner struct {
	compileRes  result.CompileResult
	compileErr  error
	runOutcomes []result.RunOutcome
	runErrs     []error
	runReqs     []runner.RunRequest
	panicAt     int
}

func (f *fakeRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	return f.compileRes, f.compileErr
}

func (f *fakeRunner) Run(ctx context.Context, req runner.RunRequest) (result.RunOutcome, error) {
	f.runReqs = append(f.runReqs, req)
	idx := len(f.runReqs) - 1
	if f.panicAt > 0 && idx == f.panicAt-1 {
		panic("boom")
	}
	if idx < len(f.runOutcomes) {
		if idx < len(f.runErrs) && f.runErrs[idx] != nil {
			return f.runOutcomes[idx], f.runErrs[idx]
		}
		return f.runOutcomes[idx], nil
	}
	return result.RunOutcome{Outcome: result.OutcomeSuccess}, nil
}

type fakeLangRepo struct {
	spec profile.LanguageSpec
	err  error
}

func (f fakeLangRepo) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	return f.spec, f.err
}

type fakeProfileRepo struct {
	profiles map[profile.TaskType]profile.TaskProfile
	err      error
}

func (f fakeProfileRepo) GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID string) (profile.TaskProfile, error) {
	if f.err != nil {
		return profile.TaskProfile{}, f.err
	}
	if prof, ok := f.profiles[taskType]; ok {
		return prof, nil
	}
	return profile.TaskProfile{}, pkgerrors.New(pkgerrors.NotFound)
}

func interpretedLang() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:             "c",
		SourceFile:     "main.c",
		BinaryFile:     "",
		CompileEnabled: false,
		RunCmdTpl:      "{bin}",
	}
}

func runProfiles() fakeProfileRepo {
	return fakeProfileRepo{profiles: map[profile.TaskType]profile.TaskProfile{
		profile.TaskTypeCompile: {TaskType: profile.TaskTypeCompile},
		profile.TaskTypeRun:     {TaskType: profile.TaskTypeRun},
	}}
}

func writeSource(t *testing.T, workRoot string) string {
	t.Helper()
	sourcePath := filepath.Join(workRoot, "main.c")
	if err := os.WriteFile(sourcePath, []byte("int main(void){return 0;}"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return sourcePath
}

func baseRequest(t *testing.T, workRoot string, tests []result.TestCase) sandbox.JudgeRequest {
	t.Helper()
	return sandbox.JudgeRequest{
		SubmissionID: "sub-1",
		LanguageID:   "c",
		WorkRoot:     workRoot,
		SourcePath:   writeSource(t, workRoot),
		Limits:       result.ProblemLimits{TimeLimitSec: 1, MemoryLimitMB: 128},
		Tests:        tests,
	}
}

func TestWorkerCompileFail(t *testing.T) {
	workRoot := t.TempDir()
	lang := interpretedLang()
	lang.CompileEnabled = true
	lang.BinaryFile = "main"

	r := &fakeRunner{compileRes: result.CompileResult{OK: false, ExitCode: 1, Stderr: "main.c:1: error"}}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: lang}, runProfiles())

	req := baseRequest(t, workRoot, []result.TestCase{{ID: 1, Input: "1 2\n", ExpectedOutput: "3\n"}})
	report, err := worker.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("compile failure should not be an error, got %v", err)
	}
	if report.Status != result.StatusCompileError {
		t.Fatalf("status = %s, want %s", report.Status, result.StatusCompileError)
	}
	if report.Score != 0 {
		t.Fatalf("score = %d, want 0", report.Score)
	}
	if len(report.Verdicts) != 0 {
		t.Fatalf("no tests should run after a compile failure, got %d verdicts", len(report.Verdicts))
	}
	if report.CompileError != "main.c:1: error" {
		t.Fatalf("compile error = %q", report.CompileError)
	}
	if len(r.runReqs) != 0 {
		t.Fatalf("runner.Run called %d times, want 0", len(r.runReqs))
	}
}

func TestWorkerRunsEveryTestDespiteFailures(t *testing.T) {
	workRoot := t.TempDir()
	r := &fakeRunner{
		runOutcomes: []result.RunOutcome{
			{Outcome: result.OutcomeTimeExceeded, Diagnostic: "time limit exceeded"},
			{Outcome: result.OutcomeSuccess, Stdout: "3\n"},
			{Outcome: result.OutcomeSuccess, Stdout: "wrong"},
		},
	}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: interpretedLang()}, runProfiles())

	req := baseRequest(t, workRoot, []result.TestCase{
		{ID: 1, Input: "a", ExpectedOutput: "3"},
		{ID: 2, Input: "b", ExpectedOutput: "3"},
		{ID: 3, Input: "c", ExpectedOutput: "3"},
	})
	report, err := worker.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(r.runReqs) != 3 {
		t.Fatalf("runner.Run called %d times, want 3 (no short-circuit)", len(r.runReqs))
	}
	if len(report.Verdicts) != 3 {
		t.Fatalf("verdicts = %d, want 3", len(report.Verdicts))
	}
	if report.Verdicts[0].Passed || !report.Verdicts[1].Passed || report.Verdicts[2].Passed {
		t.Fatalf("unexpected pass pattern: %+v", report.Verdicts)
	}
	if report.Status != result.StatusTimeLimitExceeded {
		t.Fatalf("status = %s, want %s", report.Status, result.StatusTimeLimitExceeded)
	}
	if report.Score != 33 {
		t.Fatalf("score = %d, want 33", report.Score)
	}
}

func TestWorkerTrimsOuterWhitespaceOnly(t *testing.T) {
	workRoot := t.TempDir()
	r := &fakeRunner{
		runOutcomes: []result.RunOutcome{
			{Outcome: result.OutcomeSuccess, Stdout: "  3\n"},
			{Outcome: result.OutcomeSuccess, Stdout: "1  2\n"},
		},
	}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: interpretedLang()}, runProfiles())

	req := baseRequest(t, workRoot, []result.TestCase{
		{ID: 1, Input: "", ExpectedOutput: "3"},
		{ID: 2, Input: "", ExpectedOutput: "1 2"},
	})
	report, err := worker.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !report.Verdicts[0].Passed {
		t.Fatal("outer whitespace should be ignored")
	}
	if report.Verdicts[1].Passed {
		t.Fatal("internal whitespace must stay significant")
	}
}

func TestWorkerConfinesPanicToOneVerdict(t *testing.T) {
	workRoot := t.TempDir()
	r := &fakeRunner{
		runOutcomes: []result.RunOutcome{
			{Outcome: result.OutcomeSuccess, Stdout: "3"},
			{},
			{Outcome: result.OutcomeSuccess, Stdout: "3"},
		},
		panicAt: 2,
	}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: interpretedLang()}, runProfiles())

	req := baseRequest(t, workRoot, []result.TestCase{
		{ID: 1, Input: "", ExpectedOutput: "3"},
		{ID: 2, Input: "", ExpectedOutput: "3"},
		{ID: 3, Input: "", ExpectedOutput: "3"},
	})
	report, err := worker.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(report.Verdicts) != 3 {
		t.Fatalf("verdicts = %d, want 3 (panic must not stop the run)", len(report.Verdicts))
	}
	if report.Verdicts[1].Outcome != result.OutcomeSystemError {
		t.Fatalf("panicked test outcome = %s, want %s", report.Verdicts[1].Outcome, result.OutcomeSystemError)
	}
	if !report.Verdicts[0].Passed || !report.Verdicts[2].Passed {
		t.Fatal("surrounding tests should still be judged")
	}
	if report.Status != result.StatusSystemError {
		t.Fatalf("status = %s, want %s", report.Status, result.StatusSystemError)
	}
}

func TestWorkerRunErrorBecomesSystemVerdict(t *testing.T) {
	workRoot := t.TempDir()
	r := &fakeRunner{
		runOutcomes: []result.RunOutcome{
			{Outcome: result.OutcomeSystemError},
			{Outcome: result.OutcomeSuccess, Stdout: "3"},
		},
		runErrs: []error{errors.New("cgroup create failed"), nil},
	}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: interpretedLang()}, runProfiles())

	req := baseRequest(t, workRoot, []result.TestCase{
		{ID: 1, Input: "", ExpectedOutput: "3"},
		{ID: 2, Input: "", ExpectedOutput: "3"},
	})
	report, err := worker.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(r.runReqs) != 2 {
		t.Fatalf("runner.Run called %d times, want 2", len(r.runReqs))
	}
	if report.Verdicts[0].Outcome != result.OutcomeSystemError {
		t.Fatalf("outcome = %s, want %s", report.Verdicts[0].Outcome, result.OutcomeSystemError)
	}
	if !report.Verdicts[1].Passed {
		t.Fatal("second test should still pass")
	}
}

func TestWorkerInvalidRequest(t *testing.T) {
	worker := sandbox.NewWorker(&fakeRunner{}, fakeLangRepo{}, fakeProfileRepo{})
	cases := []struct {
		name   string
		mutate func(*sandbox.JudgeRequest)
	}{
		{"empty request", func(req *sandbox.JudgeRequest) { *req = sandbox.JudgeRequest{} }},
		{"zero time limit", func(req *sandbox.JudgeRequest) { req.Limits.TimeLimitSec = 0 }},
		{"zero memory limit", func(req *sandbox.JudgeRequest) { req.Limits.MemoryLimitMB = 0 }},
		{"no tests", func(req *sandbox.JudgeRequest) { req.Tests = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := sandbox.JudgeRequest{
				SubmissionID: "sub-1",
				LanguageID:   "c",
				WorkRoot:     t.TempDir(),
				SourcePath:   "main.c",
				Limits:       result.ProblemLimits{TimeLimitSec: 1, MemoryLimitMB: 64},
				Tests:        []result.TestCase{{ID: 1}},
			}
			tc.mutate(&req)
			_, err := worker.Execute(context.Background(), req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := pkgerrors.GetCode(err); got != pkgerrors.ValidationFailed {
				t.Fatalf("code = %v, want ValidationFailed", got)
			}
		})
	}
}

type recordingReporter struct {
	updates []sandbox.StatusUpdate
}

func (r *recordingReporter) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	r.updates = append(r.updates, update)
	return nil
}

func TestWorkerReportsProgress(t *testing.T) {
	workRoot := t.TempDir()
	r := &fakeRunner{
		runOutcomes: []result.RunOutcome{
			{Outcome: result.OutcomeSuccess, Stdout: "3"},
			{Outcome: result.OutcomeSuccess, Stdout: "3"},
		},
	}
	worker := sandbox.NewWorker(r, fakeLangRepo{spec: interpretedLang()}, runProfiles())
	reporter := &recordingReporter{}
	worker.SetStatusReporter(reporter)

	req := baseRequest(t, workRoot, []result.TestCase{
		{ID: 1, Input: "", ExpectedOutput: "3"},
		{ID: 2, Input: "", ExpectedOutput: "3"},
	})
	if _, err := worker.Execute(context.Background(), req); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(reporter.updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := reporter.updates[len(reporter.updates)-1]
	if last.Phase != sandbox.PhaseFinished {
		t.Fatalf("last phase = %s, want %s", last.Phase, sandbox.PhaseFinished)
	}
	if last.DoneTests != 2 || last.TotalTests != 2 {
		t.Fatalf("progress = %d/%d, want 2/2", last.DoneTests, last.TotalTests)
	}
}
