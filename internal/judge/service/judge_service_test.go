package service

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"classjudge/internal/judge/sandbox"
	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/result"
	appErr "classjudge/pkg/errors"
)

type fakeExecutor struct {
	mu      sync.Mutex
	reqs    []sandbox.JudgeRequest
	sources []string
	report  result.JudgeReport
	err     error
	block   chan struct{}
	waitCtx bool
}

func (f *fakeExecutor) Execute(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeReport, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	// Snapshot the source while it still exists; the service removes the
	// submission directory when judging finishes.
	data, _ := os.ReadFile(req.SourcePath)
	f.sources = append(f.sources, string(data))
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.waitCtx {
		<-ctx.Done()
		return result.JudgeReport{}, ctx.Err()
	}
	return f.report, f.err
}

func (f *fakeExecutor) requests() []sandbox.JudgeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sandbox.JudgeRequest(nil), f.reqs...)
}

type fakeKiller struct {
	mu     sync.Mutex
	killed []string
}

func (f *fakeKiller) KillSubmission(ctx context.Context, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, submissionID)
	return nil
}

type stubLangRepo struct {
	spec profile.LanguageSpec
	err  error
}

func (s stubLangRepo) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	return s.spec, s.err
}

func newTestService(t *testing.T, executor *fakeExecutor, mutate func(*Config)) (*Service, *fakeKiller) {
	t.Helper()
	killer := &fakeKiller{}
	cfg := Config{
		Worker:         executor,
		Killer:         killer,
		LanguageRepo:   stubLangRepo{spec: profile.LanguageSpec{ID: "c", SourceFile: "main.c"}},
		WorkRoot:       t.TempDir(),
		WorkerPoolSize: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, killer
}

func validInput() JudgeInput {
	return JudgeInput{
		Code:       "int main(void){return 0;}",
		LanguageID: "c",
		Limits:     result.ProblemLimits{TimeLimitSec: 1, MemoryLimitMB: 128},
		TestCases:  []result.TestCase{{ID: 1, Input: "1 2", ExpectedOutput: "3"}},
	}
}

func TestJudgeValidation(t *testing.T) {
	executor := &fakeExecutor{}
	svc, _ := newTestService(t, executor, func(cfg *Config) { cfg.MaxCodeBytes = 64 })

	cases := []struct {
		name   string
		mutate func(*JudgeInput)
	}{
		{"empty code", func(in *JudgeInput) { in.Code = "" }},
		{"empty language", func(in *JudgeInput) { in.LanguageID = "" }},
		{"zero time limit", func(in *JudgeInput) { in.Limits.TimeLimitSec = 0 }},
		{"negative memory limit", func(in *JudgeInput) { in.Limits.MemoryLimitMB = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := svc.Judge(context.Background(), input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := appErr.GetCode(err); got != appErr.ValidationFailed {
				t.Fatalf("code = %v, want ValidationFailed", got)
			}
		})
	}
	if len(executor.requests()) != 0 {
		t.Fatal("sandbox must not run for invalid input")
	}
}

func TestJudgeOversizeCode(t *testing.T) {
	executor := &fakeExecutor{}
	svc, _ := newTestService(t, executor, func(cfg *Config) { cfg.MaxCodeBytes = 64 })

	input := validInput()
	input.Code = strings.Repeat("x", 65)
	_, err := svc.Judge(context.Background(), input)
	if got := appErr.GetCode(err); got != appErr.CodeTooLarge {
		t.Fatalf("code = %v, want CodeTooLarge", got)
	}
	if len(executor.requests()) != 0 {
		t.Fatal("sandbox must not run for oversize code")
	}
}

func TestJudgeUnsupportedLanguage(t *testing.T) {
	executor := &fakeExecutor{}
	svc, _ := newTestService(t, executor, func(cfg *Config) {
		cfg.LanguageRepo = stubLangRepo{err: appErr.New(appErr.LanguageNotSupported)}
	})
	input := validInput()
	input.LanguageID = "cobol"
	_, err := svc.Judge(context.Background(), input)
	if got := appErr.GetCode(err); got != appErr.LanguageNotSupported {
		t.Fatalf("code = %v, want LanguageNotSupported", got)
	}
	if len(executor.requests()) != 0 {
		t.Fatal("sandbox must not run for unsupported language")
	}
}

func TestJudgeSynthesizesSampleCase(t *testing.T) {
	executor := &fakeExecutor{report: result.JudgeReport{Status: result.StatusAccepted, Score: 100}}
	svc, _ := newTestService(t, executor, nil)

	input := validInput()
	input.TestCases = nil
	input.SampleInput = "1 2"
	input.SampleOutput = "3"
	if _, err := svc.Judge(context.Background(), input); err != nil {
		t.Fatalf("judge: %v", err)
	}

	reqs := executor.requests()
	if len(reqs) != 1 {
		t.Fatalf("executor called %d times, want 1", len(reqs))
	}
	tests := reqs[0].Tests
	if len(tests) != 1 {
		t.Fatalf("tests = %d, want 1 synthesized case", len(tests))
	}
	if tests[0].ID != 0 || tests[0].Input != "1 2" || tests[0].ExpectedOutput != "3" {
		t.Fatalf("synthesized case = %+v", tests[0])
	}
}

func TestJudgeWritesSourceFile(t *testing.T) {
	executor := &fakeExecutor{report: result.JudgeReport{Status: result.StatusAccepted, Score: 100}}
	svc, _ := newTestService(t, executor, nil)

	input := validInput()
	if _, err := svc.Judge(context.Background(), input); err != nil {
		t.Fatalf("judge: %v", err)
	}
	reqs := executor.requests()
	if executor.sources[0] != input.Code {
		t.Fatalf("source content = %q", executor.sources[0])
	}
	if !strings.HasSuffix(reqs[0].SourcePath, "main.c") {
		t.Fatalf("source path = %q, want language source file name", reqs[0].SourcePath)
	}
	if _, err := os.Stat(reqs[0].SourcePath); !os.IsNotExist(err) {
		t.Fatalf("source should be removed after judging, stat err = %v", err)
	}
}

func TestJudgeCleansUpWorkDirOnWorkerError(t *testing.T) {
	executor := &fakeExecutor{err: appErr.New(appErr.JudgeSystemError)}
	workRoot := t.TempDir()
	svc, _ := newTestService(t, executor, func(cfg *Config) { cfg.WorkRoot = workRoot })

	if _, err := svc.Judge(context.Background(), validInput()); err == nil {
		t.Fatal("expected worker error")
	}
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work root still holds %d entries", len(entries))
	}
}

func TestJudgeReturnsWorkerReport(t *testing.T) {
	want := result.JudgeReport{
		Status: result.StatusRejected,
		Score:  50,
		Verdicts: []result.TestVerdict{
			{TestCaseID: 1, Passed: true, Outcome: result.OutcomeSuccess},
			{TestCaseID: 2, Passed: false, Outcome: result.OutcomeSuccess},
		},
	}
	executor := &fakeExecutor{report: want}
	svc, _ := newTestService(t, executor, nil)

	got, err := svc.Judge(context.Background(), validInput())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if got.Status != want.Status || got.Score != want.Score || len(got.Verdicts) != 2 {
		t.Fatalf("report = %+v", got)
	}
}

func TestJudgeQueueFull(t *testing.T) {
	release := make(chan struct{})
	executor := &fakeExecutor{block: release, report: result.JudgeReport{Status: result.StatusAccepted}}
	svc, _ := newTestService(t, executor, func(cfg *Config) {
		cfg.WorkerPoolSize = 1
		cfg.AcquireTimeout = 50 * time.Millisecond
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Judge(context.Background(), validInput())
	}()

	deadline := time.Now().Add(time.Second)
	for len(executor.requests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first submission never reached the executor")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := svc.Judge(context.Background(), validInput())
	if got := appErr.GetCode(err); got != appErr.JudgeQueueFull {
		t.Fatalf("code = %v, want JudgeQueueFull", got)
	}

	close(release)
	<-done
}

func TestJudgeOverallCeiling(t *testing.T) {
	executor := &fakeExecutor{waitCtx: true}
	svc, killer := newTestService(t, executor, func(cfg *Config) {
		cfg.TimeoutSlack = 50 * time.Millisecond
	})

	input := validInput()
	report, err := svc.Judge(context.Background(), input)
	if err != nil {
		t.Fatalf("ceiling overrun should produce a report, got error %v", err)
	}
	if report.Status != result.StatusSystemError {
		t.Fatalf("status = %s, want %s", report.Status, result.StatusSystemError)
	}
	if report.RuntimeError == "" {
		t.Fatal("expected a timeout reason in the report")
	}
	killer.mu.Lock()
	killed := len(killer.killed)
	killer.mu.Unlock()
	if killed != 1 {
		t.Fatalf("killer invoked %d times, want 1", killed)
	}
}

func TestJudgeCallerCancellation(t *testing.T) {
	executor := &fakeExecutor{waitCtx: true}
	svc, killer := newTestService(t, executor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := svc.Judge(ctx, validInput())
	if err == nil {
		t.Fatal("caller cancellation must surface as an error, not a report")
	}
	killer.mu.Lock()
	killed := len(killer.killed)
	killer.mu.Unlock()
	if killed != 0 {
		t.Fatal("caller cancellation must not trigger the killer")
	}
}
