// Package sandbox provides the worker implementation for sandbox execution.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"classjudge/internal/judge/sandbox/config"
	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/result"
	"classjudge/internal/judge/sandbox/runner"
	"classjudge/internal/judge/sandbox/spec"
	appErr "classjudge/pkg/errors"
)

// Worker is the sandbox scheduling unit.
// It compiles a submission once and runs the artifact on every test case.
type Worker struct {
	runner         runner.Runner
	langRepo       config.LanguageSpecRepository
	profileRepo    config.TaskProfileRepository
	statusReporter StatusReporter
}

// NewWorker creates a new worker with required dependencies.
func NewWorker(
	runner runner.Runner,
	langRepo config.LanguageSpecRepository,
	profileRepo config.TaskProfileRepository,
) *Worker {
	return &Worker{
		runner:      runner,
		langRepo:    langRepo,
		profileRepo: profileRepo,
	}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (w *Worker) SetStatusReporter(reporter StatusReporter) {
	w.statusReporter = reporter
}

// Execute runs a full judge workflow for one submission.
//
// A failed compile short-circuits with a compile error report and zero test
// runs. After a successful compile every test case is attempted in order;
// one test failing, timing out, or even panicking the judge internally never
// stops the remaining tests.
func (w *Worker) Execute(ctx context.Context, req JudgeRequest) (result.JudgeReport, error) {
	if err := validateJudgeRequest(req); err != nil {
		return result.JudgeReport{}, err
	}
	if w.runner == nil || w.langRepo == nil || w.profileRepo == nil {
		return result.JudgeReport{}, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}

	lang, err := w.langRepo.GetLanguageSpec(ctx, req.LanguageID)
	if err != nil {
		return result.JudgeReport{}, err
	}

	runProfile, err := w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeRun, lang.ID)
	if err != nil {
		return result.JudgeReport{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load run profile failed")
	}

	var compileProfile profile.TaskProfile
	if lang.CompileEnabled {
		compileProfile, err = w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeCompile, lang.ID)
		if err != nil {
			return result.JudgeReport{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load compile profile failed")
		}
	}

	submissionRoot := filepath.Join(req.WorkRoot, req.SubmissionID)
	if err := os.MkdirAll(submissionRoot, 0755); err != nil {
		return result.JudgeReport{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create submission work root failed")
	}
	defer func() {
		_ = os.RemoveAll(submissionRoot)
	}()

	totalTests := len(req.Tests)
	doneTests := 0

	if lang.CompileEnabled {
		w.reportStatus(ctx, req, PhaseCompiling, totalTests, doneTests)
		compileDir := filepath.Join(submissionRoot, "compile")
		compileReq := runner.CompileRequest{
			SubmissionID:      req.SubmissionID,
			Language:          lang,
			Profile:           compileProfile,
			WorkDir:           compileDir,
			SourcePath:        req.SourcePath,
			ExtraCompileFlags: req.ExtraCompileFlags,
			// Compile budgets come from the compile profile, not the
			// per-test problem limits.
			Limits: spec.ResourceLimit{},
		}
		compileRes, compileErr := w.runner.Compile(ctx, compileReq)
		if compileErr != nil {
			return result.JudgeReport{}, compileErr
		}
		if !compileRes.OK {
			w.reportStatus(ctx, req, PhaseFinished, totalTests, doneTests)
			return result.CompileFailedReport(compileRes.Stderr), nil
		}
	}

	w.reportStatus(ctx, req, PhaseRunning, totalTests, doneTests)

	testLimits := toResourceLimit(req.Limits)
	verdicts := make([]result.TestVerdict, 0, len(req.Tests))
	for idx, tc := range req.Tests {
		verdict := w.judgeOne(ctx, req, lang, runProfile, submissionRoot, testLimits, idx, tc)
		verdicts = append(verdicts, verdict)
		doneTests++
		w.reportStatus(ctx, req, PhaseRunning, totalTests, doneTests)
	}

	w.reportStatus(ctx, req, PhaseFinished, totalTests, doneTests)
	return result.BuildReport(verdicts), nil
}

// judgeOne runs a single test case. Internal failures, including panics,
// are confined to this test's verdict.
func (w *Worker) judgeOne(
	ctx context.Context,
	req JudgeRequest,
	lang profile.LanguageSpec,
	runProfile profile.TaskProfile,
	submissionRoot string,
	limits spec.ResourceLimit,
	idx int,
	tc result.TestCase,
) (verdict result.TestVerdict) {
	verdict = result.TestVerdict{
		TestCaseID:     tc.ID,
		ExpectedOutput: tc.ExpectedOutput,
		Outcome:        result.OutcomeSystemError,
	}
	defer func() {
		if r := recover(); r != nil {
			verdict.Passed = false
			verdict.Outcome = result.OutcomeSystemError
			verdict.Diagnostic = fmt.Sprintf("internal judge failure: %v", r)
		}
	}()

	taskID := fmt.Sprintf("t%d", idx+1)
	testWorkDir := filepath.Join(submissionRoot, taskID)
	if err := os.MkdirAll(testWorkDir, 0755); err != nil {
		verdict.Diagnostic = "create test workdir failed: " + err.Error()
		return verdict
	}

	if lang.CompileEnabled {
		if err := copyBinary(submissionRoot, taskID, lang.BinaryFile); err != nil {
			verdict.Diagnostic = err.Error()
			return verdict
		}
	}

	inputPath := filepath.Join(submissionRoot, taskID+"-input.txt")
	if err := os.WriteFile(inputPath, []byte(tc.Input), 0644); err != nil {
		verdict.Diagnostic = "write test input failed: " + err.Error()
		return verdict
	}

	runReq := runner.RunRequest{
		SubmissionID: req.SubmissionID,
		TaskID:       taskID,
		Language:     lang,
		Profile:      runProfile,
		WorkDir:      testWorkDir,
		InputPath:    inputPath,
		Limits:       limits,
	}
	outcome, err := w.runner.Run(ctx, runReq)
	if err != nil {
		verdict.Outcome = result.OutcomeSystemError
		verdict.Diagnostic = err.Error()
		return verdict
	}

	verdict.Outcome = outcome.Outcome
	verdict.ActualOutput = outcome.Stdout
	verdict.TimeMs = outcome.TimeMs
	verdict.MemoryKB = outcome.MemoryKB
	verdict.Diagnostic = outcome.Diagnostic
	if outcome.Outcome == result.OutcomeSuccess {
		verdict.Passed = outputsMatch(outcome.Stdout, tc.ExpectedOutput)
	}
	return verdict
}

// outputsMatch compares outputs ignoring leading and trailing whitespace.
// Internal whitespace is significant.
func outputsMatch(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

func (w *Worker) reportStatus(ctx context.Context, req JudgeRequest, phase string, totalTests, doneTests int) {
	if w.statusReporter == nil {
		return
	}
	receivedAt := req.ReceivedAt
	if receivedAt == 0 {
		receivedAt = time.Now().Unix()
	}
	_ = w.statusReporter.ReportStatus(ctx, StatusUpdate{
		SubmissionID: req.SubmissionID,
		Phase:        phase,
		Language:     req.LanguageID,
		TotalTests:   totalTests,
		DoneTests:    doneTests,
		ReceivedAt:   receivedAt,
	})
}

func validateJudgeRequest(req JudgeRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.LanguageID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.WorkRoot == "" {
		return appErr.ValidationError("work_root", "required")
	}
	if req.SourcePath == "" {
		return appErr.ValidationError("source_path", "required")
	}
	if len(req.Tests) == 0 {
		return appErr.ValidationError("tests", "required")
	}
	if req.Limits.TimeLimitSec <= 0 {
		return appErr.ValidationError("time_limit_sec", "must_be_positive")
	}
	if req.Limits.MemoryLimitMB <= 0 {
		return appErr.ValidationError("memory_limit_mb", "must_be_positive")
	}
	return nil
}

// toResourceLimit maps problem limits onto sandbox limits. The wall budget
// is twice the CPU budget so a blocked process still gets reaped.
func toResourceLimit(limits result.ProblemLimits) spec.ResourceLimit {
	return spec.ResourceLimit{
		CPUTimeMs:  limits.TimeLimitSec * 1000,
		WallTimeMs: limits.TimeLimitSec * 2000,
		MemoryMB:   limits.MemoryLimitMB,
	}
}

func copyBinary(submissionRoot, taskID, binaryName string) error {
	if binaryName == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("binary file name is required")
	}
	src := filepath.Join(submissionRoot, "compile", binaryName)
	dstDir := filepath.Join(submissionRoot, taskID)
	dst := filepath.Join(dstDir, binaryName)

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create test workdir failed")
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "open compiled binary failed")
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create test binary failed")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "copy compiled binary failed")
	}
	if err := dstFile.Chmod(0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "chmod test binary failed")
	}
	return nil
}
