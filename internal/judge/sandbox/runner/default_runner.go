package runner

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"classjudge/internal/judge/sandbox/engine"
	"classjudge/internal/judge/sandbox/observer"
	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/result"
	"classjudge/internal/judge/sandbox/spec"
	appErr "classjudge/pkg/errors"
)

const (
	containerWorkDir  = "/work"
	defaultInputName  = "input.txt"
	defaultOutputName = "output.txt"
	compileLogName    = "compile.log"
	runtimeLogName    = "runtime.log"
)

// DefaultRunner implements compile/run workflows for supported languages.
type DefaultRunner struct {
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine) *DefaultRunner {
	return NewRunnerWithObserver(eng, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{eng: eng, metrics: metrics}
}

// Compile builds the submission once. A non-zero compiler exit is not an
// error; it comes back as CompileResult.OK == false with the captured stderr.
func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CompileResult{}, err
	}
	if err := writeSourceFile(req.WorkDir, req.SourcePath, req.Language.SourceFile); err != nil {
		return result.CompileResult{}, err
	}

	limits := applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language)
	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language, req.ExtraCompileFlags)
	if err != nil {
		return result.CompileResult{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TaskID:       "compile",
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StderrPath:   filepath.Join(containerWorkDir, compileLogName),
		Profile:      profileName(req.Language.ID, req.Profile.TaskType),
		Limits:       limits,
		BindMounts: []spec.MountSpec{{
			Source:   req.WorkDir,
			Target:   containerWorkDir,
			ReadOnly: false,
		}},
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	compileRes := result.CompileResult{
		OK:       runRes.ExitCode == 0 && err == nil,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		Stderr:   runRes.Stderr,
	}
	r.metrics.ObserveCompile(ctx, req.Language.ID, compileRes.OK, compileRes.TimeMs, compileRes.MemoryKB)
	if err != nil {
		return compileRes, appErr.Wrapf(err, appErr.SandboxUnavailable, "compile sandbox failed")
	}
	return compileRes, nil
}

// Run executes the compiled artifact on one input and classifies the result.
func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.RunOutcome, error) {
	if err := validateRunRequest(req); err != nil {
		return result.RunOutcome{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.RunOutcome{}, err
	}

	limits := applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language)
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language, nil)
	if err != nil {
		return result.RunOutcome{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TaskID:       req.TaskID,
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdinPath:    filepath.Join(containerWorkDir, defaultInputName),
		StdoutPath:   filepath.Join(containerWorkDir, defaultOutputName),
		StderrPath:   filepath.Join(containerWorkDir, runtimeLogName),
		Profile:      profileName(req.Language.ID, req.Profile.TaskType),
		Limits:       limits,
		BindMounts: []spec.MountSpec{
			{Source: req.WorkDir, Target: containerWorkDir, ReadOnly: false},
			{Source: req.InputPath, Target: filepath.Join(containerWorkDir, defaultInputName), ReadOnly: true},
		},
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		r.metrics.ObserveRun(ctx, req.Language.ID, string(result.OutcomeSystemError), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
		return result.RunOutcome{Outcome: result.OutcomeSystemError},
			appErr.Wrapf(runErr, appErr.SandboxUnavailable, "run sandbox failed")
	}

	outcome := classifyRun(runRes, limits)
	res := result.RunOutcome{
		Outcome:    outcome,
		ExitCode:   runRes.ExitCode,
		TimeMs:     runRes.TimeMs,
		MemoryKB:   runRes.MemoryKB,
		OutputKB:   runRes.OutputKB,
		Stdout:     runRes.Stdout,
		Stderr:     runRes.Stderr,
		Diagnostic: diagnosticFor(outcome, runRes),
	}
	r.metrics.ObserveRun(ctx, req.Language.ID, string(outcome), res.TimeMs, res.MemoryKB, res.OutputKB)
	return res, nil
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.SourcePath == "" {
		return appErr.ValidationError("source_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Profile.TaskType == "" {
		return appErr.ValidationError("task_profile", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TaskID == "" {
		return appErr.ValidationError("task_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.InputPath == "" {
		return appErr.ValidationError("input_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Profile.TaskType == "" {
		return appErr.ValidationError("task_profile", "required")
	}
	return nil
}

// classifyRun maps raw sandbox data onto an outcome. Only a watchdog kill or
// a SIGXCPU death counts as a timeout; any other signal death (SIGSEGV,
// SIGABRT, SIGFPE) is a runtime failure.
func classifyRun(res result.RunResult, limits spec.ResourceLimit) result.OutcomeKind {
	if res.TimedOut || res.TermSignal == "SIGXCPU" {
		return result.OutcomeTimeExceeded
	}
	if limits.CPUTimeMs > 0 && res.TimeMs > limits.CPUTimeMs {
		return result.OutcomeTimeExceeded
	}
	if res.OomKilled {
		return result.OutcomeMemoryExceeded
	}
	if limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024 {
		return result.OutcomeMemoryExceeded
	}
	if res.TermSignal != "" || res.ExitCode != 0 {
		return result.OutcomeRuntimeError
	}
	if limits.OutputMB > 0 && res.OutputKB > limits.OutputMB*1024 {
		return result.OutcomeRuntimeError
	}
	return result.OutcomeSuccess
}

func diagnosticFor(outcome result.OutcomeKind, res result.RunResult) string {
	switch outcome {
	case result.OutcomeTimeExceeded:
		return "time limit exceeded"
	case result.OutcomeMemoryExceeded:
		return "memory limit exceeded"
	case result.OutcomeRuntimeError:
		diag := ""
		switch {
		case res.TermSignal != "":
			diag = "killed by " + res.TermSignal
		case res.ExitCode != 0:
			diag = fmt.Sprintf("exited with code %d", res.ExitCode)
		default:
			return "output limit exceeded"
		}
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			diag = diag + ": " + stderr
		}
		return diag
	default:
		return ""
	}
}

func buildCommand(tpl string, lang profile.LanguageSpec, extraFlags []string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", filepath.Join(containerWorkDir, lang.SourceFile))
	expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(containerWorkDir, lang.BinaryFile))
	if strings.Contains(expanded, "{extraFlags}") {
		expanded = strings.ReplaceAll(expanded, "{extraFlags}", strings.Join(extraFlags, " "))
	}
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func applyLimits(override, defaults spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	merged := mergeLimits(defaults, override)
	return applyMultipliers(merged, lang)
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

func applyMultipliers(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func profileName(languageID string, taskType profile.TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return fmt.Sprintf("%s-%s", languageID, taskType)
}

func prepareWorkDir(workDir string) error {
	if workDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create work dir failed")
	}
	return nil
}

func writeSourceFile(workDir, sourcePath, targetName string) error {
	if targetName == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "read source failed")
	}
	targetPath := filepath.Join(workDir, targetName)
	if err := os.WriteFile(targetPath, content, 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write source failed")
	}
	return nil
}
