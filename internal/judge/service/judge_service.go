// Package service orchestrates submission judging.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"classjudge/internal/judge/sandbox"
	"classjudge/internal/judge/sandbox/config"
	"classjudge/internal/judge/sandbox/result"
	appErr "classjudge/pkg/errors"
	"classjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAcquireTimeout = 2 * time.Second
	defaultCompileBudget  = 30 * time.Second
	defaultTimeoutSlack   = 10 * time.Second
	defaultMaxCodeBytes   = 128 * 1024
)

// JudgeInput is one submission handed to the orchestrator.
type JudgeInput struct {
	Code       string
	LanguageID string
	Limits     result.ProblemLimits

	// TestCases may be empty; a single case with ID 0 is then synthesized
	// from the problem sample.
	TestCases    []result.TestCase
	SampleInput  string
	SampleOutput string
}

// SubmissionKiller force-terminates all sandbox tasks of a submission.
// The sandbox engine satisfies this directly.
type SubmissionKiller interface {
	KillSubmission(ctx context.Context, submissionID string) error
}

// Service schedules submissions onto a bounded sandbox worker pool.
type Service struct {
	worker         sandbox.Service
	killer         SubmissionKiller
	langRepo       config.LanguageSpecRepository
	workRoot       string
	acquireTimeout time.Duration
	compileBudget  time.Duration
	timeoutSlack   time.Duration
	maxCodeBytes   int
	sem            chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	Worker       sandbox.Service
	Killer       SubmissionKiller
	LanguageRepo config.LanguageSpecRepository
	WorkRoot     string

	WorkerPoolSize int
	AcquireTimeout time.Duration
	CompileBudget  time.Duration
	TimeoutSlack   time.Duration
	MaxCodeBytes   int
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if cfg.LanguageRepo == nil {
		return nil, fmt.Errorf("language repository is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	compileBudget := cfg.CompileBudget
	if compileBudget <= 0 {
		compileBudget = defaultCompileBudget
	}
	slack := cfg.TimeoutSlack
	if slack <= 0 {
		slack = defaultTimeoutSlack
	}
	maxCodeBytes := cfg.MaxCodeBytes
	if maxCodeBytes <= 0 {
		maxCodeBytes = defaultMaxCodeBytes
	}
	return &Service{
		worker:         cfg.Worker,
		killer:         cfg.Killer,
		langRepo:       cfg.LanguageRepo,
		workRoot:       cfg.WorkRoot,
		acquireTimeout: acquireTimeout,
		compileBudget:  compileBudget,
		timeoutSlack:   slack,
		maxCodeBytes:   maxCodeBytes,
		sem:            make(chan struct{}, poolSize),
	}, nil
}

// Judge runs one submission through compile and all test cases and returns
// the aggregate report. Persistence is the caller's concern.
func (s *Service) Judge(ctx context.Context, input JudgeInput) (result.JudgeReport, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return result.JudgeReport{}, err
	}

	lang, err := s.langRepo.GetLanguageSpec(ctx, input.LanguageID)
	if err != nil {
		return result.JudgeReport{}, err
	}

	tests := input.TestCases
	if len(tests) == 0 {
		tests = []result.TestCase{{
			ID:             0,
			Input:          input.SampleInput,
			ExpectedOutput: input.SampleOutput,
		}}
	}

	if err := s.acquireSlot(ctx); err != nil {
		return result.JudgeReport{}, err
	}
	defer s.releaseSlot()

	submissionID := uuid.NewString()
	sourcePath, err := s.writeSource(submissionID, lang.SourceFile, input.Code)
	if err != nil {
		return result.JudgeReport{}, err
	}
	// The worker removes the submission directory itself; this backstop covers
	// failures before the worker gets that far.
	defer func() {
		_ = os.RemoveAll(filepath.Join(s.workRoot, submissionID))
	}()

	ceiling := s.wallCeiling(lang.CompileEnabled, input.Limits, len(tests))
	ctxJudge, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	receivedAt := time.Now().Unix()
	report, err := s.worker.Execute(ctxJudge, sandbox.JudgeRequest{
		SubmissionID: submissionID,
		LanguageID:   input.LanguageID,
		WorkRoot:     s.workRoot,
		SourcePath:   sourcePath,
		Limits:       input.Limits,
		Tests:        tests,
		ReceivedAt:   receivedAt,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(ctxJudge.Err(), context.DeadlineExceeded) {
			if s.killer != nil {
				_ = s.killer.KillSubmission(ctx, submissionID)
			}
			logger.Warn(ctx, "submission exceeded the overall judge ceiling",
				zap.String("submission_id", submissionID),
				zap.Duration("ceiling", ceiling))
			return result.SystemFailureReport(fmt.Sprintf("judging aborted after %s", ceiling)), nil
		}
		return result.JudgeReport{}, err
	}
	return report, nil
}

func (s *Service) validateInput(ctx context.Context, input JudgeInput) error {
	if input.Code == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(input.Code) > s.maxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	if input.LanguageID == "" {
		return appErr.ValidationError("language", "required")
	}
	if input.Limits.TimeLimitSec <= 0 {
		return appErr.ValidationError("time_limit_sec", "must_be_positive")
	}
	if input.Limits.MemoryLimitMB <= 0 {
		return appErr.ValidationError("memory_limit_mb", "must_be_positive")
	}
	return nil
}

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.acquireTimeout):
		return appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

// writeSource materializes the submitted code under the submission work root.
// Judge removes the whole submission directory when it returns.
func (s *Service) writeSource(submissionID, sourceFile, code string) (string, error) {
	if sourceFile == "" {
		sourceFile = "source.code"
	}
	sourceDir := filepath.Join(s.workRoot, submissionID, "source")
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create source dir failed")
	}
	sourcePath := filepath.Join(sourceDir, sourceFile)
	if err := os.WriteFile(sourcePath, []byte(code), 0644); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "write source file failed")
	}
	return sourcePath, nil
}

// wallCeiling is the hard cap on one submission: the compile budget plus the
// summed per-test wall budgets plus slack for scheduling overhead.
func (s *Service) wallCeiling(compiles bool, limits result.ProblemLimits, testCount int) time.Duration {
	ceiling := s.timeoutSlack
	if compiles {
		ceiling += s.compileBudget
	}
	perTestWall := time.Duration(limits.TimeLimitSec) * 2 * time.Second
	ceiling += time.Duration(testCount) * perTestWall
	return ceiling
}
