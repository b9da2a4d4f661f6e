// Package service implements the submission flow: persist, judge, store the
// report, then attach advisory feedback.
package service

import (
	"context"
	stderrors "errors"

	assignmentservice "classjudge/internal/assignment/service"
	"classjudge/internal/feedback"
	judgeservice "classjudge/internal/judge/service"
	"classjudge/internal/judge/sandbox/result"
	problemrepo "classjudge/internal/problem/repository"
	problemservice "classjudge/internal/problem/service"
	"classjudge/internal/submission/repository"
	pkgerrors "classjudge/pkg/errors"
	"classjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Judger runs one submission through the judge pipeline.
type Judger interface {
	Judge(ctx context.Context, input judgeservice.JudgeInput) (result.JudgeReport, error)
}

// Service handles the submission lifecycle.
type Service struct {
	submissions repository.SubmissionRepository
	problems    *problemservice.Service
	assignments *assignmentservice.Service
	judge       Judger
	analyzer    feedback.Analyzer
	limiter     RateLimiter
}

func NewService(
	submissions repository.SubmissionRepository,
	problems *problemservice.Service,
	assignments *assignmentservice.Service,
	judge Judger,
	analyzer feedback.Analyzer,
) *Service {
	return &Service{
		submissions: submissions,
		problems:    problems,
		assignments: assignments,
		judge:       judge,
		analyzer:    analyzer,
	}
}

// SetRateLimiter injects an optional per-user submission rate limit.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// SubmitInput is one student submission.
type SubmitInput struct {
	UserID    int64
	ProblemID int64
	Code      string
}

// SubmitResult is the judged submission returned to the student.
type SubmitResult struct {
	Submission  repository.Submission
	TestResults []repository.TestResult
	Feedback    feedback.Feedback
}

// Submit persists a pending submission, judges it, stores the report and the
// per-test results, then asks for advisory feedback. Feedback problems never
// fail the submission.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if input.UserID <= 0 {
		return SubmitResult{}, pkgerrors.ValidationError("user_id", "required")
	}
	if input.Code == "" {
		return SubmitResult{}, pkgerrors.ValidationError("code", "required")
	}
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, input.UserID)
		if err != nil {
			return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "rate limit check failed")
		}
		if !allowed {
			return SubmitResult{}, pkgerrors.New(pkgerrors.TooManyRequests).WithMessage("too many submissions, slow down")
		}
	}

	problem, err := s.problems.Get(ctx, input.ProblemID)
	if err != nil {
		return SubmitResult{}, err
	}
	if _, err := s.assignments.GetForStudent(ctx, problem.AssignmentID); err != nil {
		return SubmitResult{}, err
	}
	tests, err := s.problems.GetTestCases(ctx, problem.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	submissionID, err := s.submissions.Create(ctx, &repository.Submission{
		UserID:     input.UserID,
		ProblemID:  problem.ID,
		Code:       input.Code,
		LanguageID: problem.LanguageID,
		Status:     repository.StatusPending,
	})
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.SubmissionCreateFailed, "create submission failed")
	}

	report, err := s.judge.Judge(ctx, buildJudgeInput(problem, tests, input.Code))
	if err != nil {
		s.markFailed(ctx, submissionID, err)
		return SubmitResult{}, err
	}

	if err := s.submissions.UpdateReport(ctx, submissionID, toStoredReport(report)); err != nil {
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "store judge report failed")
	}

	// Feedback runs strictly after the report is persisted.
	fb := s.requestFeedback(ctx, submissionID, problem, input.Code, report)

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load submission failed")
	}
	testResults, err := s.submissions.GetTestResults(ctx, submissionID)
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load test results failed")
	}
	return SubmitResult{
		Submission:  *submission,
		TestResults: testResults,
		Feedback:    fb,
	}, nil
}

// Get returns one submission with its test results.
// Students may only read their own submissions.
func (s *Service) Get(ctx context.Context, submissionID, requesterID int64, isTeacher bool) (SubmitResult, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrSubmissionNotFound) {
			return SubmitResult{}, pkgerrors.New(pkgerrors.SubmissionNotFound)
		}
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load submission failed")
	}
	if !isTeacher && submission.UserID != requesterID {
		return SubmitResult{}, pkgerrors.New(pkgerrors.Forbidden)
	}
	testResults, err := s.submissions.GetTestResults(ctx, submissionID)
	if err != nil {
		return SubmitResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load test results failed")
	}
	return SubmitResult{
		Submission:  *submission,
		TestResults: testResults,
		Feedback: feedback.Feedback{
			Available: submission.FeedbackText != "",
			Text:      submission.FeedbackText,
			Reason:    submission.FeedbackReason,
		},
	}, nil
}

// ListMine returns the requester's submissions, optionally per problem.
func (s *Service) ListMine(ctx context.Context, userID, problemID int64) ([]repository.Submission, error) {
	if userID <= 0 {
		return nil, pkgerrors.ValidationError("user_id", "required")
	}
	submissions, err := s.submissions.ListByUser(ctx, userID, problemID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list submissions failed")
	}
	return submissions, nil
}

func buildJudgeInput(problem *problemrepo.Problem, tests []problemrepo.TestCase, code string) judgeservice.JudgeInput {
	cases := make([]result.TestCase, 0, len(tests))
	for _, tc := range tests {
		cases = append(cases, result.TestCase{
			ID:             tc.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	return judgeservice.JudgeInput{
		Code:       code,
		LanguageID: problem.LanguageID,
		Limits: result.ProblemLimits{
			TimeLimitSec:  problem.TimeLimitSec,
			MemoryLimitMB: problem.MemoryLimitMB,
		},
		TestCases:    cases,
		SampleInput:  problem.SampleInput,
		SampleOutput: problem.SampleOutput,
	}
}

// toStoredReport maps a judge report onto submission rows. A verdict for the
// synthesized sample case (test case id 0) is judged but never persisted as a
// per-test row.
func toStoredReport(report result.JudgeReport) repository.Report {
	stored := repository.Report{
		Status:       string(report.Status),
		Score:        report.Score,
		CompileError: report.CompileError,
		RuntimeError: report.RuntimeError,
	}
	for _, verdict := range report.Verdicts {
		if verdict.TestCaseID == 0 {
			continue
		}
		stored.TestResults = append(stored.TestResults, repository.TestResult{
			TestCaseID: verdict.TestCaseID,
			Passed:     verdict.Passed,
			Outcome:    string(verdict.Outcome),
			TimeMs:     verdict.TimeMs,
			MemoryKB:   verdict.MemoryKB,
			Diagnostic: verdict.Diagnostic,
		})
	}
	return stored
}

func (s *Service) markFailed(ctx context.Context, submissionID int64, judgeErr error) {
	report := repository.Report{
		Status:       string(result.StatusSystemError),
		RuntimeError: judgeErr.Error(),
	}
	if err := s.submissions.UpdateReport(ctx, submissionID, report); err != nil {
		logger.Warn(ctx, "mark submission failed errored",
			zap.Int64("submission_id", submissionID), zap.Error(err))
	}
}

func (s *Service) requestFeedback(
	ctx context.Context,
	submissionID int64,
	problem *problemrepo.Problem,
	code string,
	report result.JudgeReport,
) feedback.Feedback {
	if s.analyzer == nil {
		return feedback.Feedback{Reason: "feedback is not configured"}
	}
	diagnostic := report.CompileError
	if diagnostic == "" {
		diagnostic = report.RuntimeError
	}
	fb, err := s.analyzer.Analyze(ctx, feedback.AnalyzeInput{
		ProblemTitle: problem.Title,
		Statement:    problem.Statement,
		Code:         code,
		Status:       string(report.Status),
		Score:        report.Score,
		Diagnostic:   diagnostic,
	})
	if err != nil {
		logger.Warn(ctx, "feedback analysis failed",
			zap.Int64("submission_id", submissionID), zap.Error(err))
		fb = feedback.Feedback{Reason: "feedback analysis failed"}
	}
	if saveErr := s.submissions.SaveFeedback(ctx, submissionID, fb.Text, fb.Reason); saveErr != nil {
		logger.Warn(ctx, "store feedback failed",
			zap.Int64("submission_id", submissionID), zap.Error(saveErr))
	}
	return fb
}
