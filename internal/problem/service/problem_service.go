// Package service implements problem management.
package service

import (
	"context"
	stderrors "errors"
	"strings"

	assignmentrepo "classjudge/internal/assignment/repository"
	"classjudge/internal/judge/sandbox/config"
	"classjudge/internal/problem/repository"
	pkgerrors "classjudge/pkg/errors"
)

const (
	defaultTimeLimitSec  = 1
	defaultMemoryLimitMB = 256
	defaultLanguageID    = "c"

	maxTimeLimitSec  = 30
	maxMemoryLimitMB = 2048
	maxTestCases     = 50
)

// Service manages problems and their test cases.
type Service struct {
	problems    repository.ProblemRepository
	assignments assignmentrepo.AssignmentRepository
	languages   config.LanguageSpecRepository
}

func NewService(
	problems repository.ProblemRepository,
	assignments assignmentrepo.AssignmentRepository,
	languages config.LanguageSpecRepository,
) *Service {
	return &Service{
		problems:    problems,
		assignments: assignments,
		languages:   languages,
	}
}

// TestCaseInput is one declared test case for problem creation.
type TestCaseInput struct {
	Input          string
	ExpectedOutput string
}

// CreateInput describes a new problem under an assignment.
type CreateInput struct {
	AssignmentID  int64
	Title         string
	Statement     string
	InputFormat   string
	OutputFormat  string
	SampleInput   string
	SampleOutput  string
	Difficulty    string
	LanguageID    string
	TimeLimitSec  int64
	MemoryLimitMB int64
	TestCases     []TestCaseInput
}

// Create validates and stores a problem with its test cases.
func (s *Service) Create(ctx context.Context, input CreateInput) (*repository.Problem, error) {
	if input.AssignmentID <= 0 {
		return nil, pkgerrors.ValidationError("assignment_id", "required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.ValidationError("title", "required")
	}
	if strings.TrimSpace(input.Statement) == "" {
		return nil, pkgerrors.ValidationError("statement", "required")
	}
	if len(input.TestCases) > maxTestCases {
		return nil, pkgerrors.Newf(pkgerrors.TestCaseInvalid, "at most %d test cases", maxTestCases)
	}
	for i, tc := range input.TestCases {
		if tc.ExpectedOutput == "" {
			return nil, pkgerrors.Newf(pkgerrors.TestCaseInvalid, "test case %d has no expected output", i+1)
		}
	}

	timeLimit := input.TimeLimitSec
	if timeLimit == 0 {
		timeLimit = defaultTimeLimitSec
	}
	if timeLimit < 1 || timeLimit > maxTimeLimitSec {
		return nil, pkgerrors.ValidationError("time_limit_sec", "out of range")
	}
	memoryLimit := input.MemoryLimitMB
	if memoryLimit == 0 {
		memoryLimit = defaultMemoryLimitMB
	}
	if memoryLimit < 16 || memoryLimit > maxMemoryLimitMB {
		return nil, pkgerrors.ValidationError("memory_limit_mb", "out of range")
	}

	languageID := input.LanguageID
	if languageID == "" {
		languageID = defaultLanguageID
	}
	if _, err := s.languages.GetLanguageSpec(ctx, languageID); err != nil {
		return nil, err
	}

	difficulty := input.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	switch difficulty {
	case "easy", "medium", "hard":
	default:
		return nil, pkgerrors.ValidationError("difficulty", "must be easy, medium or hard")
	}

	if _, err := s.assignments.GetByID(ctx, nil, input.AssignmentID); err != nil {
		if stderrors.Is(err, assignmentrepo.ErrAssignmentNotFound) {
			return nil, pkgerrors.New(pkgerrors.AssignmentNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load assignment failed")
	}

	problem := &repository.Problem{
		AssignmentID:  input.AssignmentID,
		Title:         title,
		Statement:     input.Statement,
		InputFormat:   input.InputFormat,
		OutputFormat:  input.OutputFormat,
		SampleInput:   input.SampleInput,
		SampleOutput:  input.SampleOutput,
		Difficulty:    difficulty,
		LanguageID:    languageID,
		TimeLimitSec:  timeLimit,
		MemoryLimitMB: memoryLimit,
	}
	tests := make([]repository.TestCase, 0, len(input.TestCases))
	for _, tc := range input.TestCases {
		tests = append(tests, repository.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	problemID, err := s.problems.Create(ctx, problem, tests)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ProblemCreateFailed, "create problem failed")
	}
	return s.Get(ctx, problemID)
}

// Get loads one problem.
func (s *Service) Get(ctx context.Context, id int64) (*repository.Problem, error) {
	if id <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "required")
	}
	problem, err := s.problems.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrProblemNotFound) {
			return nil, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load problem failed")
	}
	return problem, nil
}

// GetTestCases loads the declared test cases of a problem in order.
func (s *Service) GetTestCases(ctx context.Context, problemID int64) ([]repository.TestCase, error) {
	tests, err := s.problems.GetTestCases(ctx, problemID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load test cases failed")
	}
	return tests, nil
}

// ListByAssignment returns the problems of one assignment.
func (s *Service) ListByAssignment(ctx context.Context, assignmentID int64) ([]repository.Problem, error) {
	if assignmentID <= 0 {
		return nil, pkgerrors.ValidationError("assignment_id", "required")
	}
	problems, err := s.problems.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list problems failed")
	}
	return problems, nil
}

// ReplaceTestCases swaps the declared test cases of a problem.
func (s *Service) ReplaceTestCases(ctx context.Context, problemID int64, inputs []TestCaseInput) error {
	if _, err := s.Get(ctx, problemID); err != nil {
		return err
	}
	if len(inputs) > maxTestCases {
		return pkgerrors.Newf(pkgerrors.TestCaseInvalid, "at most %d test cases", maxTestCases)
	}
	tests := make([]repository.TestCase, 0, len(inputs))
	for i, tc := range inputs {
		if tc.ExpectedOutput == "" {
			return pkgerrors.Newf(pkgerrors.TestCaseInvalid, "test case %d has no expected output", i+1)
		}
		tests = append(tests, repository.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	if err := s.problems.ReplaceTestCases(ctx, problemID, tests); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "replace test cases failed")
	}
	return nil
}
