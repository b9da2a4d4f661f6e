package service

import (
	"context"
	"testing"

	assignmentrepo "classjudge/internal/assignment/repository"
	"classjudge/internal/common/db"
	sandboxconfig "classjudge/internal/judge/sandbox/config"
	"classjudge/internal/problem/repository"
	pkgerrors "classjudge/pkg/errors"
)

type memoryProblemRepo struct {
	byID   map[int64]*repository.Problem
	tests  map[int64][]repository.TestCase
	nextID int64
}

func newMemoryProblemRepo() *memoryProblemRepo {
	return &memoryProblemRepo{
		byID:   make(map[int64]*repository.Problem),
		tests:  make(map[int64][]repository.TestCase),
		nextID: 1,
	}
}

func (m *memoryProblemRepo) Create(ctx context.Context, problem *repository.Problem, tests []repository.TestCase) (int64, error) {
	stored := *problem
	stored.ID = m.nextID
	m.nextID++
	m.byID[stored.ID] = &stored
	m.tests[stored.ID] = append([]repository.TestCase(nil), tests...)
	return stored.ID, nil
}

func (m *memoryProblemRepo) GetByID(ctx context.Context, id int64) (*repository.Problem, error) {
	problem, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	copied := *problem
	return &copied, nil
}

func (m *memoryProblemRepo) GetTestCases(ctx context.Context, problemID int64) ([]repository.TestCase, error) {
	return append([]repository.TestCase(nil), m.tests[problemID]...), nil
}

func (m *memoryProblemRepo) ListByAssignment(ctx context.Context, assignmentID int64) ([]repository.Problem, error) {
	var out []repository.Problem
	for _, problem := range m.byID {
		if problem.AssignmentID == assignmentID {
			out = append(out, *problem)
		}
	}
	return out, nil
}

func (m *memoryProblemRepo) ReplaceTestCases(ctx context.Context, problemID int64, tests []repository.TestCase) error {
	m.tests[problemID] = append([]repository.TestCase(nil), tests...)
	return nil
}

type stubAssignmentRepo struct {
	existing map[int64]bool
}

func (s stubAssignmentRepo) Create(ctx context.Context, tx db.Transaction, assignment *assignmentrepo.Assignment) (int64, error) {
	return 0, nil
}

func (s stubAssignmentRepo) GetByID(ctx context.Context, tx db.Transaction, id int64) (*assignmentrepo.Assignment, error) {
	if !s.existing[id] {
		return nil, assignmentrepo.ErrAssignmentNotFound
	}
	return &assignmentrepo.Assignment{ID: id, Active: true}, nil
}

func (s stubAssignmentRepo) List(ctx context.Context, activeOnly bool) ([]assignmentrepo.Assignment, error) {
	return nil, nil
}

func (s stubAssignmentRepo) SetActive(ctx context.Context, tx db.Transaction, id int64, active bool) error {
	return nil
}

func newTestService() (*Service, *memoryProblemRepo) {
	problems := newMemoryProblemRepo()
	assignments := stubAssignmentRepo{existing: map[int64]bool{1: true}}
	languages := sandboxconfig.NewLocalRepository(nil, nil)
	return NewService(problems, assignments, languages), problems
}

func validCreateInput() CreateInput {
	return CreateInput{
		AssignmentID: 1,
		Title:        "Sum of two numbers",
		Statement:    "Read two integers and print their sum.",
		SampleInput:  "1 2",
		SampleOutput: "3",
		TestCases: []TestCaseInput{
			{Input: "1 2", ExpectedOutput: "3"},
			{Input: "5 7", ExpectedOutput: "12"},
		},
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, repo := newTestService()
	problem, err := svc.Create(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if problem.TimeLimitSec != 1 || problem.MemoryLimitMB != 256 {
		t.Fatalf("limits = %d/%d, want defaults", problem.TimeLimitSec, problem.MemoryLimitMB)
	}
	if problem.LanguageID != "c" || problem.Difficulty != "medium" {
		t.Fatalf("defaults = %s/%s", problem.LanguageID, problem.Difficulty)
	}
	tests, err := svc.GetTestCases(context.Background(), problem.ID)
	if err != nil {
		t.Fatalf("get tests: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("tests = %d, want 2", len(tests))
	}
	if len(repo.tests[problem.ID]) != 2 {
		t.Fatal("tests not persisted")
	}
}

func TestCreateValidationErrors(t *testing.T) {
	svc, _ := newTestService()
	cases := []struct {
		name   string
		mutate func(*CreateInput)
		code   pkgerrors.ErrorCode
	}{
		{"missing title", func(in *CreateInput) { in.Title = " " }, pkgerrors.ValidationFailed},
		{"missing statement", func(in *CreateInput) { in.Statement = "" }, pkgerrors.ValidationFailed},
		{"unknown assignment", func(in *CreateInput) { in.AssignmentID = 42 }, pkgerrors.AssignmentNotFound},
		{"unknown language", func(in *CreateInput) { in.LanguageID = "cobol" }, pkgerrors.LanguageNotSupported},
		{"excessive time limit", func(in *CreateInput) { in.TimeLimitSec = 300 }, pkgerrors.ValidationFailed},
		{"bad difficulty", func(in *CreateInput) { in.Difficulty = "extreme" }, pkgerrors.ValidationFailed},
		{"test without output", func(in *CreateInput) { in.TestCases[0].ExpectedOutput = "" }, pkgerrors.TestCaseInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(&input)
			_, err := svc.Create(context.Background(), input)
			if got := pkgerrors.GetCode(err); got != tc.code {
				t.Fatalf("code = %v, want %v", got, tc.code)
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Get(context.Background(), 99)
	if got := pkgerrors.GetCode(err); got != pkgerrors.ProblemNotFound {
		t.Fatalf("code = %v, want ProblemNotFound", got)
	}
}

func TestReplaceTestCases(t *testing.T) {
	svc, repo := newTestService()
	problem, err := svc.Create(context.Background(), validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = svc.ReplaceTestCases(context.Background(), problem.ID, []TestCaseInput{
		{Input: "10 20", ExpectedOutput: "30"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := repo.tests[problem.ID]; len(got) != 1 || got[0].ExpectedOutput != "30" {
		t.Fatalf("tests = %+v", got)
	}
}
