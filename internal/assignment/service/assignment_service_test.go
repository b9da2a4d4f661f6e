package service

import (
	"context"
	"testing"

	"classjudge/internal/assignment/repository"
	"classjudge/internal/common/db"
	pkgerrors "classjudge/pkg/errors"
)

type memoryAssignmentRepo struct {
	byID   map[int64]*repository.Assignment
	nextID int64
}

func newMemoryAssignmentRepo() *memoryAssignmentRepo {
	return &memoryAssignmentRepo{byID: make(map[int64]*repository.Assignment), nextID: 1}
}

func (m *memoryAssignmentRepo) Create(ctx context.Context, tx db.Transaction, assignment *repository.Assignment) (int64, error) {
	stored := *assignment
	stored.ID = m.nextID
	m.nextID++
	m.byID[stored.ID] = &stored
	return stored.ID, nil
}

func (m *memoryAssignmentRepo) GetByID(ctx context.Context, tx db.Transaction, id int64) (*repository.Assignment, error) {
	assignment, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrAssignmentNotFound
	}
	copied := *assignment
	return &copied, nil
}

func (m *memoryAssignmentRepo) List(ctx context.Context, activeOnly bool) ([]repository.Assignment, error) {
	var out []repository.Assignment
	for _, assignment := range m.byID {
		if activeOnly && !assignment.Active {
			continue
		}
		out = append(out, *assignment)
	}
	return out, nil
}

func (m *memoryAssignmentRepo) SetActive(ctx context.Context, tx db.Transaction, id int64, active bool) error {
	assignment, ok := m.byID[id]
	if !ok {
		return repository.ErrAssignmentNotFound
	}
	assignment.Active = active
	return nil
}

func TestCreateAndGet(t *testing.T) {
	svc := NewService(newMemoryAssignmentRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Title: "  Week 1  ", CreatedBy: 7, Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "Week 1" {
		t.Fatalf("title = %q, want trimmed", created.Title)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedBy != 7 {
		t.Fatalf("created_by = %d", got.CreatedBy)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryAssignmentRepo())
	_, err := svc.Create(context.Background(), CreateInput{Title: "   ", CreatedBy: 1})
	if got := pkgerrors.GetCode(err); got != pkgerrors.ValidationFailed {
		t.Fatalf("code = %v, want ValidationFailed", got)
	}
}

func TestStudentVisibility(t *testing.T) {
	repo := newMemoryAssignmentRepo()
	svc := NewService(repo)
	ctx := context.Background()

	hidden, err := svc.Create(ctx, CreateInput{Title: "Draft", CreatedBy: 1, Active: false})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Title: "Published", CreatedBy: 1, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.GetForStudent(ctx, hidden.ID)
	if got := pkgerrors.GetCode(err); got != pkgerrors.AssignmentInactive {
		t.Fatalf("code = %v, want AssignmentInactive", got)
	}

	visible, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].Title != "Published" {
		t.Fatalf("student list = %+v", visible)
	}

	all, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("teacher list = %d items, want 2", len(all))
	}
}

func TestSetActiveNotFound(t *testing.T) {
	svc := NewService(newMemoryAssignmentRepo())
	err := svc.SetActive(context.Background(), 99, true)
	if got := pkgerrors.GetCode(err); got != pkgerrors.AssignmentNotFound {
		t.Fatalf("code = %v, want AssignmentNotFound", got)
	}
}
