// Package service implements assignment management.
package service

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"classjudge/internal/assignment/repository"
	pkgerrors "classjudge/pkg/errors"
)

// Service manages assignments.
type Service struct {
	assignments repository.AssignmentRepository
}

func NewService(assignments repository.AssignmentRepository) *Service {
	return &Service{assignments: assignments}
}

// CreateInput describes a new assignment.
type CreateInput struct {
	Title       string
	Description string
	CreatedBy   int64
	Active      bool
	DueAt       *time.Time
}

// Create stores a new assignment owned by a teacher.
func (s *Service) Create(ctx context.Context, input CreateInput) (*repository.Assignment, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.ValidationError("title", "required")
	}
	if input.CreatedBy <= 0 {
		return nil, pkgerrors.ValidationError("created_by", "required")
	}

	assignment := &repository.Assignment{
		Title:       title,
		Description: input.Description,
		CreatedBy:   input.CreatedBy,
		Active:      input.Active,
		DueAt:       input.DueAt,
	}
	id, err := s.assignments.Create(ctx, nil, assignment)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create assignment failed")
	}
	return s.Get(ctx, id)
}

// Get loads one assignment.
func (s *Service) Get(ctx context.Context, id int64) (*repository.Assignment, error) {
	if id <= 0 {
		return nil, pkgerrors.ValidationError("assignment_id", "required")
	}
	assignment, err := s.assignments.GetByID(ctx, nil, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrAssignmentNotFound) {
			return nil, pkgerrors.New(pkgerrors.AssignmentNotFound)
		}
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load assignment failed")
	}
	return assignment, nil
}

// GetForStudent loads one assignment and rejects inactive ones.
func (s *Service) GetForStudent(ctx context.Context, id int64) (*repository.Assignment, error) {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !assignment.Active {
		return nil, pkgerrors.New(pkgerrors.AssignmentInactive)
	}
	return assignment, nil
}

// List returns assignments. Students only see active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]repository.Assignment, error) {
	assignments, err := s.assignments.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list assignments failed")
	}
	return assignments, nil
}

// SetActive toggles student visibility.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	if id <= 0 {
		return pkgerrors.ValidationError("assignment_id", "required")
	}
	if err := s.assignments.SetActive(ctx, nil, id, active); err != nil {
		if stderrors.Is(err, repository.ErrAssignmentNotFound) {
			return pkgerrors.New(pkgerrors.AssignmentNotFound)
		}
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "update assignment failed")
	}
	return nil
}
