// Package repository implements MySQL persistence for assignments.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classjudge/internal/common/db"
)

var ErrAssignmentNotFound = errors.New("assignment not found")

type Assignment struct {
	ID          int64
	Title       string
	Description string
	CreatedBy   int64
	Active      bool
	DueAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AssignmentRepository interface {
	Create(ctx context.Context, tx db.Transaction, assignment *Assignment) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*Assignment, error)
	List(ctx context.Context, activeOnly bool) ([]Assignment, error)
	SetActive(ctx context.Context, tx db.Transaction, id int64, active bool) error
}

type MySQLAssignmentRepository struct {
	database db.Database
}

func NewAssignmentRepository(database db.Database) AssignmentRepository {
	return &MySQLAssignmentRepository{database: database}
}

const assignmentColumns = "id, title, description, created_by, active, due_at, created_at, updated_at"

func (r *MySQLAssignmentRepository) Create(ctx context.Context, tx db.Transaction, assignment *Assignment) (int64, error) {
	if assignment == nil {
		return 0, errors.New("assignment is nil")
	}
	dueAt := sql.NullTime{}
	if assignment.DueAt != nil {
		dueAt = sql.NullTime{Time: *assignment.DueAt, Valid: true}
	}
	query := "INSERT INTO assignments (title, description, created_by, active, due_at) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.database, tx).Exec(ctx, query,
		assignment.Title, assignment.Description, assignment.CreatedBy, assignment.Active, dueAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *MySQLAssignmentRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE id = ?"
	row := db.GetQuerier(r.database, tx).QueryRow(ctx, query, id)
	assignment, err := scanAssignment(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return assignment, nil
}

func (r *MySQLAssignmentRepository) List(ctx context.Context, activeOnly bool) ([]Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.database.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *assignment)
	}
	return assignments, rows.Err()
}

func (r *MySQLAssignmentRepository) SetActive(ctx context.Context, tx db.Transaction, id int64, active bool) error {
	query := "UPDATE assignments SET active = ?, updated_at = NOW() WHERE id = ?"
	result, err := db.GetQuerier(r.database, tx).Exec(ctx, query, active, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(scanner rowScanner) (*Assignment, error) {
	var assignment Assignment
	var dueAt sql.NullTime
	err := scanner.Scan(
		&assignment.ID,
		&assignment.Title,
		&assignment.Description,
		&assignment.CreatedBy,
		&assignment.Active,
		&dueAt,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueAt.Valid {
		assignment.DueAt = &dueAt.Time
	}
	return &assignment, nil
}
