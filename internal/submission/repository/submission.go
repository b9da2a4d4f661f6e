// Package repository implements MySQL persistence for submissions and their
// per-test results.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classjudge/internal/common/db"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// StatusPending marks a submission that has not been judged yet.
const StatusPending = "pending"

type Submission struct {
	ID             int64
	UserID         int64
	ProblemID      int64
	Code           string
	LanguageID     string
	Status         string
	Score          int
	CompileError   string
	RuntimeError   string
	FeedbackText   string
	FeedbackReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TestResult is the persisted verdict of one declared test case.
type TestResult struct {
	ID           int64
	SubmissionID int64
	TestCaseID   int64
	Passed       bool
	Outcome      string
	TimeMs       int64
	MemoryKB     int64
	Diagnostic   string
}

// Report carries the judged fields written back onto a pending submission.
type Report struct {
	Status       string
	Score        int
	CompileError string
	RuntimeError string
	TestResults  []TestResult
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *Submission) (int64, error)
	GetByID(ctx context.Context, id int64) (*Submission, error)
	ListByUser(ctx context.Context, userID int64, problemID int64) ([]Submission, error)
	UpdateReport(ctx context.Context, submissionID int64, report Report) error
	SaveFeedback(ctx context.Context, submissionID int64, text, reason string) error
	GetTestResults(ctx context.Context, submissionID int64) ([]TestResult, error)
}

type MySQLSubmissionRepository struct {
	database db.Database
}

func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{database: database}
}

const submissionColumns = "id, user_id, problem_id, code, language_id, status, score, " +
	"compile_error, runtime_error, feedback_text, feedback_reason, created_at, updated_at"

func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *Submission) (int64, error) {
	if submission == nil {
		return 0, errors.New("submission is nil")
	}
	status := submission.Status
	if status == "" {
		status = StatusPending
	}
	query := "INSERT INTO submissions (user_id, problem_id, code, language_id, status, score) " +
		"VALUES (?, ?, ?, ?, ?, 0)"
	result, err := r.database.Exec(ctx, query,
		submission.UserID, submission.ProblemID, submission.Code, submission.LanguageID, status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, id int64) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ?"
	row := r.database.QueryRow(ctx, query, id)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) ListByUser(ctx context.Context, userID int64, problemID int64) ([]Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ?"
	args := []interface{}{userID}
	if problemID > 0 {
		query += " AND problem_id = ?"
		args = append(args, problemID)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.database.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *submission)
	}
	return submissions, rows.Err()
}

// UpdateReport writes the judge outcome and the per-test rows atomically.
func (r *MySQLSubmissionRepository) UpdateReport(ctx context.Context, submissionID int64, report Report) error {
	return r.database.Transaction(ctx, func(tx db.Transaction) error {
		query := "UPDATE submissions SET status = ?, score = ?, compile_error = ?, runtime_error = ?, " +
			"updated_at = NOW() WHERE id = ?"
		result, err := tx.Exec(ctx, query,
			report.Status, report.Score, report.CompileError, report.RuntimeError, submissionID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSubmissionNotFound
		}

		if _, err := tx.Exec(ctx, "DELETE FROM submission_test_results WHERE submission_id = ?", submissionID); err != nil {
			return err
		}
		insert := "INSERT INTO submission_test_results " +
			"(submission_id, test_case_id, passed, outcome, time_ms, memory_kb, diagnostic) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?)"
		for _, tr := range report.TestResults {
			if _, err := tx.Exec(ctx, insert,
				submissionID, tr.TestCaseID, tr.Passed, tr.Outcome, tr.TimeMs, tr.MemoryKB, tr.Diagnostic); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MySQLSubmissionRepository) SaveFeedback(ctx context.Context, submissionID int64, text, reason string) error {
	query := "UPDATE submissions SET feedback_text = ?, feedback_reason = ?, updated_at = NOW() WHERE id = ?"
	result, err := r.database.Exec(ctx, query, text, reason, submissionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (r *MySQLSubmissionRepository) GetTestResults(ctx context.Context, submissionID int64) ([]TestResult, error) {
	query := "SELECT id, submission_id, test_case_id, passed, outcome, time_ms, memory_kb, diagnostic " +
		"FROM submission_test_results WHERE submission_id = ? ORDER BY id"
	rows, err := r.database.Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TestResult
	for rows.Next() {
		var tr TestResult
		if err := rows.Scan(&tr.ID, &tr.SubmissionID, &tr.TestCaseID, &tr.Passed,
			&tr.Outcome, &tr.TimeMs, &tr.MemoryKB, &tr.Diagnostic); err != nil {
			return nil, err
		}
		results = append(results, tr)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(scanner rowScanner) (*Submission, error) {
	var submission Submission
	var compileError, runtimeError, feedbackText, feedbackReason sql.NullString
	err := scanner.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.Code,
		&submission.LanguageID,
		&submission.Status,
		&submission.Score,
		&compileError,
		&runtimeError,
		&feedbackText,
		&feedbackReason,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	submission.CompileError = compileError.String
	submission.RuntimeError = runtimeError.String
	submission.FeedbackText = feedbackText.String
	submission.FeedbackReason = feedbackReason.String
	return &submission, nil
}
