// Package repository implements MySQL persistence for problems and their
// declared test cases, with a redis cache on the hot read path.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classjudge/internal/common/cache"
	"classjudge/internal/common/db"
)

var ErrProblemNotFound = errors.New("problem not found")

type Problem struct {
	ID            int64
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
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TestCase is one declared input/expected-output pair of a problem.
type TestCase struct {
	ID             int64
	ProblemID      int64
	Input          string
	ExpectedOutput string
	Position       int
}

type ProblemRepository interface {
	Create(ctx context.Context, problem *Problem, tests []TestCase) (int64, error)
	GetByID(ctx context.Context, id int64) (*Problem, error)
	GetTestCases(ctx context.Context, problemID int64) ([]TestCase, error)
	ListByAssignment(ctx context.Context, assignmentID int64) ([]Problem, error)
	ReplaceTestCases(ctx context.Context, problemID int64, tests []TestCase) error
}

type MySQLProblemRepository struct {
	database db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

const (
	problemInfoKeyPrefix  = "problem:info:"
	problemTestsKeyPrefix = "problem:tests:"

	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 2 * time.Minute
)

func NewProblemRepository(database db.Database, cacheClient cache.Cache) ProblemRepository {
	return &MySQLProblemRepository{
		database: database,
		cache:    cacheClient,
		ttl:      defaultProblemCacheTTL,
		emptyTTL: defaultProblemCacheEmptyTTL,
	}
}

const problemColumns = "id, assignment_id, title, statement, input_format, output_format, " +
	"sample_input, sample_output, difficulty, language_id, time_limit_sec, memory_limit_mb, " +
	"created_at, updated_at"

func (r *MySQLProblemRepository) Create(ctx context.Context, problem *Problem, tests []TestCase) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}

	var problemID int64
	err := r.database.Transaction(ctx, func(tx db.Transaction) error {
		query := "INSERT INTO problems (assignment_id, title, statement, input_format, output_format, " +
			"sample_input, sample_output, difficulty, language_id, time_limit_sec, memory_limit_mb) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		result, err := tx.Exec(ctx, query,
			problem.AssignmentID, problem.Title, problem.Statement,
			problem.InputFormat, problem.OutputFormat,
			problem.SampleInput, problem.SampleOutput,
			problem.Difficulty, problem.LanguageID,
			problem.TimeLimitSec, problem.MemoryLimitMB)
		if err != nil {
			return err
		}
		problemID, err = result.LastInsertId()
		if err != nil {
			return err
		}
		return insertTestCases(ctx, tx, problemID, tests)
	})
	if err != nil {
		return 0, err
	}
	return problemID, nil
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, id int64) (*Problem, error) {
	if r.cache != nil {
		problem, err := cache.GetWithCached[*Problem](
			ctx,
			r.cache,
			problemInfoKey(id),
			r.ttl,
			r.emptyTTL,
			func(problem *Problem) bool { return problem == nil },
			marshalJSON[*Problem],
			unmarshalJSON[*Problem],
			func(ctx context.Context) (*Problem, error) {
				problem, err := r.getByIDFromDB(ctx, id)
				if err != nil {
					if errors.Is(err, ErrProblemNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return problem, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getByIDFromDB(ctx, id)
}

func (r *MySQLProblemRepository) GetTestCases(ctx context.Context, problemID int64) ([]TestCase, error) {
	if r.cache != nil {
		return cache.GetWithCached[[]TestCase](
			ctx,
			r.cache,
			problemTestsKey(problemID),
			r.ttl,
			r.emptyTTL,
			func(tests []TestCase) bool { return len(tests) == 0 },
			marshalJSON[[]TestCase],
			unmarshalJSON[[]TestCase],
			func(ctx context.Context) ([]TestCase, error) {
				return r.getTestCasesFromDB(ctx, problemID)
			},
		)
	}
	return r.getTestCasesFromDB(ctx, problemID)
}

func (r *MySQLProblemRepository) ListByAssignment(ctx context.Context, assignmentID int64) ([]Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE assignment_id = ? ORDER BY id"
	rows, err := r.database.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []Problem
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, *problem)
	}
	return problems, rows.Err()
}

func (r *MySQLProblemRepository) ReplaceTestCases(ctx context.Context, problemID int64, tests []TestCase) error {
	write := func(ctx context.Context) error {
		return r.database.Transaction(ctx, func(tx db.Transaction) error {
			if _, err := tx.Exec(ctx, "DELETE FROM problem_test_cases WHERE problem_id = ?", problemID); err != nil {
				return err
			}
			return insertTestCases(ctx, tx, problemID, tests)
		})
	}
	if r.cache != nil {
		return cache.UpdateCached(ctx, r.cache, problemTestsKey(problemID), write)
	}
	return write(ctx)
}

func insertTestCases(ctx context.Context, tx db.Transaction, problemID int64, tests []TestCase) error {
	query := "INSERT INTO problem_test_cases (problem_id, input, expected_output, position) VALUES (?, ?, ?, ?)"
	for i, tc := range tests {
		if _, err := tx.Exec(ctx, query, problemID, tc.Input, tc.ExpectedOutput, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLProblemRepository) getByIDFromDB(ctx context.Context, id int64) (*Problem, error) {
	query := "SELECT " + problemColumns + " FROM problems WHERE id = ?"
	row := r.database.QueryRow(ctx, query, id)
	problem, err := scanProblem(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return problem, nil
}

func (r *MySQLProblemRepository) getTestCasesFromDB(ctx context.Context, problemID int64) ([]TestCase, error) {
	query := "SELECT id, problem_id, input, expected_output, position " +
		"FROM problem_test_cases WHERE problem_id = ? ORDER BY position"
	rows, err := r.database.Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []TestCase
	for rows.Next() {
		var tc TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.Position); err != nil {
			return nil, err
		}
		tests = append(tests, tc)
	}
	return tests, rows.Err()
}

func problemInfoKey(id int64) string {
	return fmt.Sprintf("%s%d", problemInfoKeyPrefix, id)
}

func problemTestsKey(id int64) string {
	return fmt.Sprintf("%s%d", problemTestsKeyPrefix, id)
}

func marshalJSON[T any](value T) string {
	payload, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalJSON[T any](data string) (T, error) {
	var value T
	if data == "" {
		return value, nil
	}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return value, err
	}
	return value, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProblem(scanner rowScanner) (*Problem, error) {
	var problem Problem
	err := scanner.Scan(
		&problem.ID,
		&problem.AssignmentID,
		&problem.Title,
		&problem.Statement,
		&problem.InputFormat,
		&problem.OutputFormat,
		&problem.SampleInput,
		&problem.SampleOutput,
		&problem.Difficulty,
		&problem.LanguageID,
		&problem.TimeLimitSec,
		&problem.MemoryLimitMB,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &problem, nil
}
