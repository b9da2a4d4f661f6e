package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"classjudge/internal/common/db"
)

// UserRole separates teachers from students. Teachers manage assignments
// and problems; students submit solutions.
type UserRole string

const (
	UserRoleTeacher UserRole = "teacher"
	UserRoleStudent UserRole = "student"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role UserRole) bool {
	return role == UserRoleTeacher || role == UserRoleStudent
}

type User struct {
	ID           int64
	Username     string
	FullName     string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error)
	ExistsByUsername(ctx context.Context, tx db.Transaction, username string) (bool, error)
}

type MySQLUserRepository struct {
	database db.Database
}

func NewUserRepository(database db.Database) UserRepository {
	return &MySQLUserRepository{database: database}
}

const userColumns = "id, username, full_name, password_hash, role, created_at, updated_at"

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is nil")
	}
	role := user.Role
	if role == "" {
		role = UserRoleStudent
	}

	query := "INSERT INTO users (username, full_name, password_hash, role) VALUES (?, ?, ?, ?)"
	querier := db.GetQuerier(r.database, tx)
	result, err := querier.Exec(ctx, query, user.Username, user.FullName, user.PasswordHash, role)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			if strings.Contains(strings.ToLower(key), "username") {
				return 0, ErrUsernameExists
			}
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	row := db.GetQuerier(r.database, tx).QueryRow(ctx, query, id)
	return scanUser(row)
}

func (r *MySQLUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE username = ?"
	row := db.GetQuerier(r.database, tx).QueryRow(ctx, query, username)
	return scanUser(row)
}

func (r *MySQLUserRepository) ExistsByUsername(ctx context.Context, tx db.Transaction, username string) (bool, error) {
	query := "SELECT 1 FROM users WHERE username = ?"
	row := db.GetQuerier(r.database, tx).QueryRow(ctx, query, username)
	var one int
	if err := row.Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(scanner rowScanner) (*User, error) {
	var user User
	err := scanner.Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
