// Package service implements registration, login and token verification.
package service

import (
	"context"
	stderrors "errors"
	"time"
	"unicode/utf8"

	"classjudge/internal/common/db"
	"classjudge/internal/user/repository"
	pkgerrors "classjudge/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTokenTTL = 12 * time.Hour

	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
	maxPasswordLen = 72
)

// AuthService handles user authentication flows.
type AuthService struct {
	database db.Database
	users    repository.UserRepository
	tokens   *TokenManager
}

// NewAuthService creates a new AuthService.
func NewAuthService(database db.Database, users repository.UserRepository, tokens *TokenManager) *AuthService {
	return &AuthService{
		database: database,
		users:    users,
		tokens:   tokens,
	}
}

// RegisterInput represents input for user registration.
type RegisterInput struct {
	Username string
	FullName string
	Password string
	Role     repository.UserRole
}

// LoginInput represents input for user login.
type LoginInput struct {
	Username string
	Password string
}

// UserInfo represents basic user info for auth responses.
type UserInfo struct {
	ID       int64
	Username string
	FullName string
	Role     repository.UserRole
}

// AuthResult represents the result of auth operations.
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        UserInfo
}

// Register creates a new user and issues an access token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	if err := validateUsername(input.Username); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}
	role := input.Role
	if role == "" {
		role = repository.UserRoleStudent
	}
	if !repository.ValidRole(role) {
		return AuthResult{}, pkgerrors.ValidationError("role", "must be teacher or student")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "hash password failed")
	}

	user := &repository.User{
		Username:     input.Username,
		FullName:     input.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
	}
	userID, err := s.users.Create(ctx, nil, user)
	if err != nil {
		if stderrors.Is(err, repository.ErrUsernameExists) {
			return AuthResult{}, pkgerrors.New(pkgerrors.UsernameAlreadyExists)
		}
		return AuthResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create user failed")
	}
	user.ID = userID

	return s.issueToken(user)
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	if input.Username == "" || input.Password == "" {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	user, err := s.users.GetByUsername(ctx, nil, input.Username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load user failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	return s.issueToken(user)
}

// GetProfile returns user info for an authenticated user id.
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (UserInfo, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return UserInfo{}, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return UserInfo{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load user failed")
	}
	return toUserInfo(user), nil
}

// VerifyToken parses an access token and returns its claims.
func (s *AuthService) VerifyToken(tokenString string) (*Claims, error) {
	return s.tokens.Parse(tokenString)
}

func (s *AuthService) issueToken(user *repository.User) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        toUserInfo(user),
	}, nil
}

func toUserInfo(user *repository.User) UserInfo {
	return UserInfo{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
	}
}

func validateUsername(username string) error {
	length := utf8.RuneCountInString(username)
	if length < minUsernameLen || length > maxUsernameLen {
		return pkgerrors.ValidationError("username", "must be 3-32 characters")
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return pkgerrors.ValidationError("username", "only letters, digits, underscore and dash")
		}
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return pkgerrors.New(pkgerrors.InvalidPassword).WithMessage("password must be 6-72 bytes")
	}
	return nil
}
