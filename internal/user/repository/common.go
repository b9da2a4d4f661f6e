// Package repository implements MySQL persistence for user accounts.
package repository

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrDuplicate      = errors.New("duplicate record")
)
