//go:build !linux

package engine

import (
	"context"
	"errors"

	"classjudge/internal/judge/sandbox/result"
	"classjudge/internal/judge/sandbox/spec"
)

var errUnsupportedOS = errors.New("sandbox engine requires linux")

// stubEngine keeps non-linux builds compiling; every call fails.
type stubEngine struct{}

func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, errUnsupportedOS
}

func (s *stubEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return errUnsupportedOS
}
