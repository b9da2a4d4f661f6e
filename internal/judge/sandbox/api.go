// Package sandbox defines the public call interface used by the judge service.
package sandbox

import (
	"context"

	"classjudge/internal/judge/sandbox/result"
)

// Service is the high-level sandbox entrypoint used by the judge layer.
type Service interface {
	Execute(ctx context.Context, req JudgeRequest) (result.JudgeReport, error)
}

// JudgeRequest contains all data needed to judge one submission.
// SourcePath must point to a local file prepared before calling the sandbox.
type JudgeRequest struct {
	SubmissionID string
	LanguageID   string

	// WorkRoot is the host path used to create per-test workspaces.
	WorkRoot string
	// SourcePath is the local path to the user source code.
	SourcePath string

	Limits result.ProblemLimits
	Tests  []result.TestCase

	// ExtraCompileFlags must be filtered by the caller before use.
	ExtraCompileFlags []string

	ReceivedAt int64
}
