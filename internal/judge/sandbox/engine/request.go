package engine

import (
	"classjudge/internal/judge/sandbox/security"
	"classjudge/internal/judge/sandbox/spec"
)

// initRequest is the payload streamed to the sandbox-init helper on stdin.
// Its field names are a wire contract shared with cmd/sandbox-init.
type initRequest struct {
	RunSpec       spec.RunSpec
	Isolation     security.IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
}
