package engine

import "classjudge/internal/judge/sandbox/security"

// ProfileResolver maps a profile name (for example "c-run") onto the
// isolation settings the engine should apply.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls the sandbox engine. The Enable* switches exist for
// development machines without cgroup v2 delegation or user namespaces;
// production keeps all three on.
type Config struct {
	// CgroupRoot is the delegated cgroup v2 directory tasks run under.
	CgroupRoot string
	// SeccompDir resolves relative seccomp profile names.
	SeccompDir string
	// HelperPath locates the sandbox-init binary.
	HelperPath string
	// StdoutStderrMaxBytes caps how much captured output is read back.
	StdoutStderrMaxBytes int64

	EnableSeccomp    bool
	EnableCgroup     bool
	EnableNamespaces bool
}
