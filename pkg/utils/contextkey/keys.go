// Package contextkey holds the context keys shared between middleware,
// logging, and services.
package contextkey

// key keeps these values from colliding with context keys defined elsewhere.
type key string

func (k key) String() string { return string(k) }

const (
	// TraceID spans one request end to end, including log lines.
	TraceID key = "trace_id"
	// RequestID identifies a single HTTP request.
	RequestID key = "request_id"
	// UserID is set by the auth middleware after token verification.
	UserID key = "user_id"
)
