// Package sandbox provides status reporting hooks for judge progress.
package sandbox

import "context"

// StatusUpdate carries intermediate judge progress data.
type StatusUpdate struct {
	SubmissionID string
	Phase        string
	Language     string
	TotalTests   int
	DoneTests    int
	ReceivedAt   int64
}

// Judge phases reported through StatusReporter.
const (
	PhaseCompiling = "compiling"
	PhaseRunning   = "running"
	PhaseFinished  = "finished"
)

// StatusReporter receives intermediate progress updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}
