package service

import (
	"context"

	"classjudge/internal/judge/sandbox"
	"classjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// LoggingStatusReporter writes sandbox progress updates to the service log.
type LoggingStatusReporter struct{}

func (LoggingStatusReporter) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	logger.Info(ctx, "judge progress",
		zap.String("submission_id", update.SubmissionID),
		zap.String("phase", update.Phase),
		zap.String("language", update.Language),
		zap.Int("done_tests", update.DoneTests),
		zap.Int("total_tests", update.TotalTests))
	return nil
}
