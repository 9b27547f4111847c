package stage

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"ferry/internal/logging"
	"ferry/internal/services"
)

// NewRunID returns a correlation identifier for one stage execution so log
// lines from nested collaborators can be tied back to the attempt.
func NewRunID() string {
	return uuid.NewString()
}

// ContextWithRun tags the context and logger for a single stage execution.
func ContextWithRun(ctx context.Context, logger *slog.Logger, phase string) (context.Context, *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	runID := NewRunID()
	ctx = services.WithRequestID(ctx, runID)
	ctx = services.WithPhase(ctx, phase)
	return ctx, logger.With(
		logging.String(logging.FieldPhase, phase),
		logging.String(logging.FieldCorrelationID, runID),
	)
}
