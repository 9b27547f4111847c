package workflow

import (
	"context"
	"errors"

	"ferry/internal/logging"
	"ferry/internal/store"
)

// Notification delivery is best effort: a failed push never blocks or fails
// the pipeline work that triggered it.

func (m *Manager) notifyArchiveCompleted(ctx context.Context, archive *store.Archive) {
	if m.notifier == nil || archive == nil {
		return
	}
	if err := m.notifier.NotifyArchiveCompleted(ctx, archive.DisplayName); err != nil {
		m.logNotifyFailure(ctx, "archive completed", err)
	}
}

func (m *Manager) notifyArchiveCorrupted(ctx context.Context, archive *store.Archive, reason string) {
	if m.notifier == nil || archive == nil {
		return
	}
	if err := m.notifier.NotifyArchiveCorrupted(ctx, archive.DisplayName, reason); err != nil {
		m.logNotifyFailure(ctx, "archive corrupted", err)
	}
}

func (m *Manager) notifyPipelinePaused(ctx context.Context, reason string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyPipelinePaused(ctx, reason); err != nil {
		m.logNotifyFailure(ctx, "pipeline paused", err)
	}
}

func (m *Manager) notifyPipelineResumed(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyPipelineResumed(ctx); err != nil {
		m.logNotifyFailure(ctx, "pipeline resumed", err)
	}
}

func (m *Manager) logNotifyFailure(ctx context.Context, event string, err error) {
	if errors.Is(err, context.Canceled) {
		m.logger.Debug("shutting down, notification skipped",
			logging.String("event", event))
		return
	}
	m.logger.Debug("notification delivery failed",
		logging.String("event", event),
		logging.Error(err))
}
