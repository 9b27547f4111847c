package workflow

import (
	"context"
	"errors"
	"time"

	"ferry/internal/logging"
	"ferry/internal/store"
)

// runHousekeeping owns the periodic chores that no lane claims: discovery
// reconciliation, stale-claim recovery, extracted->processed promotion,
// disk usage remeasurement, and the failure-rate pause policy.
func (m *Manager) runHousekeeping(ctx context.Context) {
	defer m.wg.Done()

	discovery := time.NewTicker(nonZero(m.cfg.DiscoveryInterval(), time.Minute))
	defer discovery.Stop()
	sweep := time.NewTicker(nonZero(m.pollInterval, time.Second))
	defer sweep.Stop()

	// Seed the queue immediately instead of waiting a full interval.
	m.discover(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-discovery.C:
			m.discover(ctx)
		case <-sweep.C:
			m.reclaimStale(ctx)
			m.promoteProcessed(ctx)
			m.applyPausePolicy(ctx)
			if err := m.governor.Refresh(); err != nil {
				m.logger.Warn("disk usage measurement failed", logging.Error(err))
			}
		}
	}
}

// discover lists the remote export and registers any archive not yet known.
// Registration is idempotent so re-listing the same export is harmless.
func (m *Manager) discover(ctx context.Context) {
	remotes, err := m.source.List(ctx)
	if err != nil {
		m.logger.Error("archive discovery failed",
			logging.Error(err),
			logging.String("source", m.source.Describe()),
			logging.String(logging.FieldErrorHint, "check source connectivity and credentials"))
		return
	}
	registered := 0
	for _, remote := range remotes {
		if ctx.Err() != nil {
			return
		}
		existing, err := m.store.GetArchive(ctx, remote.ID)
		if err != nil {
			m.logger.Error("archive lookup failed",
				logging.String("archive_id", remote.ID),
				logging.Error(err))
			continue
		}
		if existing != nil {
			continue
		}
		if _, err := m.store.NewArchive(ctx, remote.ID, remote.Name, remote.Size); err != nil {
			m.logger.Error("archive registration failed",
				logging.String("archive_id", remote.ID),
				logging.Error(err))
			continue
		}
		registered++
	}
	if registered > 0 {
		m.logger.Info("discovered archives",
			logging.Int("count", registered),
			logging.String("source", m.source.Describe()))
	}
}

// reclaimStale rolls back claims whose owner stopped heartbeating, which
// happens when a worker crashed mid-stage without the startup reset seeing it.
func (m *Manager) reclaimStale(ctx context.Context) {
	timeout := m.cfg.HeartbeatTimeout()
	if timeout <= 0 {
		return
	}
	n, err := m.store.ReclaimStale(ctx, time.Now().UTC().Add(-timeout))
	if err != nil {
		m.logger.Error("stale claim reclaim failed", logging.Error(err))
		return
	}
	if n > 0 {
		m.logger.Warn("reclaimed stale claims", logging.Int64("count", n))
	}
}

// promoteProcessed advances extracted archives whose items have all reached a
// terminal phase. Cleanup only ever sees archives that pass this check, but
// the cleanup handler re-verifies before deleting anything.
func (m *Manager) promoteProcessed(ctx context.Context) {
	archives, err := m.store.ArchivesByPhase(ctx, store.ArchiveExtracted)
	if err != nil {
		m.logger.Error("promotion scan failed", logging.Error(err))
		return
	}
	for _, archive := range archives {
		pending, err := m.store.NonTerminalItemCount(ctx, archive.ID)
		if err != nil {
			m.logger.Error("promotion item count failed",
				logging.String("archive_id", archive.ID),
				logging.Error(err))
			continue
		}
		if pending > 0 {
			continue
		}
		err = m.store.TransitionArchive(ctx, archive.ID, store.ArchiveExtracted, store.ArchiveProcessed)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			m.logger.Error("promotion transition failed",
				logging.String("archive_id", archive.ID),
				logging.Error(err))
			continue
		}
		m.logger.Info("archive fully processed",
			logging.String("archive_id", archive.ID))
	}
}

// applyPausePolicy pauses cleanup when the failed-item ratio crosses the
// configured threshold, so local copies survive for operator-driven retries.
// It never unpauses: only the operator resumes, and a resume acknowledges the
// failures seen so far, so the policy re-fires only for failures that arrive
// after it.
func (m *Manager) applyPausePolicy(ctx context.Context) {
	threshold := m.cfg.Workflow.PauseFailureThreshold
	if threshold <= 0 {
		return
	}
	stats, err := m.store.ItemStats(ctx)
	if err != nil {
		m.logger.Error("pause policy stats failed", logging.Error(err))
		return
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	if total == 0 {
		return
	}
	failed := stats[store.ItemFailed]
	ratio := float64(failed) / float64(total)
	if ratio < threshold {
		return
	}

	state, err := m.store.GetRunState(ctx)
	if err != nil {
		m.logger.Error("pause policy state read failed", logging.Error(err))
		return
	}
	if state.Paused || failed <= state.FlaggedFailures {
		return
	}

	if err := m.store.SetPaused(ctx, true, "item failure rate above threshold"); err != nil {
		m.logger.Error("pause failed", logging.Error(err))
		return
	}
	m.logger.Warn("cleanup paused",
		logging.Int("failed_items", failed),
		logging.Int("total_items", total),
		logging.String(logging.FieldErrorHint, "inspect failed items and run retry or resume to continue"))
	m.notifyPipelinePaused(ctx, "item failure rate above threshold")
}

// cleanupAllowed gates the cleanup lane on configuration and the persisted
// pause flag.
func (m *Manager) cleanupAllowed(ctx context.Context) (bool, error) {
	if !m.cfg.Disk.CleanupEnabled {
		return false, nil
	}
	state, err := m.store.GetRunState(ctx)
	if err != nil {
		return false, err
	}
	return !state.Paused, nil
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
