package workflow

import (
	"context"

	"ferry/internal/stage"
	"ferry/internal/store"
)

// Status is a point-in-time snapshot for operator-facing commands.
type Status struct {
	Running       bool
	Paused        bool
	PauseReason   string
	Summary       store.HealthSummary
	ArchivePhases map[store.ArchivePhase]int
	ItemPhases    map[store.ItemPhase]int
	Stages        []stage.Health
	DiskUsed      int64
	DiskReserved  int64
	DiskCeiling   int64
}

// Healthy reports whether every stage dependency checked out.
func (s Status) Healthy() bool {
	for _, h := range s.Stages {
		if !h.Ready {
			return false
		}
	}
	return true
}

// Health probes every stage dependency and aggregates store counts. Probes
// are cheap (stat, list, lookpath) so this is safe to call from a CLI.
func (m *Manager) Health(ctx context.Context) (Status, error) {
	status := Status{Running: m.Running()}

	summary, err := m.store.Health(ctx)
	if err != nil {
		return status, err
	}
	status.Summary = summary

	if status.ArchivePhases, err = m.store.ArchiveStats(ctx); err != nil {
		return status, err
	}
	if status.ItemPhases, err = m.store.ItemStats(ctx); err != nil {
		return status, err
	}

	state, err := m.store.GetRunState(ctx)
	if err != nil {
		return status, err
	}
	status.Paused = state.Paused
	status.PauseReason = state.PauseReason

	status.Stages = m.stageHealth(ctx)

	status.DiskUsed, status.DiskReserved, status.DiskCeiling = m.governor.Usage()
	return status, nil
}

func (m *Manager) stageHealth(ctx context.Context) []stage.Health {
	return []stage.Health{
		m.storeHealth(ctx),
		m.download.HealthCheck(ctx),
		m.extract.HealthCheck(ctx),
		m.merge.HealthCheck(ctx),
		m.resolve.HealthCheck(ctx),
		m.upload.HealthCheck(ctx),
		m.cleanup.HealthCheck(ctx),
	}
}

func (m *Manager) storeHealth(ctx context.Context) stage.Health {
	if err := m.store.CheckHealth(ctx); err != nil {
		return stage.Unhealthy("store", err.Error())
	}
	return stage.Healthy("store")
}
