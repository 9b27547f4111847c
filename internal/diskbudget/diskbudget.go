// Package diskbudget enforces the staging-disk ceiling for the pipeline.
//
// A single Governor serializes admission decisions so concurrent download and
// extract workers cannot collectively overshoot the configured budget. An
// admission reserves the caller's full estimate up front; there is no partial
// admission. Deferral is a scheduling outcome, not a failure: deferred units
// keep their phase and are re-polled once completions or cleanup free space.
package diskbudget

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"ferry/internal/logging"
)

// Decision is the outcome of an admission request.
type Decision int

const (
	// Admitted means the full estimate was reserved against the budget.
	Admitted Decision = iota
	// Deferred means the estimate does not fit right now; retry later.
	Deferred
)

func (d Decision) String() string {
	if d == Admitted {
		return "admitted"
	}
	return "deferred"
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Governor tracks staged bytes and outstanding reservations against a byte
// ceiling. A ceiling of 0 disables enforcement; every request is admitted.
type Governor struct {
	mu           sync.Mutex
	ceiling      int64
	stagingDir   string
	reserved     int64
	used         int64
	fsFree       int64
	lastRefresh  time.Time
	refreshEvery time.Duration
	statfs       statfsFunc
	logger       *slog.Logger
}

// Option customizes Governor construction.
type Option func(*Governor)

// WithStatfs overrides the filesystem stat call, for tests.
func WithStatfs(fn statfsFunc) Option {
	return func(g *Governor) {
		g.statfs = fn
	}
}

// WithRefreshInterval sets how stale bookkeeping may get before an admission
// forces a usage recompute.
func WithRefreshInterval(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.refreshEvery = d
		}
	}
}

// NewGovernor builds a governor for the given staging directory and ceiling.
func NewGovernor(stagingDir string, ceiling int64, logger *slog.Logger, opts ...Option) *Governor {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Governor{
		ceiling:      ceiling,
		stagingDir:   stagingDir,
		refreshEvery: time.Minute,
		statfs:       realStatfs,
		logger:       logging.NewComponentLogger(logger, "diskbudget"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit reserves estimate bytes against the budget, or defers the request
// when the estimate does not fit alongside current usage and reservations.
func (g *Governor) Admit(estimate int64) Decision {
	if estimate < 0 {
		estimate = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ceiling <= 0 {
		g.reserved += estimate
		return Admitted
	}

	if time.Since(g.lastRefresh) > g.refreshEvery {
		if err := g.refreshLocked(); err != nil {
			g.logger.Warn("usage refresh failed, using last known figures",
				logging.Error(err))
		}
	}

	ceiling := g.ceiling
	// The filesystem can be tighter than the configured ceiling when other
	// tenants share the volume. Honor the smaller headroom.
	if g.fsFree > 0 && g.used+g.fsFree < ceiling {
		ceiling = g.used + g.fsFree
	}
	if g.used+g.reserved+estimate > ceiling {
		g.logger.Debug("admission deferred",
			logging.Int64("estimate", estimate),
			logging.Int64("used", g.used),
			logging.Int64("reserved", g.reserved),
			logging.Int64("ceiling", ceiling))
		return Deferred
	}
	g.reserved += estimate
	return Admitted
}

// Release returns a reservation without recording usage, after a failed
// operation or once the staged bytes have been deleted.
func (g *Governor) Release(estimate int64) {
	if estimate <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserved -= estimate
	if g.reserved < 0 {
		g.reserved = 0
	}
}

// Commit swaps a reservation for the measured bytes actually staged.
func (g *Governor) Commit(estimate, actual int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if estimate > 0 {
		g.reserved -= estimate
		if g.reserved < 0 {
			g.reserved = 0
		}
	}
	if actual > 0 {
		g.used += actual
	}
}

// Reclaim records bytes removed from the staging directory, typically after
// archive cleanup.
func (g *Governor) Reclaim(actual int64) {
	if actual <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used -= actual
	if g.used < 0 {
		g.used = 0
	}
}

// Refresh recomputes real usage from the staging directory, correcting drift
// from files created or removed outside tracked operations.
func (g *Governor) Refresh() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshLocked()
}

func (g *Governor) refreshLocked() error {
	size, err := dirSize(g.stagingDir)
	if err != nil {
		return fmt.Errorf("measure staging dir: %w", err)
	}
	g.used = size
	g.lastRefresh = time.Now()

	_, free, err := g.statfs(g.stagingDir)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", g.stagingDir, err)
	}
	g.fsFree = int64(free)
	return nil
}

// Usage reports current bookkeeping for status output.
func (g *Governor) Usage() (used, reserved, ceiling int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used, g.reserved, g.ceiling
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == path && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return stat.Blocks * bsize, stat.Bavail * bsize, nil
}
