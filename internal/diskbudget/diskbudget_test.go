package diskbudget

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ferry/internal/testsupport"
)

func stubStatfs(total, free uint64) statfsFunc {
	return func(string) (uint64, uint64, error) {
		return total, free, nil
	}
}

func TestAdmitReservesFullEstimate(t *testing.T) {
	dir := t.TempDir()
	g := NewGovernor(dir, 100, nil, WithStatfs(stubStatfs(1000, 1000)))

	if got := g.Admit(60); got != Admitted {
		t.Fatalf("first admission: got %s", got)
	}
	if got := g.Admit(60); got != Deferred {
		t.Fatalf("overshooting admission should defer, got %s", got)
	}
	if got := g.Admit(40); got != Admitted {
		t.Fatalf("fitting admission should pass, got %s", got)
	}

	used, reserved, ceiling := g.Usage()
	if used != 0 || reserved != 100 || ceiling != 100 {
		t.Fatalf("unexpected bookkeeping: used=%d reserved=%d ceiling=%d", used, reserved, ceiling)
	}
}

func TestConcurrentAdmissionsRespectCeiling(t *testing.T) {
	g := NewGovernor(t.TempDir(), 100, nil, WithStatfs(stubStatfs(10000, 10000)))

	const workers = 64
	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if g.Admit(10) == Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 10 {
		t.Fatalf("admitted %d reservations of 10 against a ceiling of 100", admitted.Load())
	}
	used, reserved, ceiling := g.Usage()
	if used+reserved > ceiling {
		t.Fatalf("reservations exceed ceiling: used=%d reserved=%d ceiling=%d", used, reserved, ceiling)
	}
	if reserved != admitted.Load()*10 {
		t.Fatalf("reserved %d does not match admitted estimates %d", reserved, admitted.Load()*10)
	}
}

func TestReleaseFreesHeadroom(t *testing.T) {
	g := NewGovernor(t.TempDir(), 100, nil, WithStatfs(stubStatfs(1000, 1000)))

	if got := g.Admit(90); got != Admitted {
		t.Fatalf("admission failed: %s", got)
	}
	if got := g.Admit(20); got != Deferred {
		t.Fatalf("expected deferral, got %s", got)
	}
	g.Release(90)
	if got := g.Admit(20); got != Admitted {
		t.Fatalf("admission after release should pass, got %s", got)
	}
}

func TestCommitSwapsReservationForActual(t *testing.T) {
	g := NewGovernor(t.TempDir(), 100, nil, WithStatfs(stubStatfs(1000, 1000)))

	if got := g.Admit(80); got != Admitted {
		t.Fatalf("admission failed: %s", got)
	}
	g.Commit(80, 30)

	used, reserved, _ := g.Usage()
	if used != 30 || reserved != 0 {
		t.Fatalf("unexpected bookkeeping after commit: used=%d reserved=%d", used, reserved)
	}
	if got := g.Admit(60); got != Admitted {
		t.Fatalf("admission within freed headroom should pass, got %s", got)
	}
}

func TestZeroCeilingAdmitsEverything(t *testing.T) {
	g := NewGovernor(t.TempDir(), 0, nil, WithStatfs(stubStatfs(10, 10)))

	if got := g.Admit(1 << 40); got != Admitted {
		t.Fatalf("unlimited governor should admit, got %s", got)
	}
}

func TestRefreshCountsUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	g := NewGovernor(dir, 100, nil, WithStatfs(stubStatfs(1000, 1000)))

	testsupport.WriteFile(t, filepath.Join(dir, "stray", "archive.zip"), 70)
	if err := g.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	used, _, _ := g.Usage()
	if used != 70 {
		t.Fatalf("expected 70 used bytes after refresh, got %d", used)
	}
	if got := g.Admit(50); got != Deferred {
		t.Fatalf("untracked usage should count against the budget, got %s", got)
	}
	if got := g.Admit(30); got != Admitted {
		t.Fatalf("fitting admission should pass, got %s", got)
	}
}

func TestAdmitHonorsFilesystemHeadroom(t *testing.T) {
	g := NewGovernor(t.TempDir(), 1000, nil,
		WithStatfs(stubStatfs(1000, 40)),
		WithRefreshInterval(time.Nanosecond))

	// Budget allows 1000 but the volume only has 40 bytes free.
	if got := g.Admit(50); got != Deferred {
		t.Fatalf("admission beyond filesystem free space should defer, got %s", got)
	}
	if got := g.Admit(30); got != Admitted {
		t.Fatalf("admission within free space should pass, got %s", got)
	}
}

func TestReclaimReducesUsage(t *testing.T) {
	g := NewGovernor(t.TempDir(), 100, nil, WithStatfs(stubStatfs(1000, 1000)))

	if got := g.Admit(80); got != Admitted {
		t.Fatalf("admission failed: %s", got)
	}
	g.Commit(80, 80)
	if got := g.Admit(40); got != Deferred {
		t.Fatalf("expected deferral, got %s", got)
	}
	g.Reclaim(80)
	if got := g.Admit(40); got != Admitted {
		t.Fatalf("admission after reclaim should pass, got %s", got)
	}
}
