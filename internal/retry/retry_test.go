package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"ferry/internal/services"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"transient marker", services.Wrap(services.ErrTransient, "download", "fetch", "timeout", nil), Transient},
		{"permanent marker", services.Wrap(services.ErrPermanent, "upload", "send", "rejected", nil), Permanent},
		{"corrupt input", services.Wrap(services.ErrCorruptInput, "extract", "open", "bad crc", nil), CorruptInput},
		{"resource exhausted", services.Wrap(services.ErrResourceExhausted, "download", "admit", "budget", nil), ResourceExhausted},
		{"validation", services.Wrap(services.ErrValidation, "mediaprep", "merge", "no sidecar", nil), Permanent},
		{"deadline", context.DeadlineExceeded, Transient},
		{"unrecognized", errors.New("nil pointer dereference"), Permanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{
		BackoffInitial: time.Second,
		BackoffMax:     10 * time.Second,
		rng:            rand.New(rand.NewPCG(1, 2)),
	}

	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Backoff(attempt)
		if d < 0 {
			t.Fatalf("attempt %d: negative backoff %v", attempt, d)
		}
		// ±50% jitter around the capped exponential.
		if d > 15*time.Second {
			t.Fatalf("attempt %d: backoff %v exceeds cap plus jitter", attempt, d)
		}
	}
}

func TestNextSchedulesTransientRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3, BackoffInitial: time.Second, BackoffMax: time.Minute}
	now := time.Now()

	out := p.Next(1, services.Wrap(services.ErrTransient, "download", "fetch", "reset", nil), now)
	if out.Disposition != Retry {
		t.Fatalf("expected retry, got %v", out.Disposition)
	}
	if !out.NextAttempt.After(now) {
		t.Fatalf("retry should be scheduled in the future, got %v", out.NextAttempt)
	}
}

func TestNextExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BackoffInitial: time.Second}

	out := p.Next(3, services.Wrap(services.ErrTransient, "download", "fetch", "reset", nil), time.Now())
	if out.Disposition != Fail {
		t.Fatalf("attempt at limit should fail, got %v", out.Disposition)
	}
	if out.Kind != Permanent {
		t.Fatalf("exhausted transient should convert to permanent, got %s", out.Kind)
	}
}

func TestNextParksCorruptInput(t *testing.T) {
	p := Policy{MaxAttempts: 5, BackoffInitial: time.Second}

	out := p.Next(1, services.Wrap(services.ErrCorruptInput, "extract", "open", "bad central directory", nil), time.Now())
	if out.Disposition != Park {
		t.Fatalf("corrupt input should park, got %v", out.Disposition)
	}
}

func TestNextDefersResourceExhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 2, BackoffInitial: time.Second}

	out := p.Next(7, services.Wrap(services.ErrResourceExhausted, "download", "admit", "budget", nil), time.Now())
	if out.Disposition != Defer {
		t.Fatalf("deferral is not a failure regardless of attempts, got %v", out.Disposition)
	}
}
