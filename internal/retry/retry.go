// Package retry classifies failures and schedules backoff for the pipeline.
//
// Classification maps the services error taxonomy (plus context and net
// shaped errors seen at collaborator boundaries) onto four kinds. Anything
// unrecognized is treated as permanent so a programming error surfaces
// instead of looping.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"ferry/internal/services"
)

// Kind is the retry classification of a failure.
type Kind string

const (
	// Transient failures are retried automatically with backoff.
	Transient Kind = "transient"
	// Permanent failures are terminal until an operator intervenes.
	Permanent Kind = "permanent"
	// CorruptInput failures park the unit for re-acquisition; retrying the
	// same bytes cannot succeed.
	CorruptInput Kind = "corrupt_input"
	// ResourceExhausted is a deferral, not a failure; the unit keeps its
	// phase and is re-polled once space frees up.
	ResourceExhausted Kind = "resource_exhausted"
)

// Classify maps an error to its retry kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Permanent
	case errors.Is(err, services.ErrResourceExhausted):
		return ResourceExhausted
	case errors.Is(err, services.ErrCorruptInput):
		return CorruptInput
	case errors.Is(err, services.ErrTransient):
		return Transient
	case errors.Is(err, services.ErrPermanent),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConfiguration):
		return Permanent
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	return Permanent
}

// Policy holds attempt limits and backoff bounds.
type Policy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// rng allows deterministic jitter in tests; nil uses the shared source.
	rng *rand.Rand
}

// Backoff returns the jittered exponential delay for the given attempt
// (1-based). Delays double per attempt up to the configured cap, with ±50%
// jitter so synchronized failures do not retry in lockstep.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BackoffInitial
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.BackoffMax
	if ceiling <= 0 {
		ceiling = 15 * time.Minute
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}

	jitter := p.random()*delay - delay/2
	result := time.Duration(delay + jitter)
	if result < 0 {
		result = 0
	}
	return result
}

func (p Policy) random() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}

// Disposition is what should happen to a failed unit.
type Disposition int

const (
	// Retry schedules another automatic attempt at Outcome.NextAttempt.
	Retry Disposition = iota
	// Fail parks the unit as terminally failed.
	Fail
	// Park marks the unit corrupted pending re-acquisition or skip.
	Park
	// Defer leaves the unit untouched; it was never really attempted.
	Defer
)

// Outcome describes the scheduling decision for a failure.
type Outcome struct {
	Disposition Disposition
	Kind        Kind
	Attempt     int
	NextAttempt time.Time
}

// Next decides what happens after a failure on the given attempt (1-based
// count of attempts already made, including this one).
func (p Policy) Next(attempt int, err error, now time.Time) Outcome {
	kind := Classify(err)
	out := Outcome{Kind: kind, Attempt: attempt}

	switch kind {
	case ResourceExhausted:
		out.Disposition = Defer
	case CorruptInput:
		out.Disposition = Park
	case Permanent:
		out.Disposition = Fail
	case Transient:
		limit := p.MaxAttempts
		if limit <= 0 {
			limit = 5
		}
		if attempt >= limit {
			out.Disposition = Fail
			out.Kind = Permanent
			return out
		}
		out.Disposition = Retry
		out.NextAttempt = now.Add(p.Backoff(attempt))
	}
	return out
}
