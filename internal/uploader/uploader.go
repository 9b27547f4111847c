// Package uploader defines the photo-service upload boundary.
//
// The upload protocol itself lives behind the Client interface; the pipeline
// only depends on paced, context-aware delivery and a stable remote
// identifier per uploaded item. No-double-upload is not enforced here: the
// store's phase transition is the guard, and an item already uploaded is
// never handed to a worker again.
package uploader

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"ferry/internal/services"
)

// Client delivers one media file to the destination photo service.
type Client interface {
	// Upload sends the media file and attaches it to the named albums,
	// returning the service's identifier for the created item.
	Upload(ctx context.Context, mediaPath string, albumNames []string) (string, error)
	// HealthCheck verifies the destination is reachable.
	HealthCheck(ctx context.Context) error
}

// Paced wraps a Client with a token-bucket limiter so concurrent upload
// workers collectively respect the destination's rate expectations.
type Paced struct {
	inner   Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewPaced builds a paced client. ratePerSecond <= 0 disables pacing.
func NewPaced(inner Client, ratePerSecond float64, burst int, timeout time.Duration) *Paced {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return &Paced{inner: inner, limiter: limiter, timeout: timeout}
}

// Upload waits for limiter admission, then delegates with a per-call timeout.
func (p *Paced) Upload(ctx context.Context, mediaPath string, albumNames []string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", services.Wrap(services.ErrTransient, "uploader", "pace", "wait for rate limiter", err)
		}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.inner.Upload(ctx, mediaPath, albumNames)
}

// HealthCheck delegates to the wrapped client.
func (p *Paced) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}

var _ Client = (*Paced)(nil)
