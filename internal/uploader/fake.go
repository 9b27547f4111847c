package uploader

import (
	"context"
	"fmt"
	"sync"
)

// Fake records uploads in memory for tests.
type Fake struct {
	mu sync.Mutex
	// FailFor maps media paths to the error their upload should return.
	FailFor map[string]error

	uploads []FakeUpload
	nextID  int
}

// FakeUpload is one recorded delivery.
type FakeUpload struct {
	MediaPath  string
	AlbumNames []string
	RemoteID   string
}

// NewFake builds an empty fake uploader.
func NewFake() *Fake {
	return &Fake{FailFor: make(map[string]error)}
}

// Upload records the call and returns a deterministic remote id.
func (f *Fake) Upload(ctx context.Context, mediaPath string, albumNames []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[mediaPath]; ok && err != nil {
		return "", err
	}
	f.nextID++
	remoteID := fmt.Sprintf("remote-%04d", f.nextID)
	f.uploads = append(f.uploads, FakeUpload{
		MediaPath:  mediaPath,
		AlbumNames: append([]string(nil), albumNames...),
		RemoteID:   remoteID,
	})
	return remoteID, nil
}

// HealthCheck always succeeds.
func (f *Fake) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Uploads returns a copy of the recorded deliveries.
func (f *Fake) Uploads() []FakeUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeUpload(nil), f.uploads...)
}

var _ Client = (*Fake)(nil)
