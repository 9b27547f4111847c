// Package control gives the CLI one interface over daemon IPC and direct
// state-database access, so every command works whether or not the daemon is
// running.
package control

import (
	"context"
	"os"
	"path/filepath"

	"ferry/internal/ipc"
	"ferry/internal/store"
)

// Access provides pipeline operations regardless of IPC or store backing.
type Access interface {
	Status(ctx context.Context) (*ipc.StatusResponse, error)
	Archives(ctx context.Context) ([]ipc.ArchiveRow, error)
	FailedItems(ctx context.Context) ([]ipc.ItemRow, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Reacquire(ctx context.Context, archiveID string) error
	Pause(ctx context.Context, reason string) error
	Resume(ctx context.Context) error
	ResetStuck(ctx context.Context) (int64, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct database access.
func NewStoreAccess(st *store.Store, logDir string) Access {
	return &storeAccess{store: st, logDir: logDir}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Status(context.Context) (*ipc.StatusResponse, error) {
	return a.client.Status()
}

func (a *ipcAccess) Archives(context.Context) ([]ipc.ArchiveRow, error) {
	resp, err := a.client.ListArchives()
	if err != nil {
		return nil, err
	}
	return resp.Archives, nil
}

func (a *ipcAccess) FailedItems(context.Context) ([]ipc.ItemRow, error) {
	resp, err := a.client.FailedItems()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.Retry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Reacquire(_ context.Context, archiveID string) error {
	return a.client.Reacquire(archiveID)
}

func (a *ipcAccess) Pause(_ context.Context, reason string) error {
	return a.client.Pause(reason)
}

func (a *ipcAccess) Resume(context.Context) error {
	return a.client.Resume()
}

func (a *ipcAccess) ResetStuck(context.Context) (int64, error) {
	resp, err := a.client.ResetStuck()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

type storeAccess struct {
	store  *store.Store
	logDir string
}

func (a *storeAccess) Status(ctx context.Context) (*ipc.StatusResponse, error) {
	archiveStats, err := a.store.ArchiveStats(ctx)
	if err != nil {
		return nil, err
	}
	itemStats, err := a.store.ItemStats(ctx)
	if err != nil {
		return nil, err
	}
	state, err := a.store.GetRunState(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ipc.StatusResponse{
		Running:       false,
		Paused:        state.Paused,
		PauseReason:   state.PauseReason,
		ArchivePhases: make(map[string]int, len(archiveStats)),
		ItemPhases:    make(map[string]int, len(itemStats)),
		StateDBPath:   filepath.Join(a.logDir, "ferry.db"),
		LockPath:      filepath.Join(a.logDir, "ferryd.lock"),
		PID:           os.Getpid(),
	}
	for phase, count := range archiveStats {
		resp.ArchivePhases[string(phase)] = count
	}
	for phase, count := range itemStats {
		resp.ItemPhases[string(phase)] = count
	}
	return resp, nil
}

func (a *storeAccess) Archives(ctx context.Context) ([]ipc.ArchiveRow, error) {
	archives, err := a.store.ListArchives(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]ipc.ArchiveRow, 0, len(archives))
	for _, archive := range archives {
		rows = append(rows, ipc.ArchiveRow{
			ID:            archive.ID,
			DisplayName:   archive.DisplayName,
			Phase:         string(archive.Phase),
			ExpectedBytes: archive.ExpectedBytes,
			Attempts:      archive.AttemptCount,
			ErrorKind:     archive.ErrorKind,
			LastError:     archive.LastError,
			UpdatedAt:     archive.UpdatedAt,
		})
	}
	return rows, nil
}

func (a *storeAccess) FailedItems(ctx context.Context) ([]ipc.ItemRow, error) {
	items, err := a.store.ItemsByPhase(ctx, store.ItemFailed)
	if err != nil {
		return nil, err
	}
	rows := make([]ipc.ItemRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, ipc.ItemRow{
			ID:         item.ID,
			ArchiveID:  item.ArchiveID,
			SourcePath: item.SourcePath,
			Phase:      string(item.Phase),
			Attempts:   item.AttemptCount,
			ErrorKind:  item.ErrorKind,
			LastError:  item.LastError,
			RemoteID:   item.RemoteID,
		})
	}
	return rows, nil
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailedItems(ctx, ids...)
}

func (a *storeAccess) Reacquire(ctx context.Context, archiveID string) error {
	return a.store.ReacquireArchive(ctx, archiveID)
}

func (a *storeAccess) Pause(ctx context.Context, reason string) error {
	return a.store.SetPaused(ctx, true, reason)
}

func (a *storeAccess) Resume(ctx context.Context) error {
	return a.store.SetPaused(ctx, false, "")
}

func (a *storeAccess) ResetStuck(ctx context.Context) (int64, error) {
	return a.store.ResetStuckProcessing(ctx)
}
