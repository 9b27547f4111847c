package control

import (
	"fmt"

	"ferry/internal/ipc"
	"ferry/internal/store"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to opening
// the state database directly. SQLite in WAL mode tolerates a concurrent
// reader while the daemon holds the database.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*store.Store, string, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open state store: no store opener configured")
	}
	st, logDir, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open state store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(st, logDir),
		close:  st.Close,
	}, nil
}
