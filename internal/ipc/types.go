package ipc

import "time"

// ArchiveRow is the wire representation of one tracked archive.
type ArchiveRow struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Phase         string    `json:"phase"`
	ExpectedBytes int64     `json:"expected_bytes"`
	Attempts      int       `json:"attempts"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemRow is the wire representation of one media item.
type ItemRow struct {
	ID         int64  `json:"id"`
	ArchiveID  string `json:"archive_id"`
	SourcePath string `json:"source_path"`
	Phase      string `json:"phase"`
	Attempts   int    `json:"attempts"`
	ErrorKind  string `json:"error_kind,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	RemoteID   string `json:"remote_id,omitempty"`
}

// StageHealth describes readiness of one pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the combined daemon and pipeline snapshot.
type StatusResponse struct {
	Running       bool           `json:"running"`
	Paused        bool           `json:"paused"`
	PauseReason   string         `json:"pause_reason,omitempty"`
	ArchivePhases map[string]int `json:"archive_phases"`
	ItemPhases    map[string]int `json:"item_phases"`
	Stages        []StageHealth  `json:"stages"`
	DiskUsed      int64          `json:"disk_used"`
	DiskReserved  int64          `json:"disk_reserved"`
	DiskCeiling   int64          `json:"disk_ceiling"`
	StateDBPath   string         `json:"state_db_path"`
	LockPath      string         `json:"lock_path"`
	PID           int            `json:"pid"`
}

// ArchiveListRequest fetches every tracked archive.
type ArchiveListRequest struct{}

// ArchiveListResponse contains archive rows.
type ArchiveListResponse struct {
	Archives []ArchiveRow `json:"archives"`
}

// FailedItemsRequest fetches items parked in the failed phase.
type FailedItemsRequest struct{}

// FailedItemsResponse contains failed item rows.
type FailedItemsResponse struct {
	Items []ItemRow `json:"items"`
}

// RetryRequest re-admits failed items; empty IDs means all of them.
type RetryRequest struct {
	IDs []int64 `json:"ids"`
}

// RetryResponse reports how many items were re-admitted.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}

// ReacquireRequest resets a corrupted or failed archive for re-download.
type ReacquireRequest struct {
	ArchiveID string `json:"archive_id"`
}

// ReacquireResponse acknowledges the reset.
type ReacquireResponse struct{}

// PauseRequest halts cleanup.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// PauseResponse acknowledges the pause.
type PauseResponse struct{}

// ResumeRequest lifts an operator pause.
type ResumeRequest struct{}

// ResumeResponse acknowledges the resume.
type ResumeResponse struct{}

// ResetRequest rolls in-flight units back to their committed phases.
type ResetRequest struct{}

// ResetResponse reports how many units were rolled back.
type ResetResponse struct {
	Updated int64 `json:"updated"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges the shutdown request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
