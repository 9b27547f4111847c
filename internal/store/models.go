package store

import (
	"strings"
	"time"
)

// ArchivePhase represents the lifecycle of a source archive.
type ArchivePhase string

const (
	ArchiveDiscovered  ArchivePhase = "discovered"
	ArchiveDownloading ArchivePhase = "downloading"
	ArchiveDownloaded  ArchivePhase = "downloaded"
	ArchiveExtracting  ArchivePhase = "extracting"
	ArchiveExtracted   ArchivePhase = "extracted"
	ArchiveProcessed   ArchivePhase = "processed"
	ArchiveCleaning    ArchivePhase = "cleaning"
	ArchiveCleaned     ArchivePhase = "cleaned"
	ArchiveCorrupted   ArchivePhase = "corrupted"
	ArchiveFailed      ArchivePhase = "failed"
)

// ItemPhase represents the lifecycle of one extracted media item.
type ItemPhase string

const (
	ItemExtracted ItemPhase = "extracted"
	ItemMerging   ItemPhase = "merging"
	ItemMerged    ItemPhase = "merged"
	ItemResolving ItemPhase = "resolving"
	ItemResolved  ItemPhase = "resolved"
	ItemUploading ItemPhase = "uploading"
	ItemUploaded  ItemPhase = "uploaded"
	ItemFailed    ItemPhase = "failed"
)

var archivePhases = []ArchivePhase{
	ArchiveDiscovered,
	ArchiveDownloading,
	ArchiveDownloaded,
	ArchiveExtracting,
	ArchiveExtracted,
	ArchiveProcessed,
	ArchiveCleaning,
	ArchiveCleaned,
	ArchiveCorrupted,
	ArchiveFailed,
}

var itemPhases = []ItemPhase{
	ItemExtracted,
	ItemMerging,
	ItemMerged,
	ItemResolving,
	ItemResolved,
	ItemUploading,
	ItemUploaded,
	ItemFailed,
}

// In-flight phases carry heartbeats and are rolled back to their committed
// predecessor on startup recovery.
var archiveRollbacks = map[ArchivePhase]ArchivePhase{
	ArchiveDownloading: ArchiveDiscovered,
	ArchiveExtracting:  ArchiveDownloaded,
	ArchiveCleaning:    ArchiveProcessed,
}

var itemRollbacks = map[ItemPhase]ItemPhase{
	ItemMerging:   ItemExtracted,
	ItemResolving: ItemMerged,
	ItemUploading: ItemResolved,
}

// Archive represents one source archive tracked end-to-end.
type Archive struct {
	ID            string
	DisplayName   string
	ExpectedBytes int64
	Phase         ArchivePhase
	AttemptCount  int
	ErrorKind     string
	LastError     string
	NextRetryAt   *time.Time
	ResumePhase   ArchivePhase
	LocalPath     string
	ExtractDir    string
	ContentHash   string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item represents one media file extracted from an archive.
type Item struct {
	ID            int64
	ArchiveID     string
	SourcePath    string
	SidecarPath   string
	Fingerprint   string
	TakenAt       *time.Time
	Latitude      *float64
	Longitude     *float64
	Description   string
	Phase         ItemPhase
	AttemptCount  int
	ErrorKind     string
	LastError     string
	NextRetryAt   *time.Time
	ResumePhase   ItemPhase
	RemoteID      string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Album is a named collection items attach to by canonical key.
type Album struct {
	ID             int64
	CanonicalKey   string
	DisplayName    string
	CreatedThisRun bool
	CreatedAt      time.Time
}

// RunState captures the operator-visible pause flag, persisted so a restart
// does not silently resume cleanup the operator halted. FlaggedFailures is
// the failed-item count already acknowledged by a pause or an operator
// resume; the pause policy only fires on failures beyond it.
type RunState struct {
	Paused          bool
	PauseReason     string
	FlaggedFailures int
	UpdatedAt       time.Time
}

// HealthSummary describes aggregated counts per key lifecycle states.
type HealthSummary struct {
	Archives         int
	ArchivesPending  int
	ArchivesInFlight int
	ArchivesTerminal int
	Items            int
	ItemsUploaded    int
	ItemsFailed      int
	ItemsInFlight    int
}

// TerminalArchive reports whether the phase absorbs further progress.
func TerminalArchive(phase ArchivePhase) bool {
	switch phase {
	case ArchiveCleaned, ArchiveCorrupted, ArchiveFailed:
		return true
	default:
		return false
	}
}

// TerminalItem reports whether an item phase is terminal.
func TerminalItem(phase ItemPhase) bool {
	return phase == ItemUploaded || phase == ItemFailed
}

// InFlightArchive reports whether the phase reflects an in-flight operation.
func InFlightArchive(phase ArchivePhase) bool {
	_, ok := archiveRollbacks[phase]
	return ok
}

// InFlightItem reports whether the phase reflects an in-flight operation.
func InFlightItem(phase ItemPhase) bool {
	_, ok := itemRollbacks[phase]
	return ok
}

// RollbackArchive returns the committed phase an in-flight archive resumes from.
func RollbackArchive(phase ArchivePhase) (ArchivePhase, bool) {
	prev, ok := archiveRollbacks[phase]
	return prev, ok
}

// RollbackItem returns the committed phase an in-flight item resumes from.
func RollbackItem(phase ItemPhase) (ItemPhase, bool) {
	prev, ok := itemRollbacks[phase]
	return prev, ok
}

// ParseArchivePhase converts a string into a known ArchivePhase.
func ParseArchivePhase(value string) (ArchivePhase, bool) {
	normalized := ArchivePhase(strings.ToLower(strings.TrimSpace(value)))
	for _, phase := range archivePhases {
		if phase == normalized {
			return phase, true
		}
	}
	return "", false
}

// ParseItemPhase converts a string into a known ItemPhase.
func ParseItemPhase(value string) (ItemPhase, bool) {
	normalized := ItemPhase(strings.ToLower(strings.TrimSpace(value)))
	for _, phase := range itemPhases {
		if phase == normalized {
			return phase, true
		}
	}
	return "", false
}

// ArchivePhases returns the ordered list of known archive phases.
func ArchivePhases() []ArchivePhase {
	cp := make([]ArchivePhase, len(archivePhases))
	copy(cp, archivePhases)
	return cp
}

// ItemPhases returns the ordered list of known item phases.
func ItemPhases() []ItemPhase {
	cp := make([]ItemPhase, len(itemPhases))
	copy(cp, itemPhases)
	return cp
}
