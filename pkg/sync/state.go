package sync

// Status is the externally visible phase of the sync orchestrator.
type Status int

const (
	// StatusIdle means no sync has been attempted yet.
	StatusIdle Status = iota
	// StatusSyncing means a sync run is in progress.
	StatusSyncing
	// StatusRetrying means the last attempt failed and a backoff delay
	// is in progress before the next one.
	StatusRetrying
	// StatusSynced means the last run completed successfully.
	StatusSynced
	// StatusOffline means the device has no connectivity or sync is not
	// configured at all.
	StatusOffline
	// StatusError means the last run failed after exhausting retries.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusRetrying:
		return "retrying"
	case StatusSynced:
		return "synced"
	case StatusOffline:
		return "offline"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Direction is the transfer a sync run decided on.
type Direction int

const (
	// DirectionNone means both sides already hold the same save.
	DirectionNone Direction = iota
	// DirectionPush means the local save is newer and was uploaded.
	DirectionPush
	// DirectionPull means the remote save is newer and was downloaded.
	DirectionPull
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionPush:
		return "push"
	case DirectionPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Decide picks the transfer direction from the save timestamps on both
// sides. The newer save wins; equal timestamps mean nothing to do.
func Decide(localExists bool, localSavedAt int64, remoteExists bool, remoteSavedAt int64) Direction {
	switch {
	case !localExists && !remoteExists:
		return DirectionNone
	case localExists && !remoteExists:
		return DirectionPush
	case !localExists && remoteExists:
		return DirectionPull
	case localSavedAt > remoteSavedAt:
		return DirectionPush
	case remoteSavedAt > localSavedAt:
		return DirectionPull
	default:
		return DirectionNone
	}
}

// State is a snapshot of the orchestrator published to subscribers on
// every transition.
type State struct {
	Status Status
	// LastSyncedAt is the timestamp of the save both sides agreed on
	// after the most recent successful run.
	LastSyncedAt int64
	// RetriesUsed counts failed attempts within the current or most
	// recent run.
	RetriesUsed int
	// LastError describes the failure behind StatusError, empty otherwise.
	LastError string
}

// Result describes a completed sync run.
type Result struct {
	Direction   Direction
	SyncedAt    int64
	RetriesUsed int
}
