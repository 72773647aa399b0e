package bus

import "time"

// Event kinds published by the daemon.
const (
	KindEntryAdded    = "history.entry_added"
	KindEntryDeleted  = "history.entry_deleted"
	KindContentAdded  = "history.content_attached"
	KindMerged        = "history.merged"
	KindStatusChanged = "sync.status_changed"
	KindCycleDone     = "sync.cycle_completed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
