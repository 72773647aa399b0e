package store

// Outcome reports what a write did to the stored row.
type Outcome string

const (
	Inserted  Outcome = "inserted"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// EntryQuery filters GetEntries. Zero values disable a filter.
type EntryQuery struct {
	DeviceID       string
	Since          int64 // visitTime >= Since, in ms
	IncludeDeleted bool
	Limit          int // 0 means no limit
	Offset         int
}

// Stats holds row counts for status display.
type Stats struct {
	Entries    int64
	Pending    int64
	Tombstones int64
	Devices    int64
}

// ConflictRecord is one non-trivial resolution between two copies of a visit.
type ConflictRecord struct {
	ID             int64  `json:"id"`
	VisitID        string `json:"visitId"`
	LocalModified  int64  `json:"localModified"`
	RemoteModified int64  `json:"remoteModified"`
	Resolution     string `json:"resolution"`
	DetectedAt     int64  `json:"detectedAt"`
}
