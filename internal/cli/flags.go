package cli

import "time"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Profile string        `long:"profile" short:"p" description:"Profile name (overrides config default)"`
	JSON    bool          `long:"json" description:"Output in JSON format"`
	Timeout time.Duration `long:"timeout" description:"Deadline for daemon calls" default:"30s"`
	Version bool          `long:"version" description:"Show version and exit"`
}

// StatusCommand shows daemon and sync status.
type StatusCommand struct {
	base *base
}

// SyncCommand runs one sync cycle.
type SyncCommand struct {
	Full bool `long:"full" description:"Ignore the checkpoint and request the full history"`

	base *base
}

// HistoryCommand lists entries with filters.
type HistoryCommand struct {
	Device  string `long:"device" description:"Only entries from this device id"`
	Since   string `long:"since" description:"Only visits newer than duration (e.g., 7d, 24h, 30m)"`
	Deleted bool   `long:"deleted" description:"Include tombstones"`
	Query   string `long:"query" short:"q" description:"Case-insensitive substring of URL or title"`
	Limit   int    `long:"limit" description:"Maximum results" default:"50"`

	base *base
}

// VisitCommand records a visit by hand.
type VisitCommand struct {
	URL        string `long:"url" description:"Visited URL" required:"yes"`
	Title      string `long:"title" description:"Page title"`
	ID         string `long:"id" description:"Browser-local visit id; generated when empty"`
	Referrer   string `long:"referrer" description:"Browser-local id of the referring visit"`
	Transition string `long:"transition" description:"Navigation type (link, typed, reload, ...)" default:"link"`

	base *base
}

// DeleteCommand deletes one entry.
type DeleteCommand struct {
	Args struct {
		VisitID string `positional-arg-name:"visit-id" required:"yes"`
	} `positional-args:"yes"`

	base *base
}

// ContentCommand attaches extracted page content to an entry.
type ContentCommand struct {
	Content     string `long:"content" description:"Inline content text"`
	ContentFile string `long:"content-file" description:"Path to file containing content"`
	Summary     string `long:"summary" description:"Short summary"`
	Args        struct {
		VisitID string `positional-arg-name:"visit-id" required:"yes"`
	} `positional-args:"yes"`

	base *base
}

// DevicesCommand lists known devices.
type DevicesCommand struct {
	base *base
}

// ConflictsCommand lists logged conflict resolutions.
type ConflictsCommand struct {
	Limit int `long:"limit" description:"Maximum results" default:"20"`

	base *base
}

// PairCommand issues or accepts a pairing URI.
type PairCommand struct {
	Remote string `long:"remote" description:"Hub address devices dial (host:port); defaults to server.listen"`
	Client string `long:"client" description:"Client id to issue; generated when empty"`
	Accept string `long:"accept" description:"Pairing URI to store in this profile's config" value-name:"URI"`
	NoQR   bool   `long:"no-qr" description:"Do not print the QR code"`

	base *base
}
