package history

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
)

// Winner names the copy that survives a resolution.
type Winner int

const (
	// Equal means both copies carry the same mutable state.
	Equal Winner = iota
	Local
	Incoming
)

func (w Winner) String() string {
	switch w {
	case Local:
		return "local"
	case Incoming:
		return "incoming"
	default:
		return "equal"
	}
}

// Decision is the outcome of Resolve.
type Decision struct {
	Winner Winner
	// TombstoneTie is set when lastModified was equal and the deleted copy won.
	TombstoneTie bool
	// ContentTie is set when lastModified and deleted were equal but the
	// page content differed, so the content fingerprint decided.
	ContentTie bool
}

// Resolve picks between two copies of the same visit. Highest LastModified
// wins; on a tie a tombstone wins; on a further tie the greater content
// fingerprint wins. Resolve(a, b) and Resolve(b, a) always agree on which
// copy survives.
func Resolve(local, incoming *HistoryEntry) Decision {
	switch {
	case incoming.LastModified > local.LastModified:
		return Decision{Winner: Incoming}
	case incoming.LastModified < local.LastModified:
		return Decision{Winner: Local}
	}

	if local.Deleted != incoming.Deleted {
		if incoming.Deleted {
			return Decision{Winner: Incoming, TombstoneTie: true}
		}
		return Decision{Winner: Local, TombstoneTie: true}
	}

	c := bytes.Compare(fingerprint(incoming), fingerprint(local))
	switch {
	case c > 0:
		return Decision{Winner: Incoming, ContentTie: true}
	case c < 0:
		return Decision{Winner: Local, ContentTie: true}
	}
	return Decision{Winner: Equal}
}

type mutableState struct {
	Deleted     bool         `json:"deleted"`
	PageContent *PageContent `json:"pageContent"`
}

func fingerprint(e *HistoryEntry) []byte {
	// Marshalling a fixed struct cannot fail.
	data, _ := json.Marshal(mutableState{Deleted: e.Deleted, PageContent: e.PageContent})
	sum := sha256.Sum256(data)
	return sum[:]
}

// ApplyMutable returns a copy of e carrying the mutable fields of src.
// Provenance and sync status stay those of e.
func (e HistoryEntry) ApplyMutable(src *HistoryEntry) HistoryEntry {
	e.LastModified = src.LastModified
	e.Deleted = src.Deleted
	if src.PageContent != nil {
		pc := *src.PageContent
		e.PageContent = &pc
	} else {
		e.PageContent = nil
	}
	return e
}
