// Package sync reconciles the local history store with a remote: the merge
// engine applies remote batches and the coordinator drives sync cycles.
package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/store"
	"go.uber.org/zap"
)

// MergeResult counts what a Merge call did.
type MergeResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
	Conflicts int `json:"conflicts"`
}

// Applied reports whether the merge changed any row.
func (r *MergeResult) Applied() int {
	return r.Inserted + r.Updated
}

// MergeEngine applies remote entries to the local store.
type MergeEngine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMergeEngine creates a merge engine. bus and logger may be nil.
func NewMergeEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *MergeEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeEngine{db: db, bus: b, logger: logger}
}

// Merge applies remote entries one at a time in batch order. Entries
// unknown locally are inserted as synced; known ones go through
// history.Resolve and only take the remote state when it wins. A storage
// failure stops the batch and leaves earlier entries applied. Invalid
// entries are skipped and counted as rejected.
func (m *MergeEngine) Merge(ctx context.Context, remote []history.HistoryEntry) (*MergeResult, error) {
	return m.MergeFrom(ctx, "", remote)
}

// MergeFrom is Merge for a batch pushed by device writer. Rows it changes
// are stamped with writer so they are not handed back to that device.
func (m *MergeEngine) MergeFrom(ctx context.Context, writer string, remote []history.HistoryEntry) (*MergeResult, error) {
	res := &MergeResult{}
	for i := range remote {
		in := remote[i]
		in.SyncStatus = history.StatusSynced
		if err := in.Validate(); err != nil {
			m.logger.Warn("rejecting remote entry", zap.String("visit_id", in.VisitID), zap.Error(err))
			res.Rejected++
			continue
		}

		var (
			local    *history.HistoryEntry
			decision history.Decision
		)
		out, err := m.db.UpdateEntryFrom(ctx, writer, in.VisitID, func(existing *history.HistoryEntry) (*history.HistoryEntry, error) {
			local, decision = existing, history.Decision{}
			if existing == nil {
				return &in, nil
			}
			decision = history.Resolve(existing, &in)
			if decision.Winner != history.Incoming {
				return nil, nil
			}
			next := existing.ApplyMutable(&in)
			next.SyncStatus = history.StatusSynced
			return &next, nil
		})
		if err != nil {
			return res, fmt.Errorf("merge %s: %w", in.VisitID, err)
		}

		switch out {
		case store.Inserted:
			res.Inserted++
		case store.Updated:
			res.Updated++
		default:
			res.Unchanged++
		}

		if local != nil && (decision.TombstoneTie || decision.ContentTie) {
			res.Conflicts++
			m.recordConflict(ctx, local, &in, decision)
		}
	}

	if len(remote) > 0 {
		m.bus.Emit(bus.KindMerged, *res)
	}
	return res, nil
}

func (m *MergeEngine) recordConflict(ctx context.Context, local, remote *history.HistoryEntry, d history.Decision) {
	reason := "content"
	if d.TombstoneTie {
		reason = "tombstone"
	}
	resolution := reason + ":" + d.Winner.String()

	m.logger.Warn("tie resolved between local and remote copies",
		zap.String("visit_id", local.VisitID),
		zap.Int64("last_modified", local.LastModified),
		zap.String("resolution", resolution),
	)
	if err := m.db.RecordConflict(ctx, store.ConflictRecord{
		VisitID:        local.VisitID,
		LocalModified:  local.LastModified,
		RemoteModified: remote.LastModified,
		Resolution:     resolution,
	}); err != nil {
		m.logger.Warn("failed to record conflict", zap.String("visit_id", local.VisitID), zap.Error(err))
	}
}
