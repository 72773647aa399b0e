// Package capture turns browser visits into history entries.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/store"
	"go.uber.org/zap"
)

var ErrNoURL = errors.New("visit has no url")

// Visit is a page visit as reported by the browser.
type Visit struct {
	URL              string
	Title            string
	VisitTime        int64 // ms; 0 means now
	VisitID          string
	ReferringVisitID string
	Transition       string
}

// EntryAdder stores captured entries, keeping rows that already exist.
type EntryAdder interface {
	AddIfAbsent(ctx context.Context, e *history.HistoryEntry) (*history.HistoryEntry, store.Outcome, error)
}

// DeviceSource describes the local device.
type DeviceSource interface {
	GetDeviceInfo(ctx context.Context) (history.DeviceInfo, error)
}

// Recorder records qualifying visits into the store.
type Recorder struct {
	entries EntryAdder
	devices DeviceSource
	filter  *Filter
	bus     *bus.Bus
	clock   clock.Clock
	logger  *zap.Logger
}

// NewRecorder creates a Recorder. A nil filter uses the default skip list.
func NewRecorder(entries EntryAdder, devices DeviceSource, filter *Filter, b *bus.Bus, c clock.Clock, logger *zap.Logger) *Recorder {
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{entries: entries, devices: devices, filter: filter, bus: b, clock: c, logger: logger}
}

// Record stores v as a pending entry stamped with the local device and
// returns the stored row. Visits to internal or deny-listed pages are
// skipped and return nil, nil. A visit id seen before returns the existing
// row untouched.
func (r *Recorder) Record(ctx context.Context, v Visit) (*history.HistoryEntry, error) {
	if v.URL == "" {
		return nil, ErrNoURL
	}
	if !r.filter.Allow(v.URL) {
		r.logger.Debug("visit skipped", zap.String("url", v.URL))
		return nil, nil
	}

	info, err := r.devices.GetDeviceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	now := clock.NowMillis(r.clock)
	visitTime := v.VisitTime
	if visitTime == 0 {
		visitTime = now
	}
	e := &history.HistoryEntry{
		URL:              v.URL,
		Title:            v.Title,
		VisitTime:        visitTime,
		VisitID:          history.QualifyVisitID(info.DeviceID, v.VisitID),
		ReferringVisitID: history.QualifyReferrer(info.DeviceID, v.ReferringVisitID),
		Transition:       v.Transition,
		SyncStatus:       history.StatusPending,
		LastModified:     now,
	}
	e.StampProvenance(info)

	stored, out, err := r.entries.AddIfAbsent(ctx, e)
	if err != nil {
		return nil, err
	}
	if out == store.Inserted {
		r.bus.Emit(bus.KindEntryAdded, e.VisitID)
	}
	r.logger.Debug("visit recorded", zap.String("visit_id", e.VisitID), zap.String("outcome", string(out)))
	return stored, nil
}
