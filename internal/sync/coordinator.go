package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/status"
	"github.com/matheus3301/chronsync/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNoRemote   = errors.New("no remote configured")
	ErrNoClientID = errors.New("no client id configured")
)

// Remote exchanges one sync payload with a hub or peer.
type Remote interface {
	Sync(ctx context.Context, clientID string, req *rpc.SyncRequest) (*rpc.SyncResponse, error)
}

// DeviceSource describes the local device.
type DeviceSource interface {
	GetDeviceInfo(ctx context.Context) (history.DeviceInfo, error)
}

// Options tunes the coordinator.
type Options struct {
	ClientID     string
	Interval     time.Duration // periodic cycle interval
	Timeout      time.Duration // bound on one exchange; 0 disables
	MinGap       time.Duration // minimum spacing of change-triggered cycles
	SyncOnStart  bool
	TombstoneTTL time.Duration // 0 keeps tombstones forever
}

// CycleResult summarises one sync cycle.
type CycleResult struct {
	Coalesced  bool         `json:"coalesced"`
	Sent       int          `json:"sent"`
	Received   int          `json:"received"`
	Marked     int64        `json:"marked"`
	Devices    int          `json:"devices"`
	Merge      *MergeResult `json:"merge,omitempty"`
	Purged     int64        `json:"purged"`
	Checkpoint int64        `json:"checkpoint"`
}

// ErrorReport is the last error surfaced to the UI.
type ErrorReport struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Report is the coordinator status exposed for display.
type Report struct {
	State         status.State `json:"state"`
	LastSyncTime  int64        `json:"lastSyncTime"`
	LastAttemptAt int64        `json:"lastAttemptAt"`
	LastError     *ErrorReport `json:"lastError,omitempty"`
	LastSent      int          `json:"lastSent"`
	LastReceived  int          `json:"lastReceived"`
}

// Coordinator drives sync cycles against a single remote. Only one cycle
// runs at a time; a request arriving while one is in flight is coalesced.
type Coordinator struct {
	db          *store.DB
	merge       *MergeEngine
	checkpoints *Checkpoints
	devices     DeviceSource
	remote      Remote
	machine     *status.Machine
	bus         *bus.Bus
	clock       clock.Clock
	logger      *zap.Logger
	opts        Options

	mu     gosync.Mutex
	report Report

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator wires a coordinator. remote may be nil, in which case every
// cycle fails with a transport error until one is configured.
func NewCoordinator(
	db *store.DB,
	merge *MergeEngine,
	devices DeviceSource,
	remote Remote,
	machine *status.Machine,
	b *bus.Bus,
	c clock.Clock,
	logger *zap.Logger,
	opts Options,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Coordinator{
		db:          db,
		merge:       merge,
		checkpoints: NewCheckpoints(db),
		devices:     devices,
		remote:      remote,
		machine:     machine,
		bus:         b,
		clock:       c,
		logger:      logger,
		opts:        opts,
	}
}

// Init loads the persisted checkpoint into the status report.
func (c *Coordinator) Init(ctx context.Context) error {
	ts, err := c.checkpoints.LastSyncTime(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.report.LastSyncTime = ts
	c.mu.Unlock()
	return nil
}

// GetStatus returns a snapshot of the coordinator state.
func (c *Coordinator) GetStatus() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.report
	r.State = c.machine.Current()
	if r.LastError != nil {
		e := *r.LastError
		r.LastError = &e
	}
	return r
}

// SyncCycle runs one cycle. forceFullSync asks the remote for everything
// instead of changes since the last checkpoint. Errors are also recorded in
// the status report; the coordinator stays usable either way.
func (c *Coordinator) SyncCycle(ctx context.Context, forceFullSync bool) (res *CycleResult, err error) {
	if !c.machine.TryBegin() {
		c.logger.Debug("sync already in flight, coalescing request")
		return &CycleResult{Coalesced: true}, nil
	}

	start := clock.NowMillis(c.clock)
	c.mu.Lock()
	c.report.LastAttemptAt = start
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("sync cycle panic: %v", r)
		}
		c.finish(start, res, err)
	}()

	return c.runCycle(ctx, forceFullSync, start)
}

func (c *Coordinator) runCycle(ctx context.Context, forceFullSync bool, start int64) (*CycleResult, error) {
	if c.remote == nil {
		return nil, apperr.Transport("sync", ErrNoRemote)
	}
	if c.opts.ClientID == "" {
		return nil, apperr.Auth("sync", ErrNoClientID)
	}

	since := int64(0)
	if !forceFullSync {
		ts, err := c.checkpoints.LastSyncTime(ctx)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		since = ts
	}

	info, err := c.devices.GetDeviceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}
	if err := c.db.UpdateDevice(ctx, info); err != nil {
		return nil, err
	}

	pending, err := c.db.GetUnsyncedEntries(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, &rpc.SyncRequest{
		History:      pending,
		DeviceInfo:   info,
		LastSyncTime: since,
	})
	if err != nil {
		return nil, err
	}

	res := &CycleResult{Sent: len(pending), Received: len(resp.History)}
	res.Merge, err = c.merge.Merge(ctx, resp.History)
	if err != nil {
		return nil, fmt.Errorf("apply remote entries: %w", err)
	}

	for _, d := range resp.Devices {
		if d.DeviceID == "" {
			continue
		}
		if err := c.db.UpdateDevice(ctx, d); err != nil {
			return nil, err
		}
		res.Devices++
	}

	res.Marked, err = c.db.MarkSentAsSynced(ctx, pending)
	if err != nil {
		return nil, err
	}

	res.Checkpoint = resp.LastSyncTime
	if res.Checkpoint == 0 {
		res.Checkpoint = start
	}
	if err := c.checkpoints.SetLastSyncTime(ctx, res.Checkpoint); err != nil {
		return nil, err
	}

	if c.opts.TombstoneTTL > 0 {
		cutoff := start - c.opts.TombstoneTTL.Milliseconds()
		n, err := c.db.PurgeTombstones(ctx, cutoff)
		if err != nil {
			c.logger.Warn("tombstone purge failed", zap.Error(err))
		}
		res.Purged = n
	}
	return res, nil
}

func (c *Coordinator) exchange(ctx context.Context, req *rpc.SyncRequest) (*rpc.SyncResponse, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	resp, err := c.remote.Sync(ctx, c.opts.ClientID, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Transport("exchange", err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, apperr.Transport("exchange", errors.New("empty response"))
	}
	return resp, nil
}

func (c *Coordinator) finish(start int64, res *CycleResult, err error) {
	c.mu.Lock()
	if err != nil {
		kind := apperr.KindOf(err)
		c.report.LastError = &ErrorReport{Kind: kind, Message: err.Error()}
		c.mu.Unlock()

		c.logger.Error("sync cycle failed", zap.String("kind", string(kind)), zap.Error(err))
		if terr := c.machine.Finish(true); terr != nil {
			c.logger.Warn("state transition failed", zap.Error(terr))
		}
		return
	}
	c.report.LastError = nil
	c.report.LastSyncTime = res.Checkpoint
	c.report.LastSent = res.Sent
	c.report.LastReceived = res.Received
	c.mu.Unlock()

	c.logger.Info("sync cycle completed",
		zap.Int("sent", res.Sent),
		zap.Int("received", res.Received),
		zap.Int64("marked", res.Marked),
		zap.Int64("checkpoint", res.Checkpoint),
		zap.Duration("took", time.Duration(clock.NowMillis(c.clock)-start)*time.Millisecond),
	)
	if terr := c.machine.Finish(false); terr != nil {
		c.logger.Warn("state transition failed", zap.Error(terr))
	}
	c.bus.Emit(bus.KindCycleDone, *res)
}

// Start runs the periodic loop until Stop or ctx cancellation. Local history
// changes trigger an early cycle when MinGap has passed since the last
// attempt.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	ticker := c.clock.NewTicker(c.opts.Interval)
	var (
		events <-chan bus.Event
		unsub  = func() {}
	)
	if c.bus != nil {
		events, unsub = c.bus.Subscribe("history.", 64)
	}

	go func() {
		defer close(c.done)
		defer ticker.Stop()
		defer unsub()

		if c.opts.SyncOnStart {
			c.scheduled(ctx, "start")
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				c.scheduled(ctx, "interval")
			case evt := <-events:
				// merges come from sync itself
				if evt.Kind == bus.KindMerged {
					continue
				}
				if c.gapElapsed() {
					c.scheduled(ctx, "change")
				}
			}
		}
	}()
}

// Stop ends the periodic loop and waits for an in-flight cycle to return.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Coordinator) gapElapsed() bool {
	c.mu.Lock()
	last := c.report.LastAttemptAt
	c.mu.Unlock()
	return last == 0 || clock.NowMillis(c.clock)-last >= c.opts.MinGap.Milliseconds()
}

func (c *Coordinator) scheduled(ctx context.Context, trigger string) {
	c.logger.Debug("scheduled sync", zap.String("trigger", trigger))
	// failures are already recorded in the report
	_, _ = c.SyncCycle(ctx, false)
}
