package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/status"
	"github.com/matheus3301/chronsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu        gosync.Mutex
	requests  []rpc.SyncRequest
	clientIDs []string
	respond   func(req *rpc.SyncRequest) (*rpc.SyncResponse, error)
}

func (f *fakeRemote) Sync(_ context.Context, clientID string, req *rpc.SyncRequest) (*rpc.SyncResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.clientIDs = append(f.clientIDs, clientID)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return &rpc.SyncResponse{}, nil
	}
	return respond(req)
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRemote) last() rpc.SyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type staticDevice history.DeviceInfo

func (s staticDevice) GetDeviceInfo(context.Context) (history.DeviceInfo, error) {
	return history.DeviceInfo(s), nil
}

type harness struct {
	db      *store.DB
	remote  *fakeRemote
	clock   *clock.Fake
	bus     *bus.Bus
	machine *status.Machine
	coord   *Coordinator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		db:     testDB(t),
		remote: &fakeRemote{},
		clock:  clock.NewFake(time.UnixMilli(5_000_000)),
		bus:    bus.New(),
	}
	if opts.ClientID == "" {
		opts.ClientID = "client-1"
	}
	h.machine = status.NewMachine(h.bus)
	h.coord = NewCoordinator(h.db, NewMergeEngine(h.db, h.bus, nil),
		staticDevice{DeviceID: "local", Platform: "linux"},
		h.remote, h.machine, h.bus, h.clock, nil, opts)
	return h
}

func (h *harness) add(t *testing.T, id string, lm int64) {
	t.Helper()
	_, err := h.db.AddEntry(context.Background(), &history.HistoryEntry{
		VisitID: id, URL: "https://example.com/" + id, VisitTime: lm, DeviceID: "local", LastModified: lm,
	})
	require.NoError(t, err)
}

func TestSyncCycleExchangesAndMarksSynced(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.add(t, "local:1", 100)
	h.add(t, "local:2", 200)

	h.remote.respond = func(req *rpc.SyncRequest) (*rpc.SyncResponse, error) {
		return &rpc.SyncResponse{
			History:      []history.HistoryEntry{remoteEntry("d1:9", 150)},
			Devices:      []history.DeviceInfo{{DeviceID: "d1", Platform: "mac"}, {}},
			LastSyncTime: 777,
		}, nil
	}

	res, err := h.coord.SyncCycle(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Coalesced)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Received)
	assert.Equal(t, int64(2), res.Marked)
	assert.Equal(t, 1, res.Devices)
	assert.Equal(t, int64(777), res.Checkpoint)

	req := h.remote.last()
	assert.Len(t, req.History, 2)
	assert.Equal(t, "local", req.DeviceInfo.DeviceID)
	assert.Zero(t, req.LastSyncTime)
	assert.Equal(t, []string{"client-1"}, h.remote.clientIDs)

	pending, err := h.db.GetUnsyncedEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := h.db.GetEntry(ctx, "d1:9")
	require.NoError(t, err)
	require.NotNil(t, got)

	devices, err := h.db.GetDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	report := h.coord.GetStatus()
	assert.Equal(t, status.Idle, report.State)
	assert.Equal(t, int64(777), report.LastSyncTime)
	assert.Nil(t, report.LastError)
	assert.Equal(t, 2, report.LastSent)

	// the next cycle asks for changes since the checkpoint
	_, err = h.coord.SyncCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(777), h.remote.last().LastSyncTime)
	assert.Empty(t, h.remote.last().History)

	_, err = h.coord.SyncCycle(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, h.remote.last().LastSyncTime)
}

func TestSyncCycleTransportFailureLeavesPending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.add(t, "local:1", 100)
	require.NoError(t, NewCheckpoints(h.db).SetLastSyncTime(ctx, 42))

	h.remote.respond = func(*rpc.SyncRequest) (*rpc.SyncResponse, error) {
		return nil, errors.New("connection refused")
	}

	_, err := h.coord.SyncCycle(ctx, false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransport))

	pending, err := h.db.GetUnsyncedEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	ts, err := NewCheckpoints(h.db).LastSyncTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)

	report := h.coord.GetStatus()
	assert.Equal(t, status.Error, report.State)
	require.NotNil(t, report.LastError)
	assert.Equal(t, apperr.KindTransport, report.LastError.Kind)
	assert.Contains(t, report.LastError.Message, "connection refused")

	// the coordinator stays usable
	h.remote.respond = nil
	_, err = h.coord.SyncCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, status.Idle, h.coord.GetStatus().State)
	assert.Nil(t, h.coord.GetStatus().LastError)
}

func TestSyncCycleAuthErrorFromRemoteKeepsKind(t *testing.T) {
	h := newHarness(t, Options{})
	h.remote.respond = func(*rpc.SyncRequest) (*rpc.SyncResponse, error) {
		return nil, apperr.Auth("exchange", errors.New("client rejected"))
	}

	_, err := h.coord.SyncCycle(context.Background(), false)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, apperr.KindAuth, h.coord.GetStatus().LastError.Kind)
}

func TestSyncCycleMissingClientIDFailsBeforeSending(t *testing.T) {
	h := newHarness(t, Options{})
	h.coord.opts.ClientID = ""
	h.add(t, "local:1", 100)

	_, err := h.coord.SyncCycle(context.Background(), false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.ErrorIs(t, err, ErrNoClientID)
	assert.Zero(t, h.remote.calls())
	assert.Equal(t, status.Error, h.machine.Current())
}

func TestSyncCycleWithoutRemote(t *testing.T) {
	db := testDB(t)
	coord := NewCoordinator(db, NewMergeEngine(db, nil, nil), staticDevice{DeviceID: "local"},
		nil, status.NewMachine(nil), nil, nil, nil, Options{ClientID: "c"})

	_, err := coord.SyncCycle(context.Background(), false)
	assert.True(t, apperr.Is(err, apperr.KindTransport))
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestSyncCycleCoalescesWhileInFlight(t *testing.T) {
	h := newHarness(t, Options{})
	release := make(chan struct{})
	entered := make(chan struct{})
	h.remote.respond = func(*rpc.SyncRequest) (*rpc.SyncResponse, error) {
		close(entered)
		<-release
		return &rpc.SyncResponse{}, nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := h.coord.SyncCycle(context.Background(), false)
		errc <- err
	}()
	<-entered

	res, err := h.coord.SyncCycle(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.Coalesced)
	assert.Equal(t, status.Syncing, h.coord.GetStatus().State)

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, 1, h.remote.calls())
	assert.Equal(t, status.Idle, h.machine.Current())
}

func TestSyncCycleRecoversPanic(t *testing.T) {
	h := newHarness(t, Options{})
	h.remote.respond = func(*rpc.SyncRequest) (*rpc.SyncResponse, error) {
		panic("boom")
	}

	_, err := h.coord.SyncCycle(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, status.Error, h.machine.Current())

	h.remote.respond = nil
	_, err = h.coord.SyncCycle(context.Background(), false)
	require.NoError(t, err)
}

func TestSyncCycleKeepsEntriesEditedInFlightPending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.add(t, "local:1", 100)
	h.add(t, "local:2", 100)

	h.remote.respond = func(*rpc.SyncRequest) (*rpc.SyncResponse, error) {
		_, err := h.db.DeleteEntry(ctx, "local:2")
		require.NoError(t, err)
		h.add(t, "local:3", 300)
		return &rpc.SyncResponse{LastSyncTime: 1}, nil
	}

	res, err := h.coord.SyncCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Marked)

	pending, err := h.db.GetUnsyncedEntries(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, e := range pending {
		ids = append(ids, e.VisitID)
	}
	assert.ElementsMatch(t, []string{"local:2", "local:3"}, ids)
}

func TestSyncCycleUsesLocalClockWithoutRemoteCheckpoint(t *testing.T) {
	h := newHarness(t, Options{})

	res, err := h.coord.SyncCycle(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, clock.NowMillis(h.clock), res.Checkpoint)
}

func TestSyncCyclePurgesOldTombstones(t *testing.T) {
	h := newHarness(t, Options{TombstoneTTL: time.Hour})
	ctx := context.Background()

	old := remoteEntry("old", 1)
	old.Deleted = true
	recent := remoteEntry("recent", clock.NowMillis(h.clock))
	recent.Deleted = true
	_, err := h.coord.merge.Merge(ctx, []history.HistoryEntry{old, recent})
	require.NoError(t, err)

	res, err := h.coord.SyncCycle(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Purged)

	got, err := h.db.GetEntry(ctx, "recent")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestInitLoadsCheckpoint(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, NewCheckpoints(h.db).SetLastSyncTime(context.Background(), 99))

	require.NoError(t, h.coord.Init(context.Background()))
	assert.Equal(t, int64(99), h.coord.GetStatus().LastSyncTime)
}

func TestPeriodicLoopRunsOnTick(t *testing.T) {
	h := newHarness(t, Options{Interval: time.Minute, MinGap: time.Hour})
	h.coord.Start(context.Background())
	defer h.coord.Stop()

	h.clock.Advance(30 * time.Second)
	assert.Never(t, func() bool { return h.remote.calls() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	h.clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return h.remote.calls() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.remote.calls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSyncOnStart(t *testing.T) {
	h := newHarness(t, Options{Interval: time.Hour, SyncOnStart: true})
	h.coord.Start(context.Background())
	defer h.coord.Stop()

	require.Eventually(t, func() bool { return h.remote.calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLocalChangeTriggersEarlyCycle(t *testing.T) {
	h := newHarness(t, Options{Interval: time.Hour, MinGap: time.Minute})
	h.coord.Start(context.Background())
	defer h.coord.Stop()

	h.bus.Emit(bus.KindEntryAdded, "local:1")
	require.Eventually(t, func() bool {
		return h.remote.calls() == 1 && h.machine.Current() == status.Idle
	}, time.Second, 5*time.Millisecond)

	// within the gap the change waits for the next tick
	h.bus.Emit(bus.KindEntryAdded, "local:2")
	assert.Never(t, func() bool { return h.remote.calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	h.clock.Advance(time.Minute)
	h.bus.Emit(bus.KindEntryAdded, "local:3")
	require.Eventually(t, func() bool { return h.remote.calls() == 2 }, time.Second, 5*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, Options{})
	assert.NotPanics(t, h.coord.Stop)
}
