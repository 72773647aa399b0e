package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	fc := clock.NewFake(time.UnixMilli(1_000_000))
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(fc))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func remoteEntry(id string, lm int64) history.HistoryEntry {
	return history.HistoryEntry{
		VisitID:      id,
		URL:          "https://example.com/" + id,
		VisitTime:    100,
		DeviceID:     "d1",
		SyncStatus:   history.StatusSynced,
		LastModified: lm,
	}
}

func snapshot(t *testing.T, db *store.DB) []history.HistoryEntry {
	t.Helper()
	entries, err := db.GetEntries(context.Background(), store.EntryQuery{IncludeDeleted: true})
	require.NoError(t, err)
	return entries
}

func TestMergeInsertsAbsentAsSynced(t *testing.T) {
	db := testDB(t)
	m := NewMergeEngine(db, nil, nil)

	in := remoteEntry("d9:1", 100)
	in.DeviceID = "unknown-device"
	in.SyncStatus = history.StatusPending

	res, err := m.Merge(context.Background(), []history.HistoryEntry{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	got, err := db.GetEntry(context.Background(), "d9:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, history.StatusSynced, got.SyncStatus)
	assert.Equal(t, "unknown-device", got.DeviceID)
}

func TestMergeLaterRemoteAttachesContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := NewMergeEngine(db, nil, nil)

	_, err := db.AddEntry(ctx, &history.HistoryEntry{
		VisitID: "v1", URL: "https://example.com", VisitTime: 100, LastModified: 100,
		DeviceID: "d1", SyncStatus: history.StatusPending,
	})
	require.NoError(t, err)

	_, err = m.Merge(ctx, []history.HistoryEntry{{
		VisitID: "v1", URL: "https://example.com", VisitTime: 100, LastModified: 200,
		DeviceID: "d1", SyncStatus: history.StatusSynced,
		PageContent: &history.PageContent{Content: "x", Summary: "y"},
	}})
	require.NoError(t, err)

	all := snapshot(t, db)
	require.Len(t, all, 1)
	assert.Equal(t, "v1", all[0].VisitID)
	assert.Equal(t, int64(200), all[0].LastModified)
	require.NotNil(t, all[0].PageContent)
	assert.Equal(t, "x", all[0].PageContent.Content)
	assert.Equal(t, "y", all[0].PageContent.Summary)
}

func TestMergeIsIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := NewMergeEngine(db, nil, nil)

	_, err := db.AddEntry(ctx, &history.HistoryEntry{
		VisitID: "a", URL: "https://a", DeviceID: "d1", LastModified: 150,
	})
	require.NoError(t, err)

	tomb := remoteEntry("b", 300)
	tomb.Deleted = true
	batch := []history.HistoryEntry{remoteEntry("a", 200), tomb, remoteEntry("c", 50)}

	_, err = m.Merge(ctx, batch)
	require.NoError(t, err)
	once := snapshot(t, db)

	res, err := m.Merge(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Unchanged)
	assert.Equal(t, once, snapshot(t, db))
}

func TestMergeIsCommutative(t *testing.T) {
	ctx := context.Background()

	tombTie := remoteEntry("tie", 500)
	tombTie.Deleted = true
	contentA := remoteEntry("content", 700)
	contentA.PageContent = &history.PageContent{Content: "alpha"}
	contentB := remoteEntry("content", 700)
	contentB.PageContent = &history.PageContent{Content: "beta"}

	batchA := []history.HistoryEntry{remoteEntry("only-a", 10), remoteEntry("shared", 300), remoteEntry("tie", 500), contentA}
	batchB := []history.HistoryEntry{remoteEntry("only-b", 20), remoteEntry("shared", 400), tombTie, contentB}

	ab := testDB(t)
	mab := NewMergeEngine(ab, nil, nil)
	_, err := mab.Merge(ctx, batchA)
	require.NoError(t, err)
	_, err = mab.Merge(ctx, batchB)
	require.NoError(t, err)

	ba := testDB(t)
	mba := NewMergeEngine(ba, nil, nil)
	_, err = mba.Merge(ctx, batchB)
	require.NoError(t, err)
	_, err = mba.Merge(ctx, batchA)
	require.NoError(t, err)

	assert.Equal(t, snapshot(t, ab), snapshot(t, ba))

	shared, err := ab.GetEntry(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(400), shared.LastModified)
}

func TestMergeTombstoneDominatesTie(t *testing.T) {
	ctx := context.Background()

	t.Run("remote tombstone over local live", func(t *testing.T) {
		db := testDB(t)
		m := NewMergeEngine(db, nil, nil)
		_, err := db.AddEntry(ctx, &history.HistoryEntry{VisitID: "v1", URL: "https://x", DeviceID: "d1", LastModified: 100})
		require.NoError(t, err)

		tomb := remoteEntry("v1", 100)
		tomb.Deleted = true
		res, err := m.Merge(ctx, []history.HistoryEntry{tomb})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Conflicts)

		got, err := db.GetEntry(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Equal(t, history.StatusSynced, got.SyncStatus)

		conflicts, err := db.ListConflicts(ctx, 0)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "tombstone:incoming", conflicts[0].Resolution)
	})

	t.Run("local tombstone over remote live", func(t *testing.T) {
		db := testDB(t)
		m := NewMergeEngine(db, nil, nil)
		_, err := db.AddEntry(ctx, &history.HistoryEntry{VisitID: "v1", URL: "https://x", DeviceID: "d1", LastModified: 100, Deleted: true})
		require.NoError(t, err)

		_, err = m.Merge(ctx, []history.HistoryEntry{remoteEntry("v1", 100)})
		require.NoError(t, err)

		got, err := db.GetEntry(ctx, "v1")
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Equal(t, history.StatusPending, got.SyncStatus, "local winner keeps its status")
	})
}

func TestMergeRoundTripConvergesToRemote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	m := NewMergeEngine(db, nil, nil)

	_, err := db.AddEntry(ctx, &history.HistoryEntry{VisitID: "d1:7", URL: "https://x", Title: "t", DeviceID: "d1", LastModified: 100})
	require.NoError(t, err)

	sent, err := db.GetUnsyncedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	back := sent[0]
	back.LastModified = 250
	back.PageContent = &history.PageContent{Content: "remote"}
	_, err = m.Merge(ctx, []history.HistoryEntry{back})
	require.NoError(t, err)

	all := snapshot(t, db)
	require.Len(t, all, 1)
	assert.Equal(t, int64(250), all[0].LastModified)
	assert.Equal(t, "remote", all[0].PageContent.Content)
	assert.Equal(t, history.StatusSynced, all[0].SyncStatus)
}

func TestMergeDuplicateInBatchAppliesSequentially(t *testing.T) {
	db := testDB(t)
	m := NewMergeEngine(db, nil, nil)

	res, err := m.Merge(context.Background(), []history.HistoryEntry{
		remoteEntry("v1", 100), remoteEntry("v1", 300), remoteEntry("v1", 200),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)

	got, err := db.GetEntry(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.LastModified)
}

func TestMergeEmptyBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ch, unsub := b.Subscribe("history.", 1)
	defer unsub()

	res, err := NewMergeEngine(db, b, nil).Merge(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{}, *res)
	assert.Empty(t, ch)
}

func TestMergeRejectsInvalidEntries(t *testing.T) {
	db := testDB(t)
	m := NewMergeEngine(db, nil, nil)

	noURL := remoteEntry("v2", 100)
	noURL.URL = ""
	res, err := m.Merge(context.Background(), []history.HistoryEntry{
		remoteEntry("", 100), noURL, remoteEntry("v3", 100),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, 1, res.Inserted)
}

func TestMergePublishesEvent(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	ch, unsub := b.Subscribe("history.", 1)
	defer unsub()

	_, err := NewMergeEngine(db, b, nil).Merge(context.Background(), []history.HistoryEntry{remoteEntry("v1", 1)})
	require.NoError(t, err)

	evt := <-ch
	assert.Equal(t, bus.KindMerged, evt.Kind)
	assert.Equal(t, 1, evt.Payload.(MergeResult).Inserted)
}

func TestMergeStorageFailureAborts(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Close())

	_, err := NewMergeEngine(db, nil, nil).Merge(context.Background(), []history.HistoryEntry{remoteEntry("v1", 1)})
	require.Error(t, err)
}
