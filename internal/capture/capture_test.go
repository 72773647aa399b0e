package capture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterAllow(t *testing.T) {
	f := NewFilter(nil, []string{"bank.example", ".Private.test"})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/page", true},
		{"http://news.example.org", true},
		{"chrome://settings", false},
		{"about:blank", false},
		{"edge://flags", false},
		{"moz-extension://abc/popup.html", false},
		{"chrome-extension://abc/index.html", false},
		{"view-source:https://example.com", false},
		{"file:///etc/hosts", false},
		{"https://bank.example/login", false},
		{"https://www.bank.example/login", false},
		{"https://notbank.example", true},
		{"https://a.private.test", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Allow(tt.url), tt.url)
	}
}

func TestFilterCustomSchemes(t *testing.T) {
	f := NewFilter([]string{"HTTP:"}, nil)
	assert.False(t, f.Allow("http://example.com"))
	assert.True(t, f.Allow("chrome://settings"))
}

type staticDevice history.DeviceInfo

func (s staticDevice) GetDeviceInfo(context.Context) (history.DeviceInfo, error) {
	return history.DeviceInfo(s), nil
}

func newRecorder(t *testing.T) (*Recorder, *store.DB, *bus.Bus) {
	t.Helper()
	fc := clock.NewFake(time.UnixMilli(9_000))
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(fc))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	dev := staticDevice{DeviceID: "dev1", Platform: "linux", BrowserName: "firefox", BrowserVersion: "130", UserAgent: "ua"}
	return NewRecorder(db, dev, NewFilter(nil, []string{"secret.test"}), b, fc, nil), db, b
}

func TestRecordStoresPendingEntry(t *testing.T) {
	r, db, b := newRecorder(t)
	ch, unsub := b.Subscribe("history.", 4)
	defer unsub()

	e, err := r.Record(context.Background(), Visit{
		URL: "https://example.com", Title: "Example", VisitID: "42", ReferringVisitID: "41", Transition: "link",
	})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "dev1:42", e.VisitID)
	assert.Equal(t, "dev1:41", e.ReferringVisitID)

	got, err := db.GetEntry(context.Background(), "dev1:42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, history.StatusPending, got.SyncStatus)
	assert.Equal(t, int64(9_000), got.LastModified)
	assert.Equal(t, int64(9_000), got.VisitTime)
	assert.Equal(t, "firefox", got.BrowserName)
	assert.Equal(t, "130", got.BrowserVersion)
	assert.Equal(t, "dev1", got.DeviceID)

	evt := <-ch
	assert.Equal(t, bus.KindEntryAdded, evt.Kind)
	assert.Equal(t, "dev1:42", evt.Payload)
}

func TestRecordWithoutVisitIDGetsUUID(t *testing.T) {
	r, _, _ := newRecorder(t)

	e, err := r.Record(context.Background(), Visit{URL: "https://example.com", VisitTime: 5, ReferringVisitID: "0"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.VisitID, "dev1:"))
	assert.Greater(t, len(e.VisitID), len("dev1:"))
	assert.Empty(t, e.ReferringVisitID)
	assert.Equal(t, int64(5), e.VisitTime)
}

func TestRecordSkipsFilteredVisits(t *testing.T) {
	r, db, _ := newRecorder(t)
	ctx := context.Background()

	for _, u := range []string{"chrome://newtab", "https://mail.secret.test/inbox"} {
		e, err := r.Record(ctx, Visit{URL: u})
		require.NoError(t, err)
		assert.Nil(t, e, u)
	}

	s, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.Entries)
}

func TestRecordRequiresURL(t *testing.T) {
	r, _, _ := newRecorder(t)
	_, err := r.Record(context.Background(), Visit{})
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestRecordAgainKeepsAttachedContent(t *testing.T) {
	r, db, b := newRecorder(t)
	fc := r.clock.(*clock.Fake)
	ctx := context.Background()

	_, err := r.Record(ctx, Visit{URL: "https://example.com/a", Title: "A", VisitID: "7"})
	require.NoError(t, err)

	fc.Advance(time.Second)
	_, err = db.AttachPageContent(ctx, "dev1:7", history.PageContent{Content: "body", Summary: "sum"})
	require.NoError(t, err)
	before, err := db.GetEntry(ctx, "dev1:7")
	require.NoError(t, err)

	ch, unsub := b.Subscribe("history.", 4)
	defer unsub()

	fc.Advance(time.Second)
	e, err := r.Record(ctx, Visit{URL: "https://example.com/a", Title: "A", VisitID: "7"})
	require.NoError(t, err)
	require.NotNil(t, e)
	require.NotNil(t, e.PageContent)
	assert.Equal(t, "body", e.PageContent.Content)

	after, err := db.GetEntry(ctx, "dev1:7")
	require.NoError(t, err)
	require.NotNil(t, after.PageContent)
	assert.Equal(t, "body", after.PageContent.Content)
	assert.Equal(t, before.LastModified, after.LastModified)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.Kind)
	default:
	}
}

func TestRecordAgainKeepsTombstone(t *testing.T) {
	r, db, _ := newRecorder(t)
	fc := r.clock.(*clock.Fake)
	ctx := context.Background()

	_, err := r.Record(ctx, Visit{URL: "https://example.com/b", VisitID: "8"})
	require.NoError(t, err)

	fc.Advance(time.Second)
	_, err = db.DeleteEntry(ctx, "dev1:8")
	require.NoError(t, err)
	deleted, err := db.GetEntry(ctx, "dev1:8")
	require.NoError(t, err)

	fc.Advance(time.Second)
	e, err := r.Record(ctx, Visit{URL: "https://example.com/b", VisitID: "8"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Deleted)

	got, err := db.GetEntry(ctx, "dev1:8")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, deleted.LastModified, got.LastModified)
}
