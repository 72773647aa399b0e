package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/matheus3301/chronsync/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type echoSync struct {
	gotClientID string
}

func (e *echoSync) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	e.gotClientID = ClientIDFromContext(ctx)
	return &SyncResponse{
		History:      req.History,
		Devices:      []history.DeviceInfo{req.DeviceInfo},
		LastSyncTime: req.LastSyncTime + 1,
	}, nil
}

func dial(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSyncRoundTripOverJSONCodec(t *testing.T) {
	impl := &echoSync{}
	conn := dial(t, func(s *grpc.Server) { RegisterHistorySyncServer(s, impl) })

	req := &SyncRequest{
		History: []history.HistoryEntry{{
			VisitID: "d1:1", URL: "https://example.com", DeviceID: "d1",
			SyncStatus: history.StatusPending, LastModified: 100,
			PageContent: &history.PageContent{Content: "x", Summary: "y"},
		}},
		DeviceInfo:   history.DeviceInfo{DeviceID: "d1", Platform: "linux"},
		LastSyncTime: 41,
	}
	ctx := WithClientID(context.Background(), "client-1")
	resp, err := NewHistorySyncClient(conn).Sync(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "client-1", impl.gotClientID)
	assert.Equal(t, req.History, resp.History)
	assert.Equal(t, int64(42), resp.LastSyncTime)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "d1", resp.Devices[0].DeviceID)
}

func TestSyncPayloadFieldNames(t *testing.T) {
	data, err := jsonCodec{}.Marshal(&SyncRequest{DeviceInfo: history.DeviceInfo{DeviceID: "d1"}})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "history")
	assert.Contains(t, raw, "deviceInfo")
	assert.Contains(t, raw, "lastSyncTime")
}

func TestClientIDFromContextMissing(t *testing.T) {
	assert.Empty(t, ClientIDFromContext(context.Background()))
}

type stubControl struct {
	ControlServer
	full bool
}

func (s *stubControl) SyncNow(_ context.Context, req *SyncNowRequest) (*SyncNowResponse, error) {
	s.full = req.Full
	return &SyncNowResponse{Sent: 3}, nil
}

func TestControlDispatch(t *testing.T) {
	impl := &stubControl{}
	conn := dial(t, func(s *grpc.Server) { RegisterControlServer(s, impl) })

	resp, err := NewControlClient(conn).SyncNow(context.Background(), &SyncNowRequest{Full: true})
	require.NoError(t, err)
	assert.True(t, impl.full)
	assert.Equal(t, 3, resp.Sent)
}
