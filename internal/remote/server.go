package remote

import (
	"context"

	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/store"
	intsync "github.com/matheus3301/chronsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server answers sync requests from other devices using the local store as
// the shared history.
type Server struct {
	db     *store.DB
	merge  *intsync.MergeEngine
	clock  clock.Clock
	logger *zap.Logger
}

// NewServer creates a hub server. c must be the clock the store stamps
// rows with, since checkpoints are compared against row change times.
func NewServer(db *store.DB, merge *intsync.MergeEngine, c clock.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = clock.New()
	}
	return &Server{db: db, merge: merge, clock: c, logger: logger}
}

// Sync merges the caller's entries and returns everything changed since the
// caller's checkpoint, except exact copies of what it just sent. An
// incremental request also skips rows whose latest write was the caller's
// own push; a full request (zero checkpoint) gets them back.
func (s *Server) Sync(ctx context.Context, req *rpc.SyncRequest) (*rpc.SyncResponse, error) {
	checkpoint := clock.NowMillis(s.clock)

	if req.DeviceInfo.DeviceID == "" {
		return nil, status.Error(codes.InvalidArgument, "deviceInfo.deviceId is required")
	}
	dev := req.DeviceInfo
	dev.LastSeen = checkpoint
	if err := s.db.UpdateDevice(ctx, dev); err != nil {
		s.logger.Error("hub: update device failed", zap.String("device_id", dev.DeviceID), zap.Error(err))
		return nil, status.Error(codes.Internal, "update device")
	}

	merged, err := s.merge.MergeFrom(ctx, dev.DeviceID, req.History)
	if err != nil {
		s.logger.Error("hub: merge failed", zap.String("device_id", dev.DeviceID), zap.Error(err))
		return nil, status.Error(codes.Internal, "merge entries")
	}

	skip := ""
	if req.LastSyncTime > 0 {
		skip = dev.DeviceID
	}
	changed, err := s.db.ChangedSinceExcept(ctx, req.LastSyncTime, skip)
	if err != nil {
		s.logger.Error("hub: list changes failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "list changes")
	}
	out := withoutEchoes(changed, req.History)

	devices, err := s.db.GetDevices(ctx)
	if err != nil {
		s.logger.Error("hub: list devices failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "list devices")
	}

	s.logger.Info("hub: sync served",
		zap.String("device_id", dev.DeviceID),
		zap.String("client_id", rpc.ClientIDFromContext(ctx)),
		zap.Int("received", len(req.History)),
		zap.Int("inserted", merged.Inserted),
		zap.Int("updated", merged.Updated),
		zap.Int("returned", len(out)),
	)
	return &rpc.SyncResponse{History: out, Devices: devices, LastSyncTime: checkpoint}, nil
}

// withoutEchoes drops entries whose mutable state equals the copy the caller sent.
func withoutEchoes(changed, sent []history.HistoryEntry) []history.HistoryEntry {
	if len(sent) == 0 {
		return changed
	}
	byID := make(map[string]*history.HistoryEntry, len(sent))
	for i := range sent {
		byID[sent[i].VisitID] = &sent[i]
	}
	out := make([]history.HistoryEntry, 0, len(changed))
	for i := range changed {
		if s, ok := byID[changed[i].VisitID]; ok && history.Resolve(&changed[i], s).Winner == history.Equal {
			continue
		}
		out = append(out, changed[i])
	}
	return out
}

// AuthInterceptor rejects calls without a client id, and calls whose id is
// not in allowed when allowed is non-empty.
func AuthInterceptor(allowed []string) grpc.UnaryServerInterceptor {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := rpc.ClientIDFromContext(ctx)
		if id == "" {
			return nil, status.Error(codes.Unauthenticated, "missing client id")
		}
		if len(set) > 0 {
			if _, ok := set[id]; !ok {
				return nil, status.Errorf(codes.PermissionDenied, "client id %q is not allowed", id)
			}
		}
		return handler(ctx, req)
	}
}

// NewGRPCServer returns a gRPC server exposing srv behind the auth interceptor.
func NewGRPCServer(srv *Server, allowed []string, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(AuthInterceptor(allowed)))
	g := grpc.NewServer(opts...)
	rpc.RegisterHistorySyncServer(g, srv)
	return g
}
