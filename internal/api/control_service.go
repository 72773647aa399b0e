package api

import (
	"context"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/capture"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/store"
	intsync "github.com/matheus3301/chronsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ControlService implements the daemon's Control gRPC service.
type ControlService struct {
	profile  string
	remote   string
	db       *store.DB
	coord    *intsync.Coordinator
	recorder *capture.Recorder
	devices  capture.DeviceSource
	bus      *bus.Bus
	clock    clock.Clock
}

// Deps groups what the control service needs.
type Deps struct {
	Profile  string
	Remote   string
	DB       *store.DB
	Coord    *intsync.Coordinator
	Recorder *capture.Recorder
	Devices  capture.DeviceSource
	Bus      *bus.Bus
	Clock    clock.Clock
}

// NewControlService creates the control service.
func NewControlService(d Deps) *ControlService {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	return &ControlService{
		profile:  d.Profile,
		remote:   d.Remote,
		db:       d.DB,
		coord:    d.Coord,
		recorder: d.Recorder,
		devices:  d.Devices,
		bus:      d.Bus,
		clock:    d.Clock,
	}
}

var _ rpc.ControlServer = (*ControlService)(nil)

func (s *ControlService) Status(ctx context.Context, _ *rpc.StatusRequest) (*rpc.StatusResponse, error) {
	report := s.coord.GetStatus()
	stats, err := s.db.Stats(ctx)
	if err != nil {
		return nil, toStatus("stats", err)
	}
	info, err := s.devices.GetDeviceInfo(ctx)
	if err != nil {
		return nil, toStatus("device info", err)
	}

	resp := &rpc.StatusResponse{
		Profile:       s.profile,
		State:         string(report.State),
		Device:        info,
		Remote:        s.remote,
		LastSyncTime:  report.LastSyncTime,
		LastAttemptAt: report.LastAttemptAt,
		LastSent:      report.LastSent,
		LastReceived:  report.LastReceived,
		Entries:       stats.Entries,
		Pending:       stats.Pending,
		Tombstones:    stats.Tombstones,
		Devices:       stats.Devices,
	}
	if report.LastError != nil {
		resp.LastError = &rpc.ErrorInfo{Kind: string(report.LastError.Kind), Message: report.LastError.Message}
	}
	return resp, nil
}

func (s *ControlService) SyncNow(ctx context.Context, req *rpc.SyncNowRequest) (*rpc.SyncNowResponse, error) {
	res, err := s.coord.SyncCycle(ctx, req.Full)
	if err != nil {
		return nil, toStatus("sync", err)
	}
	resp := &rpc.SyncNowResponse{
		Coalesced:    res.Coalesced,
		Sent:         res.Sent,
		Received:     res.Received,
		LastSyncTime: res.Checkpoint,
	}
	if res.Merge != nil {
		resp.Inserted = res.Merge.Inserted
		resp.Updated = res.Merge.Updated
		resp.Rejected = res.Merge.Rejected
	}
	return resp, nil
}

// toStatus maps an error to a gRPC status by its apperr kind.
func toStatus(op string, err error) error {
	code := codes.Internal
	switch apperr.KindOf(err) {
	case apperr.KindTransport:
		code = codes.Unavailable
	case apperr.KindAuth:
		code = codes.FailedPrecondition
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
