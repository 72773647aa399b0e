package api

import (
	"context"

	"github.com/matheus3301/chronsync/internal/rpc"
)

func (s *ControlService) ListDevices(ctx context.Context, _ *rpc.ListDevicesRequest) (*rpc.ListDevicesResponse, error) {
	devices, err := s.db.GetDevices(ctx)
	if err != nil {
		return nil, toStatus("list devices", err)
	}
	return &rpc.ListDevicesResponse{Devices: devices}, nil
}

func (s *ControlService) ListConflicts(ctx context.Context, req *rpc.ListConflictsRequest) (*rpc.ListConflictsResponse, error) {
	records, err := s.db.ListConflicts(ctx, req.Limit)
	if err != nil {
		return nil, toStatus("list conflicts", err)
	}
	out := make([]rpc.Conflict, 0, len(records))
	for _, r := range records {
		out = append(out, rpc.Conflict{
			VisitID:        r.VisitID,
			LocalModified:  r.LocalModified,
			RemoteModified: r.RemoteModified,
			Resolution:     r.Resolution,
			DetectedAt:     r.DetectedAt,
		})
	}
	return &rpc.ListConflictsResponse{Conflicts: out}, nil
}
