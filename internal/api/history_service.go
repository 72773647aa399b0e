package api

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/capture"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/history"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultListLimit = 100

func (s *ControlService) ListEntries(ctx context.Context, req *rpc.ListEntriesRequest) (*rpc.ListEntriesResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := store.EntryQuery{
		DeviceID:       req.DeviceID,
		Since:          req.Since,
		IncludeDeleted: req.IncludeDeleted,
		Limit:          limit,
	}
	// text search filters the store result, so it reads everything first
	if req.Query != "" {
		q.Limit = 0
	}

	entries, err := s.db.GetEntries(ctx, q)
	if err != nil {
		return nil, toStatus("list entries", err)
	}
	if req.Query != "" {
		entries = matching(entries, req.Query, limit)
	}
	return &rpc.ListEntriesResponse{Entries: entries}, nil
}

// matching keeps entries whose URL or title contains query, case-insensitively.
func matching(entries []history.HistoryEntry, query string, limit int) []history.HistoryEntry {
	needle := strings.ToLower(query)
	out := []history.HistoryEntry{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.URL), needle) || strings.Contains(strings.ToLower(e.Title), needle) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func (s *ControlService) RecordVisit(ctx context.Context, req *rpc.RecordVisitRequest) (*rpc.RecordVisitResponse, error) {
	v := req.Visit
	e, err := s.recorder.Record(ctx, capture.Visit{
		URL:              v.URL,
		Title:            v.Title,
		VisitTime:        v.VisitTime,
		VisitID:          v.VisitID,
		ReferringVisitID: v.ReferringVisitID,
		Transition:       v.Transition,
	})
	if errors.Is(err, capture.ErrNoURL) {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, toStatus("record visit", err)
	}
	return &rpc.RecordVisitResponse{Recorded: e != nil, Entry: e}, nil
}

func (s *ControlService) DeleteEntry(ctx context.Context, req *rpc.DeleteEntryRequest) (*rpc.DeleteEntryResponse, error) {
	if req.VisitID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "visitId is required")
	}
	out, err := s.db.DeleteEntry(ctx, req.VisitID)
	if err != nil {
		return nil, toStatus("delete entry", err)
	}
	if out != store.Unchanged {
		s.bus.Emit(bus.KindEntryDeleted, req.VisitID)
	}
	return &rpc.DeleteEntryResponse{}, nil
}

func (s *ControlService) AttachContent(ctx context.Context, req *rpc.AttachContentRequest) (*rpc.AttachContentResponse, error) {
	if req.VisitID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "visitId is required")
	}
	pc := history.PageContent{
		Content:     req.Content,
		Summary:     req.Summary,
		ExtractedAt: clock.NowMillis(s.clock),
	}
	out, err := s.db.AttachPageContent(ctx, req.VisitID, pc)
	if err != nil {
		return nil, toStatus("attach content", err)
	}
	if out != store.Unchanged {
		s.bus.Emit(bus.KindContentAdded, req.VisitID)
	}
	return &rpc.AttachContentResponse{}, nil
}
