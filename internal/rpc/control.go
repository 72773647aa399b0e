package rpc

import (
	"context"

	"github.com/matheus3301/chronsync/internal/history"
	"google.golang.org/grpc"
)

const controlService = "chroniclesync.v1.Control"

const (
	methodStatus        = "/" + controlService + "/Status"
	methodSyncNow       = "/" + controlService + "/SyncNow"
	methodListEntries   = "/" + controlService + "/ListEntries"
	methodRecordVisit   = "/" + controlService + "/RecordVisit"
	methodDeleteEntry   = "/" + controlService + "/DeleteEntry"
	methodAttachContent = "/" + controlService + "/AttachContent"
	methodListDevices   = "/" + controlService + "/ListDevices"
	methodListConflicts = "/" + controlService + "/ListConflicts"
)

type StatusRequest struct{}

// ErrorInfo is the last error surfaced by the sync coordinator.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Profile       string             `json:"profile"`
	State         string             `json:"state"`
	Device        history.DeviceInfo `json:"device"`
	Remote        string             `json:"remote,omitempty"`
	LastSyncTime  int64              `json:"lastSyncTime"`
	LastAttemptAt int64              `json:"lastAttemptAt"`
	LastError     *ErrorInfo         `json:"lastError,omitempty"`
	LastSent      int                `json:"lastSent"`
	LastReceived  int                `json:"lastReceived"`
	Entries       int64              `json:"entries"`
	Pending       int64              `json:"pending"`
	Tombstones    int64              `json:"tombstones"`
	Devices       int64              `json:"devices"`
}

type SyncNowRequest struct {
	Full bool `json:"full"`
}

type SyncNowResponse struct {
	Coalesced    bool  `json:"coalesced"`
	Sent         int   `json:"sent"`
	Received     int   `json:"received"`
	Inserted     int   `json:"inserted"`
	Updated      int   `json:"updated"`
	Rejected     int   `json:"rejected"`
	LastSyncTime int64 `json:"lastSyncTime"`
}

type ListEntriesRequest struct {
	DeviceID       string `json:"deviceId,omitempty"`
	Since          int64  `json:"since,omitempty"`
	IncludeDeleted bool   `json:"includeDeleted,omitempty"`
	Query          string `json:"query,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type ListEntriesResponse struct {
	Entries []history.HistoryEntry `json:"entries"`
}

// Visit is a browser visit as reported by the native-messaging host.
type Visit struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	VisitTime        int64  `json:"visitTime"`
	VisitID          string `json:"visitId,omitempty"`
	ReferringVisitID string `json:"referringVisitId,omitempty"`
	Transition       string `json:"transition,omitempty"`
}

type RecordVisitRequest struct {
	Visit Visit `json:"visit"`
}

type RecordVisitResponse struct {
	Recorded bool                  `json:"recorded"`
	Entry    *history.HistoryEntry `json:"entry,omitempty"`
}

type DeleteEntryRequest struct {
	VisitID string `json:"visitId"`
}

type DeleteEntryResponse struct{}

type AttachContentRequest struct {
	VisitID string `json:"visitId"`
	Content string `json:"content"`
	Summary string `json:"summary"`
}

type AttachContentResponse struct{}

type ListDevicesRequest struct{}

type ListDevicesResponse struct {
	Devices []history.DeviceInfo `json:"devices"`
}

type ListConflictsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// Conflict is one conflict-log row.
type Conflict struct {
	VisitID        string `json:"visitId"`
	LocalModified  int64  `json:"localModified"`
	RemoteModified int64  `json:"remoteModified"`
	Resolution     string `json:"resolution"`
	DetectedAt     int64  `json:"detectedAt"`
}

type ListConflictsResponse struct {
	Conflicts []Conflict `json:"conflicts"`
}

// ControlServer is the daemon's local control API.
type ControlServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	SyncNow(context.Context, *SyncNowRequest) (*SyncNowResponse, error)
	ListEntries(context.Context, *ListEntriesRequest) (*ListEntriesResponse, error)
	RecordVisit(context.Context, *RecordVisitRequest) (*RecordVisitResponse, error)
	DeleteEntry(context.Context, *DeleteEntryRequest) (*DeleteEntryResponse, error)
	AttachContent(context.Context, *AttachContentRequest) (*AttachContentResponse, error)
	ListDevices(context.Context, *ListDevicesRequest) (*ListDevicesResponse, error)
	ListConflicts(context.Context, *ListConflictsRequest) (*ListConflictsResponse, error)
}

var controlDesc = grpc.ServiceDesc{
	ServiceName: controlService,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary(methodStatus, func(srv any, ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
			return srv.(ControlServer).Status(ctx, req)
		})},
		{MethodName: "SyncNow", Handler: unary(methodSyncNow, func(srv any, ctx context.Context, req *SyncNowRequest) (*SyncNowResponse, error) {
			return srv.(ControlServer).SyncNow(ctx, req)
		})},
		{MethodName: "ListEntries", Handler: unary(methodListEntries, func(srv any, ctx context.Context, req *ListEntriesRequest) (*ListEntriesResponse, error) {
			return srv.(ControlServer).ListEntries(ctx, req)
		})},
		{MethodName: "RecordVisit", Handler: unary(methodRecordVisit, func(srv any, ctx context.Context, req *RecordVisitRequest) (*RecordVisitResponse, error) {
			return srv.(ControlServer).RecordVisit(ctx, req)
		})},
		{MethodName: "DeleteEntry", Handler: unary(methodDeleteEntry, func(srv any, ctx context.Context, req *DeleteEntryRequest) (*DeleteEntryResponse, error) {
			return srv.(ControlServer).DeleteEntry(ctx, req)
		})},
		{MethodName: "AttachContent", Handler: unary(methodAttachContent, func(srv any, ctx context.Context, req *AttachContentRequest) (*AttachContentResponse, error) {
			return srv.(ControlServer).AttachContent(ctx, req)
		})},
		{MethodName: "ListDevices", Handler: unary(methodListDevices, func(srv any, ctx context.Context, req *ListDevicesRequest) (*ListDevicesResponse, error) {
			return srv.(ControlServer).ListDevices(ctx, req)
		})},
		{MethodName: "ListConflicts", Handler: unary(methodListConflicts, func(srv any, ctx context.Context, req *ListConflictsRequest) (*ListConflictsResponse, error) {
			return srv.(ControlServer).ListConflicts(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chroniclesync/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlDesc, srv)
}

// ControlClient calls a daemon's Control service.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) Status(ctx context.Context, req *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, methodStatus, req, opts...)
}

func (c *ControlClient) SyncNow(ctx context.Context, req *SyncNowRequest, opts ...grpc.CallOption) (*SyncNowResponse, error) {
	return invoke[SyncNowResponse](ctx, c.cc, methodSyncNow, req, opts...)
}

func (c *ControlClient) ListEntries(ctx context.Context, req *ListEntriesRequest, opts ...grpc.CallOption) (*ListEntriesResponse, error) {
	return invoke[ListEntriesResponse](ctx, c.cc, methodListEntries, req, opts...)
}

func (c *ControlClient) RecordVisit(ctx context.Context, req *RecordVisitRequest, opts ...grpc.CallOption) (*RecordVisitResponse, error) {
	return invoke[RecordVisitResponse](ctx, c.cc, methodRecordVisit, req, opts...)
}

func (c *ControlClient) DeleteEntry(ctx context.Context, req *DeleteEntryRequest, opts ...grpc.CallOption) (*DeleteEntryResponse, error) {
	return invoke[DeleteEntryResponse](ctx, c.cc, methodDeleteEntry, req, opts...)
}

func (c *ControlClient) AttachContent(ctx context.Context, req *AttachContentRequest, opts ...grpc.CallOption) (*AttachContentResponse, error) {
	return invoke[AttachContentResponse](ctx, c.cc, methodAttachContent, req, opts...)
}

func (c *ControlClient) ListDevices(ctx context.Context, req *ListDevicesRequest, opts ...grpc.CallOption) (*ListDevicesResponse, error) {
	return invoke[ListDevicesResponse](ctx, c.cc, methodListDevices, req, opts...)
}

func (c *ControlClient) ListConflicts(ctx context.Context, req *ListConflictsRequest, opts ...grpc.CallOption) (*ListConflictsResponse, error) {
	return invoke[ListConflictsResponse](ctx, c.cc, methodListConflicts, req, opts...)
}
