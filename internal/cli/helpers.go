package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/matheus3301/chronsync/internal/profile"
	"github.com/matheus3301/chronsync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Control is the daemon API used by the commands. *rpc.ControlClient
// satisfies it.
type Control interface {
	Status(ctx context.Context, req *rpc.StatusRequest, opts ...grpc.CallOption) (*rpc.StatusResponse, error)
	SyncNow(ctx context.Context, req *rpc.SyncNowRequest, opts ...grpc.CallOption) (*rpc.SyncNowResponse, error)
	ListEntries(ctx context.Context, req *rpc.ListEntriesRequest, opts ...grpc.CallOption) (*rpc.ListEntriesResponse, error)
	RecordVisit(ctx context.Context, req *rpc.RecordVisitRequest, opts ...grpc.CallOption) (*rpc.RecordVisitResponse, error)
	DeleteEntry(ctx context.Context, req *rpc.DeleteEntryRequest, opts ...grpc.CallOption) (*rpc.DeleteEntryResponse, error)
	AttachContent(ctx context.Context, req *rpc.AttachContentRequest, opts ...grpc.CallOption) (*rpc.AttachContentResponse, error)
	ListDevices(ctx context.Context, req *rpc.ListDevicesRequest, opts ...grpc.CallOption) (*rpc.ListDevicesResponse, error)
	ListConflicts(ctx context.Context, req *rpc.ListConflictsRequest, opts ...grpc.CallOption) (*rpc.ListConflictsResponse, error)
}

type dialFunc func(socketPath string) (Control, func() error, error)

// dialSocket connects to the daemon's Unix domain socket.
func dialSocket(socketPath string) (Control, func() error, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial daemon: %w", err)
	}
	return rpc.NewControlClient(conn), conn.Close, nil
}

// base is shared by every command.
type base struct {
	globals *GlobalFlags
	out     io.Writer
	dial    dialFunc
	now     func() time.Time
}

func (b *base) profileName() (string, error) {
	name := profile.Resolve(b.globals.Profile)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withControl dials the profile's daemon and runs fn under the call timeout.
func (b *base) withControl(fn func(ctx context.Context, c Control) error) error {
	name, err := b.profileName()
	if err != nil {
		return err
	}
	c, closeFn, err := b.dial(profile.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = closeFn() }()

	timeout := b.globals.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func (b *base) jsonOut() bool {
	return b.globals != nil && b.globals.JSON
}

func (b *base) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *base) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(b.out, format, args...)
}

func (b *base) outputJSON(v any) error {
	enc := json.NewEncoder(b.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// parseDuration parses a human-friendly duration string like "7d", "24h", "30m".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}

	switch suffix {
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 's':
		return time.Duration(n) * time.Second, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// formatMillis renders a Unix millisecond timestamp in local time.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
