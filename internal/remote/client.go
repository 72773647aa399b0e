// Package remote carries sync exchanges over gRPC: Client is the device
// side, Server is the hub side other devices sync against.
package remote

import (
	"context"
	"fmt"

	"github.com/matheus3301/chronsync/internal/apperr"
	"github.com/matheus3301/chronsync/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client talks to a hub's HistorySync service.
type Client struct {
	conn   *grpc.ClientConn
	sync   *rpc.HistorySyncClient
	target string
}

// Dial creates a client for target ("host:port" or any gRPC target). The
// connection is established lazily on the first exchange.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial remote %s: %w", target, err)
	}
	return &Client{
		conn:   conn,
		sync:   rpc.NewHistorySyncClient(conn),
		target: target,
	}, nil
}

// Target returns the address the client was created for.
func (c *Client) Target() string {
	return c.target
}

// Sync performs one exchange, sending clientID as call metadata. Rejections
// of the client id surface as auth errors, everything else as transport
// errors.
func (c *Client) Sync(ctx context.Context, clientID string, req *rpc.SyncRequest) (*rpc.SyncResponse, error) {
	resp, err := c.sync.Sync(rpc.WithClientID(ctx, clientID), req)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return apperr.Auth("remote sync", err)
	default:
		return apperr.Transport("remote sync", err)
	}
}
