package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/chronsync/internal/api"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/config"
	"github.com/matheus3301/chronsync/internal/profile"
	"github.com/matheus3301/chronsync/internal/remote"
	"github.com/matheus3301/chronsync/internal/rpc"
	"github.com/matheus3301/chronsync/internal/store"
	intsync "github.com/matheus3301/chronsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the control gRPC server for a profile daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the profile's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, control *api.ControlService) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	rpc.RegisterControlServer(srv, control)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// Hub serves the history sync endpoint to other devices over TCP.
type Hub struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewHub listens on server.listen. It returns nil when no address is set.
func NewHub(cfg *config.Profile, db *store.DB, merge *intsync.MergeEngine, c clock.Clock, logger *zap.Logger) (*Hub, error) {
	if cfg.Server.Listen == "" {
		return nil, nil
	}
	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen hub: %w", err)
	}
	srv := remote.NewServer(db, merge, c, logger.Named("hub"))
	return &Hub{
		grpcServer: remote.NewGRPCServer(srv, cfg.Server.ClientIDs),
		listener:   listener,
		logger:     logger,
	}, nil
}

// Addr is the bound listen address.
func (h *Hub) Addr() string {
	return h.listener.Addr().String()
}

func (h *Hub) Start() error {
	h.logger.Info("hub server starting", zap.String("addr", h.Addr()))
	return h.grpcServer.Serve(h.listener)
}

func (h *Hub) Stop(_ context.Context) {
	h.logger.Info("hub server stopping")
	h.grpcServer.GracefulStop()
}
