package grpc

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FactoryService is the health service name reported for a running factory
const FactoryService = "carfactory.Factory"

// HealthServer exposes the standard gRPC health service for a factory run.
// The factory service reports NOT_SERVING until SetServing(true).
type HealthServer struct {
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
	network  string
	address  string

	stopOnce sync.Once
	errChan  chan error
}

// NewHealthServer listens on address: "host:port" for TCP or "unix:/path" for a
// Unix domain socket readable by the owner only.
func NewHealthServer(address string) (*HealthServer, error) {
	network, addr := splitAddress(address)

	if network == "unix" {
		if err := os.RemoveAll(addr); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	if network == "unix" {
		if err := os.Chmod(addr, 0600); err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}

	hs := health.NewServer()
	hs.SetServingStatus(FactoryService, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &HealthServer{
		listener: listener,
		server:   server,
		health:   hs,
		network:  network,
		address:  addr,
		errChan:  make(chan error, 1),
	}, nil
}

// Addr returns the dialable address, including the unix: prefix for sockets
func (s *HealthServer) Addr() string {
	if s.network == "unix" {
		return "unix:" + s.address
	}
	return s.listener.Addr().String()
}

// Start serves in the background. Serve errors are reported on Err.
func (s *HealthServer) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil {
			s.errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
}

// Err delivers a fatal serve error
func (s *HealthServer) Err() <-chan error { return s.errChan }

// SetServing flips the factory service status
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(FactoryService, status)
}

// Stop marks every service NOT_SERVING and stops gracefully
func (s *HealthServer) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.server.GracefulStop()
		if s.network == "unix" {
			_ = os.Remove(s.address)
		}
	})
}

func splitAddress(address string) (network, addr string) {
	if path, ok := strings.CutPrefix(address, "unix:"); ok {
		return "unix", path
	}
	return "tcp", address
}
