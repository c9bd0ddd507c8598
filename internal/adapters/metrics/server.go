package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the global registry over HTTP
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer binds host:port and prepares the handler for path.
// Port 0 picks a free port (see Addr).
func NewServer(host string, port int, path string) (*Server, error) {
	if Registry == nil {
		return nil, fmt.Errorf("metrics registry is not initialized")
	}
	if path == "" {
		path = "/metrics"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))

	return &Server{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("metrics server stopped: %v\n", err)
		}
	}()
}

// Shutdown stops accepting scrapes and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
