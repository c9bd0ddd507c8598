package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient probes a running factory's health service
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthClient creates a client for address ("host:port" or "unix:/path")
func NewHealthClient(address string) (*HealthClient, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to factory at %s: %w", address, err)
	}

	return &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
	}, nil
}

// Check returns the serving status of service ("" for the server as a whole)
func (c *HealthClient) Check(ctx context.Context, service string) (string, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus().String(), nil
}

// Close closes the gRPC connection
func (c *HealthClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
