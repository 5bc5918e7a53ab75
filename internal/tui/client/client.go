// Package client dials a session daemon and starts one when none answers.
package client

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/bazaar/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const daemonBinary = "bazaard"

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn    *grpc.ClientConn
	Session *rpc.SessionClient
	Room    *rpc.RoomClient
	Message *rpc.MessageClient
	Health  healthpb.HealthClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		Session: rpc.NewSessionClient(conn),
		Room:    rpc.NewRoomClient(conn),
		Message: rpc.NewMessageClient(conn),
		Health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Probe reports whether the daemon answers its health check.
func (c *Client) Probe(ctx context.Context) bool {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{})
	return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
}

// WaitReady polls the health check until it succeeds or timeout passes.
func (c *Client) WaitReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		ok := c.Probe(ctx)
		cancel()
		if ok {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

// StartDaemon launches bazaard for the session in the background. The
// binary next to the running executable is preferred over $PATH.
func StartDaemon(sessionName string) error {
	bin := daemonBinary
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), daemonBinary)
		if _, err := os.Stat(sibling); err == nil {
			bin = sibling
		}
	}

	cmd := exec.Command(bin, "--session", sessionName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", bin, err)
	}
	return cmd.Process.Release()
}

// Ensure returns a client for a ready daemon, starting one if needed.
func Ensure(sessionName, socketPath string, timeout time.Duration) (*Client, error) {
	c, err := New(socketPath)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if c.Probe(ctx) {
		return c, nil
	}

	if err := StartDaemon(sessionName); err != nil {
		_ = c.Close()
		return nil, err
	}
	if !c.WaitReady(timeout) {
		_ = c.Close()
		return nil, fmt.Errorf("daemon for session %q did not become ready", sessionName)
	}
	return c, nil
}
