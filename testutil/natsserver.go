//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NATSImage is the server image started by StartNATSServer
const NATSImage = "nats:2.11.7-alpine"

// NATSServer is a NATS server running in a container for the duration of a test
type NATSServer struct {
	container testcontainers.Container
	URL       string
}

// StartNATSServer starts a NATS container and terminates it when the test ends
func StartNATSServer(t testing.TB) *NATSServer {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        NATSImage,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start NATS container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background()) // Best effort test cleanup
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return &NATSServer{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}
}

// Connect opens a client connection closed when the test ends
func (s *NATSServer) Connect(t testing.TB) *nats.Conn {
	t.Helper()
	conn, err := nats.Connect(s.URL, nats.Timeout(5*time.Second), nats.MaxReconnects(0))
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}
