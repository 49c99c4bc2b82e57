package e2e_harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal/transport"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16"
	rustfsImage   = "rustfs/rustfs:latest"
	readyTimeout  = 30 * time.Second
)

// TestHarness starts the containers behind the end-to-end tests and builds
// transports on top of them. Stop releases everything it started.
type TestHarness struct {
	containers []testcontainers.Container
	pools      []*pgxpool.Pool
}

// start runs image with one exposed port and returns its host:port endpoint.
func (h *TestHarness) start(ctx context.Context, image, port string, env map[string]string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			Env:          env,
			WaitingFor:   wait.ForExposedPort().WithStartupTimeout(readyTimeout),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start %s: %w", image, err)
	}
	h.containers = append(h.containers, container)

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		return "", fmt.Errorf("endpoint of %s: %w", image, err)
	}
	return endpoint, nil
}

// StartPostgres runs Postgres and returns a transport with its table in place.
// The pool comes from transport.NewPostgresPool, retried until the server
// accepts connections.
func (h *TestHarness) StartPostgres(ctx context.Context) (*transport.Postgres, error) {
	endpoint, err := h.start(ctx, postgresImage, "5432/tcp", map[string]string{
		"POSTGRES_PASSWORD": "password",
		"POSTGRES_USER":     "postgres",
		"POSTGRES_DB":       "postgres",
	})
	if err != nil {
		return nil, err
	}
	host, rawPort, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return nil, err
	}

	cfg := formedit.DefaultConfig().Transport.Postgres
	cfg.Host = host
	cfg.Port = port
	cfg.Database = "postgres"
	cfg.Username = "postgres"
	cfg.Password = "password"
	cfg.SSLMode = "disable"

	// the listening port opens before initdb finishes
	deadline := time.Now().Add(readyTimeout)
	var pool *pgxpool.Pool
	for {
		pool, err = transport.NewPostgresPool(ctx, cfg)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(250 * time.Millisecond)
	}
	h.pools = append(h.pools, pool)

	pg := transport.NewPostgres(pool, cfg.Table)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

// StartS3 runs an S3-compatible store and returns a transport writing to S3Bucket.
func (h *TestHarness) StartS3(ctx context.Context) (*transport.S3, error) {
	endpoint, err := h.start(ctx, rustfsImage, "9000/tcp", map[string]string{
		"RUSTFS_ACCESS_KEY": S3AccessKey,
		"RUSTFS_SECRET_KEY": S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return NewS3Transport(ctx, "http://"+endpoint)
}

// Stop closes the pools and terminates the containers, newest first.
func (h *TestHarness) Stop(ctx context.Context) error {
	for _, pool := range h.pools {
		pool.Close()
	}
	h.pools = nil

	var errs []error
	for i := len(h.containers) - 1; i >= 0; i-- {
		if err := h.containers[i].Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.containers = nil
	return errors.Join(errs...)
}
