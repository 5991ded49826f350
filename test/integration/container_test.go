package integration

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const postgresImage = "postgres:16-alpine"

// postgresContainer is a throwaway database started through the docker CLI.
type postgresContainer struct {
	id      string
	connStr string
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// dockerAvailable reports whether a docker daemon answers.
func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := docker(ctx, "info", "--format", "{{.ServerVersion}}")
	return err == nil
}

// startPostgres publishes the container's 5432 on an ephemeral loopback port
// and waits until the server accepts queries.
func startPostgres(ctx context.Context) (*postgresContainer, error) {
	id, err := docker(ctx, "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=ed",
		"-e", "POSTGRES_PASSWORD=ed",
		"-e", "POSTGRES_DB=edtest",
		"--label", "ed-integration=1",
		postgresImage,
	)
	if err != nil {
		return nil, err
	}
	pc := &postgresContainer{id: id}

	binding, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		pc.stop()
		return nil, err
	}
	// docker may list an IPv6 binding as well; the first line is enough.
	hostPort, _, _ := strings.Cut(binding, "\n")
	pc.connStr = fmt.Sprintf("postgres://ed:ed@%s/edtest?sslmode=disable", hostPort)

	if err := pc.waitReady(ctx, 30*time.Second); err != nil {
		pc.stop()
		return nil, err
	}
	return pc, nil
}

func (pc *postgresContainer) waitReady(ctx context.Context, within time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, within)
	defer cancel()

	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, pc.connStr)
		if err == nil {
			err = conn.Ping(ctx)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", within, errors.Join(ctx.Err(), lastErr))
		case <-tick.C:
		}
	}
}

func (pc *postgresContainer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	docker(ctx, "rm", "-f", pc.id)
}
