// Package testutil starts the backing services that integration tests need.
// Each helper returns an error instead of failing so callers can skip.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

func newPool() (*dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("docker not available: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}
	pool.MaxWait = 2 * time.Minute
	return pool, nil
}

func hostConfig(hc *docker.HostConfig) {
	hc.AutoRemove = true
	hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
}

// Postgres returns the DSN of a ready PostgreSQL server. TEST_DATABASE_URL is
// used as-is when set; otherwise a postgres:16-alpine container is started.
// Packages sharing one TEST_DATABASE_URL must run with -p 1.
func Postgres() (dsn string, cleanup func(), err error) {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn, func() {}, nil
	}

	pool, err := newPool()
	if err != nil {
		return "", nil, err
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=todo",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=todo_test",
		},
	}, hostConfig)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres container: %w", err)
	}
	_ = resource.Expire(300)
	cleanup = func() { _ = pool.Purge(resource) }

	dsn = fmt.Sprintf("postgres://todo:secret@%s/todo_test?sslmode=disable", resource.GetHostPort("5432/tcp"))
	err = pool.Retry(func() error {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("wait for postgres: %w", err)
	}
	return dsn, cleanup, nil
}

// Redis returns the address of a ready Redis server. TEST_REDIS_ADDR is used
// as-is when set; otherwise a redis:7-alpine container is started.
func Redis() (addr string, cleanup func(), err error) {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr, func() {}, nil
	}

	pool, err := newPool()
	if err != nil {
		return "", nil, err
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, hostConfig)
	if err != nil {
		return "", nil, fmt.Errorf("start redis container: %w", err)
	}
	_ = resource.Expire(120)
	cleanup = func() { _ = pool.Purge(resource) }

	addr = resource.GetHostPort("6379/tcp")
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("wait for redis: %w", err)
	}
	return addr, cleanup, nil
}
