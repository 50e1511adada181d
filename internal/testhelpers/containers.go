package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/pkg/database"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error

	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// NewPostgresDB starts (once per run) a PostgreSQL container and returns a
// migrated connection with every table emptied. Skipped with -short.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		var c *postgres.PostgresContainer
		c, pgErr = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("toolflow_test"),
			postgres.WithUsername("toolflow"),
			postgres.WithPassword("toolflow"),
			postgres.BasicWaitStrategies(),
		)
		if pgErr != nil {
			return
		}
		pgDSN, pgErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	if pgErr != nil {
		t.Fatalf("start postgres container: %v", pgErr)
	}

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, pgDSN, database.Options{})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate postgres: %v", err)
	}
	if err := db.Exec("TRUNCATE ai_tool_node_suggestions, workflow_nodes, workflows, users, ai_tools").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewRedisClient starts (once per run) a Redis container and returns a client
// on a flushed database. Skipped with -short.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		var c testcontainers.Container
		c, redisErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if redisErr != nil {
			return
		}
		host, err := c.Host(ctx)
		if err != nil {
			redisErr = err
			return
		}
		port, err := c.MappedPort(ctx, "6379")
		if err != nil {
			redisErr = err
			return
		}
		redisAddr = fmt.Sprintf("%s:%s", host, port.Port())
	})
	if redisErr != nil {
		t.Fatalf("start redis container: %v", redisErr)
	}

	ctx := context.Background()
	client, err := database.NewRedisClient(ctx, redisAddr, "")
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
