// Package testutil provides the Postgres harness for integration tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/johndosdos/conecta/internal/database"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// DbInit connects to TEST_DB_URL, resets the schema and migrates it up.
// The test is skipped when TEST_DB_URL is not set. The schema is reset
// again and the pool closed when the test ends.
func DbInit(tb testing.TB) *pgxpool.Pool {
	tb.Helper()

	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil {
		tb.Logf("failed to load .env file: %+v", err)
	}

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		tb.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		tb.Fatalf("could not connect to the postgresql database: %v", err)
	}

	if err := database.Reset(ctx, pool); err != nil {
		pool.Close()
		tb.Fatalf("%+v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		tb.Fatalf("%+v", err)
	}

	tb.Cleanup(func() {
		DbCleanup(tb, pool)
	})

	return pool
}

func DbCleanup(tb testing.TB, pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.Reset(ctx, pool); err != nil {
		tb.Errorf("%+v", err)
	}
	pool.Close()
}
