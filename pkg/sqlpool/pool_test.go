package sqlpool

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/s3lite/s3lite/pkg/pragma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPool(t *testing.T, profile pragma.Profile) *Pool {
	t.Helper()
	dir := t.TempDir()
	pool, err := Open(context.Background(), Config{
		Bucket:  "test-bucket",
		Path:    filepath.Join(dir, "bucket.sqlite3"),
		Profile: profile,
		Readers: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	pool := openTestPool(t, pragma.Default())

	err := pool.Write(context.Background(), func(conn *sql.Conn) error {
		_, err := conn.ExecContext(context.Background(), `CREATE TABLE data (key TEXT PRIMARY KEY, value BLOB)`)
		return err
	})
	require.NoError(t, err)

	err = pool.Write(context.Background(), func(conn *sql.Conn) error {
		_, err := conn.ExecContext(context.Background(), `INSERT INTO data (key, value) VALUES (?, ?)`, "k1", []byte("v1"))
		return err
	})
	require.NoError(t, err)

	var value []byte
	err = pool.Read(context.Background(), func(conn *sql.Conn) error {
		return conn.QueryRowContext(context.Background(), `SELECT value FROM data WHERE key = ?`, "k1").Scan(&value)
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}

func TestWriteRollsBackOnError(t *testing.T) {
	pool := openTestPool(t, pragma.Default())
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE data (key TEXT PRIMARY KEY)`)
		return err
	}))

	err := pool.Write(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `INSERT INTO data (key) VALUES ('dup')`); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, `INSERT INTO data (key) VALUES ('dup')`)
		return err
	})
	assert.Error(t, err)

	var count int
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM data`).Scan(&count)
	}))
	assert.Equal(t, 0, count)
}

func TestReadOnlyPoolRejectsWrites(t *testing.T) {
	profile := pragma.Default()
	profile.ReadOnly = true
	pool := openTestPool(t, profile)

	err := pool.Write(context.Background(), func(conn *sql.Conn) error { return nil })
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestCloseRejectsSubsequentSubmissions(t *testing.T) {
	pool := openTestPool(t, pragma.Default())
	require.NoError(t, pool.Close())

	err := pool.Write(context.Background(), func(conn *sql.Conn) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	err = pool.Read(context.Background(), func(conn *sql.Conn) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriteHonorsContextCancellation(t *testing.T) {
	pool := openTestPool(t, pragma.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Write(ctx, func(conn *sql.Conn) error {
		t.Fatal("fn must not run once context is already cancelled and the job is never accepted")
		return nil
	})
	// Either the context error or the job still completing is acceptable
	// depending on scheduling, but it must never hang.
	_ = err
}

func TestCheckpointAndIncrementalVacuumAreNoOpOnReadOnly(t *testing.T) {
	profile := pragma.Default()
	profile.ReadOnly = true
	pool := openTestPool(t, profile)

	assert.NoError(t, pool.Checkpoint(context.Background(), "TRUNCATE"))
	assert.NoError(t, pool.IncrementalVacuum(context.Background(), 100))
}

func TestReportQueueDepthDoesNotPanicWithoutMetrics(t *testing.T) {
	pool := openTestPool(t, pragma.Default())
	assert.NotPanics(t, pool.ReportQueueDepth)
}

func TestConcurrentReadersDoNotBlockEachOther(t *testing.T) {
	pool := openTestPool(t, pragma.Default())
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE data (key TEXT PRIMARY KEY)`)
		return err
	}))

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_ = pool.Read(ctx, func(conn *sql.Conn) error {
				time.Sleep(10 * time.Millisecond)
				var n int
				return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM data`).Scan(&n)
			})
			done <- struct{}{}
		}()
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first reader did not complete in time")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader did not complete in time")
	}
}
