// Package sqlpool implements the one-writer/many-readers connection pool
// that fronts a single bucket's SQLite database file.
//
// Each bucket gets its own Pool. A Pool owns exactly one writer connection
// and a configurable number of reader connections, each pinned to its own
// goroutine and OS thread so that SQLite's single-writer discipline and
// per-connection statement caches stay predictable under concurrent load.
// Callers never see a *sql.Conn directly: they submit a closure to Write
// or Read and the pool runs it inside a BEGIN IMMEDIATE (writer) or BEGIN
// DEFERRED (reader) transaction on the pinned connection, returning the
// closure's error.
package sqlpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/pragma"
)

// driverName is the database/sql driver registered by glebarez/go-sqlite.
const driverName = "sqlite"

// RoleWriter and RoleReader label submitted work for metrics and tracing.
const (
	RoleWriter = "writer"
	RoleReader = "reader"
)

// ErrClosed is returned by Write/Read once the pool has been closed.
var ErrClosed = errors.New("sqlpool: pool is closed")

// ErrReadOnly is returned by Write against a pool opened for a read-only bucket.
var ErrReadOnly = errors.New("sqlpool: bucket is read-only")

// defaultQueueSize bounds the writer and reader job channels.
const defaultQueueSize = 100

// defaultReaders is used when Config.Readers is not set.
const defaultReaders = 4

// Config configures a Pool for one bucket database file.
type Config struct {
	// Bucket is the bucket name, used only for logging/metrics labels.
	Bucket string
	// Path is the filesystem path to the bucket's .sqlite3 file.
	Path string
	// Profile is the effective pragma profile applied to every connection.
	Profile pragma.Profile
	// Readers is the number of reader worker goroutines. Defaults to 4.
	Readers int
	// QueueSize bounds the writer and reader submission channels. Defaults to 100.
	QueueSize int
	// Metrics receives pool instrumentation. May be nil.
	Metrics metrics.S3Metrics
}

type job struct {
	ctx   context.Context
	fn    func(*sql.Conn) error
	reply chan error
}

// Pool is a one-writer/many-readers connection pool for a single bucket
// database file.
type Pool struct {
	bucket  string
	db      *sql.DB
	metrics metrics.S3Metrics

	writerConn *sql.Conn
	writeJobs  chan job

	readerConns []*sql.Conn
	readJobs    chan job

	readOnly bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open opens the bucket database at cfg.Path, applies cfg.Profile to every
// connection, and starts the writer and reader worker goroutines.
//
// The returned Pool must be closed with Close when no longer needed.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Readers <= 0 {
		cfg.Readers = defaultReaders
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("sqlpool: %w", err)
	}

	// One reader is enough to serve a read-only bucket; no writer is opened.
	readers := cfg.Readers
	if cfg.Profile.ReadOnly && readers < 1 {
		readers = 1
	}

	db, err := sql.Open(driverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlpool: open %s: %w", cfg.Path, err)
	}
	// The pool manages its own fixed set of long-lived connections; the
	// database/sql pool itself must not recycle or limit them.
	db.SetMaxOpenConns(0)
	db.SetMaxIdleConns(1 + readers)
	db.SetConnMaxLifetime(0)

	p := &Pool{
		bucket:   cfg.Bucket,
		db:       db,
		metrics:  cfg.Metrics,
		readOnly: cfg.Profile.ReadOnly,
		done:     make(chan struct{}),
	}

	if !cfg.Profile.ReadOnly {
		conn, err := p.openConn(ctx, cfg.Profile)
		if err != nil {
			db.Close()
			return nil, err
		}
		p.writerConn = conn
		p.writeJobs = make(chan job, cfg.QueueSize)
	}

	p.readJobs = make(chan job, cfg.QueueSize)
	for i := 0; i < readers; i++ {
		conn, err := p.openConn(ctx, cfg.Profile)
		if err != nil {
			p.shutdownPartial()
			return nil, err
		}
		p.readerConns = append(p.readerConns, conn)
	}

	if p.writerConn != nil {
		p.wg.Add(1)
		go p.workerLoop(p.writerConn, p.writeJobs, RoleWriter, beginImmediate)
	}
	for _, conn := range p.readerConns {
		p.wg.Add(1)
		go p.workerLoop(conn, p.readJobs, RoleReader, beginDeferred)
	}

	logger.Info("sqlpool opened",
		logger.Bucket(cfg.Bucket),
		"path", cfg.Path,
		"readers", readers,
		"readOnly", cfg.Profile.ReadOnly,
	)

	return p, nil
}

func (p *Pool) openConn(ctx context.Context, profile pragma.Profile) (*sql.Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlpool: acquire connection: %w", err)
	}
	for _, stmt := range profile.Script() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlpool: apply pragma %q: %w", stmt, err)
		}
	}
	return conn, nil
}

// shutdownPartial closes whatever connections were already opened when Open
// fails partway through.
func (p *Pool) shutdownPartial() {
	if p.writerConn != nil {
		p.writerConn.Close()
	}
	for _, conn := range p.readerConns {
		conn.Close()
	}
	p.db.Close()
}

const (
	beginImmediate = "BEGIN IMMEDIATE"
	beginDeferred  = "BEGIN DEFERRED"
)

func (p *Pool) workerLoop(conn *sql.Conn, jobs chan job, role, beginMode string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer p.wg.Done()

	for {
		select {
		case j := <-jobs:
			j.reply <- p.runTx(j.ctx, conn, beginMode, j.fn)
		case <-p.done:
			return
		}
	}
}

// runTx runs fn inside a transaction on conn, recovering from panics so a
// single bad closure cannot take down the worker goroutine.
func (p *Pool) runTx(ctx context.Context, conn *sql.Conn, beginMode string, fn func(*sql.Conn) error) (err error) {
	if _, err = conn.ExecContext(ctx, beginMode); err != nil {
		return fmt.Errorf("sqlpool: %s: %w", beginMode, err)
	}

	defer func() {
		if r := recover(); r != nil {
			conn.ExecContext(context.Background(), "ROLLBACK")
			err = fmt.Errorf("sqlpool: panic in pool job: %v", r)
		}
	}()

	if err = fn(conn); err != nil {
		if _, rerr := conn.ExecContext(context.Background(), "ROLLBACK"); rerr != nil {
			logger.Warn("sqlpool rollback failed", logger.Err(rerr))
		}
		return err
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("sqlpool: commit: %w", err)
	}
	return nil
}

// Write submits fn to run inside a BEGIN IMMEDIATE transaction on the
// pool's dedicated writer connection, blocking until it completes.
//
// Write returns ErrClosed if the pool is closed, and the pool's own
// read-only error if the pool was opened for a read-only bucket.
func (p *Pool) Write(ctx context.Context, fn func(*sql.Conn) error) error {
	if p.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, p.bucket)
	}
	return p.submit(ctx, p.writeJobs, RoleWriter, fn)
}

// Read submits fn to run inside a BEGIN DEFERRED transaction on one of the
// pool's reader connections, blocking until it completes.
func (p *Pool) Read(ctx context.Context, fn func(*sql.Conn) error) error {
	return p.submit(ctx, p.readJobs, RoleReader, fn)
}

func (p *Pool) submit(ctx context.Context, jobs chan job, role string, fn func(*sql.Conn) error) error {
	start := time.Now()
	reply := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, reply: reply}

	select {
	case jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}

	metrics.ObservePoolSubmit(p.metrics, p.bucket, role, time.Since(start))

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// WriteQueueDepth returns the current number of queued writer jobs.
func (p *Pool) WriteQueueDepth() int {
	if p.writeJobs == nil {
		return 0
	}
	return len(p.writeJobs)
}

// ReadQueueDepth returns the current number of queued reader jobs.
func (p *Pool) ReadQueueDepth() int {
	return len(p.readJobs)
}

// ReportQueueDepth publishes the current writer and reader queue depths to
// metrics. Intended to be called periodically by the background maintainer.
func (p *Pool) ReportQueueDepth() {
	if !p.readOnly {
		metrics.RecordQueueDepth(p.metrics, p.bucket, RoleWriter, p.WriteQueueDepth())
	}
	metrics.RecordQueueDepth(p.metrics, p.bucket, RoleReader, p.ReadQueueDepth())
}

// Checkpoint runs a WAL checkpoint on the writer connection. It is a no-op
// for read-only pools, which have no writer connection to checkpoint from.
func (p *Pool) Checkpoint(ctx context.Context, mode string) error {
	if p.readOnly {
		return nil
	}
	return p.Write(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s);", mode))
		return err
	})
}

// IncrementalVacuum runs PRAGMA incremental_vacuum on the writer connection.
func (p *Pool) IncrementalVacuum(ctx context.Context, pages int) error {
	if p.readOnly {
		return nil
	}
	return p.Write(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA incremental_vacuum(%d);", pages))
		return err
	})
}

// Close stops the worker goroutines and releases every connection. Close is
// idempotent and safe to call concurrently with in-flight Write/Read calls,
// which will observe ErrClosed.
func (p *Pool) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()

		if p.writerConn != nil {
			if !p.readOnly {
				if _, err := p.writerConn.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
					logger.Warn("wal checkpoint on close failed", logger.Bucket(p.bucket), "error", err)
				}
			}
			if err := p.writerConn.Close(); err != nil {
				closeErr = err
			}
		}
		for _, conn := range p.readerConns {
			if err := conn.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
		if err := p.db.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		logger.Info("sqlpool closed", logger.Bucket(p.bucket))
	})
	return closeErr
}
