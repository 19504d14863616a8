// Package registry implements the Bucket Registry: the process-wide
// mapping from bucket name to its dedicated sqlpool.Pool, backed by one
// *.sqlite3 file per bucket underneath a virtual root directory.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/pragma"
	"github.com/s3lite/s3lite/pkg/sqlpool"
)

// bucketFileExt is the required suffix of every bucket database file.
const bucketFileExt = ".sqlite3"

// ErrReadOnly is returned by CreateBucket/DeleteBucket when the process is
// running in global read-only mode.
var ErrReadOnly = sqlpool.ErrReadOnly

// ErrNotFound is returned when a named bucket is not registered.
var ErrNotFound = errors.New("registry: bucket not found")

// ErrAlreadyExists is returned by CreateBucket when the name is already
// registered or its file already exists on disk.
var ErrAlreadyExists = errors.New("registry: bucket already exists")

// ErrInvalidName is returned when a bucket name cannot be safely resolved
// as a single path segment under the virtual root.
var ErrInvalidName = errors.New("registry: invalid bucket name")

// BucketOptions carries the optional per-bucket overrides from the
// `buckets` config section (§6): a read_only override folded into the
// pragma override, plus the raw pragma knobs for that bucket.
type BucketOptions struct {
	Pragma *pragma.Override
}

// Options configures Open.
type Options struct {
	// Root is the virtual root directory scanned for *.sqlite3 files.
	Root string
	// GlobalProfile is the default pragma profile (the global `sqlite`
	// defaults). Open overlays the process-wide ReadOnly flag onto it.
	GlobalProfile pragma.Profile
	// ReadOnly is the process-wide read_only flag (§6). It gates
	// CreateBucket/DeleteBucket regardless of any per-bucket override.
	ReadOnly bool
	// Readers is the per-pool reader worker count (concurrency_limit, §6).
	Readers int
	// Buckets carries the declared per-bucket config section; every key
	// must correspond to a discovered *.sqlite3 file at Open time.
	Buckets map[string]BucketOptions
	// Metrics receives registry/pool instrumentation. May be nil.
	Metrics metrics.S3Metrics
}

// Registry maps bucket name to its Pool. Reads (lookups) vastly dominate
// writes (CreateBucket/DeleteBucket), so it is guarded by an RWMutex.
type Registry struct {
	mu        sync.RWMutex
	root      string
	profile   pragma.Profile
	readOnly  bool
	readers   int
	overrides map[string]BucketOptions
	metrics   metrics.S3Metrics
	pools     map[string]*sqlpool.Pool
}

// resolveName treats name as a single path segment and rejects anything
// that could escape the virtual root once joined: empty names, names
// containing a path separator (not just literal ".."), and names that are
// "." or "..".
func resolveName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty bucket name", ErrInvalidName)
	}
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.root, name+bucketFileExt)
}

// Open scans opts.Root for *.sqlite3 files, opens a Pool per discovered
// bucket, runs the one-time bucket-open script on each, and validates that
// every name in opts.Buckets corresponds to a discovered file.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve root %q: %w", opts.Root, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create root %q: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("registry: read root %q: %w", root, err)
	}

	profile := opts.GlobalProfile
	if opts.ReadOnly {
		// The process-wide read_only flag overrides the pool profile too,
		// not just CreateBucket/DeleteBucket: every pool must open
		// query_only so mutating writes fail with ErrReadOnly rather than
		// merely being blocked at the registry's create/delete surface.
		profile.ReadOnly = true
	}

	r := &Registry{
		root:      root,
		profile:   profile,
		readOnly:  opts.ReadOnly,
		readers:   opts.Readers,
		overrides: opts.Buckets,
		metrics:   opts.Metrics,
		pools:     make(map[string]*sqlpool.Pool),
	}
	if r.overrides == nil {
		r.overrides = make(map[string]BucketOptions)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), bucketFileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), bucketFileExt))
	}
	sort.Strings(names)

	var missing []string
	for configured := range opts.Buckets {
		found := false
		for _, n := range names {
			if n == configured {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, configured)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("registry: configured buckets missing on disk: %s", strings.Join(missing, ", "))
	}

	for _, name := range names {
		if err := r.openExisting(ctx, name); err != nil {
			r.closeAll()
			return nil, fmt.Errorf("registry: open bucket %q: %w", name, err)
		}
	}

	logger.Info("bucket registry opened", "count", len(names), "root", root)
	metrics.RecordBucketCount(r.metrics, len(r.pools))
	return r, nil
}

// effectiveProfile resolves the pragma profile for name: global default
// overlaid by the per-bucket override, if any.
func (r *Registry) effectiveProfile(name string) pragma.Profile {
	if o, ok := r.overrides[name]; ok {
		return pragma.Resolve(r.profile, o.Pragma)
	}
	return r.profile
}

func (r *Registry) openExisting(ctx context.Context, name string) error {
	profile := r.effectiveProfile(name)
	pool, err := sqlpool.Open(ctx, sqlpool.Config{
		Bucket:  name,
		Path:    r.pathFor(name),
		Profile: profile,
		Readers: r.readers,
		Metrics: r.metrics,
	})
	if err != nil {
		return err
	}

	if err := runBucketOpenScript(ctx, pool, profile.ReadOnly); err != nil {
		pool.Close()
		return err
	}
	if !profile.ReadOnly {
		logger.Debug("bucket open script applied", logger.Bucket(name))
	}

	r.pools[name] = pool
	return nil
}

// runBucketOpenScript runs the one-time bucket-open script (§4.4):
// PRAGMA analysis_limit=1000; PRAGMA optimize; plus sweeping multipart
// uploads abandoned for more than an hour. It is idempotent and a no-op
// for read-only buckets, which accept no writer.
func runBucketOpenScript(ctx context.Context, pool *sqlpool.Pool, readOnly bool) error {
	if readOnly {
		return nil
	}
	before := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	return pool.Write(ctx, func(conn *sql.Conn) error {
		if err := bucket.CreateSchema(ctx, conn); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, "PRAGMA analysis_limit=1000;"); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			return err
		}
		return bucket.DeleteExpiredMultipart(ctx, conn, before)
	})
}

// Get returns the pool for name, or ErrNotFound.
func (r *Registry) Get(name string) (*sqlpool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pools[name]
	return ok
}

// List returns every registered bucket name, ascending.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered buckets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// CreateBucket creates a new bucket database file named name and registers
// it. It fails with ErrReadOnly if the process is running read-only, with
// ErrInvalidName if name cannot be safely resolved, and with
// ErrAlreadyExists if the name is registered or its file already exists.
func (r *Registry) CreateBucket(ctx context.Context, name string) error {
	if r.readOnly {
		return ErrReadOnly
	}
	name, err := resolveName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[name]; ok {
		return ErrAlreadyExists
	}
	path := r.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("registry: stat %q: %w", path, err)
	}

	profile := r.profile
	pool, err := sqlpool.Open(ctx, sqlpool.Config{
		Bucket:  name,
		Path:    path,
		Profile: profile,
		Readers: r.readers,
		Metrics: r.metrics,
	})
	if err != nil {
		return fmt.Errorf("registry: open new bucket %q: %w", name, err)
	}
	if err := pool.Write(ctx, func(conn *sql.Conn) error {
		return bucket.CreateSchema(ctx, conn)
	}); err != nil {
		pool.Close()
		os.Remove(path)
		return fmt.Errorf("registry: create schema for %q: %w", name, err)
	}

	r.pools[name] = pool
	logger.Info("bucket created", logger.Bucket(name))
	metrics.RecordBucketCount(r.metrics, len(r.pools))
	return nil
}

// DeleteBucket closes and removes name's database file (plus its -wal and
// -shm sidecars, best-effort) and deregisters it. It fails with
// ErrReadOnly if the process is running read-only and ErrNotFound if name
// is not registered.
func (r *Registry) DeleteBucket(ctx context.Context, name string) error {
	if r.readOnly {
		return ErrReadOnly
	}
	name, err := resolveName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[name]
	if !ok {
		return ErrNotFound
	}
	if err := pool.Close(); err != nil {
		logger.Warn("error closing pool before bucket delete", logger.Bucket(name), logger.Err(err))
	}

	path := r.pathFor(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("registry: remove %q: %w", path, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}

	delete(r.pools, name)
	logger.Info("bucket deleted", logger.Bucket(name))
	metrics.RecordBucketCount(r.metrics, len(r.pools))
	return nil
}

// Root returns the absolute virtual-root directory.
func (r *Registry) Root() string { return r.root }

// ReadOnly reports the process-wide read-only flag.
func (r *Registry) ReadOnly() bool { return r.readOnly }

// Each calls fn for every registered (name, pool) pair. Intended for the
// background maintainer's periodic sweep.
func (r *Registry) Each(fn func(name string, pool *sqlpool.Pool)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, pool := range r.pools {
		fn(name, pool)
	}
}

func (r *Registry) closeAll() {
	for name, pool := range r.pools {
		if err := pool.Close(); err != nil {
			logger.Warn("error closing pool during registry shutdown", logger.Bucket(name), logger.Err(err))
		}
	}
}

// Close closes every registered pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeAll()
	r.pools = make(map[string]*sqlpool.Pool)
	return nil
}
