// Package maintainer runs the periodic background upkeep pass: WAL
// checkpointing and incremental vacuuming of every registered bucket, and
// sweeping expired continuation tokens.
package maintainer

import (
	"context"
	"time"

	"github.com/s3lite/s3lite/internal/logger"
	"github.com/s3lite/s3lite/internal/telemetry"
	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/metrics"
	"github.com/s3lite/s3lite/pkg/sqlpool"
)

// Interval is the default tick period between maintenance passes.
const Interval = 10 * time.Second

// checkpointMode is the WAL checkpoint mode run on every tick. TRUNCATE
// both checkpoints and truncates the WAL file back to zero bytes, keeping
// the bucket's on-disk footprint bounded.
const checkpointMode = "TRUNCATE"

// incrementalVacuumPages bounds how much free-list reclamation happens per
// tick, so a single maintenance pass never blocks a busy writer for long.
const incrementalVacuumPages = 100

// registry is the subset of *registry.Registry the maintainer depends on.
// Declared locally to avoid an import cycle back to pkg/registry.
type registry interface {
	Each(fn func(name string, pool *sqlpool.Pool))
}

// Maintainer periodically checkpoints every bucket and sweeps the
// continuation-token store. It is safe to run exactly one instance per
// process; Run blocks until ctx is canceled.
type Maintainer struct {
	registry registry
	tokens   *contoken.Store
	metrics  metrics.S3Metrics
	interval time.Duration
}

// Option customizes a Maintainer.
type Option func(*Maintainer)

// WithInterval overrides the default tick period. Intended for tests.
func WithInterval(d time.Duration) Option {
	return func(m *Maintainer) { m.interval = d }
}

// New creates a Maintainer over reg and tokens.
func New(reg registry, tokens *contoken.Store, m metrics.S3Metrics, opts ...Option) *Maintainer {
	mt := &Maintainer{
		registry: reg,
		tokens:   tokens,
		metrics:  m,
		interval: Interval,
	}
	for _, opt := range opts {
		opt(mt)
	}
	return mt
}

// Run blocks, ticking every m.interval, until ctx is canceled.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one maintenance pass: checkpoint+vacuum every bucket, then
// sweep expired continuation tokens.
func (m *Maintainer) tick(ctx context.Context) {
	m.registry.Each(func(name string, pool *sqlpool.Pool) {
		m.maintainBucket(ctx, name, pool)
	})

	if m.tokens != nil {
		dropped := m.tokens.Sweep(time.Now())
		if dropped > 0 {
			logger.Debug("swept expired continuation tokens", "dropped", dropped)
		}
	}
}

func (m *Maintainer) maintainBucket(ctx context.Context, name string, pool *sqlpool.Pool) {
	start := time.Now()
	spanCtx, span := telemetry.StartMaintainerSpan(ctx, name)
	defer span.End()

	pool.ReportQueueDepth()

	err := pool.Checkpoint(spanCtx, checkpointMode)
	if err == nil {
		err = pool.IncrementalVacuum(spanCtx, incrementalVacuumPages)
	}

	metrics.RecordMaintainerTick(m.metrics, name, time.Since(start), err)
	if err != nil {
		logger.Warn("maintenance tick failed", logger.Bucket(name), logger.Err(err))
	}
}
