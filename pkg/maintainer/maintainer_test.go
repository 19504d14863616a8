package maintainer

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/contoken"
	"github.com/s3lite/s3lite/pkg/pragma"
	"github.com/s3lite/s3lite/pkg/sqlpool"
)

// fakeRegistry implements the registry interface over an in-memory set of
// pools, so maintainer tests don't need a real bucket registry.
type fakeRegistry struct {
	pools map[string]*sqlpool.Pool
}

func (f *fakeRegistry) Each(fn func(name string, pool *sqlpool.Pool)) {
	for name, pool := range f.pools {
		fn(name, pool)
	}
}

func TestMaintainer_RunTicksBucketsUntilCanceled(t *testing.T) {
	dir := t.TempDir()
	pool, err := sqlpool.Open(context.Background(), sqlpool.Config{
		Bucket:  "b1",
		Path:    dir + "/b1.sqlite3",
		Profile: pragma.Default(),
		Readers: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, pool.Write(context.Background(), func(conn *sql.Conn) error { return nil }))

	reg := &fakeRegistry{pools: map[string]*sqlpool.Pool{"b1": pool}}
	tokens := contoken.New(nil)
	tokens.Put([]bucket.ListEntry{{Key: "a"}})
	require.Equal(t, 1, tokens.Len())

	m := New(reg, tokens, nil, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	assert.Equal(t, 1, tokens.Len())
}

func TestMaintainer_TickKeepsUnexpiredTokens(t *testing.T) {
	reg := &fakeRegistry{pools: map[string]*sqlpool.Pool{}}
	tokens := contoken.New(nil)
	token := tokens.Put([]bucket.ListEntry{{Key: "a"}})

	m := New(reg, tokens, nil)
	m.tick(context.Background())
	assert.Equal(t, 1, tokens.Len())

	_, _, found := tokens.Take(token, 1)
	assert.True(t, found)
}
