package pragma

import (
	"testing"

	"github.com/s3lite/s3lite/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, JournalWAL, p.JournalMode)
	assert.Equal(t, SyncNormal, p.Synchronous)
	assert.Equal(t, TempMemory, p.TempStore)
	assert.Equal(t, bytesize.ByteSize(65536*bytesize.KiB), p.CacheSize)
	assert.False(t, p.ReadOnly)
	require.NoError(t, p.Validate())
}

func TestResolveNilOverride(t *testing.T) {
	base := Default()
	effective := Resolve(base, nil)
	assert.Equal(t, base, effective)
}

func TestResolveOverride(t *testing.T) {
	base := Default()
	readOnly := true
	journal := JournalDelete
	override := &Override{
		ReadOnly:    &readOnly,
		JournalMode: &journal,
	}

	effective := Resolve(base, override)
	assert.True(t, effective.ReadOnly)
	assert.Equal(t, JournalDelete, effective.JournalMode)
	// untouched fields fall through from base
	assert.Equal(t, SyncNormal, effective.Synchronous)
	assert.Equal(t, TempMemory, effective.TempStore)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	p := Default()
	p.JournalMode = "BOGUS"
	assert.Error(t, p.Validate())

	p = Default()
	p.Synchronous = "BOGUS"
	assert.Error(t, p.Validate())

	p = Default()
	p.TempStore = "BOGUS"
	assert.Error(t, p.Validate())
}

func TestScriptAlwaysForcesFixedPragmas(t *testing.T) {
	p := Default()
	script := p.Script()

	assert.Contains(t, script, "PRAGMA foreign_keys=ON;")
	assert.Contains(t, script, "PRAGMA auto_vacuum=INCREMENTAL;")
	assert.Contains(t, script, "PRAGMA journal_mode=WAL;")
	assert.Contains(t, script, "PRAGMA cache_size=-65536;")
	assert.NotContains(t, script, "PRAGMA query_only=ON;")
}

func TestScriptReadOnlyAppendsQueryOnly(t *testing.T) {
	p := Default()
	p.ReadOnly = true
	script := p.Script()

	assert.Contains(t, script, "PRAGMA query_only=ON;")
	assert.Equal(t, "PRAGMA query_only=ON;", script[len(script)-1])
}

func TestScriptStringJoinsWithNewlines(t *testing.T) {
	p := Default()
	s := p.ScriptString()
	assert.Contains(t, s, "\n")
	assert.Contains(t, s, "PRAGMA journal_mode=WAL;")
}

func TestCacheSizeZeroClampsToZero(t *testing.T) {
	p := Default()
	p.CacheSize = 0
	script := p.Script()
	assert.Contains(t, script, "PRAGMA cache_size=0;")
}
