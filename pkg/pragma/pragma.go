// Package pragma resolves the per-database tuning knobs applied to every
// connection opened against a bucket's SQLite file.
package pragma

import (
	"fmt"
	"strings"

	"github.com/s3lite/s3lite/internal/bytesize"
)

// JournalMode enumerates the supported SQLite journal modes.
type JournalMode string

const (
	JournalDelete   JournalMode = "DELETE"
	JournalTruncate JournalMode = "TRUNCATE"
	JournalPersist  JournalMode = "PERSIST"
	JournalMemory   JournalMode = "MEMORY"
	JournalWAL      JournalMode = "WAL"
	JournalOff      JournalMode = "OFF"
)

// Synchronous enumerates the supported SQLite synchronous levels.
type Synchronous string

const (
	SyncOff    Synchronous = "OFF"
	SyncNormal Synchronous = "NORMAL"
	SyncFull   Synchronous = "FULL"
	SyncExtra  Synchronous = "EXTRA"
)

// TempStore enumerates the supported SQLite temp-store locations.
type TempStore string

const (
	TempDefault TempStore = "DEFAULT"
	TempFile    TempStore = "FILE"
	TempMemory  TempStore = "MEMORY"
)

// Defaults per the pragma profile specification.
const (
	DefaultJournalMode = JournalWAL
	DefaultSynchronous = SyncNormal
	DefaultTempStore   = TempMemory
	DefaultCacheSize   = bytesize.ByteSize(65536 * bytesize.KiB)
)

// Profile holds the enumerated tuning knobs for one database.
type Profile struct {
	JournalMode JournalMode        `mapstructure:"journal_mode" yaml:"journal_mode"`
	Synchronous Synchronous        `mapstructure:"synchronous" yaml:"synchronous"`
	TempStore   TempStore          `mapstructure:"temp_store" yaml:"temp_store"`
	CacheSize   bytesize.ByteSize  `mapstructure:"cache_size" yaml:"cache_size"`
	ReadOnly    bool               `mapstructure:"read_only" yaml:"read_only"`
}

// Override holds the same fields as Profile, all optional, used for
// per-bucket overlays over the global default.
type Override struct {
	JournalMode *JournalMode       `mapstructure:"journal_mode" yaml:"journal_mode,omitempty"`
	Synchronous *Synchronous       `mapstructure:"synchronous" yaml:"synchronous,omitempty"`
	TempStore   *TempStore         `mapstructure:"temp_store" yaml:"temp_store,omitempty"`
	CacheSize   *bytesize.ByteSize `mapstructure:"cache_size" yaml:"cache_size,omitempty"`
	ReadOnly    *bool              `mapstructure:"read_only" yaml:"read_only,omitempty"`
}

// Default returns the global pragma default profile.
func Default() Profile {
	return Profile{
		JournalMode: DefaultJournalMode,
		Synchronous: DefaultSynchronous,
		TempStore:   DefaultTempStore,
		CacheSize:   DefaultCacheSize,
		ReadOnly:    false,
	}
}

// Resolve overlays an optional per-bucket override onto a base profile,
// returning the effective profile for one bucket.
func Resolve(base Profile, override *Override) Profile {
	effective := base
	if override == nil {
		return effective
	}
	if override.JournalMode != nil {
		effective.JournalMode = *override.JournalMode
	}
	if override.Synchronous != nil {
		effective.Synchronous = *override.Synchronous
	}
	if override.TempStore != nil {
		effective.TempStore = *override.TempStore
	}
	if override.CacheSize != nil {
		effective.CacheSize = *override.CacheSize
	}
	if override.ReadOnly != nil {
		effective.ReadOnly = *override.ReadOnly
	}
	return effective
}

// Validate checks that every enumerated field holds a recognized value.
func (p Profile) Validate() error {
	switch p.JournalMode {
	case JournalDelete, JournalTruncate, JournalPersist, JournalMemory, JournalWAL, JournalOff:
	default:
		return fmt.Errorf("pragma: invalid journal_mode %q", p.JournalMode)
	}
	switch p.Synchronous {
	case SyncOff, SyncNormal, SyncFull, SyncExtra:
	default:
		return fmt.Errorf("pragma: invalid synchronous %q", p.Synchronous)
	}
	switch p.TempStore {
	case TempDefault, TempFile, TempMemory:
	default:
		return fmt.Errorf("pragma: invalid temp_store %q", p.TempStore)
	}
	return nil
}

// cacheSizeKiB renders cache_size as the negative-KiB pragma value SQLite
// expects ("a negative value N means use approximately N KiB of memory").
func (p Profile) cacheSizeKiB() int64 {
	kib := int64(p.CacheSize.Uint64() / uint64(bytesize.KiB))
	if kib <= 0 {
		return 0
	}
	return -kib
}

// Script renders the full sequence of PRAGMA statements applied to a new
// connection before it is handed to a worker. foreign_keys and
// auto_vacuum are always forced on, regardless of profile.
func (p Profile) Script() []string {
	stmts := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s;", p.JournalMode),
		fmt.Sprintf("PRAGMA synchronous=%s;", p.Synchronous),
		fmt.Sprintf("PRAGMA temp_store=%s;", p.TempStore),
		fmt.Sprintf("PRAGMA cache_size=%d;", p.cacheSizeKiB()),
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}
	if p.ReadOnly {
		stmts = append(stmts, "PRAGMA query_only=ON;")
	}
	return stmts
}

// ScriptString renders Script as a single newline-joined string, useful
// for logging the effective pragma profile applied to a bucket.
func (p Profile) ScriptString() string {
	return strings.Join(p.Script(), "\n")
}
