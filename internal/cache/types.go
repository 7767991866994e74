package cache

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the memory cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when a key is not present in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted is returned when a stored record cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrInvalidKey is returned for keys outside the clip namespace
	ErrInvalidKey = errors.New("invalid clip key")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("clip store closed")

	// SkipAll may be returned by a ForEach visitor to stop the walk early.
	// ForEach then returns nil.
	SkipAll = errors.New("skip remaining entries")
)

// Entry describes one stored clip. The payload is read on demand with
// Value.
type Entry struct {
	Key        string
	Size       int64 // payload size in bytes
	StoredSize int64 // bytes on disk, after compression and header
	WrittenAt  time.Time
	Compressed bool

	value func() ([]byte, error)
}

var errValueExpired = errors.New("entry value read outside of ForEach")

// Value returns the decompressed payload of the entry. It must be called
// from within the ForEach visitor that received the entry.
func (e Entry) Value() ([]byte, error) {
	if e.value == nil {
		return nil, errValueExpired
	}
	return e.value()
}

// Stats holds store metrics
type Stats struct {
	Entries      int64
	PayloadBytes int64
	StoredBytes  int64

	// Badger on-disk footprint
	LSMBytes  int64
	VLogBytes int64

	// Memory front
	Memory MemoryStats
}

// MemoryStats holds metrics of the in-memory LRU
type MemoryStats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Config holds configuration for a Store.
type Config struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM, for tests.
	InMemory bool

	// CompressionLevel is the zstd level (1-22). Zero disables compression.
	CompressionLevel int

	// MemoryCapacity is the byte budget of the LRU front. Zero disables it.
	MemoryCapacity int64

	// MemoryItems bounds the number of clips held in memory.
	MemoryItems int

	// GCInterval controls value log garbage collection. Zero disables it.
	GCInterval time.Duration

	Logger *log.Logger
}

// DefaultConfig returns the default store configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		CompressionLevel: 3,
		MemoryCapacity:   32 * 1024 * 1024, // 32MB
		MemoryItems:      256,
		GCInterval:       10 * time.Minute,
	}
}

// Clips is the contract the player and the downloader depend on.
type Clips interface {
	// Put stores blob under key, replacing any previous value atomically.
	Put(key string, blob []byte) error

	// Get returns the payload for key or ErrCacheMiss.
	Get(key string) ([]byte, error)

	// Has reports whether key is present without reading its payload.
	Has(key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Count returns the number of keys starting with prefix.
	Count(prefix string) (int, error)

	// ForEach visits every entry whose key starts with prefix, in key
	// order. Each call starts a fresh walk.
	ForEach(prefix string, fn func(Entry) error) error
}
