package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Store is the durable clip store.
type Store struct {
	db     *badger.DB
	codec  *codec
	memory *memoryCache
	logger *log.Logger

	// fillMu orders memory fills from disk reads against writes and
	// deletes. epoch moves on every write, so a read that started before
	// it never refills the memory front with an older record.
	fillMu sync.Mutex
	epoch  uint64

	// Lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Clips = (*Store)(nil)

// Open opens (or creates) the clip store described by cfg.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	} else if cfg.Dir == "" {
		return nil, errors.New("clip store directory is required")
	}
	opts.Logger = badgerLogger{logger.WithPrefix("badger")}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	// Clips are far larger than the default threshold; keep them in the
	// value log so the LSM tree stays small.
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open clip store: %w", err)
	}

	c, err := newCodec(cfg.CompressionLevel)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		codec:  c,
		logger: logger,
		closed: make(chan struct{}),
	}

	if cfg.MemoryCapacity > 0 {
		s.memory, err = newMemoryCache(cfg.MemoryCapacity, cfg.MemoryItems)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.gcLoop(ctx, cfg.GCInterval)
	}

	return s, nil
}

// Close stops background work and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.codec.close()
		err = s.db.Close()
	})
	return err
}

func (s *Store) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func ioError(op, key string, err error) error {
	return ayah.NewError(ayah.CodeCacheIO, op+" failed", err).WithContext("key", key)
}

func (s *Store) checkKey(key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !IsKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Put stores blob under key. The write is a single transaction so readers
// see either the previous record or the new one.
func (s *Store) Put(key string, blob []byte) error {
	if err := s.checkKey(key); err != nil {
		return ioError("put", key, err)
	}
	if len(blob) == 0 {
		return ioError("put", key, errors.New("empty payload"))
	}

	record := s.codec.encode(blob, time.Now())
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), record))
	})
	if err != nil {
		return ioError("put", key, err)
	}

	if s.memory != nil {
		s.fillMu.Lock()
		s.epoch++
		// too large for memory is fine, the disk copy is authoritative
		_ = s.memory.put(key, blob)
		s.fillMu.Unlock()
	}

	s.logger.Debug("clip stored", "key", key, "size", len(blob), "stored", len(record))
	return nil
}

// Get returns the payload stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, ioError("get", key, err)
	}

	var epoch uint64
	if s.memory != nil {
		if blob, ok := s.memory.get(key); ok {
			return blob, nil
		}
		epoch = s.currentEpoch()
	}

	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			blob, _, decodeErr = s.codec.decode(val)
			return decodeErr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		if errors.Is(err, ErrCacheCorrupted) {
			s.logger.Warn("dropping corrupted clip", "key", key, "err", err)
			_ = s.Delete(key)
		}
		return nil, ioError("get", key, err)
	}

	if s.memory != nil {
		s.fill(key, blob, epoch)
	}
	return blob, nil
}

func (s *Store) currentEpoch() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.epoch
}

// fill caches blob in memory unless a write or delete committed since
// the read started.
func (s *Store) fill(key string, blob []byte, epoch uint64) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.epoch == epoch {
		_ = s.memory.put(key, blob)
	}
}

// evict drops keys from memory once their delete has committed.
func (s *Store) evict(keys ...string) {
	if s.memory == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.epoch++
	for _, k := range keys {
		s.memory.delete(k)
	}
}

// Has reports whether key is stored.
func (s *Store) Has(key string) (bool, error) {
	if err := s.checkKey(key); err != nil {
		return false, ioError("has", key, err)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ioError("has", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if err := s.checkKey(key); err != nil {
		return ioError("delete", key, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return ioError("delete", key, err)
	}
	s.evict(key)
	return nil
}

// Count returns how many keys start with prefix. Only keys are read.
func (s *Store) Count(prefix string) (int, error) {
	if s.isClosed() {
		return 0, ioError("count", prefix, ErrClosed)
	}

	p := []byte(prefix)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, ioError("count", prefix, err)
	}
	return count, nil
}

// ForEach visits entries under prefix in key order. The visitor may return
// SkipAll to stop early; any other error aborts the walk and is returned.
// Entries that cannot be decoded are skipped. Entry.Value reads the payload
// and only works while the visitor runs.
func (s *Store) ForEach(prefix string, fn func(Entry) error) error {
	if s.isClosed() {
		return ioError("iterate", prefix, ErrClosed)
	}

	p := []byte(prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()

			var hdr recordHeader
			err := item.Value(func(val []byte) error {
				var parseErr error
				hdr, parseErr = parseHeader(val)
				return parseErr
			})
			if err != nil {
				s.logger.Debug("skipping unreadable clip", "key", string(item.Key()), "err", err)
				continue
			}

			visiting := true
			entry := Entry{
				Key:        string(item.Key()),
				Size:       hdr.Size,
				StoredSize: item.ValueSize(),
				WrittenAt:  hdr.WrittenAt,
				Compressed: hdr.Compressed,
				value: func() ([]byte, error) {
					if !visiting {
						return nil, errValueExpired
					}
					var blob []byte
					err := item.Value(func(val []byte) error {
						var decodeErr error
						blob, _, decodeErr = s.codec.decode(val)
						return decodeErr
					})
					return blob, err
				},
			}
			err = fn(entry)
			visiting = false
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, SkipAll) {
		return nil
	}
	if err != nil {
		return ioError("iterate", prefix, err)
	}
	return nil
}

// Keys returns the keys under prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.ForEach(prefix, func(e Entry) error {
		keys = append(keys, e.Key)
		return nil
	})
	return keys, err
}

// DeletePrefix removes every key under prefix and returns how many were
// removed.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	if !IsKey(prefix) {
		return 0, ioError("delete prefix", prefix, ErrInvalidKey)
	}

	keys, err := s.Keys(prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete([]byte(k)); err != nil {
			wb.Cancel()
			return 0, ioError("delete prefix", prefix, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, ioError("delete prefix", prefix, err)
	}
	s.evict(keys...)

	s.logger.Info("clips removed", "prefix", prefix, "count", len(keys))
	return len(keys), nil
}

// Stats walks the clip namespace and reports sizes.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.ForEach(KeyPrefix, func(e Entry) error {
		st.Entries++
		st.PayloadBytes += e.Size
		st.StoredBytes += e.StoredSize
		return nil
	})
	if err != nil {
		return st, err
	}
	st.LSMBytes, st.VLogBytes = s.db.Size()
	if s.memory != nil {
		st.Memory = s.memory.stats()
	}
	return st, nil
}

func (s *Store) gcLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rounds := 0
			for s.db.RunValueLogGC(0.5) == nil {
				rounds++
			}
			if rounds > 0 {
				s.logger.Debug("value log gc", "rounds", rounds)
			}
		}
	}
}
