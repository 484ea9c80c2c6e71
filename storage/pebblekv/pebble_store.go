// Package pebblekv implements the kv contract on top of Pebble, CockroachDB's
// LSM engine. It uses the same key layout as the other disk backends:
// records under "c!<name>\x00<key>", collection existence under "m!<name>".
// Snapshots map to pebble.Snapshot, batches to pebble.Batch (committed
// atomically), and Flush to the engine's memtable flush.
package pebblekv

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"

	"github.com/Monia234/colkv/kv"
)

// recordPrefix clips the capacity to the length so that appending a key
// always allocates a fresh array: record keys built from one handle must
// never share a backing array, both because the engine may retain them and
// because concurrent callers build keys from the same prefix.
func recordPrefix(name string) []byte {
	p := []byte("c!" + name + "\x00")
	return p[:len(p):len(p)]
}

func metaKey(name string) []byte {
	return []byte("m!" + name)
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("pebblekv: invalid collection name %q", name)
	}
	return nil
}

// collection is the concrete CollectionHandle minted by this backend.
type collection struct {
	store  *Store
	name   string
	prefix []byte
}

// Options configures a Store. The zero value is usable.
type Options struct {
	// SyncWrites forces WAL fsync on every commit and single put.
	SyncWrites bool
	// CacheSize is the block cache capacity in bytes (0 = engine default).
	CacheSize int64
	Logger    *logrus.Logger
}

// Store implements kv.DB using Pebble.
type Store struct {
	db     *pebble.DB
	path   string
	sync   bool
	logger *logrus.Logger

	mu      sync.RWMutex
	handles map[string]*collection
}

// New opens (creating if necessary) a Pebble-backed store at path.
func New(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	pebbleOpts := &pebble.Options{
		Logger: &pebbleLogger{logger: opts.Logger},
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open: %w", err)
	}

	opts.Logger.WithField("path", path).Info("pebble store opened")

	return &Store{
		db:      db,
		path:    path,
		sync:    opts.SyncWrites,
		logger:  opts.Logger,
		handles: make(map[string]*collection),
	}, nil
}

func (s *Store) writeOpt() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// handle validates that coll was minted by this store.
func (s *Store) handle(coll kv.CollectionHandle) (*collection, error) {
	c, ok := coll.(*collection)
	if !ok || c.store != s {
		return nil, kv.ErrInvalidHandle
	}
	return c, nil
}

// has reports whether key exists, without retaining the value.
func (s *Store) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Collection resolves a name to its handle, or returns kv.ErrNotFound.
func (s *Store) Collection(name string) (kv.CollectionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	if c, ok := s.handles[name]; ok {
		return c, nil
	}

	exists, err := s.has(metaKey(name))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, kv.ErrNotFound
	}

	c := &collection{store: s, name: name, prefix: recordPrefix(name)}
	s.handles[name] = c
	return c, nil
}

// CreateCollection creates a new empty collection, or returns kv.ErrExists.
func (s *Store) CreateCollection(name string) error {
	if err := validName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return kv.ErrClosed
	}

	exists, err := s.has(metaKey(name))
	if err != nil {
		return err
	}
	if exists {
		return kv.ErrExists
	}
	return s.db.Set(metaKey(name), nil, s.writeOpt())
}

// Current returns a point-in-time snapshot of all collections.
func (s *Store) Current() (kv.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return &snapshot{store: s, snap: s.db.NewSnapshot()}, nil
}

// BeginWrites starts a fresh write batch.
func (s *Store) BeginWrites() (kv.WriteBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return &writeBatch{store: s, batch: s.db.NewBatch()}, nil
}

// Get0 reads directly from the live database. The engine buffer is copied
// before its closer is released, so the returned buffer is caller-owned.
func (s *Store) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	c, err := s.handle(coll)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	value, closer, err := s.db.Get(append(c.prefix, key...))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return kv.Data(out), nil
}

// Get copies the looked-up value into an owned byte slice.
func (s *Store) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(s, coll, key)
}

// Iterator iterates the live database directly.
func (s *Store) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	c, err := s.handle(coll)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	iter, err := s.db.NewIter(collBounds(c, start))
	if err != nil {
		return nil, fmt.Errorf("pebblekv: iterator: %w", err)
	}
	return newIterator(iter, len(c.prefix))
}

// Put writes one record directly.
func (s *Store) Put(coll kv.CollectionHandle, key, value []byte) error {
	c, err := s.handle(coll)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return kv.ErrClosed
	}
	return s.db.Set(append(c.prefix, key...), value, s.writeOpt())
}

// Flush blocks until the memtable is written out to stable storage.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return kv.ErrClosed
	}
	return s.db.Flush()
}

// Close releases all database resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return kv.ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	s.logger.WithField("path", s.path).Info("pebble store closed")
	return err
}

// collBounds bounds an iterator to one collection. The prefix ends with the
// 0x00 separator, so bumping it to 0x01 gives the exclusive upper bound.
func collBounds(c *collection, start []byte) *pebble.IterOptions {
	upper := append([]byte(nil), c.prefix...)
	upper[len(upper)-1] = 0x01

	lower := c.prefix
	if len(start) > 0 {
		lower = append(append([]byte(nil), c.prefix...), start...)
	}
	return &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
}

// snapshot reads from a fixed Pebble snapshot.
type snapshot struct {
	store *Store
	snap  *pebble.Snapshot

	mu     sync.Mutex
	closed bool
}

func (sn *snapshot) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}
	value, closer, err := sn.snap.Get(append(c.prefix, key...))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return kv.Data(out), nil
}

func (sn *snapshot) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(sn, coll, key)
}

func (sn *snapshot) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}
	iter, err := sn.snap.NewIter(collBounds(c, start))
	if err != nil {
		return nil, fmt.Errorf("pebblekv: iterator: %w", err)
	}
	return newIterator(iter, len(c.prefix))
}

func (sn *snapshot) Close() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if sn.closed {
		return nil
	}
	sn.closed = true
	return sn.snap.Close()
}

// writeBatch stages puts into a pebble.Batch, committed atomically.
type writeBatch struct {
	store     *Store
	batch     *pebble.Batch
	committed bool
	closed    bool
}

func (b *writeBatch) Put(coll kv.CollectionHandle, key, value []byte) error {
	if b.committed {
		return kv.ErrBatchCommitted
	}
	if b.closed {
		return kv.ErrClosed
	}
	c, err := b.store.handle(coll)
	if err != nil {
		return err
	}
	return b.batch.Set(append(c.prefix, key...), value, nil)
}

func (b *writeBatch) Commit() error {
	if b.committed {
		return kv.ErrBatchCommitted
	}
	if b.closed {
		return kv.ErrClosed
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()

	if b.store.db == nil {
		return kv.ErrClosed
	}
	if err := b.batch.Commit(b.store.writeOpt()); err != nil {
		return fmt.Errorf("pebblekv: batch commit: %w", err)
	}
	b.committed = true
	return nil
}

func (b *writeBatch) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.batch.Close()
}

// pebbleLogger adapts logrus to Pebble's logger interface.
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("pebble: "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("pebble: "+format, args...)
}
