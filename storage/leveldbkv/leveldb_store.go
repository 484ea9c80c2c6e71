// Package leveldbkv implements the kv contract on top of goleveldb.
//
// LevelDB has a single keyspace, so collections are carved out with key
// prefixes: a record (coll, key) is stored under "c!<name>\x00<key>" and the
// existence of a collection under "m!<name>". The fixed prefix preserves
// byte-lexicographic key order within a collection. Collection names must be
// non-empty and must not contain the 0x00 separator.
package leveldbkv

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

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
		return fmt.Errorf("leveldbkv: invalid collection name %q", name)
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
	// SyncWrites forces an fsync on every commit and single put.
	SyncWrites bool
	// CacheSize is the block cache capacity in bytes (0 = engine default).
	CacheSize int
	// WriteBuffer is the memtable size in bytes (0 = engine default).
	WriteBuffer int
	Logger      *logrus.Logger
}

// Store implements kv.DB using LevelDB.
type Store struct {
	db     *leveldb.DB
	path   string
	sync   bool
	logger *logrus.Logger

	mu      sync.RWMutex
	handles map[string]*collection
}

// New opens (creating if necessary) a LevelDB-backed store at path.
func New(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("leveldbkv: create data directory: %w", err)
	}

	options := &opt.Options{
		OpenFilesCacheCapacity: 16,
		Filter:                 filter.NewBloomFilter(10),
	}
	if opts.CacheSize > 0 {
		options.BlockCacheCapacity = opts.CacheSize
	}
	if opts.WriteBuffer > 0 {
		options.WriteBuffer = opts.WriteBuffer
	}

	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		// Attempt recovery of a corrupted database before giving up.
		if ldberrors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, options)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	opts.Logger.WithField("path", path).Info("leveldb store opened")

	return &Store{
		db:      db,
		path:    path,
		sync:    opts.SyncWrites,
		logger:  opts.Logger,
		handles: make(map[string]*collection),
	}, nil
}

func (s *Store) writeOptions() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: s.sync}
}

// handle validates that coll was minted by this store.
func (s *Store) handle(coll kv.CollectionHandle) (*collection, error) {
	c, ok := coll.(*collection)
	if !ok || c.store != s {
		return nil, kv.ErrInvalidHandle
	}
	return c, nil
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

	exists, err := s.db.Has(metaKey(name), nil)
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

	exists, err := s.db.Has(metaKey(name), nil)
	if err != nil {
		return err
	}
	if exists {
		return kv.ErrExists
	}
	return s.db.Put(metaKey(name), nil, s.writeOptions())
}

// Current returns a point-in-time snapshot of all collections.
func (s *Store) Current() (kv.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &snapshot{store: s, snap: snap}, nil
}

// BeginWrites starts a fresh write batch.
func (s *Store) BeginWrites() (kv.WriteBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return &writeBatch{store: s, batch: new(leveldb.Batch)}, nil
}

// Get0 reads directly from the live database, overriding the snapshot-based
// base behavior. goleveldb returns an owned copy, satisfying the
// shared-buffer rule.
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
	value, err := s.db.Get(append(c.prefix, key...), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return kv.Data(value), nil
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
	return newIterator(s.db.NewIterator(collRange(c, start), nil), len(c.prefix))
}

// Put writes one record directly, overriding the one-write-batch base
// behavior.
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
	return s.db.Put(append(c.prefix, key...), value, s.writeOptions())
}

// Flush forces previously committed writes to durable storage by writing an
// empty, synced batch: goleveldb syncs the whole write-ahead log up to it.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return kv.ErrClosed
	}
	return s.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true})
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
	s.logger.WithField("path", s.path).Info("leveldb store closed")
	return err
}

// collRange bounds an iterator to one collection's records, starting at the
// first key >= start. The prefix ends with the 0x00 separator, so bumping it
// to 0x01 gives the exclusive upper bound.
func collRange(c *collection, start []byte) *util.Range {
	limit := append([]byte(nil), c.prefix...)
	limit[len(limit)-1] = 0x01

	from := c.prefix
	if len(start) > 0 {
		from = append(append([]byte(nil), c.prefix...), start...)
	}
	return &util.Range{Start: from, Limit: limit}
}

// snapshot reads from a fixed LevelDB snapshot.
type snapshot struct {
	store *Store
	snap  *leveldb.Snapshot

	mu       sync.Mutex
	released bool
}

func (sn *snapshot) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}
	value, err := sn.snap.Get(append(c.prefix, key...), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return kv.Data(value), nil
}

func (sn *snapshot) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(sn, coll, key)
}

func (sn *snapshot) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}
	return newIterator(sn.snap.NewIterator(collRange(c, start), nil), len(c.prefix))
}

func (sn *snapshot) Close() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if !sn.released {
		sn.snap.Release()
		sn.released = true
	}
	return nil
}

// writeBatch stages puts into a leveldb.Batch, written atomically on Commit.
type writeBatch struct {
	store     *Store
	batch     *leveldb.Batch
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
	b.batch.Put(append(c.prefix, key...), value)
	return nil
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
	if err := b.store.db.Write(b.batch, b.store.writeOptions()); err != nil {
		return fmt.Errorf("leveldbkv: batch commit: %w", err)
	}
	b.committed = true
	return nil
}

func (b *writeBatch) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.batch.Reset()
	return nil
}
