// Package badgerkv implements the kv contract on top of BadgerDB v4. It uses
// the same key layout as the other disk backends: records under
// "c!<name>\x00<key>", collection existence under "m!<name>". Snapshots map
// to read-only transactions (fixed read timestamp), batches to update
// transactions (atomic commit; an oversized batch fails before anything is
// applied), and Flush to the engine's Sync.
package badgerkv

import (
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
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
		return fmt.Errorf("badgerkv: invalid collection name %q", name)
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
	Logger     *logrus.Logger
}

// Store implements kv.DB using BadgerDB.
type Store struct {
	db     *badger.DB
	path   string
	logger *logrus.Logger

	mu      sync.RWMutex
	handles map[string]*collection
}

// New opens (creating if necessary) a Badger-backed store at path.
func New(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	badgerOpts := badger.DefaultOptions(path).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open: %w", err)
	}

	opts.Logger.WithField("path", path).Info("badger store opened")

	return &Store{
		db:      db,
		path:    path,
		logger:  opts.Logger,
		handles: make(map[string]*collection),
	}, nil
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

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey(name))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
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
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey(name))
		if err == nil {
			return kv.ErrExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(metaKey(name), nil)
	})
}

// Current returns a point-in-time snapshot: a read-only transaction pinned to
// the current read timestamp. Transactions are not internally synchronized,
// so the snapshot serializes access to it.
func (s *Store) Current() (kv.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return &snapshot{store: s, txn: s.db.NewTransaction(false)}, nil
}

// BeginWrites starts a fresh write batch backed by an update transaction.
func (s *Store) BeginWrites() (kv.WriteBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, kv.ErrClosed
	}
	return &writeBatch{store: s, txn: s.db.NewTransaction(true)}, nil
}

// Get0 reads directly from the live database. ValueCopy hands back an owned
// buffer, satisfying the shared-buffer rule.
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

	var out []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(c.prefix, key...))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return kv.Data(out), nil
}

// Get copies the looked-up value into an owned byte slice.
func (s *Store) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(s, coll, key)
}

// Iterator iterates a fresh read-only transaction whose lifetime is tied to
// the returned iterator.
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
	return newIterator(s.db.NewTransaction(false), c, true, start)
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
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(c.prefix, key...), value)
	})
}

// Flush syncs the value log and LSM tree to durable storage.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return kv.ErrClosed
	}
	return s.db.Sync()
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
	s.logger.WithField("path", s.path).Info("badger store closed")
	return err
}

// snapshot reads from a read-only transaction. Badger transactions are not
// goroutine-safe, so every operation holds the snapshot mutex; the contract
// requires thread-safety, not absence of contention.
type snapshot struct {
	store *Store

	mu     sync.Mutex
	txn    *badger.Txn
	closed bool
}

func (sn *snapshot) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}

	sn.mu.Lock()
	defer sn.mu.Unlock()

	if sn.closed {
		return nil, kv.ErrClosed
	}
	item, err := sn.txn.Get(append(c.prefix, key...))
	if err == badger.ErrKeyNotFound {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out, err := item.ValueCopy(nil)
	if err != nil {
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

	sn.mu.Lock()
	defer sn.mu.Unlock()

	if sn.closed {
		return nil, kv.ErrClosed
	}
	return newIterator(sn.txn, c, false, start)
}

func (sn *snapshot) Close() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if !sn.closed {
		sn.txn.Discard()
		sn.closed = true
	}
	return nil
}

// writeBatch stages puts into an update transaction. Commit is atomic; a
// batch that outgrows the transaction limit fails at Put or Commit with
// nothing applied.
type writeBatch struct {
	store     *Store
	txn       *badger.Txn
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
	if err := b.txn.Set(append(c.prefix, key...), value); err != nil {
		return fmt.Errorf("badgerkv: batch put: %w", err)
	}
	return nil
}

func (b *writeBatch) Commit() error {
	if b.committed {
		return kv.ErrBatchCommitted
	}
	if b.closed {
		return kv.ErrClosed
	}
	if err := b.txn.Commit(); err != nil {
		return fmt.Errorf("badgerkv: batch commit: %w", err)
	}
	b.committed = true
	return nil
}

func (b *writeBatch) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.txn.Discard()
	return nil
}

// badgerLogger adapts logrus to Badger's logger interface.
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("badger: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("badger: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("badger: "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf("badger: "+format, args...)
}
