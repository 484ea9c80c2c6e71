// Package metrics wraps a kv.DB with Prometheus instrumentation: operation
// counters labeled by outcome and latency histograms per operation. The
// wrapper is transparent with respect to the kv contract.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Monia234/colkv/kv"
)

// DB instruments an underlying kv.DB.
type DB struct {
	db kv.DB

	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

// Instrument wraps db and registers its metrics on reg under the colkv
// namespace.
func Instrument(db kv.DB, reg prometheus.Registerer) *DB {
	m := &DB{
		db: db,
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "colkv",
				Subsystem: "db",
				Name:      "operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "status"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "colkv",
				Subsystem: "db",
				Name:      "operation_duration_seconds",
				Help:      "Database operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.opsTotal, m.opDuration)
	return m
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, kv.ErrNotFound):
		return "not_found"
	case errors.Is(err, kv.ErrExists):
		return "exists"
	default:
		return "error"
	}
}

func (m *DB) observe(op string, start time.Time, err error) {
	m.opsTotal.WithLabelValues(op, status(err)).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *DB) Collection(name string) (kv.CollectionHandle, error) {
	start := time.Now()
	coll, err := m.db.Collection(name)
	m.observe("collection", start, err)
	return coll, err
}

func (m *DB) CreateCollection(name string) error {
	start := time.Now()
	err := m.db.CreateCollection(name)
	m.observe("create_collection", start, err)
	return err
}

func (m *DB) Current() (kv.Snapshot, error) {
	start := time.Now()
	snap, err := m.db.Current()
	m.observe("current", start, err)
	if err != nil {
		return nil, err
	}
	return &snapshot{Snapshot: snap, m: m}, nil
}

func (m *DB) BeginWrites() (kv.WriteBatch, error) {
	start := time.Now()
	batch, err := m.db.BeginWrites()
	m.observe("begin_writes", start, err)
	if err != nil {
		return nil, err
	}
	return &writeBatch{WriteBatch: batch, m: m}, nil
}

func (m *DB) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	start := time.Now()
	v, err := m.db.Get0(coll, key)
	m.observe("get0", start, err)
	return v, err
}

func (m *DB) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	start := time.Now()
	v, err := m.db.Get(coll, key)
	m.observe("get", start, err)
	return v, err
}

func (m *DB) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	begin := time.Now()
	it, err := m.db.Iterator(coll, start)
	m.observe("iterator", begin, err)
	return it, err
}

func (m *DB) Put(coll kv.CollectionHandle, key, value []byte) error {
	start := time.Now()
	err := m.db.Put(coll, key, value)
	m.observe("put", start, err)
	return err
}

func (m *DB) Flush() error {
	start := time.Now()
	err := m.db.Flush()
	m.observe("flush", start, err)
	return err
}

func (m *DB) Close() error {
	return m.db.Close()
}

// snapshot forwards reads to the wrapped snapshot, recorded under the
// snapshot_* operations.
type snapshot struct {
	kv.Snapshot
	m *DB
}

func (sn *snapshot) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	start := time.Now()
	v, err := sn.Snapshot.Get0(coll, key)
	sn.m.observe("snapshot_get0", start, err)
	return v, err
}

func (sn *snapshot) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	start := time.Now()
	v, err := sn.Snapshot.Get(coll, key)
	sn.m.observe("snapshot_get", start, err)
	return v, err
}

func (sn *snapshot) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	begin := time.Now()
	it, err := sn.Snapshot.Iterator(coll, start)
	sn.m.observe("snapshot_iterator", begin, err)
	return it, err
}

// writeBatch counts commits; staging stays unobserved to keep Put cheap.
type writeBatch struct {
	kv.WriteBatch
	m *DB
}

func (b *writeBatch) Commit() error {
	start := time.Now()
	err := b.WriteBatch.Commit()
	b.m.observe("commit", start, err)
	return err
}
