package kv

// Base implementations of the Reader and single-write behaviors a DB owes its
// callers, expressed purely in terms of Current and BeginWrites. They create
// a snapshot just to read one record (or open one iterator), or commit a
// "batch" of one write. Backends without a cheaper direct path delegate to
// these; engine-backed stores are expected to override with direct reads and
// writes.

// GetCopy derives Reader.Get from Reader.Get0: it looks the key up and copies
// the value into an owned byte slice.
func GetCopy(r Reader, coll CollectionHandle, key []byte) ([]byte, error) {
	v, err := r.Get0(coll, key)
	if err != nil {
		return nil, err
	}
	return v.Copy(), nil
}

// SnapshotGet0 serves one Get0 call through an ephemeral snapshot. The value
// buffer is copied out before the snapshot is released, so it survives the
// snapshot per the shared-buffer rule.
func SnapshotGet0(db DB, coll CollectionHandle, key []byte) (Data, error) {
	snap, err := db.Current()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	v, err := snap.Get0(coll, key)
	if err != nil {
		return nil, err
	}
	return Data(v.Copy()), nil
}

// SnapshotIterator serves one Iterator call through an ephemeral snapshot.
// The snapshot stays pinned for as long as the iterator lives; closing the
// iterator releases both.
func SnapshotIterator(db DB, coll CollectionHandle, start []byte) (Iterator, error) {
	snap, err := db.Current()
	if err != nil {
		return nil, err
	}
	it, err := snap.Iterator(coll, start)
	if err != nil {
		snap.Close()
		return nil, err
	}
	return &snapshotIterator{Iterator: it, snap: snap}, nil
}

// snapshotIterator ties an ephemeral snapshot's lifetime to the iterator
// borrowed from it.
type snapshotIterator struct {
	Iterator
	snap Snapshot
}

func (it *snapshotIterator) Close() error {
	err := it.Iterator.Close()
	if serr := it.snap.Close(); err == nil {
		err = serr
	}
	return err
}

// BatchPut applies one write as an immediately committed single-put batch.
// It offers no atomicity guarantee relative to other concurrent writes.
func BatchPut(db DB, coll CollectionHandle, key, value []byte) error {
	batch, err := db.BeginWrites()
	if err != nil {
		return err
	}
	defer batch.Close()

	if err := batch.Put(coll, key, value); err != nil {
		return err
	}
	return batch.Commit()
}
