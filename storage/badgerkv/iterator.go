package badgerkv

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/Monia234/colkv/kv"
)

// iterator adapts a prefix-bounded badger.Iterator to the kv contract. The
// current key and value are materialized into owned buffers at each position,
// because value-log reads can fail and the contract reports that through
// Next. ownTxn marks iterators that carry their own read transaction (live-DB
// iteration), discarded on Close.
type iterator struct {
	txn    *badger.Txn
	ownTxn bool
	iter   *badger.Iterator
	prefix []byte

	key   []byte
	value []byte
	valid bool
	err   error
}

func newIterator(txn *badger.Txn, c *collection, ownTxn bool, start []byte) (*iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = c.prefix

	it := &iterator{
		txn:    txn,
		ownTxn: ownTxn,
		iter:   txn.NewIterator(opts),
		prefix: c.prefix,
	}
	it.iter.Seek(append(append([]byte(nil), c.prefix...), start...))
	it.load()
	if it.err != nil {
		err := it.err
		it.Close()
		return nil, err
	}
	return it, nil
}

// load captures the record at the engine cursor, if any.
func (it *iterator) load() {
	it.valid = false
	if !it.iter.ValidForPrefix(it.prefix) {
		return
	}
	item := it.iter.Item()
	it.key = item.KeyCopy(nil)[len(it.prefix):]
	value, err := item.ValueCopy(nil)
	if err != nil {
		it.err = fmt.Errorf("badgerkv: iterator value: %w", err)
		return
	}
	it.value = value
	it.valid = true
}

func (it *iterator) Valid() bool {
	return it.valid
}

func (it *iterator) Key() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.key)
}

func (it *iterator) Value() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.value)
}

func (it *iterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if !it.valid {
		return nil
	}
	it.iter.Next()
	it.load()
	return it.err
}

func (it *iterator) Close() error {
	it.valid = false
	it.iter.Close()
	if it.ownTxn {
		it.txn.Discard()
		it.ownTxn = false
	}
	return nil
}
