package leveldbkv

import (
	"fmt"

	ldbiterator "github.com/syndtr/goleveldb/leveldb/iterator"

	"github.com/Monia234/colkv/kv"
)

// iterator adapts a range-bounded goleveldb iterator to the kv contract,
// stripping the collection prefix from keys. Key and Value return buffers
// borrowed from the engine, valid until the next advance or Close.
type iterator struct {
	iter      ldbiterator.Iterator
	prefixLen int
	valid     bool
	err       error
}

func newIterator(iter ldbiterator.Iterator, prefixLen int) (*iterator, error) {
	it := &iterator{iter: iter, prefixLen: prefixLen}
	it.valid = iter.First()
	it.checkErr()
	if it.err != nil {
		iter.Release()
		return nil, it.err
	}
	return it, nil
}

func (it *iterator) checkErr() {
	if it.valid {
		return
	}
	if err := it.iter.Error(); err != nil {
		it.err = fmt.Errorf("leveldbkv: iterator: %w", err)
	}
}

func (it *iterator) Valid() bool {
	return it.valid
}

func (it *iterator) Key() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.iter.Key()[it.prefixLen:])
}

func (it *iterator) Value() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.iter.Value())
}

func (it *iterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if !it.valid {
		return nil
	}
	it.valid = it.iter.Next()
	it.checkErr()
	return it.err
}

func (it *iterator) Close() error {
	it.valid = false
	it.iter.Release()
	return it.iter.Error()
}
