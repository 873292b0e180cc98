package store

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens a badger store in dir, or a purely in-memory one when
// dir is empty.
func OpenBadger(dir string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open badger", err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) View(fn func(KVTx) error) error {
	var fnErr error
	err := b.db.View(func(txn *badger.Txn) error {
		fnErr = fn(&badgerTx{txn: txn})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr("badger view", err)
	}
	return err
}

func (b *BadgerKV) Update(fn func(KVTx) error) error {
	var fnErr error
	err := b.db.Update(func(txn *badger.Txn) error {
		fnErr = fn(&badgerTx{txn: txn})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr("badger commit", err)
	}
	return err
}

func (b *BadgerKV) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("badger get", err)
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, storageErr("badger value", err)
	}
	return v, nil
}

func (t *badgerTx) Put(key, val []byte) error {
	return storageErr("badger set", t.txn.Set(append([]byte(nil), key...), append([]byte(nil), val...)))
}

func (t *badgerTx) Delete(key []byte) error {
	return storageErr("badger delete", t.txn.Delete(append([]byte(nil), key...)))
}

func (t *badgerTx) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	it := t.txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return storageErr("badger value", err)
		}
		if err := fn(item.KeyCopy(nil), v); err != nil {
			return err
		}
	}
	return nil
}
