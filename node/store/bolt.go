package store

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRCT = []byte("rct_index")

type BoltKV struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltKV, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, storageErr("open bbolt", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRCT); err != nil {
			return fmt.Errorf("create bucket %s: %w", string(bucketRCT), err)
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, storageErr("init bbolt", err)
	}
	return &BoltKV{db: bdb}, nil
}

func (b *BoltKV) View(fn func(KVTx) error) error {
	var fnErr error
	err := b.db.View(func(tx *bolt.Tx) error {
		fnErr = fn(&boltTx{bk: tx.Bucket(bucketRCT)})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr("bbolt view", err)
	}
	return err
}

// Update runs fn in one bbolt transaction. Any error, or a panic, rolls the
// whole transaction back.
func (b *BoltKV) Update(fn func(KVTx) error) error {
	var fnErr error
	err := b.db.Update(func(tx *bolt.Tx) error {
		fnErr = fn(&boltTx{bk: tx.Bucket(bucketRCT)})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr("bbolt commit", err)
	}
	return err
}

func (b *BoltKV) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltTx struct {
	bk *bolt.Bucket
}

func (t *boltTx) Get(key []byte) ([]byte, error) {
	v := t.bk.Get(key)
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *boltTx) Put(key, val []byte) error {
	return storageErr("bbolt put", t.bk.Put(key, val))
}

func (t *boltTx) Delete(key []byte) error {
	return storageErr("bbolt delete", t.bk.Delete(key))
}

func (t *boltTx) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	c := t.bk.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
