package store

import (
	"errors"
	"fmt"
)

// ErrStorage marks failures of the underlying key-value engine. Rejections
// returned by callbacks pass through unwrapped.
var ErrStorage = errors.New("storage")

// KV is the minimal transactional key-value engine the index runs on.
type KV interface {
	View(fn func(KVTx) error) error
	Update(fn func(KVTx) error) error
	Close() error
}

// KVTx is one engine transaction. Values passed to ForEachPrefix callbacks
// are only valid for the duration of the call.
type KVTx interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
	Delete(key []byte) error
	ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
