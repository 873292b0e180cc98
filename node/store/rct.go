package store

import (
	"bytes"
	"fmt"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

// Txn is a typed view of one KV transaction over the anon output index, the
// key image index and the per-block bookkeeping. It satisfies
// consensus.AnonView.
type Txn struct {
	kv KVTx
}

var _ consensus.AnonView = (*Txn)(nil)

func (t *Txn) ReadRCTOutput(pos int64) (consensus.AnonOutput, bool, error) {
	v, err := t.kv.Get(anonOutputKey(pos))
	if err != nil || v == nil {
		return consensus.AnonOutput{}, false, err
	}
	ao, err := decodeAnonOutput(v)
	if err != nil {
		return ao, false, storageErr(fmt.Sprintf("anon output %d", pos), err)
	}
	return ao, true, nil
}

func (t *Txn) WriteRCTOutput(pos int64, ao consensus.AnonOutput) error {
	return t.kv.Put(anonOutputKey(pos), encodeAnonOutput(ao))
}

func (t *Txn) ReadRCTOutputLink(pk consensus.PubKey) (int64, bool, error) {
	v, err := t.kv.Get(anonLinkKey(pk))
	if err != nil || v == nil {
		return 0, false, err
	}
	pos, err := decodeI64(v)
	if err != nil {
		return 0, false, storageErr(fmt.Sprintf("anon link %s", pk), err)
	}
	return pos, true, nil
}

func (t *Txn) WriteRCTOutputLink(pk consensus.PubKey, pos int64) error {
	return t.kv.Put(anonLinkKey(pk), encodeI64(pos))
}

func (t *Txn) EraseRCTOutputLink(pk consensus.PubKey) error {
	return t.kv.Delete(anonLinkKey(pk))
}

// EraseRCTOutput removes the record at pos and its reverse link. Erasing an
// absent position is a no-op.
func (t *Txn) EraseRCTOutput(pos int64) error {
	ao, ok, err := t.ReadRCTOutput(pos)
	if err != nil || !ok {
		return err
	}
	if err := t.kv.Delete(anonOutputKey(pos)); err != nil {
		return err
	}
	if linked, ok, err := t.ReadRCTOutputLink(ao.PubKey); err != nil {
		return err
	} else if ok && linked == pos {
		return t.EraseRCTOutputLink(ao.PubKey)
	}
	return nil
}

// LastRCTIndex is the highest assigned position, 0 for an empty index.
func (t *Txn) LastRCTIndex() (int64, error) {
	v, err := t.kv.Get([]byte{keyLastRCT})
	if err != nil || v == nil {
		return 0, err
	}
	n, err := decodeI64(v)
	if err != nil {
		return 0, storageErr("last rct index", err)
	}
	return n, nil
}

func (t *Txn) SetLastRCTIndex(pos int64) error {
	return t.kv.Put([]byte{keyLastRCT}, encodeI64(pos))
}

// AppendRCTOutput stores ao at LastRCTIndex()+1 together with its reverse
// link and returns the new position.
func (t *Txn) AppendRCTOutput(ao consensus.AnonOutput) (int64, error) {
	last, err := t.LastRCTIndex()
	if err != nil {
		return 0, err
	}
	pos := last + 1
	if err := t.WriteRCTOutput(pos, ao); err != nil {
		return 0, err
	}
	if err := t.WriteRCTOutputLink(ao.PubKey, pos); err != nil {
		return 0, err
	}
	if err := t.SetLastRCTIndex(pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// TruncateRCTOutputs erases every position above keep, walking down from
// the last index, and resets the last index to keep.
func (t *Txn) TruncateRCTOutputs(keep int64) (int64, error) {
	last, err := t.LastRCTIndex()
	if err != nil {
		return 0, err
	}
	var removed int64
	for pos := last; pos > keep; pos-- {
		if err := t.EraseRCTOutput(pos); err != nil {
			return removed, err
		}
		removed++
	}
	if last > keep {
		if err := t.SetLastRCTIndex(keep); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// EraseRCTOutputsAbove walks upward from keep+1 erasing records until the
// first absent position. It repairs an index whose last-index marker is
// behind the records actually present.
func (t *Txn) EraseRCTOutputsAbove(keep int64) (int64, error) {
	var removed int64
	for pos := keep + 1; ; pos++ {
		_, ok, err := t.ReadRCTOutput(pos)
		if err != nil {
			return removed, err
		}
		if !ok {
			break
		}
		if err := t.EraseRCTOutput(pos); err != nil {
			return removed, err
		}
		removed++
	}
	last, err := t.LastRCTIndex()
	if err != nil {
		return removed, err
	}
	if last > keep {
		if err := t.SetLastRCTIndex(keep); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (t *Txn) ReadRCTKeyImage(ki consensus.KeyImage) (consensus.KeyImageInfo, bool, error) {
	v, err := t.kv.Get(keyImageKey(ki))
	if err != nil || v == nil {
		return consensus.KeyImageInfo{}, false, err
	}
	info, err := decodeKeyImageInfo(v)
	if err != nil {
		return info, false, storageErr(fmt.Sprintf("key image %s", ki), err)
	}
	return info, true, nil
}

func (t *Txn) WriteRCTKeyImage(ki consensus.KeyImage, info consensus.KeyImageInfo) error {
	return t.kv.Put(keyImageKey(ki), encodeKeyImageInfo(info))
}

// WriteLegacyRCTKeyImage stores a txid-only record as older databases did.
func (t *Txn) WriteLegacyRCTKeyImage(ki consensus.KeyImage, txid [32]byte) error {
	return t.kv.Put(keyImageKey(ki), append([]byte(nil), txid[:]...))
}

func (t *Txn) EraseRCTKeyImage(ki consensus.KeyImage) error {
	return t.kv.Delete(keyImageKey(ki))
}

// EraseRCTKeyImagesAfterHeight deletes every key image recorded above
// height. Legacy records without a height are kept. It scans the whole set.
func (t *Txn) EraseRCTKeyImagesAfterHeight(height int32) (removed, total int, err error) {
	var doomed [][]byte
	err = t.kv.ForEachPrefix([]byte{prefixKeyImage}, func(k, v []byte) error {
		total++
		info, err := decodeKeyImageInfo(v)
		if err != nil {
			return storageErr(fmt.Sprintf("key image %x", k[1:]), err)
		}
		if len(v) < keyImageBytes {
			return nil
		}
		if info.Height > height {
			doomed = append(doomed, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return 0, total, err
	}
	for _, k := range doomed {
		if err := t.kv.Delete(k); err != nil {
			return removed, total, err
		}
		removed++
	}
	return removed, total, nil
}

// CountRCTKeyImages returns the number of recorded key images.
func (t *Txn) CountRCTKeyImages() (int, error) {
	n := 0
	err := t.kv.ForEachPrefix([]byte{prefixKeyImage}, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// SetCompromised updates the flag on an existing record.
func (t *Txn) SetCompromised(pos int64, flag uint8) error {
	ao, ok, err := t.ReadRCTOutput(pos)
	if err != nil {
		return err
	}
	if !ok {
		return storageErr("set compromised", fmt.Errorf("position %d not indexed", pos))
	}
	ao.Compromised = flag
	return t.WriteRCTOutput(pos, ao)
}

func (t *Txn) ReadBlockIndex(height int32) (BlockIndexEntry, bool, error) {
	v, err := t.kv.Get(heightKey(prefixBlockIndex, height))
	if err != nil || v == nil {
		return BlockIndexEntry{}, false, err
	}
	e, err := decodeIndexEntry(v)
	if err != nil {
		return e, false, storageErr(fmt.Sprintf("block index %d", height), err)
	}
	return e, true, nil
}

func (t *Txn) WriteBlockIndex(e BlockIndexEntry) error {
	return t.kv.Put(heightKey(prefixBlockIndex, e.Height), encodeIndexEntry(e))
}

func (t *Txn) EraseBlockIndex(height int32) error {
	return t.kv.Delete(heightKey(prefixBlockIndex, height))
}

func (t *Txn) ReadUndo(height int32) (*UndoRecord, bool, error) {
	v, err := t.kv.Get(heightKey(prefixUndo, height))
	if err != nil || v == nil {
		return nil, false, err
	}
	u, err := decodeUndoRecord(v)
	if err != nil {
		return nil, false, storageErr(fmt.Sprintf("undo %d", height), err)
	}
	return u, true, nil
}

func (t *Txn) WriteUndo(height int32, u UndoRecord) error {
	b, err := encodeUndoRecord(u)
	if err != nil {
		return err
	}
	return t.kv.Put(heightKey(prefixUndo, height), b)
}

func (t *Txn) EraseUndo(height int32) error {
	return t.kv.Delete(heightKey(prefixUndo, height))
}

// Tip returns the active tip entry; ok is false for an empty chain.
func (t *Txn) Tip() (BlockIndexEntry, bool, error) {
	v, err := t.kv.Get([]byte{keyTip})
	if err != nil || v == nil {
		return BlockIndexEntry{}, false, err
	}
	e, err := decodeIndexEntry(v)
	if err != nil {
		return e, false, storageErr("tip", err)
	}
	return e, true, nil
}

func (t *Txn) SetTip(e BlockIndexEntry) error {
	return t.kv.Put([]byte{keyTip}, encodeIndexEntry(e))
}

func (t *Txn) ClearTip() error {
	return t.kv.Delete([]byte{keyTip})
}
