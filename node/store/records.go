package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

// Key prefixes. Integer key parts and values are little-endian, so an 'A'
// key is the prefix byte followed by the int64 position as stored.
const (
	prefixAnonOutput byte = 'A'
	prefixAnonLink   byte = 'L'
	prefixKeyImage   byte = 'K'
	prefixBlockIndex byte = 'B'
	prefixUndo       byte = 'U'
	keyTip           byte = 'T'
	keyLastRCT       byte = 'N'
)

const (
	anonOutputBytes = 33 + 33 + 32 + 4 + 4 + 1
	keyImageBytes   = 32 + 4
	indexEntryBytes = 32 + 32 + 4 + 8
)

func anonOutputKey(pos int64) []byte {
	k := make([]byte, 9)
	k[0] = prefixAnonOutput
	binary.LittleEndian.PutUint64(k[1:], uint64(pos))
	return k
}

func anonLinkKey(pk consensus.PubKey) []byte {
	return append([]byte{prefixAnonLink}, pk[:]...)
}

func keyImageKey(ki consensus.KeyImage) []byte {
	return append([]byte{prefixKeyImage}, ki[:]...)
}

func heightKey(prefix byte, h int32) []byte {
	k := make([]byte, 5)
	k[0] = prefix
	binary.LittleEndian.PutUint32(k[1:], uint32(h))
	return k
}

// Layout:
// pubkey 33 | commitment 33 | txid 32 | vout u32le | height i32le | compromised u8
func encodeAnonOutput(ao consensus.AnonOutput) []byte {
	out := make([]byte, 0, anonOutputBytes)
	out = append(out, ao.PubKey[:]...)
	out = append(out, ao.Commitment[:]...)
	out = append(out, ao.Outpoint.Txid[:]...)
	out = binary.LittleEndian.AppendUint32(out, ao.Outpoint.Vout)
	out = binary.LittleEndian.AppendUint32(out, uint32(ao.BlockHeight))
	return append(out, ao.Compromised)
}

func decodeAnonOutput(b []byte) (consensus.AnonOutput, error) {
	var ao consensus.AnonOutput
	if len(b) != anonOutputBytes {
		return ao, fmt.Errorf("anon output: %d bytes, want %d", len(b), anonOutputBytes)
	}
	copy(ao.PubKey[:], b[0:33])
	copy(ao.Commitment[:], b[33:66])
	copy(ao.Outpoint.Txid[:], b[66:98])
	ao.Outpoint.Vout = binary.LittleEndian.Uint32(b[98:102])
	ao.BlockHeight = int32(binary.LittleEndian.Uint32(b[102:106]))
	ao.Compromised = b[106]
	return ao, nil
}

func encodeKeyImageInfo(info consensus.KeyImageInfo) []byte {
	out := make([]byte, 0, keyImageBytes)
	out = append(out, info.Txid[:]...)
	return binary.LittleEndian.AppendUint32(out, uint32(info.Height))
}

// decodeKeyImageInfo accepts legacy txid-only records, reported with height -1.
func decodeKeyImageInfo(b []byte) (consensus.KeyImageInfo, error) {
	var info consensus.KeyImageInfo
	if len(b) < 32 {
		return info, fmt.Errorf("key image: %d bytes", len(b))
	}
	copy(info.Txid[:], b[:32])
	if len(b) < keyImageBytes {
		info.Height = -1
		return info, nil
	}
	info.Height = int32(binary.LittleEndian.Uint32(b[32:36]))
	return info, nil
}

func encodeI64(v int64) []byte {
	return binary.LittleEndian.AppendUint64(nil, uint64(v))
}

func decodeI64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("i64: %d bytes", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// BlockIndexEntry is the per-block bookkeeping for the anon index.
// AnonOutputs is the index cardinality after the block is connected.
type BlockIndexEntry struct {
	Hash        [32]byte
	PrevHash    [32]byte
	Height      int32
	AnonOutputs int64
}

// Layout: hash 32 | prev_hash 32 | height i32le | anon_outputs i64le
func encodeIndexEntry(e BlockIndexEntry) []byte {
	out := make([]byte, 0, indexEntryBytes)
	out = append(out, e.Hash[:]...)
	out = append(out, e.PrevHash[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(e.Height))
	return binary.LittleEndian.AppendUint64(out, uint64(e.AnonOutputs))
}

func decodeIndexEntry(b []byte) (BlockIndexEntry, error) {
	var e BlockIndexEntry
	if len(b) != indexEntryBytes {
		return e, fmt.Errorf("index: %d bytes, want %d", len(b), indexEntryBytes)
	}
	copy(e.Hash[:], b[0:32])
	copy(e.PrevHash[:], b[32:64])
	e.Height = int32(binary.LittleEndian.Uint32(b[64:68]))
	e.AnonOutputs = int64(binary.LittleEndian.Uint64(b[68:76]))
	return e, nil
}
