package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

// UndoRecord is written once per connected block and consumed by the
// matching disconnect.
type UndoRecord struct {
	// AnonOutputsBefore is the index cardinality before the block.
	AnonOutputsBefore int64
	// KeyImages are the key images the block recorded.
	KeyImages []consensus.KeyImage
	// Compromised lists positions whose compromised flag the block set.
	Compromised []int64
}

func encodeUndoRecord(u UndoRecord) ([]byte, error) {
	if len(u.KeyImages) > 0xffffffff || len(u.Compromised) > 0xffffffff {
		return nil, fmt.Errorf("undo: too many items")
	}

	// Layout:
	// anon_outputs_before i64le
	// ki_count u32le | (key_image 33) * ki_count
	// compromised_count u32le | (position i64le) * compromised_count
	out := make([]byte, 0, 8+4+len(u.KeyImages)*33+4+len(u.Compromised)*8)
	out = binary.LittleEndian.AppendUint64(out, uint64(u.AnonOutputsBefore))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(u.KeyImages))) // #nosec G115 -- len checked against 0xffffffff above.
	for _, ki := range u.KeyImages {
		out = append(out, ki[:]...)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(u.Compromised))) // #nosec G115 -- len checked against 0xffffffff above.
	for _, pos := range u.Compromised {
		out = binary.LittleEndian.AppendUint64(out, uint64(pos))
	}
	return out, nil
}

func decodeUndoRecord(b []byte) (*UndoRecord, error) {
	if len(b) < 8+4+4 {
		return nil, fmt.Errorf("undo: truncated")
	}
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("undo: truncated u32")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}

	u := &UndoRecord{AnonOutputsBefore: int64(binary.LittleEndian.Uint64(b[0:8]))}
	off = 8

	kiN, err := readU32()
	if err != nil {
		return nil, err
	}
	if uint64(kiN)*33 > uint64(len(b)-off) {
		return nil, fmt.Errorf("undo: truncated key images")
	}
	u.KeyImages = make([]consensus.KeyImage, kiN)
	for i := range u.KeyImages {
		copy(u.KeyImages[i][:], b[off:off+33])
		off += 33
	}

	compN, err := readU32()
	if err != nil {
		return nil, err
	}
	if uint64(compN)*8 > uint64(len(b)-off) {
		return nil, fmt.Errorf("undo: truncated compromised positions")
	}
	u.Compromised = make([]int64, compN)
	for i := range u.Compromised {
		u.Compromised[i] = int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
	}
	if off != len(b) {
		return nil, fmt.Errorf("undo: trailing bytes")
	}
	return u, nil
}
