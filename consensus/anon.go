package consensus

import (
	"encoding/binary"
	"math"
)

// AnonOutput is one entry of the anon output index.
type AnonOutput struct {
	PubKey      PubKey
	Commitment  Commitment
	Outpoint    Outpoint
	BlockHeight int32
	Compromised uint8
}

// KeyImageInfo records where a key image was spent. Height is -1 for legacy
// records written without one.
type KeyImageInfo struct {
	Txid   [32]byte
	Height int32
}

// AnonView is the read side of the chain-state handle the engine validates
// against. Implementations must present one consistent snapshot for the
// duration of a VerifyMLSAG call.
type AnonView interface {
	ReadRCTOutput(pos int64) (AnonOutput, bool, error)
	ReadRCTKeyImage(ki KeyImage) (KeyImageInfo, bool, error)
}

// SigBlobSize is the exact MLSAG witness length for an anon input.
func SigBlobSize(numInputs, ringSize uint32, split bool) int {
	n := (1 + (int(numInputs)+1)*int(ringSize)) * 32
	if split {
		n += 33
	}
	return n
}

// CheckAnonInfo bounds-checks the ring dimensions of ref.
func CheckAnonInfo(ref AnonSpendRef, p *Params, height int32) error {
	maxIn := p.MaxAnonInputs
	if maxIn == 0 {
		maxIn = MAX_ANON_INPUTS
	}
	if ref.NumInputs < 1 || ref.NumInputs > maxIn {
		return txerrf(TX_ERR_ANON_NUM_INPUTS, "num_inputs %d", ref.NumInputs)
	}
	maxRing := p.MaxRingSize
	if maxRing == 0 {
		maxRing = MAX_RINGSIZE
	}
	if minRing := p.MinRingSizeAt(height); ref.RingSize < minRing || ref.RingSize > maxRing {
		return txerrf(TX_ERR_ANON_RINGSIZE, "ring_size %d not in [%d,%d]", ref.RingSize, minRing, maxRing)
	}
	return nil
}

// AnonKeyImages returns the key images carried by an anon input after the
// data-stack size checks. It does not look at the witness.
func AnonKeyImages(in *TxInput) ([]KeyImage, error) {
	ref, ok := in.AnonInfo()
	if !ok {
		return nil, txerr(TX_ERR_ANON_INPUT, "not an anon input")
	}
	if len(in.ScriptData) != 1 {
		return nil, txerrf(TX_ERR_ANON_DSTACK_SIZE, "data stack has %d items", len(in.ScriptData))
	}
	raw := in.ScriptData[0]
	if uint64(len(raw)) != uint64(ref.NumInputs)*33 {
		return nil, txerrf(TX_ERR_ANON_KEYIMAGE_SIZE, "%d bytes for %d inputs", len(raw), ref.NumInputs)
	}
	out := make([]KeyImage, ref.NumInputs)
	for k := range out {
		copy(out[k][:], raw[k*33:(k+1)*33])
	}
	return out, nil
}

// DecodeRingIndices reads n LEB128 ring member positions from vMI, in
// row-major order. Trailing bytes are ignored.
func DecodeRingIndices(vMI []byte, n int) ([]int64, error) {
	out := make([]int64, 0, n)
	ofs := 0
	for j := 0; j < n; j++ {
		v, used := binary.Uvarint(vMI[ofs:])
		if used <= 0 || v > math.MaxInt64 {
			return nil, txerrf(TX_ERR_ANON_EXTRACT_I, "index %d at offset %d", j, ofs)
		}
		ofs += used
		out = append(out, int64(v))
	}
	return out, nil
}

func EncodeRingIndices(idx []int64) []byte {
	var b []byte
	for _, v := range idx {
		b = binary.AppendUvarint(b, uint64(v))
	}
	return b
}
