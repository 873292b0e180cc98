package consensus

import (
	"encoding/binary"
	"encoding/hex"
)

// AnonMarker is the prevout vout value that marks an anonymous input.
const AnonMarker uint32 = 0xffffffa0

type PubKey [33]byte

type Commitment [33]byte

type KeyImage [33]byte

func (k KeyImage) String() string   { return hex.EncodeToString(k[:]) }
func (p PubKey) String() string     { return hex.EncodeToString(p[:]) }
func (c Commitment) IsZero() bool   { return c == Commitment{} }
func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

type Outpoint struct {
	Txid [32]byte
	Vout uint32
}

// InputRef is what an input spends: a plain outpoint or a ring of anonymous
// outputs. The wire form overloads the prevout; the parser resolves it once.
type InputRef interface {
	isInputRef()
}

type SpendRef struct {
	Prevout Outpoint
}

type AnonSpendRef struct {
	NumInputs uint32
	RingSize  uint32
}

func (SpendRef) isInputRef()     {}
func (AnonSpendRef) isInputRef() {}

// prevoutBytes returns the 36-byte wire prevout for either ref kind.
func prevoutBytes(ref InputRef) ([32]byte, uint32) {
	switch r := ref.(type) {
	case SpendRef:
		return r.Prevout.Txid, r.Prevout.Vout
	case AnonSpendRef:
		var h [32]byte
		binary.LittleEndian.PutUint32(h[0:4], r.NumInputs)
		binary.LittleEndian.PutUint32(h[4:8], r.RingSize)
		return h, AnonMarker
	default:
		panic("consensus: unknown input ref")
	}
}

type TxInput struct {
	Ref       InputRef
	ScriptSig []byte
	Sequence  uint32
	// ScriptData is serialized for anonymous inputs only. Element 0 holds
	// the concatenated key images.
	ScriptData [][]byte
	// Witness for anonymous inputs: ring member indices, then the MLSAG blob.
	Witness [][]byte
}

func (in *TxInput) AnonInfo() (AnonSpendRef, bool) {
	r, ok := in.Ref.(AnonSpendRef)
	return r, ok
}

func (in *TxInput) IsAnon() bool {
	_, ok := in.Ref.(AnonSpendRef)
	return ok
}

type OutputType uint8

const (
	OUTPUT_STANDARD OutputType = 1
	OUTPUT_CT       OutputType = 2
	OUTPUT_RINGCT   OutputType = 3
	OUTPUT_DATA     OutputType = 4
)

func (t OutputType) String() string {
	switch t {
	case OUTPUT_STANDARD:
		return "standard"
	case OUTPUT_CT:
		return "blind"
	case OUTPUT_RINGCT:
		return "anon"
	case OUTPUT_DATA:
		return "data"
	default:
		return "unknown"
	}
}

// TxOutput is one of *StandardOutput, *ConfidentialOutput, *RingCTOutput or
// *DataOutput.
type TxOutput interface {
	Type() OutputType
	isTxOutput()
}

type StandardOutput struct {
	Value  int64
	Script []byte
}

type ConfidentialOutput struct {
	Commitment Commitment
	Data       []byte
	Script     []byte
	RangeProof []byte
}

type RingCTOutput struct {
	PubKey     PubKey
	Commitment Commitment
	Data       []byte
	RangeProof []byte
}

type DataOutput struct {
	Data []byte
}

func (*StandardOutput) Type() OutputType     { return OUTPUT_STANDARD }
func (*ConfidentialOutput) Type() OutputType { return OUTPUT_CT }
func (*RingCTOutput) Type() OutputType       { return OUTPUT_RINGCT }
func (*DataOutput) Type() OutputType         { return OUTPUT_DATA }

func (*StandardOutput) isTxOutput()     {}
func (*ConfidentialOutput) isTxOutput() {}
func (*RingCTOutput) isTxOutput()       {}
func (*DataOutput) isTxOutput()         {}

// OutputCommitment returns the value commitment carried by blinded outputs.
func OutputCommitment(o TxOutput) (Commitment, bool) {
	switch v := o.(type) {
	case *ConfidentialOutput:
		return v.Commitment, true
	case *RingCTOutput:
		return v.Commitment, true
	case *StandardOutput, *DataOutput:
		return Commitment{}, false
	default:
		return Commitment{}, false
	}
}

type Tx struct {
	Version  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	Locktime uint32
}

func (tx *Tx) HasAnonInputs() bool {
	for i := range tx.Inputs {
		if tx.Inputs[i].IsAnon() {
			return true
		}
	}
	return false
}

func (tx *Tx) HasAnonOutputs() bool {
	for _, o := range tx.Outputs {
		if _, ok := o.(*RingCTOutput); ok {
			return true
		}
	}
	return false
}

// TxID is the SHA3-256 of the witness-free serialization. The MLSAG message
// is the txid, so signatures never cover themselves.
func (tx *Tx) TxID() [32]byte {
	return sha3_256(marshalTx(tx, false))
}
