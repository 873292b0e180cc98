package consensus

import "fmt"

// MarshalTx serialises a Tx into its canonical wire-format bytes.
// The output is the exact inverse of ParseTx (roundtrip property).
func MarshalTx(tx *Tx) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil tx")
	}
	for i := range tx.Inputs {
		if tx.Inputs[i].Ref == nil {
			return nil, fmt.Errorf("input %d: nil ref", i)
		}
	}
	for i, o := range tx.Outputs {
		if o == nil {
			return nil, fmt.Errorf("output %d: nil", i)
		}
	}
	return marshalTx(tx, true), nil
}

func marshalTx(tx *Tx, withWitness bool) []byte {
	var b []byte
	b = appendU32le(b, tx.Version)

	b = AppendCompactSize(b, uint64(len(tx.Inputs)))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		hash, vout := prevoutBytes(in.Ref)
		b = append(b, hash[:]...)
		b = appendU32le(b, vout)
		b = appendVarBytes(b, in.ScriptSig)
		b = appendU32le(b, in.Sequence)
		if in.IsAnon() {
			b = appendStack(b, in.ScriptData)
		}
	}

	b = AppendCompactSize(b, uint64(len(tx.Outputs)))
	for _, o := range tx.Outputs {
		b = appendOutput(b, o)
	}

	b = appendU32le(b, tx.Locktime)

	if withWitness {
		for i := range tx.Inputs {
			b = appendStack(b, tx.Inputs[i].Witness)
		}
	}
	return b
}

func appendOutput(b []byte, o TxOutput) []byte {
	b = append(b, byte(o.Type()))
	switch v := o.(type) {
	case *StandardOutput:
		b = appendU64le(b, uint64(v.Value))
		b = appendVarBytes(b, v.Script)
	case *ConfidentialOutput:
		b = append(b, v.Commitment[:]...)
		b = appendVarBytes(b, v.Data)
		b = appendVarBytes(b, v.Script)
		b = appendVarBytes(b, v.RangeProof)
	case *RingCTOutput:
		b = append(b, v.PubKey[:]...)
		b = append(b, v.Commitment[:]...)
		b = appendVarBytes(b, v.Data)
		b = appendVarBytes(b, v.RangeProof)
	case *DataOutput:
		b = appendVarBytes(b, v.Data)
	default:
		panic(fmt.Sprintf("consensus: unknown output %T", o))
	}
	return b
}
