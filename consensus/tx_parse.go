package consensus

// ParseTx decodes one transaction from the front of b and returns it with the
// number of bytes consumed. Anonymous prevouts are resolved to AnonSpendRef
// here and nowhere else.
func ParseTx(b []byte) (*Tx, int, error) {
	off := 0

	version, err := readU32le(b, &off)
	if err != nil {
		return nil, 0, err
	}

	inCount, err := readCompactSize(b, &off)
	if err != nil {
		return nil, 0, err
	}
	if inCount > MAX_TX_INPUTS {
		return nil, 0, txerr(TX_ERR_PARSE, "input_count overflow")
	}

	inputs := make([]TxInput, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := parseInput(b, &off)
		if err != nil {
			return nil, 0, err
		}
		inputs = append(inputs, in)
	}

	outCount, err := readCompactSize(b, &off)
	if err != nil {
		return nil, 0, err
	}
	if outCount > MAX_TX_OUTPUTS {
		return nil, 0, txerr(TX_ERR_PARSE, "output_count overflow")
	}
	outputs := make([]TxOutput, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		o, err := parseOutput(b, &off)
		if err != nil {
			return nil, 0, err
		}
		outputs = append(outputs, o)
	}

	locktime, err := readU32le(b, &off)
	if err != nil {
		return nil, 0, err
	}

	for i := range inputs {
		w, err := readStack(b, &off, "witness")
		if err != nil {
			return nil, 0, err
		}
		inputs[i].Witness = w
	}

	return &Tx{
		Version:  version,
		Inputs:   inputs,
		Outputs:  outputs,
		Locktime: locktime,
	}, off, nil
}

func parseInput(b []byte, off *int) (TxInput, error) {
	var in TxInput
	hashBytes, err := readBytes(b, off, 32)
	if err != nil {
		return in, err
	}
	vout, err := readU32le(b, off)
	if err != nil {
		return in, err
	}

	if vout == AnonMarker {
		var h [32]byte
		copy(h[:], hashBytes)
		for _, x := range h[8:] {
			if x != 0 {
				return in, txerr(TX_ERR_PARSE, "anon prevout padding not zero")
			}
		}
		nIn, _ := readU32le(h[:], new(int))
		ring, _ := readU32le(h[4:], new(int))
		in.Ref = AnonSpendRef{NumInputs: nIn, RingSize: ring}
	} else {
		var op Outpoint
		copy(op.Txid[:], hashBytes)
		op.Vout = vout
		in.Ref = SpendRef{Prevout: op}
	}

	if in.ScriptSig, err = readVarBytes(b, off, MAX_SCRIPT_BYTES, "script_sig"); err != nil {
		return in, err
	}
	if in.Sequence, err = readU32le(b, off); err != nil {
		return in, err
	}
	if in.IsAnon() {
		if in.ScriptData, err = readStack(b, off, "script_data"); err != nil {
			return in, err
		}
	}
	return in, nil
}

func parseOutput(b []byte, off *int) (TxOutput, error) {
	tag, err := readU8(b, off)
	if err != nil {
		return nil, err
	}
	switch OutputType(tag) {
	case OUTPUT_STANDARD:
		v, err := readU64le(b, off)
		if err != nil {
			return nil, err
		}
		script, err := readVarBytes(b, off, MAX_SCRIPT_BYTES, "script")
		if err != nil {
			return nil, err
		}
		return &StandardOutput{Value: int64(v), Script: script}, nil

	case OUTPUT_CT:
		o := &ConfidentialOutput{}
		if err := readFixed(b, off, o.Commitment[:]); err != nil {
			return nil, err
		}
		if o.Data, err = readVarBytes(b, off, MAX_OUTPUT_DATA, "data"); err != nil {
			return nil, err
		}
		if o.Script, err = readVarBytes(b, off, MAX_SCRIPT_BYTES, "script"); err != nil {
			return nil, err
		}
		if o.RangeProof, err = readVarBytes(b, off, MAX_RANGEPROOF_BYTES, "rangeproof"); err != nil {
			return nil, err
		}
		return o, nil

	case OUTPUT_RINGCT:
		o := &RingCTOutput{}
		if err := readFixed(b, off, o.PubKey[:]); err != nil {
			return nil, err
		}
		if err := readFixed(b, off, o.Commitment[:]); err != nil {
			return nil, err
		}
		if o.Data, err = readVarBytes(b, off, MAX_OUTPUT_DATA, "data"); err != nil {
			return nil, err
		}
		if o.RangeProof, err = readVarBytes(b, off, MAX_RANGEPROOF_BYTES, "rangeproof"); err != nil {
			return nil, err
		}
		return o, nil

	case OUTPUT_DATA:
		data, err := readVarBytes(b, off, MAX_OUTPUT_DATA, "data")
		if err != nil {
			return nil, err
		}
		return &DataOutput{Data: data}, nil

	default:
		return nil, txerrf(TX_ERR_PARSE, "unknown output type %d", tag)
	}
}

func readFixed(b []byte, off *int, dst []byte) error {
	v, err := readBytes(b, off, len(dst))
	if err != nil {
		return err
	}
	copy(dst, v)
	return nil
}
