package consensus

import "encoding/binary"

type OutputCounts struct {
	Standard int
	CT       int
	RingCT   int
	Data     int
}

// GetPlainValueOut sums the values of standard outputs. The fee is not
// included; callers add GetCTFee themselves.
func GetPlainValueOut(tx *Tx) (int64, OutputCounts, error) {
	var total int64
	var counts OutputCounts
	for i, o := range tx.Outputs {
		switch v := o.(type) {
		case *StandardOutput:
			counts.Standard++
			if !MoneyRange(v.Value) {
				return 0, counts, txerrf(TX_ERR_VALUE_RANGE, "output %d value %d", i, v.Value)
			}
			total += v.Value
			if !MoneyRange(total) {
				return 0, counts, txerrf(TX_ERR_VALUE_RANGE, "plain total overflows at output %d", i)
			}
		case *ConfidentialOutput:
			counts.CT++
		case *RingCTOutput:
			counts.RingCT++
		case *DataOutput:
			counts.Data++
		default:
			return 0, counts, txerrf(TX_ERR_PARSE, "output %d: unknown type %T", i, o)
		}
	}
	return total, counts, nil
}

// GetCTFee reads the declared fee from the leading data output:
// DO_FEE followed by an LEB128 varint.
func GetCTFee(tx *Tx) (int64, error) {
	if len(tx.Outputs) < 2 {
		return 0, txerr(TX_ERR_FEE_OUTPUT, "fewer than two outputs")
	}
	d, ok := tx.Outputs[0].(*DataOutput)
	if !ok {
		return 0, txerrf(TX_ERR_FEE_OUTPUT, "first output is %s", tx.Outputs[0].Type())
	}
	if len(d.Data) < 2 || d.Data[0] != DO_FEE {
		return 0, txerr(TX_ERR_FEE_OUTPUT, "missing fee record")
	}
	fee, n := binary.Uvarint(d.Data[1:])
	if n <= 0 {
		return 0, txerr(TX_ERR_FEE_OUTPUT, "malformed fee varint")
	}
	if fee > uint64(MAX_MONEY) {
		return 0, txerrf(TX_ERR_VALUE_RANGE, "fee %d", fee)
	}
	return int64(fee), nil
}

// FeeData encodes fee as the payload of a fee data output.
func FeeData(fee int64) []byte {
	return binary.AppendUvarint([]byte{DO_FEE}, uint64(fee))
}
