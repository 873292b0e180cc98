package consensus

import "encoding/binary"

func appendU32le(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendU64le(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func appendVarBytes(dst []byte, b []byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendStack(dst []byte, stack [][]byte) []byte {
	dst = AppendCompactSize(dst, uint64(len(stack)))
	for _, item := range stack {
		dst = appendVarBytes(dst, item)
	}
	return dst
}
