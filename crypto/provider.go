package crypto

import "fmt"

// CryptoProvider is the narrow hashing interface used by consensus code and
// by the blinding backend.
type CryptoProvider interface {
	SHA3_256(input []byte) ([32]byte, error)
}

// BlindProvider is the set of commitment and ring-signature primitives the
// anon verification engine consumes. Points are 33-byte compressed
// encodings; 33 zero bytes stand for the point at infinity.
type BlindProvider interface {
	// Commit returns blind*G + value*H.
	Commit(value uint64, blind [32]byte) ([33]byte, error)
	// PrepareMLSAG fills the last row of m (rows*cols*33 bytes, row-major)
	// with, per column i, the sum of inCommits[k*cols+i] minus the sum of
	// outCommits.
	PrepareMLSAG(m []byte, cols, rows int, inCommits, outCommits [][33]byte) error
	// VerifyMLSAG checks sig = pc || ss against the prepared matrix.
	VerifyMLSAG(preimage [32]byte, cols, rows int, m []byte, keyImages []byte, sig []byte) error
	// VerifyTally checks sum(in) == sum(out).
	VerifyTally(in, out [][33]byte) error
}

// Primitive return codes.
const (
	CodeBadArgs   = 1
	CodeBadPoint  = 2
	CodeBadScalar = 3
	CodeHashPoint = 4
	CodeMismatch  = 5
)

// PrimitiveError carries the numeric return code of a failed primitive.
type PrimitiveError struct {
	Op   string
	Code int
	Msg  string
}

func (e *PrimitiveError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: rv=%d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: rv=%d: %s", e.Op, e.Code, e.Msg)
}

func primErr(op string, code int, format string, args ...any) error {
	return &PrimitiveError{Op: op, Code: code, Msg: fmt.Sprintf(format, args...)}
}
