package consensus

import (
	"errors"
	"fmt"
)

// ErrorCode is the consensus reject reason reported to the validation pipeline.
type ErrorCode string

const (
	TX_ERR_PARSE ErrorCode = "tx-parse"

	// Structural.
	TX_ERR_ANON_INPUT         ErrorCode = "bad-anon-input"
	TX_ERR_ANON_NUM_INPUTS    ErrorCode = "bad-anon-num-inputs"
	TX_ERR_ANON_RINGSIZE      ErrorCode = "bad-anon-ringsize"
	TX_ERR_ANON_DSTACK_SIZE   ErrorCode = "bad-anonin-dstack-size"
	TX_ERR_ANON_WSTACK_SIZE   ErrorCode = "bad-anonin-wstack-size"
	TX_ERR_ANON_KEYIMAGE_SIZE ErrorCode = "bad-anonin-keyimages-size"
	TX_ERR_ANON_SIG_SIZE      ErrorCode = "bad-anonin-sig-size"
	TX_ERR_ANON_EXTRACT_I     ErrorCode = "bad-anonin-extract-i"
	TX_ERR_FEE_OUTPUT         ErrorCode = "bad-fee-output"
	TX_ERR_PLAIN_COMMITMENT   ErrorCode = "bad-plain-commitment"
	TX_ERR_VALUE_RANGE        ErrorCode = "bad-txns-value-outofrange"

	// Reference.
	TX_ERR_ANON_UNKNOWN_I   ErrorCode = "bad-anonin-unknown-i"
	TX_ERR_ANON_DEPTH       ErrorCode = "bad-anonin-depth"
	TX_ERR_ANON_BLACKLISTED ErrorCode = "bad-anonin-blacklisted"

	// Conflict.
	TX_ERR_ANON_DUP_I         ErrorCode = "bad-anonin-dup-i"
	TX_ERR_ANON_DUP_KI        ErrorCode = "bad-anonin-dup-ki"
	TX_ERR_ALREADY_IN_CHAIN   ErrorCode = "txn-already-in-chain"
	TX_ERR_DUPLICATE_ANON_OUT ErrorCode = "duplicate-anon-output"

	TX_ERR_ANON_DISABLED ErrorCode = "bad-txns-anon-disabled"

	// Crypto.
	TX_ERR_PREPARE_MLSAG       ErrorCode = "prepare-mlsag-failed"
	TX_ERR_VERIFY_MLSAG        ErrorCode = "verify-mlsag-failed"
	TX_ERR_VERIFY_COMMIT_TALLY ErrorCode = "verify-commit-tally-failed"
)

// ErrorClass groups reject codes by how callers should treat them.
type ErrorClass uint8

const (
	ClassStructural ErrorClass = iota
	ClassReference
	ClassConflict
	ClassCrypto
	ClassPolicy
)

func (c ErrorClass) String() string {
	switch c {
	case ClassStructural:
		return "structural"
	case ClassReference:
		return "reference"
	case ClassConflict:
		return "conflict"
	case ClassCrypto:
		return "crypto"
	case ClassPolicy:
		return "policy"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

func (c ErrorCode) Class() ErrorClass {
	switch c {
	case TX_ERR_ANON_UNKNOWN_I, TX_ERR_ANON_DEPTH, TX_ERR_ANON_BLACKLISTED:
		return ClassReference
	case TX_ERR_ANON_DUP_I, TX_ERR_ANON_DUP_KI, TX_ERR_ALREADY_IN_CHAIN, TX_ERR_DUPLICATE_ANON_OUT:
		return ClassConflict
	case TX_ERR_PREPARE_MLSAG, TX_ERR_VERIFY_MLSAG, TX_ERR_VERIFY_COMMIT_TALLY:
		return ClassCrypto
	case TX_ERR_ANON_DISABLED:
		return ClassPolicy
	default:
		return ClassStructural
	}
}

type TxError struct {
	Code ErrorCode
	Msg  string
	// Err is the primitive failure behind a crypto rejection, if any.
	Err error
}

func (e *TxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *TxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func txerr(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}

func txerrf(code ErrorCode, format string, args ...any) error {
	return &TxError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func txerrWrap(code ErrorCode, cause error, format string, args ...any) error {
	return &TxError{Code: code, Msg: fmt.Sprintf(format, args...) + ": " + cause.Error(), Err: cause}
}

// IsRejection reports whether err is a consensus rejection rather than an
// infrastructure failure (storage, I/O).
func IsRejection(err error) bool {
	var te *TxError
	return errors.As(err, &te)
}

// RejectCode returns the reject reason carried by err, if any.
func RejectCode(err error) (ErrorCode, bool) {
	var te *TxError
	if errors.As(err, &te) {
		return te.Code, true
	}
	return "", false
}
