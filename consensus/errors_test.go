package consensus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTxError_ErrorFormatting(t *testing.T) {
	var e *TxError
	require.Equal(t, "<nil>", e.Error())

	e = &TxError{Code: TX_ERR_ANON_RINGSIZE}
	require.Equal(t, "bad-anon-ringsize", e.Error())

	e = &TxError{Code: TX_ERR_ANON_RINGSIZE, Msg: "ring size 40"}
	require.Equal(t, "bad-anon-ringsize: ring size 40", e.Error())
}

func TestRejectCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("connect block 7: %w", txerr(TX_ERR_ANON_DUP_KI, "ki 02ab"))
	require.True(t, IsRejection(err))
	code, ok := RejectCode(err)
	require.True(t, ok)
	require.Equal(t, TX_ERR_ANON_DUP_KI, code)

	plain := errors.New("disk on fire")
	require.False(t, IsRejection(plain))
	_, ok = RejectCode(plain)
	require.False(t, ok)
}

func TestErrorCodeClass(t *testing.T) {
	cases := map[ErrorCode]ErrorClass{
		TX_ERR_ANON_NUM_INPUTS:     ClassStructural,
		TX_ERR_ANON_SIG_SIZE:       ClassStructural,
		TX_ERR_ANON_UNKNOWN_I:      ClassReference,
		TX_ERR_ANON_DEPTH:          ClassReference,
		TX_ERR_ANON_DUP_KI:         ClassConflict,
		TX_ERR_ANON_DUP_I:          ClassConflict,
		TX_ERR_VERIFY_MLSAG:        ClassCrypto,
		TX_ERR_VERIFY_COMMIT_TALLY: ClassCrypto,
		TX_ERR_ANON_DISABLED:       ClassPolicy,
	}
	for code, want := range cases {
		require.Equal(t, want, code.Class(), "code %s", code)
	}
	require.Equal(t, "conflict", ClassConflict.String())
}
