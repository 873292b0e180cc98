package consensus_test

import (
	"testing"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/consensus/rcttest"
	"github.com/ghost-coin/ghost-core-sub001/crypto"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *crypto.Secp256k1Blind {
	t.Helper()
	bp, err := crypto.NewSecp256k1Blind(nil)
	require.NoError(t, err)
	return bp
}

// ringFor indexes one real output and ring-1 decoys, placing the real one at
// column real.
func ringFor(t *testing.T, bp *crypto.Secp256k1Blind, v *rcttest.MemView, value uint64, ring, real int) ([]rcttest.Member, *rcttest.Owned) {
	t.Helper()
	row := make([]rcttest.Member, ring)
	var owner *rcttest.Owned
	for i := 0; i < ring; i++ {
		val := uint64(1 + i)
		if i == real {
			val = value
		}
		o, err := rcttest.NewOwned(bp, val)
		require.NoError(t, err)
		m := v.Add(o, 1)
		if i == real {
			owner = o
		} else {
			m = rcttest.Decoy(m)
		}
		row[i] = m
	}
	return row, owner
}

func ctxAt(h int32) consensus.MLSAGContext {
	return consensus.MLSAGContext{SpendHeight: h, InBlock: true, CheckEqualRCTTxid: true, StrictSameHeight: true, Params: consensus.RegtestParams()}
}

func requireReject(t *testing.T, err error, want consensus.ErrorCode) {
	t.Helper()
	code, ok := consensus.RejectCode(err)
	require.True(t, ok, "err=%v", err)
	require.Equal(t, want, code, "err=%v", err)
}

func TestVerifyMLSAG_SingleInputConservation(t *testing.T) {
	bp := newBackend(t)
	v := rcttest.NewMemView()
	row, _ := ringFor(t, bp, v, 1000, 3, 1)
	in := rcttest.Input{Real: 1, Ring: [][]rcttest.Member{row}}

	tx, owned, err := rcttest.Build(bp, []rcttest.Input{in}, 100, []int64{200}, []uint64{700})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Len(t, tx.Inputs[0].Witness[1], consensus.SigBlobSize(1, 3, false))
	require.NoError(t, consensus.VerifyMLSAG(v, bp, tx, ctxAt(10)))

	raw, err := consensus.MarshalTx(tx)
	require.NoError(t, err)
	parsed, _, err := consensus.ParseTx(raw)
	require.NoError(t, err)
	require.NoError(t, consensus.VerifyMLSAG(v, bp, parsed, ctxAt(10)))

	for _, out := range [][]uint64{{701}, {699}} {
		bad, _, err := rcttest.Build(bp, []rcttest.Input{in}, 100, []int64{200}, out)
		require.NoError(t, err)
		requireReject(t, consensus.VerifyMLSAG(v, bp, bad, ctxAt(10)), consensus.TX_ERR_VERIFY_MLSAG)
	}

	bad, _, err := rcttest.Build(bp, []rcttest.Input{in}, 101, []int64{200}, []uint64{700})
	require.NoError(t, err)
	requireReject(t, consensus.VerifyMLSAG(v, bp, bad, ctxAt(10)), consensus.TX_ERR_VERIFY_MLSAG)
}

func TestVerifyMLSAG_TwoRowsOneInput(t *testing.T) {
	bp := newBackend(t)
	v := rcttest.NewMemView()
	row0, _ := ringFor(t, bp, v, 600, 3, 2)
	row1, _ := ringFor(t, bp, v, 400, 3, 2)
	in := rcttest.Input{Real: 2, Ring: [][]rcttest.Member{row0, row1}}

	tx, _, err := rcttest.Build(bp, []rcttest.Input{in}, 50, nil, []uint64{950})
	require.NoError(t, err)
	require.Len(t, tx.Inputs[0].Witness[1], 320)
	idx, err := consensus.DecodeRingIndices(tx.Inputs[0].Witness[0], 6)
	require.NoError(t, err)
	require.Len(t, idx, 6)
	require.NoError(t, consensus.VerifyMLSAG(v, bp, tx, ctxAt(10)))

	// Flipping a bit in one ss scalar breaks the ring.
	tx.Inputs[0].Witness[1] = append([]byte(nil), tx.Inputs[0].Witness[1]...)
	tx.Inputs[0].Witness[1][100] ^= 0x01
	requireReject(t, consensus.VerifyMLSAG(v, bp, tx, ctxAt(10)), consensus.TX_ERR_VERIFY_MLSAG)
}

func TestVerifyMLSAG_SplitCommitments(t *testing.T) {
	bp := newBackend(t)
	v := rcttest.NewMemView()
	rowA, _ := ringFor(t, bp, v, 600, 3, 0)
	rowB, _ := ringFor(t, bp, v, 400, 3, 1)
	inputs := []rcttest.Input{
		{Real: 0, Ring: [][]rcttest.Member{rowA}},
		{Real: 1, Ring: [][]rcttest.Member{rowB}},
	}

	tx, _, err := rcttest.Build(bp, inputs, 100, nil, []uint64{500, 400})
	require.NoError(t, err)
	require.Len(t, tx.Inputs[0].Witness[1], consensus.SigBlobSize(1, 3, true))
	require.NoError(t, consensus.VerifyMLSAG(v, bp, tx, ctxAt(10)))

	bad, _, err := rcttest.Build(bp, inputs, 100, nil, []uint64{500, 401})
	require.NoError(t, err)
	requireReject(t, consensus.VerifyMLSAG(v, bp, bad, ctxAt(10)), consensus.TX_ERR_VERIFY_COMMIT_TALLY)
}

func TestVerifyMLSAG_SpentKeyImageFromOtherTx(t *testing.T) {
	bp := newBackend(t)
	v := rcttest.NewMemView()
	row, _ := ringFor(t, bp, v, 1000, 3, 0)
	in := rcttest.Input{Real: 0, Ring: [][]rcttest.Member{row}}

	first, _, err := rcttest.Build(bp, []rcttest.Input{in}, 100, nil, []uint64{900})
	require.NoError(t, err)
	second, _, err := rcttest.Build(bp, []rcttest.Input{in}, 200, nil, []uint64{800})
	require.NoError(t, err)

	kis, err := consensus.AnonKeyImages(&first.Inputs[0])
	require.NoError(t, err)
	v.KeyImages[kis[0]] = consensus.KeyImageInfo{Txid: first.TxID(), Height: 10}

	require.NoError(t, consensus.VerifyMLSAG(v, bp, first, ctxAt(10)))
	requireReject(t, consensus.VerifyMLSAG(v, bp, second, ctxAt(10)), consensus.TX_ERR_ANON_DUP_KI)
}
