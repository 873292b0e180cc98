package consensus

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ghost-coin/ghost-core-sub001/crypto"
	"github.com/stretchr/testify/require"
)

type fakeBlind struct {
	prepareCalls int
	verifyCalls  int
	tallyCalls   int
	verifyErr    error
	tallyErr     error
	lastOut      [][33]byte
	tallyIn      [][33]byte
}

func (f *fakeBlind) Commit(v uint64, _ [32]byte) ([33]byte, error) {
	var c [33]byte
	c[0] = 0x09
	binary.LittleEndian.PutUint64(c[1:], v)
	return c, nil
}

func (f *fakeBlind) PrepareMLSAG(_ []byte, _, _ int, _, out [][33]byte) error {
	f.prepareCalls++
	f.lastOut = out
	return nil
}

func (f *fakeBlind) VerifyMLSAG(_ [32]byte, _, _ int, _, _, _ []byte) error {
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeBlind) VerifyTally(in, _ [][33]byte) error {
	f.tallyCalls++
	f.tallyIn = in
	return f.tallyErr
}

type fakeView struct {
	outs map[int64]AnonOutput
	kis  map[KeyImage]KeyImageInfo
	next int64
}

func newFakeView() *fakeView {
	return &fakeView{outs: map[int64]AnonOutput{}, kis: map[KeyImage]KeyImageInfo{}}
}

func (v *fakeView) ReadRCTOutput(pos int64) (AnonOutput, bool, error) {
	ao, ok := v.outs[pos]
	return ao, ok, nil
}

func (v *fakeView) ReadRCTKeyImage(ki KeyImage) (KeyImageInfo, bool, error) {
	info, ok := v.kis[ki]
	return info, ok, nil
}

func (v *fakeView) add(n int, height int32) []int64 {
	pos := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		v.next++
		var ao AnonOutput
		ao.PubKey[0] = 0x02
		binary.LittleEndian.PutUint64(ao.PubKey[1:], uint64(v.next))
		ao.BlockHeight = height
		v.outs[v.next] = ao
		pos = append(pos, v.next)
	}
	return pos
}

// fakeAnonTx builds a structurally valid tx with `inputs` anon inputs of
// nIn x ring, each referencing fresh outputs created at height.
func fakeAnonTx(v *fakeView, nIn, ring uint32, inputs int, height int32) *Tx {
	tx := &Tx{Version: 2, Outputs: []TxOutput{
		&DataOutput{Data: FeeData(100)},
		&StandardOutput{Value: 5},
		&RingCTOutput{Commitment: Commitment{0x08, 0x01}},
	}}
	split := inputs > 1
	for n := 0; n < inputs; n++ {
		pos := v.add(int(nIn*ring), height)
		kis := make([]byte, nIn*33)
		for k := uint32(0); k < nIn; k++ {
			kis[k*33] = 0x03
			kis[k*33+1] = byte(n)
			kis[k*33+2] = byte(k)
		}
		tx.Inputs = append(tx.Inputs, TxInput{
			Ref:        AnonSpendRef{NumInputs: nIn, RingSize: ring},
			ScriptData: [][]byte{kis},
			Witness:    [][]byte{EncodeRingIndices(pos), make([]byte, SigBlobSize(nIn, ring, split))},
		})
	}
	return tx
}

func blockCtx(h int32) MLSAGContext {
	return MLSAGContext{SpendHeight: h, InBlock: true, CheckEqualRCTTxid: true, StrictSameHeight: true, Params: RegtestParams()}
}

func requireCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := RejectCode(err)
	require.True(t, ok, "not a rejection: %v", err)
	require.Equal(t, want, code, "err=%v", err)
}

func TestVerifyMLSAG_Disabled(t *testing.T) {
	v := newFakeView()
	tx := fakeAnonTx(v, 1, 1, 1, 1)
	ctx := blockCtx(10)
	ctx.Params.AcceptAnonTxs = false
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, ctx), TX_ERR_ANON_DISABLED)
}

func TestVerifyMLSAG_ScenarioTwoByThree(t *testing.T) {
	v := newFakeView()
	fb := &fakeBlind{}
	tx := fakeAnonTx(v, 2, 3, 1, 1)
	idx, err := DecodeRingIndices(tx.Inputs[0].Witness[0], 6)
	require.NoError(t, err)
	require.Len(t, idx, 6)
	require.Len(t, tx.Inputs[0].Witness[1], 320)
	require.NoError(t, VerifyMLSAG(v, fb, tx, blockCtx(10)))
	require.Equal(t, 1, fb.verifyCalls)
	require.Equal(t, 0, fb.tallyCalls)

	// Non-split: plain commitment (plain 5 + fee 100) then blinded outputs.
	require.Len(t, fb.lastOut, 2)
	want, _ := fb.Commit(105, [32]byte{})
	require.Equal(t, want, fb.lastOut[0])

	for _, size := range []int{319, 321, 353} {
		fb = &fakeBlind{}
		tx.Inputs[0].Witness[1] = make([]byte, size)
		requireCode(t, VerifyMLSAG(v, fb, tx, blockCtx(10)), TX_ERR_ANON_SIG_SIZE)
		require.Zero(t, fb.prepareCalls+fb.verifyCalls, "crypto ran before size check")
	}

	v2 := newFakeView()
	fb = &fakeBlind{}
	split := fakeAnonTx(v2, 2, 3, 2, 1)
	require.Len(t, split.Inputs[0].Witness[1], 353)
	require.NoError(t, VerifyMLSAG(v2, fb, split, blockCtx(10)))
	require.Equal(t, 2, fb.verifyCalls)
	require.Equal(t, 1, fb.tallyCalls)
	require.Len(t, fb.tallyIn, 2)

	split.Inputs[1].Witness[1] = make([]byte, 320)
	requireCode(t, VerifyMLSAG(v2, &fakeBlind{}, split, blockCtx(10)), TX_ERR_ANON_SIG_SIZE)
}

func TestVerifyMLSAG_StructuralOrder(t *testing.T) {
	v := newFakeView()
	base := func() *Tx { return fakeAnonTx(v, 2, 3, 1, 1) }

	// A plain input is caught when the loop reaches it.
	tx := base()
	tx.Inputs = append([]TxInput{{Ref: SpendRef{}}}, tx.Inputs...)
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_INPUT)

	// Behind a well-formed split-mode anon input as well.
	tx = fakeAnonTx(v, 2, 3, 2, 1)
	tx.Inputs[1] = TxInput{Ref: SpendRef{}}
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_INPUT)

	// Adding an input switches to split mode, so the single-input blob of
	// input 0 no longer has the right size.
	tx = base()
	tx.Inputs = append(tx.Inputs, TxInput{Ref: SpendRef{}})
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_SIG_SIZE)

	tx = base()
	tx.Inputs[0].Ref = AnonSpendRef{NumInputs: 33, RingSize: 3}
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_NUM_INPUTS)

	tx = base()
	tx.Inputs[0].Ref = AnonSpendRef{NumInputs: 2, RingSize: 33}
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_RINGSIZE)

	tx = base()
	tx.Inputs[0].ScriptData = append(tx.Inputs[0].ScriptData, nil)
	tx.Inputs[0].Witness = nil
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_DSTACK_SIZE)

	tx = base()
	tx.Inputs[0].Witness = tx.Inputs[0].Witness[:1]
	tx.Inputs[0].ScriptData[0] = nil
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_WSTACK_SIZE)

	tx = base()
	tx.Inputs[0].ScriptData[0] = make([]byte, 33)
	tx.Inputs[0].Witness[1] = nil
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_KEYIMAGE_SIZE)

	tx = base()
	tx.Inputs[0].Witness[0] = EncodeRingIndices([]int64{1, 2})
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_EXTRACT_I)

	tx = base()
	tx.Outputs = tx.Outputs[1:]
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_FEE_OUTPUT)
}

func TestVerifyMLSAG_RingMembers(t *testing.T) {
	v := newFakeView()

	tx := fakeAnonTx(v, 1, 3, 2, 1)
	// Second input reuses a position of the first.
	tx.Inputs[1].Witness[0] = EncodeRingIndices([]int64{4, 5, 1})
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_DUP_I)

	tx = fakeAnonTx(v, 1, 3, 1, 1)
	tx.Inputs[0].Witness[0] = EncodeRingIndices([]int64{1, 2, 9999})
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_UNKNOWN_I)

	tx = fakeAnonTx(v, 1, 3, 1, 1)
	ctx := blockCtx(10)
	ctx.Params.IsBlacklisted = BlacklistSet([]int64{v.next})
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, ctx), TX_ERR_ANON_BLACKLISTED)
}

func TestVerifyMLSAG_Maturity(t *testing.T) {
	v := newFakeView()
	tx := fakeAnonTx(v, 1, 3, 1, 100)
	for _, tc := range []struct {
		depth  int32
		height int32
		ok     bool
	}{
		{2, 100, false},
		{2, 101, true},
		{3, 100, false},
		{3, 101, false},
		{3, 102, true},
		{12, 110, false},
		{12, 111, true},
	} {
		ctx := blockCtx(tc.height)
		ctx.Params.MinRCTOutputDepth = tc.depth
		err := VerifyMLSAG(v, &fakeBlind{}, tx, ctx)
		if tc.ok {
			require.NoError(t, err, "depth %d spend height %d", tc.depth, tc.height)
		} else {
			requireCode(t, err, TX_ERR_ANON_DEPTH)
		}
	}
}

func TestVerifyMLSAG_KeyImages(t *testing.T) {
	v := newFakeView()
	tx := fakeAnonTx(v, 2, 3, 1, 1)
	copy(tx.Inputs[0].ScriptData[0][33:], tx.Inputs[0].ScriptData[0][:33])
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_DUP_KI)

	tx = fakeAnonTx(v, 1, 3, 1, 1)
	var ki KeyImage
	copy(ki[:], tx.Inputs[0].ScriptData[0])

	v.kis[ki] = KeyImageInfo{Txid: [32]byte{0xee}, Height: 5}
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), TX_ERR_ANON_DUP_KI)

	v.kis[ki] = KeyImageInfo{Txid: tx.TxID(), Height: 10}

	require.NoError(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(10)), "same txid, same height re-check")

	ctx := blockCtx(10)
	ctx.InBlock = false
	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, ctx), TX_ERR_ALREADY_IN_CHAIN)

	ctx.CheckEqualRCTTxid = false
	require.NoError(t, VerifyMLSAG(v, &fakeBlind{}, tx, ctx))

	requireCode(t, VerifyMLSAG(v, &fakeBlind{}, tx, blockCtx(11)), TX_ERR_ALREADY_IN_CHAIN)
	ctx = blockCtx(11)
	ctx.StrictSameHeight = false
	require.NoError(t, VerifyMLSAG(v, &fakeBlind{}, tx, ctx))
}

func TestVerifyMLSAG_CryptoFailures(t *testing.T) {
	v := newFakeView()
	tx := fakeAnonTx(v, 1, 3, 1, 1)
	prim := &crypto.PrimitiveError{Op: "verify_mlsag", Code: crypto.CodeMismatch}
	err := VerifyMLSAG(v, &fakeBlind{verifyErr: prim}, tx, blockCtx(10))
	requireCode(t, err, TX_ERR_VERIFY_MLSAG)
	var pe *crypto.PrimitiveError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, crypto.CodeMismatch, pe.Code)
	require.Contains(t, err.Error(), "rv=5")

	tx = fakeAnonTx(v, 1, 3, 2, 1)
	err = VerifyMLSAG(v, &fakeBlind{tallyErr: prim}, tx, blockCtx(10))
	requireCode(t, err, TX_ERR_VERIFY_COMMIT_TALLY)
}
