package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/consensus/rcttest"
	"github.com/ghost-coin/ghost-core-sub001/crypto"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

type testChain struct {
	t     *testing.T
	db    *store.DB
	cs    *ChainState
	bp    *crypto.Secp256k1Blind
	seed  byte
	owned map[int64]*rcttest.Owned
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	kv, err := store.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return newTestChainOn(t, store.NewDB(kv), nil)
}

func newTestChainOn(t *testing.T, db *store.DB, metrics *Metrics) *testChain {
	t.Helper()
	bp, err := LoadBlindProvider()
	require.NoError(t, err)
	cs, err := NewChainState(db, ChainStateOptions{
		Params:           consensus.RegtestParams(),
		Blind:            bp,
		StrictSameHeight: true,
		Metrics:          metrics,
	})
	require.NoError(t, err)
	return &testChain{t: t, db: db, cs: cs, bp: bp, owned: make(map[int64]*rcttest.Owned)}
}

func (c *testChain) tip() store.BlockIndexEntry {
	c.t.Helper()
	tip, _, err := c.cs.Tip()
	require.NoError(c.t, err)
	return tip
}

func (c *testChain) nextBlock(txs ...*consensus.Tx) *consensus.Block {
	c.t.Helper()
	tip, ok, err := c.cs.Tip()
	require.NoError(c.t, err)
	b := &consensus.Block{Txs: txs}
	if ok {
		b.PrevHash = tip.Hash
	}
	return b
}

// fund connects a block creating one anon output per value and returns the
// ring members for them.
func (c *testChain) fund(values ...uint64) []rcttest.Member {
	c.t.Helper()
	c.seed++
	tx, owned, err := rcttest.FundingTx(c.bp, c.seed, values...)
	require.NoError(c.t, err)
	sum, err := c.cs.ConnectBlock(c.nextBlock(tx))
	require.NoError(c.t, err)
	members := make([]rcttest.Member, len(owned))
	for i, o := range owned {
		pos := sum.AnonOutputsBefore + int64(i) + 1
		c.owned[pos] = o
		members[i] = rcttest.Member{
			Pos:   pos,
			Out:   consensus.AnonOutput{PubKey: o.PubKey, Commitment: o.Commitment},
			Owner: o,
		}
	}
	return members
}

// empty connects n blocks without transactions.
func (c *testChain) empty(n int) {
	c.t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.cs.ConnectBlock(c.nextBlock())
		require.NoError(c.t, err)
	}
}

// spend signs a single-input tx spending ring[realIdx] and paying fee, with
// the remainder to one anon output.
func (c *testChain) spend(ring []rcttest.Member, realIdx int, fee int64) *consensus.Tx {
	c.t.Helper()
	in := rcttest.Input{Real: realIdx, Ring: [][]rcttest.Member{make([]rcttest.Member, len(ring))}}
	for i, m := range ring {
		if i != realIdx {
			m = rcttest.Decoy(m)
		}
		in.Ring[0][i] = m
	}
	value := ring[realIdx].Owner.Value - uint64(fee)
	tx, _, err := rcttest.Build(c.bp, []rcttest.Input{in}, fee, nil, []uint64{value})
	require.NoError(c.t, err)
	return tx
}

func (c *testChain) counts() (int64, int) {
	c.t.Helper()
	out, kis, err := c.cs.counts()
	require.NoError(c.t, err)
	return out, kis
}

func requireReject(t *testing.T, err error, code consensus.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := consensus.RejectCode(err)
	require.True(t, ok, "not a rejection: %v", err)
	require.Equal(t, code, got, "err: %v", err)
}

func keyImagesOf(t *testing.T, tx *consensus.Tx) []consensus.KeyImage {
	t.Helper()
	kis, err := txKeyImages(tx)
	require.NoError(t, err)
	return kis
}
