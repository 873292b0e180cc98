// Package rcttest builds signed anonymous transactions for tests. It plays
// the wallet role just far enough to exercise validation.
package rcttest

import (
	"fmt"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/crypto"
)

// Owned is an anon output together with the secrets needed to spend it.
type Owned struct {
	SK         [32]byte
	Blind      [32]byte
	Value      uint64
	PubKey     consensus.PubKey
	Commitment consensus.Commitment
}

// Member is one ring slot: an indexed position and what the index holds
// there. Owner is set only for the real column.
type Member struct {
	Pos   int64
	Out   consensus.AnonOutput
	Owner *Owned
}

// Input describes one anon input: Ring[row][col], real spend at column Real.
type Input struct {
	Real int
	Ring [][]Member
}

func NewOwned(bp *crypto.Secp256k1Blind, value uint64) (*Owned, error) {
	sk, err := crypto.RandomScalar()
	if err != nil {
		return nil, err
	}
	blind, err := crypto.RandomScalar()
	if err != nil {
		return nil, err
	}
	pk, err := crypto.PubKeyFromSecret(sk)
	if err != nil {
		return nil, err
	}
	c, err := bp.Commit(value, blind)
	if err != nil {
		return nil, err
	}
	return &Owned{SK: sk, Blind: blind, Value: value, PubKey: pk, Commitment: c}, nil
}

func (o *Owned) Output() *consensus.RingCTOutput {
	return &consensus.RingCTOutput{PubKey: o.PubKey, Commitment: o.Commitment}
}

// FundingTx creates anon outputs from a plain prevout. Such transactions
// carry no anon inputs, so the ring engine never sees them.
func FundingTx(bp *crypto.Secp256k1Blind, seed byte, values ...uint64) (*consensus.Tx, []*Owned, error) {
	tx := &consensus.Tx{Version: 2}
	var prev consensus.Outpoint
	prev.Txid[0] = seed
	tx.Inputs = []consensus.TxInput{{Ref: consensus.SpendRef{Prevout: prev}, Sequence: 0xffffffff}}
	owned := make([]*Owned, 0, len(values))
	for _, v := range values {
		o, err := NewOwned(bp, v)
		if err != nil {
			return nil, nil, err
		}
		owned = append(owned, o)
		tx.Outputs = append(tx.Outputs, o.Output())
	}
	return tx, owned, nil
}

// Build signs the transaction. The real values must balance:
// sum(real inputs) == Fee + sum(Plain) + sum(AnonOut).
func Build(bp *crypto.Secp256k1Blind, inputs []Input, fee int64, plain []int64, anonOut []uint64) (*consensus.Tx, []*Owned, error) {
	tx := &consensus.Tx{Version: 2}
	tx.Outputs = append(tx.Outputs, &consensus.DataOutput{Data: consensus.FeeData(fee)})
	for _, v := range plain {
		tx.Outputs = append(tx.Outputs, &consensus.StandardOutput{Value: v, Script: []byte{0x51}})
	}
	var outBlinds [][32]byte
	owned := make([]*Owned, 0, len(anonOut))
	for _, v := range anonOut {
		o, err := NewOwned(bp, v)
		if err != nil {
			return nil, nil, err
		}
		owned = append(owned, o)
		outBlinds = append(outBlinds, o.Blind)
		tx.Outputs = append(tx.Outputs, o.Output())
	}

	plainTotal := fee
	for _, v := range plain {
		plainTotal += v
	}
	plainCommit, err := bp.Commit(uint64(plainTotal), [32]byte{})
	if err != nil {
		return nil, nil, err
	}
	txOutCommits := [][33]byte{plainCommit}
	for _, o := range owned {
		txOutCommits = append(txOutCommits, o.Commitment)
	}

	split := len(inputs) > 1
	splitBlinds := make([][32]byte, len(inputs))
	splitCommits := make([][33]byte, len(inputs))
	if split {
		var sumOthers [][32]byte
		for n := range inputs {
			var v uint64
			for k := range inputs[n].Ring {
				v += inputs[n].Ring[k][inputs[n].Real].Owner.Value
			}
			if n < len(inputs)-1 {
				b, err := crypto.RandomScalar()
				if err != nil {
					return nil, nil, err
				}
				splitBlinds[n] = b
				sumOthers = append(sumOthers, b)
			} else {
				b, err := crypto.BlindSum(outBlinds, sumOthers)
				if err != nil {
					return nil, nil, err
				}
				splitBlinds[n] = b
			}
			c, err := bp.Commit(v, splitBlinds[n])
			if err != nil {
				return nil, nil, err
			}
			splitCommits[n] = c
		}
	}

	for n, in := range inputs {
		rows := len(in.Ring)
		cols := len(in.Ring[0])
		kis := make([]byte, 0, rows*33)
		var idx []int64
		for k := 0; k < rows; k++ {
			owner := in.Ring[k][in.Real].Owner
			if owner == nil {
				return nil, nil, fmt.Errorf("input %d row %d: real column has no owner", n, k)
			}
			ki, err := bp.KeyImage(owner.PubKey, owner.SK)
			if err != nil {
				return nil, nil, err
			}
			kis = append(kis, ki[:]...)
			for i := 0; i < cols; i++ {
				idx = append(idx, in.Ring[k][i].Pos)
			}
		}
		tx.Inputs = append(tx.Inputs, consensus.TxInput{
			Ref:        consensus.AnonSpendRef{NumInputs: uint32(rows), RingSize: uint32(cols)},
			Sequence:   0xffffffff,
			ScriptData: [][]byte{kis},
			Witness:    [][]byte{consensus.EncodeRingIndices(idx), nil},
		})
	}

	txid := tx.TxID()
	for n, in := range inputs {
		rows := len(in.Ring) + 1
		cols := len(in.Ring[0])
		m := make([]byte, rows*cols*33)
		inCommits := make([][33]byte, 0, (rows-1)*cols)
		sks := make([][32]byte, 0, rows)
		var realBlinds [][32]byte
		for k := 0; k < rows-1; k++ {
			for i := 0; i < cols; i++ {
				copy(m[(k*cols+i)*33:], in.Ring[k][i].Out.PubKey[:])
				inCommits = append(inCommits, in.Ring[k][i].Out.Commitment)
			}
			owner := in.Ring[k][in.Real].Owner
			sks = append(sks, owner.SK)
			realBlinds = append(realBlinds, owner.Blind)
		}

		outC := txOutCommits
		var rowBlind [32]byte
		if split {
			outC = [][33]byte{splitCommits[n]}
			rowBlind, err = crypto.BlindSum(realBlinds, [][32]byte{splitBlinds[n]})
		} else {
			rowBlind, err = crypto.BlindSum(realBlinds, outBlinds)
		}
		if err != nil {
			return nil, nil, err
		}
		sks = append(sks, rowBlind)

		if err := bp.PrepareMLSAG(m, cols, rows, inCommits, outC); err != nil {
			return nil, nil, err
		}
		_, sig, err := bp.GenerateMLSAG(txid, cols, rows, in.Real, m, sks)
		if err != nil {
			return nil, nil, err
		}
		if split {
			sig = append(sig, splitCommits[n][:]...)
		}
		tx.Inputs[n].Witness[1] = sig
	}
	return tx, owned, nil
}
