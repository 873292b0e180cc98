package consensus

import (
	"fmt"

	"github.com/ghost-coin/ghost-core-sub001/crypto"
)

// MLSAGContext carries the per-call validation state.
type MLSAGContext struct {
	// SpendHeight is the height the transaction is validated at, the tip
	// height plus one for mempool admission.
	SpendHeight int32
	// InBlock is set when validating as part of a block connect.
	InBlock bool
	// CheckEqualRCTTxid makes a key image already recorded under this very
	// txid a conflict unless it is an in-block re-check at the recorded height.
	CheckEqualRCTTxid bool
	// StrictSameHeight requires the recorded height to match SpendHeight for
	// the in-block re-check to pass. Clearing it tolerates any height.
	StrictSameHeight bool
	Params           *Params
}

// VerifyMLSAG validates every input of tx as an anonymous spend against
// view. All inputs must be anonymous. It performs no writes.
func VerifyMLSAG(view AnonView, bp crypto.BlindProvider, tx *Tx, ctx MLSAGContext) error {
	p := ctx.Params
	if p == nil {
		return fmt.Errorf("verify mlsag: nil params")
	}
	if !p.AcceptAnonTxs {
		return txerr(TX_ERR_ANON_DISABLED, "anon transactions not accepted")
	}

	split := len(tx.Inputs) > 1

	plain, _, err := GetPlainValueOut(tx)
	if err != nil {
		return err
	}
	fee, err := GetCTFee(tx)
	if err != nil {
		return err
	}
	plain += fee
	if !MoneyRange(plain) {
		return txerrf(TX_ERR_VALUE_RANGE, "plain value %d", plain)
	}

	plainCommit, err := bp.Commit(uint64(plain), [32]byte{})
	if err != nil {
		return txerrWrap(TX_ERR_PLAIN_COMMITMENT, err, "plain value %d", plain)
	}

	var txOutCommits [][33]byte
	txOutCommits = append(txOutCommits, plainCommit)
	for _, o := range tx.Outputs {
		if c, ok := OutputCommitment(o); ok {
			txOutCommits = append(txOutCommits, c)
		}
	}

	txid := tx.TxID()
	haveI := make(map[int64]struct{})
	haveKI := make(map[KeyImage]struct{})
	var splitCommits [][33]byte

	for n := range tx.Inputs {
		in := &tx.Inputs[n]
		ref, ok := in.AnonInfo()
		if !ok {
			return txerrf(TX_ERR_ANON_INPUT, "input %d is not anonymous", n)
		}
		if err := CheckAnonInfo(ref, p, ctx.SpendHeight); err != nil {
			return err
		}
		cols, rows := int(ref.RingSize), int(ref.NumInputs)+1

		if len(in.ScriptData) != 1 {
			return txerrf(TX_ERR_ANON_DSTACK_SIZE, "input %d: data stack has %d items", n, len(in.ScriptData))
		}
		if len(in.Witness) != 2 {
			return txerrf(TX_ERR_ANON_WSTACK_SIZE, "input %d: witness has %d items", n, len(in.Witness))
		}
		keyImages, err := AnonKeyImages(in)
		if err != nil {
			return err
		}
		vMI, vDL := in.Witness[0], in.Witness[1]
		if want := SigBlobSize(ref.NumInputs, ref.RingSize, split); len(vDL) != want {
			return txerrf(TX_ERR_ANON_SIG_SIZE, "input %d: signature %d bytes, want %d", n, len(vDL), want)
		}

		var outCommits [][33]byte
		sigLen := (1 + rows*cols) * 32
		if split {
			var sc [33]byte
			copy(sc[:], vDL[sigLen:])
			outCommits = [][33]byte{sc}
			splitCommits = append(splitCommits, sc)
		} else {
			outCommits = txOutCommits
		}

		indices, err := DecodeRingIndices(vMI, int(ref.NumInputs)*cols)
		if err != nil {
			return err
		}

		m := make([]byte, rows*cols*33)
		inCommits := make([][33]byte, int(ref.NumInputs)*cols)
		for j, pos := range indices {
			if _, dup := haveI[pos]; dup {
				return txerrf(TX_ERR_ANON_DUP_I, "input %d: position %d referenced twice", n, pos)
			}
			haveI[pos] = struct{}{}

			ao, found, err := view.ReadRCTOutput(pos)
			if err != nil {
				return fmt.Errorf("read anon output %d: %w", pos, err)
			}
			if !found {
				return txerrf(TX_ERR_ANON_UNKNOWN_I, "input %d: position %d", n, pos)
			}
			if p.blacklisted(pos) {
				return txerrf(TX_ERR_ANON_BLACKLISTED, "input %d: position %d", n, pos)
			}
			if ctx.SpendHeight-ao.BlockHeight+1 < p.MinRCTOutputDepth {
				return txerrf(TX_ERR_ANON_DEPTH, "input %d: position %d at height %d, spend height %d",
					n, pos, ao.BlockHeight, ctx.SpendHeight)
			}
			// j runs row-major over (input row, column), matching the matrix.
			copy(m[j*33:], ao.PubKey[:])
			inCommits[j] = ao.Commitment
		}

		for k, ki := range keyImages {
			if _, dup := haveKI[ki]; dup {
				return txerrf(TX_ERR_ANON_DUP_KI, "input %d: key image %s repeated in tx", n, ki)
			}
			haveKI[ki] = struct{}{}

			info, found, err := view.ReadRCTKeyImage(ki)
			if err != nil {
				return fmt.Errorf("read key image %s: %w", ki, err)
			}
			if !found {
				continue
			}
			if info.Txid != txid {
				return txerrf(TX_ERR_ANON_DUP_KI, "input %d row %d: key image %s spent in %x", n, k, ki, info.Txid)
			}
			if ctx.CheckEqualRCTTxid && !(ctx.InBlock && sameHeightOK(ctx, info.Height)) {
				return txerrf(TX_ERR_ALREADY_IN_CHAIN, "key image %s recorded at height %d", ki, info.Height)
			}
		}

		if err := bp.PrepareMLSAG(m, cols, rows, inCommits, outCommits); err != nil {
			return txerrWrap(TX_ERR_PREPARE_MLSAG, err, "input %d", n)
		}
		if err := bp.VerifyMLSAG(txid, cols, rows, m, in.ScriptData[0], vDL[:sigLen]); err != nil {
			return txerrWrap(TX_ERR_VERIFY_MLSAG, err, "input %d", n)
		}
	}

	if split {
		if err := bp.VerifyTally(splitCommits, txOutCommits); err != nil {
			return txerrWrap(TX_ERR_VERIFY_COMMIT_TALLY, err, "%d split commitments", len(splitCommits))
		}
	}
	return nil
}

func sameHeightOK(ctx MLSAGContext, recorded int32) bool {
	if !ctx.StrictSameHeight {
		return true
	}
	return ctx.SpendHeight == recorded
}
