package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/crypto"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

var (
	ErrNoTip       = errors.New("chain has no tip")
	ErrUndoMissing = errors.New("undo record missing")
	ErrNotExtend   = errors.New("block does not extend tip")
	ErrBusy        = errors.New("rewind in progress")
)

// ChainState is the handle over the anon index. Verification and queries
// take the read lock; connect, disconnect and rewind take the write lock.
// Code that also needs the mempool lock takes this one first.
type ChainState struct {
	mu sync.RWMutex

	db               *store.DB
	params           *consensus.Params
	blind            crypto.BlindProvider
	strictSameHeight bool

	log     *zap.SugaredLogger
	metrics *Metrics
	ctl     *fsm.FSM
}

type ChainStateOptions struct {
	Params           *consensus.Params
	Blind            crypto.BlindProvider
	StrictSameHeight bool
	Logger           *zap.SugaredLogger
	Metrics          *Metrics
}

type ConnectSummary struct {
	Height            int32
	Hash              [32]byte
	AnonOutputsBefore int64
	AnonOutputs       int64
	KeyImages         int
	Compromised       int
	AnonTxs           int
}

type DisconnectSummary struct {
	Height         int32
	Hash           [32]byte
	OutputsRemoved int64
	KeyImages      int
}

type RewindResult struct {
	FromHeight      int32 `json:"from_height"`
	ToHeight        int32 `json:"to_height"`
	Disconnected    int   `json:"disconnected"`
	OutputsBefore   int64 `json:"anon_outputs_before"`
	OutputsAfter    int64 `json:"anon_outputs_after"`
	KeyImagesBefore int   `json:"keyimages_before"`
	KeyImagesAfter  int   `json:"keyimages_after"`
	StrayOutputs    int64 `json:"stray_outputs"`
	StrayKeyImages  int   `json:"stray_keyimages"`
}

func NewChainState(db *store.DB, opts ChainStateOptions) (*ChainState, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if opts.Params == nil {
		return nil, errors.New("nil params")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Blind == nil {
		return nil, errors.New("nil blind provider")
	}
	log := nopLogger(opts.Logger)
	s := &ChainState{
		db:               db,
		params:           opts.Params,
		blind:            opts.Blind,
		strictSameHeight: opts.StrictSameHeight,
		log:              log,
		metrics:          opts.Metrics,
		ctl:              newControllerFSM(log),
	}
	if s.metrics != nil {
		err := db.View(func(tx *store.Txn) error {
			last, err := tx.LastRCTIndex()
			if err != nil {
				return err
			}
			n, err := tx.CountRCTKeyImages()
			if err != nil {
				return err
			}
			s.metrics.anonOutputs.Set(float64(last))
			s.metrics.keyImages.Set(float64(n))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ChainState) Params() *consensus.Params { return s.params }

// State reports the controller state.
func (s *ChainState) State() string { return s.ctl.Current() }

// View runs fn against a consistent snapshot under the read lock.
func (s *ChainState) View(fn func(tx *store.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.View(fn)
}

// Tip returns the active tip. ok is false for an empty chain.
func (s *ChainState) Tip() (tip store.BlockIndexEntry, ok bool, err error) {
	err = s.View(func(tx *store.Txn) error {
		tip, ok, err = tx.Tip()
		return err
	})
	return tip, ok, err
}

// TipHeight is -1 for an empty chain.
func (s *ChainState) TipHeight() (int32, error) {
	tip, ok, err := s.Tip()
	if err != nil {
		return 0, err
	}
	if !ok {
		return -1, nil
	}
	return tip.Height, nil
}

func (s *ChainState) blockContext(height int32) consensus.MLSAGContext {
	return consensus.MLSAGContext{
		SpendHeight:       height,
		InBlock:           true,
		CheckEqualRCTTxid: true,
		StrictSameHeight:  s.strictSameHeight,
		Params:            s.params,
	}
}

// reject records a failed transaction and returns err unchanged.
func (s *ChainState) reject(txid [32]byte, err error) error {
	code, ok := consensus.RejectCode(err)
	switch {
	case !ok:
		s.log.Errorf("tx %x: %v", txid, err)
	case code.Class() == consensus.ClassCrypto:
		s.metrics.rejected(string(code))
		s.log.Errorf("tx %x rejected: %v", txid, err)
	default:
		s.metrics.rejected(string(code))
		s.log.Debugf("tx %x rejected: %s", txid, code)
	}
	return err
}

// ConnectBlock validates every anonymous transaction of b at tip+1 and
// applies the block to the index in one KV transaction. On any error
// nothing is written.
func (s *ChainState) ConnectBlock(b *consensus.Block) (*ConnectSummary, error) {
	if b == nil {
		return nil, errors.New("nil block")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ctl.Is(StateFollowing) {
		return nil, ErrBusy
	}

	var sum ConnectSummary
	err := s.db.Update(func(tx *store.Txn) error {
		sum = ConnectSummary{}
		tip, hasTip, err := tx.Tip()
		if err != nil {
			return err
		}
		var prev [32]byte
		if hasTip {
			sum.Height = tip.Height + 1
			sum.AnonOutputsBefore = tip.AnonOutputs
			prev = tip.Hash
		}
		if b.PrevHash != prev {
			return fmt.Errorf("%w: prev %x, tip %x", ErrNotExtend, b.PrevHash, prev)
		}
		last, err := tx.LastRCTIndex()
		if err != nil {
			return err
		}
		if last != sum.AnonOutputsBefore {
			return fmt.Errorf("%w: anon index at %d, tip records %d", store.ErrStorage, last, sum.AnonOutputsBefore)
		}

		undo := store.UndoRecord{AnonOutputsBefore: sum.AnonOutputsBefore}
		ctx := s.blockContext(sum.Height)
		blockKIs := make(map[consensus.KeyImage]struct{})

		for i, t := range b.Txs {
			txid := t.TxID()
			if t.HasAnonInputs() {
				if err := consensus.VerifyMLSAG(tx, s.blind, t, ctx); err != nil {
					return fmt.Errorf("tx %d: %w", i, s.reject(txid, err))
				}
				sum.AnonTxs++
				for n := range t.Inputs {
					in := &t.Inputs[n]
					kis, err := consensus.AnonKeyImages(in)
					if err != nil {
						return fmt.Errorf("tx %d: %w", i, s.reject(txid, err))
					}
					for _, ki := range kis {
						if _, dup := blockKIs[ki]; dup {
							return fmt.Errorf("tx %d: %w", i, s.reject(txid, &consensus.TxError{
								Code: consensus.TX_ERR_ANON_DUP_KI,
								Msg:  "key image " + ki.String() + " spent twice in block",
							}))
						}
						blockKIs[ki] = struct{}{}
						if err := tx.WriteRCTKeyImage(ki, consensus.KeyImageInfo{Txid: txid, Height: sum.Height}); err != nil {
							return err
						}
						undo.KeyImages = append(undo.KeyImages, ki)
					}
					marked, err := markCompromised(tx, in)
					if err != nil {
						return err
					}
					undo.Compromised = append(undo.Compromised, marked...)
				}
			}

			for vout, o := range t.Outputs {
				ro, ok := o.(*consensus.RingCTOutput)
				if !ok {
					continue
				}
				if pos, exists, err := tx.ReadRCTOutputLink(ro.PubKey); err != nil {
					return err
				} else if exists {
					return fmt.Errorf("tx %d: %w", i, s.reject(txid, &consensus.TxError{
						Code: consensus.TX_ERR_DUPLICATE_ANON_OUT,
						Msg:  fmt.Sprintf("output %d pubkey %s already indexed at %d", vout, ro.PubKey, pos),
					}))
				}
				ao := consensus.AnonOutput{
					PubKey:      ro.PubKey,
					Commitment:  ro.Commitment,
					Outpoint:    consensus.Outpoint{Txid: txid, Vout: uint32(vout)},
					BlockHeight: sum.Height,
				}
				if _, err := tx.AppendRCTOutput(ao); err != nil {
					return err
				}
			}
		}

		if sum.AnonOutputs, err = tx.LastRCTIndex(); err != nil {
			return err
		}
		sum.Hash = b.Hash()
		sum.KeyImages = len(undo.KeyImages)
		sum.Compromised = len(undo.Compromised)

		entry := store.BlockIndexEntry{
			Hash:        sum.Hash,
			PrevHash:    prev,
			Height:      sum.Height,
			AnonOutputs: sum.AnonOutputs,
		}
		if err := tx.WriteUndo(sum.Height, undo); err != nil {
			return err
		}
		if err := tx.WriteBlockIndex(entry); err != nil {
			return err
		}
		return tx.SetTip(entry)
	})
	if err != nil {
		return nil, err
	}

	if m := s.metrics; m != nil {
		m.blocksConnected.Inc()
		m.txVerified.Add(float64(sum.AnonTxs))
		m.anonOutputs.Set(float64(sum.AnonOutputs))
		m.keyImages.Add(float64(sum.KeyImages))
	}
	s.log.Debugf("connected %d %x: anon outputs %d -> %d, key images +%d",
		sum.Height, sum.Hash, sum.AnonOutputsBefore, sum.AnonOutputs, sum.KeyImages)
	return &sum, nil
}

// markCompromised flags the single member of every ring-size-1 row: such a
// spend reveals which output it consumed. It returns the positions whose
// flag it changed.
func markCompromised(tx *store.Txn, in *consensus.TxInput) ([]int64, error) {
	ref, ok := in.AnonInfo()
	if !ok || ref.RingSize != 1 {
		return nil, nil
	}
	positions, err := consensus.DecodeRingIndices(in.Witness[0], int(ref.NumInputs))
	if err != nil {
		return nil, err
	}
	var marked []int64
	for _, pos := range positions {
		ao, found, err := tx.ReadRCTOutput(pos)
		if err != nil {
			return nil, err
		}
		if !found || ao.Compromised != 0 {
			continue
		}
		if err := tx.SetCompromised(pos, 1); err != nil {
			return nil, err
		}
		marked = append(marked, pos)
	}
	return marked, nil
}

// DisconnectTip reverts the tip block using its undo record.
func (s *ChainState) DisconnectTip() (*DisconnectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ctl.Is(StateFollowing) {
		return nil, ErrBusy
	}
	return s.disconnectTipLocked()
}

func (s *ChainState) disconnectTipLocked() (*DisconnectSummary, error) {
	var sum DisconnectSummary
	err := s.db.Update(func(tx *store.Txn) error {
		tip, ok, err := tx.Tip()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoTip
		}
		sum = DisconnectSummary{Height: tip.Height, Hash: tip.Hash}

		undo, ok, err := tx.ReadUndo(tip.Height)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("disconnect %d: %w", tip.Height, ErrUndoMissing)
		}
		for _, ki := range undo.KeyImages {
			if err := tx.EraseRCTKeyImage(ki); err != nil {
				return err
			}
		}
		sum.KeyImages = len(undo.KeyImages)
		for _, pos := range undo.Compromised {
			if pos > undo.AnonOutputsBefore {
				continue
			}
			if err := tx.SetCompromised(pos, 0); err != nil {
				return err
			}
		}
		if sum.OutputsRemoved, err = tx.TruncateRCTOutputs(undo.AnonOutputsBefore); err != nil {
			return err
		}
		if err := tx.EraseUndo(tip.Height); err != nil {
			return err
		}
		if err := tx.EraseBlockIndex(tip.Height); err != nil {
			return err
		}
		if tip.Height == 0 {
			return tx.ClearTip()
		}
		prev, ok, err := tx.ReadBlockIndex(tip.Height - 1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: block index %d missing", store.ErrStorage, tip.Height-1)
		}
		return tx.SetTip(prev)
	})
	if err != nil {
		return nil, err
	}
	if m := s.metrics; m != nil {
		m.blocksRolledBack.Inc()
		m.anonOutputs.Sub(float64(sum.OutputsRemoved))
		m.keyImages.Sub(float64(sum.KeyImages))
	}
	s.log.Debugf("disconnected %d %x: %d outputs, %d key images", sum.Height, sum.Hash, sum.OutputsRemoved, sum.KeyImages)
	return &sum, nil
}

func (s *ChainState) counts() (outputs int64, keyImages int, err error) {
	err = s.db.View(func(tx *store.Txn) error {
		if outputs, err = tx.LastRCTIndex(); err != nil {
			return err
		}
		keyImages, err = tx.CountRCTKeyImages()
		return err
	})
	return outputs, keyImages, err
}

func (s *ChainState) beginRollback() error {
	if err := s.ctl.Event(context.Background(), eventRollback); err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return nil
}

func (s *ChainState) endRollback() {
	if err := s.ctl.Event(context.Background(), eventResume); err != nil {
		s.log.Errorf("controller resume: %v", err)
	}
}

// RewindToHeight disconnects tip blocks until the tip is at height (-1
// empties the chain), each in its own KV transaction, then erases anything
// the index still holds beyond that height. A failure stops the rewind at
// the height reached; the returned result describes that progress.
func (s *ChainState) RewindToHeight(height int32) (*RewindResult, error) {
	if height < -1 {
		return nil, fmt.Errorf("rewind height %d out of range", height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, ok, err := s.tipLocked()
	if err != nil {
		return nil, err
	}
	res := &RewindResult{FromHeight: -1, ToHeight: height}
	if ok {
		res.FromHeight = tip.Height
	}
	if height > res.FromHeight {
		return nil, fmt.Errorf("rewind height %d above tip %d", height, res.FromHeight)
	}

	if err := s.beginRollback(); err != nil {
		return nil, err
	}
	defer s.endRollback()

	if res.OutputsBefore, res.KeyImagesBefore, err = s.counts(); err != nil {
		return nil, err
	}
	s.log.Infof("rewind from %d to %d: anon outputs %d, key images %d",
		res.FromHeight, height, res.OutputsBefore, res.KeyImagesBefore)

	for cur := res.FromHeight; cur > height; cur-- {
		if _, err := s.disconnectTipLocked(); err != nil {
			s.log.Errorf("rewind stopped at %d after %d blocks: %v", cur, res.Disconnected, err)
			res.ToHeight = cur
			return res, err
		}
		res.Disconnected++
	}

	err = s.db.Update(func(tx *store.Txn) error {
		var keep int64
		if height >= 0 {
			target, ok, err := tx.ReadBlockIndex(height)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: block index %d missing", store.ErrStorage, height)
			}
			keep = target.AnonOutputs
		}
		down, err := tx.TruncateRCTOutputs(keep)
		if err != nil {
			return err
		}
		up, err := tx.EraseRCTOutputsAbove(keep)
		if err != nil {
			return err
		}
		res.StrayOutputs = down + up
		res.StrayKeyImages, _, err = tx.EraseRCTKeyImagesAfterHeight(height)
		return err
	})
	if err != nil {
		s.log.Errorf("rewind cleanup at %d: %v", height, err)
		return res, err
	}

	if res.OutputsAfter, res.KeyImagesAfter, err = s.counts(); err != nil {
		return res, err
	}
	s.syncGauges(res.OutputsAfter, res.KeyImagesAfter)
	s.log.Infof("rewound %d blocks to %d: anon outputs %d -> %d, key images %d -> %d, stray outputs %d, stray key images %d",
		res.Disconnected, height, res.OutputsBefore, res.OutputsAfter,
		res.KeyImagesBefore, res.KeyImagesAfter, res.StrayOutputs, res.StrayKeyImages)
	return res, nil
}

// RollbackRCTIndex erases index entries the tip does not account for:
// outputs beyond the tip's recorded count and key images above its height.
// It returns the tip height.
func (s *ChainState) RollbackRCTIndex() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginRollback(); err != nil {
		return 0, err
	}
	defer s.endRollback()

	height := int32(-1)
	var removedOut int64
	var removedKI, totalKI int
	err := s.db.Update(func(tx *store.Txn) error {
		tip, ok, err := tx.Tip()
		if err != nil {
			return err
		}
		var keep int64
		if ok {
			height, keep = tip.Height, tip.AnonOutputs
		}
		// Walk down from the recorded last index first: the upward walk
		// stops at a gap and resets that index.
		down, err := tx.TruncateRCTOutputs(keep)
		if err != nil {
			return err
		}
		up, err := tx.EraseRCTOutputsAbove(keep)
		if err != nil {
			return err
		}
		removedOut = down + up
		s.log.Infof("rollback rct index: last valid %d, removed %d outputs", keep, removedOut)
		removedKI, totalKI, err = tx.EraseRCTKeyImagesAfterHeight(height)
		return err
	})
	if err != nil {
		s.log.Errorf("rollback rct index: %v", err)
		return 0, err
	}
	s.log.Infof("rollback rct index at height %d: removed %d of %d key images", height, removedKI, totalKI)
	if outputs, kis, err := s.counts(); err == nil {
		s.syncGauges(outputs, kis)
	}
	return height, nil
}

func (s *ChainState) tipLocked() (tip store.BlockIndexEntry, ok bool, err error) {
	err = s.db.View(func(tx *store.Txn) error {
		tip, ok, err = tx.Tip()
		return err
	})
	return tip, ok, err
}

func (s *ChainState) syncGauges(outputs int64, keyImages int) {
	if m := s.metrics; m != nil {
		m.anonOutputs.Set(float64(outputs))
		m.keyImages.Set(float64(keyImages))
	}
}

// AcceptToMemoryPool checks tx against the pool and verifies it at tip+1,
// then records its key images in pool. Concurrent calls spending the same
// key image admit at most one transaction.
func (s *ChainState) AcceptToMemoryPool(pool *Mempool, t *consensus.Tx) error {
	if pool == nil || t == nil {
		return errors.New("nil mempool or tx")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	txid := t.TxID()
	if !t.HasAnonInputs() {
		return s.reject(txid, &consensus.TxError{Code: consensus.TX_ERR_ANON_INPUT, Msg: "no anonymous inputs"})
	}
	for n := range t.Inputs {
		if err := pool.CheckConflicts(&t.Inputs[n], txid); err != nil {
			return s.reject(txid, err)
		}
	}
	err := s.db.View(func(tx *store.Txn) error {
		height := int32(0)
		tip, ok, err := tx.Tip()
		if err != nil {
			return err
		}
		if ok {
			height = tip.Height + 1
		}
		return consensus.VerifyMLSAG(tx, s.blind, t, consensus.MLSAGContext{
			SpendHeight:       height,
			CheckEqualRCTTxid: true,
			StrictSameHeight:  s.strictSameHeight,
			Params:            s.params,
		})
	})
	if err != nil {
		return s.reject(txid, err)
	}
	// Verification ran outside the pool lock; re-check while inserting.
	if err := pool.AddKeyImagesChecked(t); err != nil {
		return s.reject(txid, err)
	}
	s.metrics.verified()
	return nil
}
