package node

import (
	"sync"

	"github.com/dolthub/swiss"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

// Mempool tracks the key images of unconfirmed anonymous transactions. It
// has its own lock; callers holding the chain-state lock take it second.
type Mempool struct {
	mu        sync.Mutex
	keyImages *swiss.Map[consensus.KeyImage, [32]byte]
	txs       *swiss.Map[[32]byte, *consensus.Tx]

	log     *zap.SugaredLogger
	metrics *Metrics

	added   atomic.Uint64
	removed atomic.Uint64
}

func NewMempool(log *zap.SugaredLogger, metrics *Metrics) *Mempool {
	return &Mempool{
		keyImages: swiss.NewMap[consensus.KeyImage, [32]byte](1024),
		txs:       swiss.NewMap[[32]byte, *consensus.Tx](256),
		log:       nopLogger(log),
		metrics:   metrics,
	}
}

func txKeyImages(tx *consensus.Tx) ([]consensus.KeyImage, error) {
	var out []consensus.KeyImage
	for n := range tx.Inputs {
		in := &tx.Inputs[n]
		if !in.IsAnon() {
			continue
		}
		kis, err := consensus.AnonKeyImages(in)
		if err != nil {
			return nil, err
		}
		out = append(out, kis...)
	}
	return out, nil
}

// AddKeyImages records every key image of tx under its txid. It fails only
// on a malformed input; conflicts are CheckConflicts' job.
func (m *Mempool) AddKeyImages(tx *consensus.Tx) error {
	kis, err := txKeyImages(tx)
	if err != nil {
		return err
	}
	txid := tx.TxID()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ki := range kis {
		m.keyImages.Put(ki, txid)
	}
	m.txs.Put(txid, tx)
	m.added.Add(uint64(len(kis)))
	m.updateGauge()
	return nil
}

// AddKeyImagesChecked is AddKeyImages with the conflict check made under
// the same lock, so two admissions racing on one key image cannot both
// succeed. Nothing is recorded when a key image belongs to another txid.
func (m *Mempool) AddKeyImagesChecked(tx *consensus.Tx) error {
	kis, err := txKeyImages(tx)
	if err != nil {
		return err
	}
	txid := tx.TxID()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ki := range kis {
		if owner, ok := m.keyImages.Get(ki); ok && owner != txid {
			return &consensus.TxError{
				Code: consensus.TX_ERR_ANON_DUP_KI,
				Msg:  "key image " + ki.String() + " already in mempool",
			}
		}
	}
	for _, ki := range kis {
		m.keyImages.Put(ki, txid)
	}
	m.txs.Put(txid, tx)
	m.added.Add(uint64(len(kis)))
	m.updateGauge()
	return nil
}

// RemoveKeyImages drops the key images tx owns. Entries already claimed by
// another txid are left alone.
func (m *Mempool) RemoveKeyImages(tx *consensus.Tx) {
	kis, err := txKeyImages(tx)
	if err != nil {
		// A malformed tx was never added.
		return
	}
	txid := tx.TxID()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(txid, kis)
}

func (m *Mempool) removeLocked(txid [32]byte, kis []consensus.KeyImage) {
	for _, ki := range kis {
		if owner, ok := m.keyImages.Get(ki); ok && owner == txid {
			m.keyImages.Delete(ki)
			m.removed.Inc()
		}
	}
	m.txs.Delete(txid)
	m.updateGauge()
}

// CheckConflicts rejects in when one of its key images is tracked under a
// txid other than txhash.
func (m *Mempool) CheckConflicts(in *consensus.TxInput, txhash [32]byte) error {
	kis, err := consensus.AnonKeyImages(in)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ki := range kis {
		if owner, ok := m.keyImages.Get(ki); ok && owner != txhash {
			return &consensus.TxError{
				Code: consensus.TX_ERR_ANON_DUP_KI,
				Msg:  "key image " + ki.String() + " already in mempool",
			}
		}
	}
	return nil
}

func (m *Mempool) HaveKeyImage(ki consensus.KeyImage) ([32]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyImages.Get(ki)
}

func (m *Mempool) HaveTx(txid [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs.Has(txid)
}

func (m *Mempool) Size() (txs int, keyImages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs.Count(), m.keyImages.Count()
}

// RemoveForBlock evicts the block's transactions and any pooled transaction
// whose key images the block spent.
func (m *Mempool) RemoveForBlock(b *consensus.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for _, tx := range b.Txs {
		kis, err := txKeyImages(tx)
		if err != nil {
			continue
		}
		txid := tx.TxID()
		if m.txs.Has(txid) {
			m.removeLocked(txid, kis)
			evicted++
		}
		for _, ki := range kis {
			owner, ok := m.keyImages.Get(ki)
			if !ok || owner == txid {
				continue
			}
			if conflict, ok := m.txs.Get(owner); ok {
				if ckis, err := txKeyImages(conflict); err == nil {
					m.removeLocked(owner, ckis)
					evicted++
					m.log.Debugf("evicted %x: key image %s spent in block", owner, ki)
				}
			}
		}
	}
	if evicted > 0 {
		m.log.Debugf("removed %d transactions for block %x", evicted, b.Hash())
	}
}

// Stats returns lifetime key image additions and removals.
func (m *Mempool) Stats() (added, removed uint64) {
	return m.added.Load(), m.removed.Load()
}

func (m *Mempool) updateGauge() {
	if m.metrics != nil {
		m.metrics.mempoolKeyImages.Set(float64(m.keyImages.Count()))
	}
}
