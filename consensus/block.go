package consensus

import "fmt"

// Block is the minimal block shape the anon index needs: a parent link and
// an ordered transaction list. Headers, work and fork choice live elsewhere.
type Block struct {
	PrevHash [32]byte
	Txs      []*Tx
}

// Hash commits to the parent and to every txid in order.
func (b *Block) Hash() [32]byte {
	buf := make([]byte, 0, 32+32*len(b.Txs))
	buf = append(buf, b.PrevHash[:]...)
	for _, tx := range b.Txs {
		id := tx.TxID()
		buf = append(buf, id[:]...)
	}
	return sha3_256(buf)
}

func MarshalBlock(b *Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("nil block")
	}
	out := append([]byte(nil), b.PrevHash[:]...)
	out = AppendCompactSize(out, uint64(len(b.Txs)))
	for i, tx := range b.Txs {
		txb, err := MarshalTx(tx)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		out = append(out, txb...)
	}
	return out, nil
}

func ParseBlock(b []byte) (*Block, error) {
	off := 0
	prev, err := readBytes(b, &off, 32)
	if err != nil {
		return nil, err
	}
	blk := &Block{}
	copy(blk.PrevHash[:], prev)

	n, err := readCompactSize(b, &off)
	if err != nil {
		return nil, err
	}
	if n > MAX_BLOCK_TXS {
		return nil, txerr(TX_ERR_PARSE, "tx_count overflow")
	}
	blk.Txs = make([]*Tx, 0, n)
	for i := uint64(0); i < n; i++ {
		tx, used, err := ParseTx(b[off:])
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		off += used
		blk.Txs = append(blk.Txs, tx)
	}
	if off != len(b) {
		return nil, txerr(TX_ERR_PARSE, "trailing bytes after block")
	}
	return blk, nil
}
