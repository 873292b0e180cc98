package node

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/crypto"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotIndexed       = errors.New("output not indexed")
	ErrUnknownIndex     = errors.New("unknown index")
)

type LastIndexResult struct {
	LastIndex int64 `json:"lastindex"`
}

type AnonOutputResult struct {
	Index       int64  `json:"index"`
	PublicKey   string `json:"publickey"`
	TxnHash     string `json:"txnhash"`
	N           uint32 `json:"n"`
	BlockHeight int32  `json:"blockheight"`
}

type KeyImageResult struct {
	Spent  bool   `json:"spent"`
	Txid   string `json:"txid,omitempty"`
	Height *int32 `json:"height,omitempty"`
}

type RollbackResult struct {
	Height int32 `json:"height"`
}

// AnonOutput looks an output up by decimal position or hex public key. An
// empty argument returns the tip's anon output count.
func (s *ChainState) AnonOutput(arg string) (any, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		tip, ok, err := s.Tip()
		if err != nil {
			return nil, err
		}
		var last int64
		if ok {
			last = tip.AnonOutputs
		}
		return LastIndexResult{LastIndex: last}, nil
	}

	var res AnonOutputResult
	err := s.View(func(tx *store.Txn) error {
		pos, err := resolveOutputArg(tx, arg)
		if err != nil {
			return err
		}
		ao, ok, err := tx.ReadRCTOutput(pos)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownIndex, pos)
		}
		res = AnonOutputResult{
			Index:       pos,
			PublicKey:   hex.EncodeToString(ao.PubKey[:]),
			TxnHash:     hex.EncodeToString(ao.Outpoint.Txid[:]),
			N:           ao.Outpoint.Vout,
			BlockHeight: ao.BlockHeight,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func resolveOutputArg(tx *store.Txn, arg string) (int64, error) {
	if isDigits(arg) {
		pos, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid index %q", ErrInvalidParameter, arg)
		}
		return pos, nil
	}
	raw, err := hex.DecodeString(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a hexadecimal or decimal string", ErrInvalidParameter, arg)
	}
	if !crypto.IsValidPubKey(raw) {
		return 0, fmt.Errorf("%w: %s is not a valid compressed public key", ErrInvalidParameter, arg)
	}
	var pk consensus.PubKey
	copy(pk[:], raw)
	pos, ok, err := tx.ReadRCTOutputLink(pk)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotIndexed
	}
	return pos, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// CheckKeyImage reports whether a key image is spent in the chain. Height
// is omitted for legacy records.
func (s *ChainState) CheckKeyImage(kiHex string) (KeyImageResult, error) {
	kiHex = strings.TrimSpace(kiHex)
	raw, err := hex.DecodeString(kiHex)
	if err != nil || len(raw) != 33 {
		return KeyImageResult{}, fmt.Errorf("%w: keyimage must be 33 bytes and hex encoded", ErrInvalidParameter)
	}
	var ki consensus.KeyImage
	copy(ki[:], raw)

	var res KeyImageResult
	err = s.View(func(tx *store.Txn) error {
		info, ok, err := tx.ReadRCTKeyImage(ki)
		if err != nil || !ok {
			return err
		}
		res.Spent = true
		res.Txid = hex.EncodeToString(info.Txid[:])
		if info.Height > 0 {
			h := info.Height
			res.Height = &h
		}
		return nil
	})
	return res, err
}

// RollbackIndex is the query form of RollbackRCTIndex.
func (s *ChainState) RollbackIndex() (RollbackResult, error) {
	h, err := s.RollbackRCTIndex()
	if err != nil {
		return RollbackResult{}, err
	}
	return RollbackResult{Height: h}, nil
}
