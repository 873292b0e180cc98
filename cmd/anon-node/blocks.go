package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghost-coin/ghost-core-sub001/node"
)

type getBlockResult struct {
	Height      int32    `json:"height"`
	Hash        string   `json:"hash"`
	PrevHash    string   `json:"prev_hash"`
	Connected   bool     `json:"connected"`
	AnonOutputs int64    `json:"anon_outputs"`
	Txids       []string `json:"txids"`
	Hex         string   `json:"hex,omitempty"`
}

func newGetBlockCmd(a *app) *cobra.Command {
	var withHex bool
	cmd := &cobra.Command{
		Use:   "getblock <height|hash>",
		Short: "prints an archived block, connected or rewound",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if a.blocks == nil {
				return errNoChain
			}
			rec, err := lookupArchived(a.blocks, args[0])
			if err != nil {
				return err
			}
			b, raw, err := a.blocks.ReadBlock(rec.Hash)
			if err != nil {
				return err
			}
			res := getBlockResult{
				Height:      rec.Height,
				Hash:        hex.EncodeToString(rec.Hash[:]),
				PrevHash:    hex.EncodeToString(b.PrevHash[:]),
				Connected:   rec.Connected,
				AnonOutputs: rec.AnonOutputs,
				Txids:       make([]string, 0, len(b.Txs)),
			}
			for _, tx := range b.Txs {
				id := tx.TxID()
				res.Txids = append(res.Txids, hex.EncodeToString(id[:]))
			}
			if withHex {
				res.Hex = hex.EncodeToString(raw)
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().BoolVar(&withHex, "hex", false, "include the serialized block")
	return cmd
}

func lookupArchived(bs *node.BlockStore, arg string) (node.ArchivedBlock, error) {
	arg = strings.TrimSpace(arg)
	var (
		rec node.ArchivedBlock
		ok  bool
		err error
	)
	if h, perr := strconv.ParseInt(arg, 10, 32); perr == nil {
		rec, ok, err = bs.Archived(int32(h))
	} else {
		raw, derr := hex.DecodeString(arg)
		if derr != nil || len(raw) != 32 {
			return rec, fmt.Errorf("%w: block must be a height or a 32 byte hex hash", node.ErrInvalidParameter)
		}
		var hash [32]byte
		copy(hash[:], raw)
		rec, ok, err = bs.Find(hash)
	}
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, fmt.Errorf("%w: %s", node.ErrBlockNotArchived, arg)
	}
	return rec, nil
}

type replayResult struct {
	FromHeight  int32 `json:"from_height"`
	ToHeight    int32 `json:"to_height"`
	Connected   int   `json:"connected"`
	AnonOutputs int64 `json:"anon_outputs"`
}

var errArchiveDiverged = errors.New("archive does not extend the index tip")

func newReplayCmd(a *app) *cobra.Command {
	var to int32
	cmd := &cobra.Command{
		Use:   "replay [--to <h>]",
		Short: "reconnects archived blocks above the index tip",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.chain == nil {
				return errNoChain
			}
			tip, ok, err := a.chain.Tip()
			if err != nil {
				return err
			}
			res := replayResult{FromHeight: -1, ToHeight: -1}
			if ok {
				res.FromHeight, res.ToHeight, res.AnonOutputs = tip.Height, tip.Height, tip.AnonOutputs
				rec, found, err := a.blocks.Archived(tip.Height)
				if err != nil {
					return err
				}
				if !found || rec.Hash != tip.Hash {
					return fmt.Errorf("%w: height %d", errArchiveDiverged, tip.Height)
				}
			}
			last := a.blocks.ArchivedHeight()
			if to >= 0 && to < last {
				last = to
			}
			for h := res.FromHeight + 1; h <= last; h++ {
				rec, _, err := a.blocks.Archived(h)
				if err != nil {
					return err
				}
				b, raw, err := a.blocks.ReadBlock(rec.Hash)
				if err != nil {
					return err
				}
				sum, err := a.chain.ConnectBlock(b)
				if err != nil {
					return fmt.Errorf("replay %d: %w", h, err)
				}
				if sum.AnonOutputs != rec.AnonOutputs {
					return fmt.Errorf("replay %d: %d anon outputs, archived %d", h, sum.AnonOutputs, rec.AnonOutputs)
				}
				if _, err := a.blocks.PutBlock(h, raw, sum.AnonOutputs); err != nil {
					return err
				}
				res.ToHeight, res.AnonOutputs = h, sum.AnonOutputs
				res.Connected++
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().Int32Var(&to, "to", -1, "stop at this height (default: last archived)")
	return cmd
}
