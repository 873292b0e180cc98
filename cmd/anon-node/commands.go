package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghost-coin/ghost-core-sub001/node"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

type infoResult struct {
	Network          string `json:"network"`
	Backend          string `json:"db_backend"`
	ChainDir         string `json:"chain_dir"`
	State            string `json:"state"`
	Height           int32  `json:"height"`
	TipHash          string `json:"tip_hash,omitempty"`
	LastIndex        int64  `json:"lastindex"`
	KeyImages        int    `json:"keyimages"`
	StoredBlocks     int32  `json:"stored_blocks"`
	ArchivedBlocks   int32  `json:"archived_blocks"`
	StrictSameHeight bool   `json:"strict_same_height_recheck"`
	// Metrics is this process's collector snapshot, keyed by metric name
	// and summed over labels.
	Metrics map[string]float64 `json:"metrics"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "prints the index tip and counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.chain == nil {
				return errNoChain
			}
			res := infoResult{
				Network:          a.cfg.Network,
				Backend:          a.cfg.DBBackend,
				ChainDir:         a.db.ChainDir(),
				State:            a.chain.State(),
				Height:           -1,
				StrictSameHeight: a.cfg.StrictSameHeight,
			}
			err := a.chain.View(func(tx *store.Txn) error {
				tip, ok, err := tx.Tip()
				if err != nil {
					return err
				}
				if ok {
					res.Height = tip.Height
					res.TipHash = hex.EncodeToString(tip.Hash[:])
				}
				if res.LastIndex, err = tx.LastRCTIndex(); err != nil {
					return err
				}
				res.KeyImages, err = tx.CountRCTKeyImages()
				return err
			})
			if err != nil {
				return err
			}
			h, _, err := a.blocks.Tip()
			if err != nil {
				return err
			}
			res.StoredBlocks = h + 1
			res.ArchivedBlocks = a.blocks.ArchivedHeight() + 1
			if res.Metrics, err = a.metricsSnapshot(); err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func newAnonOutputCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "anonoutput [index|pubkey]",
		Short: "looks up an anon output by position or public key, or prints the last index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if a.chain == nil {
				return errNoChain
			}
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			res, err := a.chain.AnonOutput(arg)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func newCheckKeyImageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkkeyimage <keyimage hex>",
		Short: "reports whether a key image is spent",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if a.chain == nil {
				return errNoChain
			}
			res, err := a.chain.CheckKeyImage(args[0])
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func newRollbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollbackrctindex",
		Short: "removes anon outputs and key images beyond the current tip",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.chain == nil {
				return errNoChain
			}
			res, err := a.chain.RollbackIndex()
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func newRewindCmd(a *app) *cobra.Command {
	var height int32
	cmd := &cobra.Command{
		Use:   "rewind --height <h>",
		Short: "disconnects blocks until the tip is at the given height (-1 empties the index)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.chain == nil {
				return errNoChain
			}
			res, rewindErr := a.chain.RewindToHeight(height)
			if res != nil {
				stored, _, err := a.blocks.Tip()
				if err != nil {
					return err
				}
				if stored > res.ToHeight {
					if err := a.blocks.RewindToHeight(res.ToHeight); err != nil {
						return err
					}
				}
				if err := a.printJSON(res); err != nil {
					return err
				}
			}
			return rewindErr
		},
	}
	cmd.Flags().Int32Var(&height, "height", 0, "target tip height")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

type connectResult struct {
	Height            int32  `json:"height"`
	Hash              string `json:"hash"`
	AnonTxs           int    `json:"anon_txs"`
	AnonOutputsBefore int64  `json:"anon_outputs_before"`
	AnonOutputs       int64  `json:"anon_outputs"`
	KeyImages         int    `json:"keyimages"`
	Compromised       int    `json:"compromised"`
}

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <blockfile>...",
		Short: "applies serialized blocks (raw or .hex) on top of the tip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if a.chain == nil {
				return errNoChain
			}
			for _, path := range args {
				b, raw, err := node.ReadBlockFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				sum, err := a.chain.ConnectBlock(b)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if _, err := a.blocks.PutBlock(sum.Height, raw, sum.AnonOutputs); err != nil {
					return fmt.Errorf("%s: store block: %w", path, err)
				}
				err = a.printJSON(connectResult{
					Height:            sum.Height,
					Hash:              hex.EncodeToString(sum.Hash[:]),
					AnonTxs:           sum.AnonTxs,
					AnonOutputsBefore: sum.AnonOutputsBefore,
					AnonOutputs:       sum.AnonOutputs,
					KeyImages:         sum.KeyImages,
					Compromised:       sum.Compromised,
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
