package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ghost-coin/ghost-core-sub001/node"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

// app is the state shared by subcommands once the data directory is open.
type app struct {
	v      *viper.Viper
	cfg    node.Config
	log    *zap.SugaredLogger
	db     *store.DB
	chain  *node.ChainState
	blocks *node.BlockStore
	reg    *prometheus.Registry
	out    io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{v: viper.New(), out: stdout}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	a.close()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "anon-node",
		Short:         "operator tool for the RingCT anon output and key image index",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (yaml)")
	flags.String("datadir", "", "data directory")
	flags.String("network", "", "network name (mainnet/regtest)")
	flags.String("db-backend", "", "index backend: bolt|badger")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	for key, name := range map[string]string{
		node.ConfigKeyDataDir:   "datadir",
		node.ConfigKeyNetwork:   "network",
		node.ConfigKeyDBBackend: "db-backend",
		node.ConfigKeyLogLevel:  "log-level",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd == root {
			return nil
		}
		return a.open(configPath)
	}

	root.AddCommand(
		newInfoCmd(a),
		newAnonOutputCmd(a),
		newCheckKeyImageCmd(a),
		newRollbackCmd(a),
		newRewindCmd(a),
		newConnectCmd(a),
		newGetBlockCmd(a),
		newReplayCmd(a),
	)
	return root
}

func (a *app) open(configPath string) error {
	cfg, err := node.LoadConfig(a.v, configPath)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	log, err := node.NewLogger("anon-node", cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log = log

	params, err := cfg.Params()
	if err != nil {
		return err
	}
	bp, err := node.LoadBlindProvider()
	if err != nil {
		return fmt.Errorf("crypto provider: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("datadir create failed: %w", err)
	}
	db, err := store.Open(cfg.DataDir, cfg.Network, store.Options{
		Backend:    cfg.DBBackend,
		CrashRatio: cfg.DBCrashRatio,
	})
	if err != nil {
		return err
	}
	a.db = db

	a.reg = prometheus.NewRegistry()
	chain, err := node.NewChainState(db, node.ChainStateOptions{
		Params:           params,
		Blind:            bp,
		StrictSameHeight: cfg.StrictSameHeight,
		Logger:           log.Named("chainstate"),
		Metrics:          node.NewMetrics(a.reg),
	})
	if err != nil {
		return err
	}
	a.chain = chain

	blocks, err := node.OpenBlockStore(node.BlockStorePath(db.ChainDir()))
	if err != nil {
		return fmt.Errorf("blockstore open failed: %w", err)
	}
	a.blocks = blocks
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.log != nil {
			a.log.Errorf("close index: %v", err)
		}
		a.db = nil
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// metricsSnapshot gathers the registry into name -> value, summing the
// series of labelled metrics.
func (a *app) metricsSnapshot() (map[string]float64, error) {
	families, err := a.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}

var errNoChain = errors.New("index not open")
