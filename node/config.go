package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
	"github.com/ghost-coin/ghost-core-sub001/node/store"
)

const (
	ConfigKeyNetwork           = "network"
	ConfigKeyDataDir           = "data_dir"
	ConfigKeyDBBackend         = "db_backend"
	ConfigKeyLogLevel          = "log_level"
	ConfigKeyAcceptAnonTxs     = "accept_anon_txs"
	ConfigKeyStrictSameHeight  = "strict_same_height_recheck"
	ConfigKeyMinRCTOutputDepth = "min_rct_output_depth"
	ConfigKeyDBCrashRatio      = "db_crash_ratio"
	ConfigKeyBlacklistedAnon   = "blacklisted_anon"

	envPrefix = "ANON"
)

type Config struct {
	Network   string `json:"network"`
	DataDir   string `json:"data_dir"`
	DBBackend string `json:"db_backend"`
	LogLevel  string `json:"log_level"`

	AcceptAnonTxs bool `json:"accept_anon_txs"`
	// StrictSameHeight: an in-block re-check of a key image recorded under
	// the same txid passes only at the recorded height.
	StrictSameHeight bool `json:"strict_same_height_recheck"`
	// MinRCTOutputDepth overrides the network default when positive.
	MinRCTOutputDepth int32   `json:"min_rct_output_depth"`
	DBCrashRatio      uint64  `json:"db_crash_ratio"`
	BlacklistedAnon   []int64 `json:"blacklisted_anon"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".ghost-anon"
	}
	return filepath.Join(home, ".ghost-anon")
}

func DefaultConfig() Config {
	return Config{
		Network:          "regtest",
		DataDir:          DefaultDataDir(),
		DBBackend:        store.BackendBolt,
		LogLevel:         "info",
		AcceptAnonTxs:    true,
		StrictSameHeight: true,
	}
}

// SetConfigDefaults registers DefaultConfig on v and enables ANON_* env
// overrides.
func SetConfigDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault(ConfigKeyNetwork, def.Network)
	v.SetDefault(ConfigKeyDataDir, def.DataDir)
	v.SetDefault(ConfigKeyDBBackend, def.DBBackend)
	v.SetDefault(ConfigKeyLogLevel, def.LogLevel)
	v.SetDefault(ConfigKeyAcceptAnonTxs, def.AcceptAnonTxs)
	v.SetDefault(ConfigKeyStrictSameHeight, def.StrictSameHeight)
	v.SetDefault(ConfigKeyMinRCTOutputDepth, 0)
	v.SetDefault(ConfigKeyDBCrashRatio, 0)
	v.SetDefault(ConfigKeyBlacklistedAnon, []int64{})
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
}

// LoadConfig reads the config file (if path is set) into v and returns the
// validated result.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	SetConfigDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := ConfigFromViper(v)
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ConfigFromViper(v *viper.Viper) Config {
	blacklist := make([]int64, 0)
	for _, p := range v.GetIntSlice(ConfigKeyBlacklistedAnon) {
		blacklist = append(blacklist, int64(p))
	}
	return Config{
		Network:           strings.TrimSpace(v.GetString(ConfigKeyNetwork)),
		DataDir:           v.GetString(ConfigKeyDataDir),
		DBBackend:         strings.ToLower(strings.TrimSpace(v.GetString(ConfigKeyDBBackend))),
		LogLevel:          v.GetString(ConfigKeyLogLevel),
		AcceptAnonTxs:     v.GetBool(ConfigKeyAcceptAnonTxs),
		StrictSameHeight:  v.GetBool(ConfigKeyStrictSameHeight),
		MinRCTOutputDepth: v.GetInt32(ConfigKeyMinRCTOutputDepth),
		DBCrashRatio:      v.GetUint64(ConfigKeyDBCrashRatio),
		BlacklistedAnon:   blacklist,
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if _, err := consensus.ParamsForNetwork(cfg.Network); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	switch cfg.DBBackend {
	case store.BackendBolt, store.BackendBadger:
	default:
		return fmt.Errorf("invalid db_backend %q", cfg.DBBackend)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MinRCTOutputDepth < 0 {
		return errors.New("min_rct_output_depth must be >= 0")
	}
	for _, pos := range cfg.BlacklistedAnon {
		if pos < 1 {
			return fmt.Errorf("invalid blacklisted_anon position %d", pos)
		}
	}
	return nil
}

// Params derives the consensus parameters for cfg.
func (cfg Config) Params() (*consensus.Params, error) {
	p, err := consensus.ParamsForNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	p.AcceptAnonTxs = cfg.AcceptAnonTxs
	if cfg.MinRCTOutputDepth > 0 {
		p.MinRCTOutputDepth = cfg.MinRCTOutputDepth
	}
	p.IsBlacklisted = consensus.BlacklistSet(cfg.BlacklistedAnon)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
