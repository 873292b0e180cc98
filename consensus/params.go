package consensus

import "fmt"

// Wire caps.
const (
	MAX_TX_INPUTS        = 1024
	MAX_TX_OUTPUTS       = 1024
	MAX_BLOCK_TXS        = 10_000
	MAX_STACK_ITEMS      = 64
	MAX_STACK_ITEM_BYTES = 1 << 20
	MAX_SCRIPT_BYTES     = 10_000
	MAX_OUTPUT_DATA      = 1 << 12
	MAX_RANGEPROOF_BYTES = 1 << 16
)

const (
	MAX_ANON_INPUTS = 32
	MAX_RINGSIZE    = 32

	// COIN is the number of base units in one coin.
	COIN      int64 = 100_000_000
	MAX_MONEY int64 = 21_000_000 * COIN

	// DO_FEE tags the fee record in the leading data output.
	DO_FEE byte = 0x06
)

func MoneyRange(v int64) bool { return v >= 0 && v <= MAX_MONEY }

// Params are the consensus parameters relevant to anonymous spends.
type Params struct {
	Name string

	// MinRingSize applies below RingSizeForkHeight, MinRingSizePostFork at
	// and above it.
	MinRingSize         uint32
	MinRingSizePostFork uint32
	RingSizeForkHeight  int32
	MaxRingSize         uint32
	MaxAnonInputs       uint32

	MinRCTOutputDepth int32
	AcceptAnonTxs     bool

	// IsBlacklisted reports whether an anon output position may no longer be
	// used as a ring member. Nil means nothing is blacklisted.
	IsBlacklisted func(pos int64) bool
}

func (p *Params) MinRingSizeAt(height int32) uint32 {
	if p.RingSizeForkHeight > 0 && height >= p.RingSizeForkHeight {
		return p.MinRingSizePostFork
	}
	return p.MinRingSize
}

func (p *Params) blacklisted(pos int64) bool {
	return p.IsBlacklisted != nil && p.IsBlacklisted(pos)
}

func (p *Params) Validate() error {
	if p.MinRingSize < 1 || p.MinRingSizePostFork < 1 {
		return fmt.Errorf("params %s: min ring size must be >= 1", p.Name)
	}
	if p.MaxRingSize < p.MinRingSize || p.MaxRingSize < p.MinRingSizePostFork || p.MaxRingSize > MAX_RINGSIZE {
		return fmt.Errorf("params %s: max ring size %d out of range", p.Name, p.MaxRingSize)
	}
	if p.MaxAnonInputs < 1 || p.MaxAnonInputs > MAX_ANON_INPUTS {
		return fmt.Errorf("params %s: max anon inputs %d out of range", p.Name, p.MaxAnonInputs)
	}
	if p.MinRCTOutputDepth < 1 {
		return fmt.Errorf("params %s: min rct output depth must be >= 1", p.Name)
	}
	return nil
}

func MainnetParams() *Params {
	return &Params{
		Name:                "mainnet",
		MinRingSize:         1,
		MinRingSizePostFork: 3,
		RingSizeForkHeight:  800_000,
		MaxRingSize:         MAX_RINGSIZE,
		MaxAnonInputs:       MAX_ANON_INPUTS,
		MinRCTOutputDepth:   12,
		AcceptAnonTxs:       true,
	}
}

func RegtestParams() *Params {
	return &Params{
		Name:                "regtest",
		MinRingSize:         1,
		MinRingSizePostFork: 3,
		RingSizeForkHeight:  1000,
		MaxRingSize:         MAX_RINGSIZE,
		MaxAnonInputs:       MAX_ANON_INPUTS,
		MinRCTOutputDepth:   2,
		AcceptAnonTxs:       true,
	}
}

func ParamsForNetwork(name string) (*Params, error) {
	switch name {
	case "mainnet", "main":
		return MainnetParams(), nil
	case "regtest", "devnet":
		p := RegtestParams()
		p.Name = name
		return p, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// BlacklistSet adapts a fixed set of positions to Params.IsBlacklisted.
func BlacklistSet(positions []int64) func(int64) bool {
	if len(positions) == 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(positions))
	for _, p := range positions {
		set[p] = struct{}{}
	}
	return func(pos int64) bool {
		_, ok := set[pos]
		return ok
	}
}
