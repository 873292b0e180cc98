package store

import (
	"errors"
	"math/rand/v2"
	"sync"

	"go.uber.org/atomic"
)

var ErrSimulatedCrash = errors.New("simulated crash before commit")

// CrashSimulator wraps a KV and aborts roughly one in Ratio update batches
// after the callback has staged its writes but before the engine commits.
// It exists for recovery testing only.
type CrashSimulator struct {
	KV
	Ratio uint64
	// Exit, when set, is called instead of returning the error, to emulate
	// the process dying mid-flush.
	Exit func(code int)

	// mu guards rng; engines may run Update callbacks concurrently.
	mu      sync.Mutex
	rng     *rand.Rand
	batches atomic.Uint64
	crashes atomic.Uint64
}

func NewCrashSimulator(kv KV, ratio uint64, seed uint64) *CrashSimulator {
	return &CrashSimulator{
		KV:    kv,
		Ratio: ratio,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (c *CrashSimulator) Update(fn func(KVTx) error) error {
	c.batches.Inc()
	return c.KV.Update(func(tx KVTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if c.Ratio > 0 && c.roll() {
			c.crashes.Inc()
			if c.Exit != nil {
				c.Exit(1)
			}
			return storageErr("commit", ErrSimulatedCrash)
		}
		return nil
	})
}

func (c *CrashSimulator) roll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Uint64N(c.Ratio) == 0
}

func (c *CrashSimulator) Batches() uint64 { return c.batches.Load() }
func (c *CrashSimulator) Crashes() uint64 { return c.crashes.Load() }
