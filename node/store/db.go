package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	BackendBolt   = "bolt"
	BackendBadger = "badger"
)

// DB is the RCT index of one chain directory.
type DB struct {
	chainDir string
	kv       KV
	manifest *Manifest
}

// Options controls how Open builds the engine stack.
type Options struct {
	Backend string
	// CrashRatio, when non-zero, wraps the engine in a CrashSimulator.
	CrashRatio uint64
	CrashSeed  uint64
}

func Open(datadir string, network string, opts Options) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}
	if opts.Backend == "" {
		opts.Backend = BackendBolt
	}
	if opts.Backend != BackendBolt && opts.Backend != BackendBadger {
		return nil, fmt.Errorf("unknown db backend %q", opts.Backend)
	}

	chainDir := ChainDir(datadir, network)
	if err := ensureDir(filepath.Join(chainDir, "db")); err != nil {
		return nil, err
	}

	m, err := readManifest(chainDir)
	switch {
	case err == nil:
		if m.SchemaVersion > SchemaVersionV1 {
			return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
		}
		if m.Network != network || m.Backend != opts.Backend {
			return nil, fmt.Errorf("manifest mismatch: datadir holds %s/%s, requested %s/%s", m.Network, m.Backend, network, opts.Backend)
		}
	case os.IsNotExist(err):
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network, Backend: opts.Backend}
		if err := writeManifestAtomic(chainDir, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var kv KV
	switch opts.Backend {
	case BackendBolt:
		kv, err = OpenBolt(dbPath(chainDir, BackendBolt))
	case BackendBadger:
		kv, err = OpenBadger(dbPath(chainDir, BackendBadger))
	}
	if err != nil {
		return nil, err
	}
	if opts.CrashRatio > 0 {
		kv = NewCrashSimulator(kv, opts.CrashRatio, opts.CrashSeed)
	}
	return &DB{chainDir: chainDir, kv: kv, manifest: m}, nil
}

// NewDB wraps an already open engine, for tests and in-memory use.
func NewDB(kv KV) *DB {
	return &DB{kv: kv}
}

func (d *DB) Close() error {
	if d == nil || d.kv == nil {
		return nil
	}
	return d.kv.Close()
}

func (d *DB) ChainDir() string { return d.chainDir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

// KV exposes the engine, including any crash simulator wrapping it.
func (d *DB) KV() KV { return d.kv }

func (d *DB) View(fn func(*Txn) error) error {
	return d.kv.View(func(tx KVTx) error { return fn(&Txn{kv: tx}) })
}

// Update runs fn in one engine transaction: either all of its writes
// commit or none do.
func (d *DB) Update(fn func(*Txn) error) error {
	return d.kv.Update(func(tx KVTx) error { return fn(&Txn{kv: tx}) })
}
