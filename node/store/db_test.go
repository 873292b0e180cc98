package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/atomic"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

func testOutput(seed byte, height int32) consensus.AnonOutput {
	var ao consensus.AnonOutput
	ao.PubKey[0] = 0x02
	ao.PubKey[1] = seed
	ao.Commitment[0] = 0x03
	ao.Commitment[1] = seed
	ao.Outpoint.Txid[0] = seed
	ao.Outpoint.Vout = uint32(seed)
	ao.BlockHeight = height
	return ao
}

func testKeyImage(seed byte) consensus.KeyImage {
	var ki consensus.KeyImage
	ki[0] = 0x02
	ki[32] = seed
	return ki
}

// backends returns one open DB per engine.
func backends(t *testing.T) map[string]*DB {
	t.Helper()
	bk, err := OpenBolt(filepath.Join(t.TempDir(), "rct.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	gk, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	out := map[string]*DB{BackendBolt: NewDB(bk), BackendBadger: NewDB(gk)}
	for _, db := range out {
		db := db
		t.Cleanup(func() { _ = db.Close() })
	}
	return out
}

func TestDB_AppendReadLink(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var positions []int64
			if err := db.Update(func(tx *Txn) error {
				for i := byte(1); i <= 3; i++ {
					pos, err := tx.AppendRCTOutput(testOutput(i, 10))
					if err != nil {
						return err
					}
					positions = append(positions, pos)
				}
				return nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			for i, pos := range positions {
				if pos != int64(i+1) {
					t.Fatalf("positions not contiguous from 1: %v", positions)
				}
			}

			err := db.View(func(tx *Txn) error {
				last, err := tx.LastRCTIndex()
				if err != nil {
					return err
				}
				if last != 3 {
					t.Fatalf("LastRCTIndex=%d want 3", last)
				}
				for _, pos := range positions {
					ao, ok, err := tx.ReadRCTOutput(pos)
					if err != nil || !ok {
						t.Fatalf("ReadRCTOutput(%d): ok=%v err=%v", pos, ok, err)
					}
					if ao != testOutput(byte(pos), 10) {
						t.Fatalf("ReadRCTOutput(%d) mismatch: %+v", pos, ao)
					}
					linked, ok, err := tx.ReadRCTOutputLink(ao.PubKey)
					if err != nil || !ok || linked != pos {
						t.Fatalf("link for %d: got %d ok=%v err=%v", pos, linked, ok, err)
					}
				}
				if _, ok, err := tx.ReadRCTOutput(4); err != nil || ok {
					t.Fatalf("ReadRCTOutput(4): ok=%v err=%v", ok, err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("View: %v", err)
			}
		})
	}
}

func TestDB_EraseRCTOutputIdempotent(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := db.Update(func(tx *Txn) error {
				pos, err := tx.AppendRCTOutput(testOutput(7, 1))
				if err != nil {
					return err
				}
				if err := tx.EraseRCTOutput(pos); err != nil {
					return err
				}
				return tx.EraseRCTOutput(pos)
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			_ = db.View(func(tx *Txn) error {
				if _, ok, _ := tx.ReadRCTOutput(1); ok {
					t.Fatalf("forward record survived erase")
				}
				if _, ok, _ := tx.ReadRCTOutputLink(testOutput(7, 1).PubKey); ok {
					t.Fatalf("reverse link survived erase")
				}
				return nil
			})
		})
	}
}

func TestDB_EraseKeepsForeignLink(t *testing.T) {
	db := NewDB(mustBadger(t))
	ao := testOutput(5, 1)
	err := db.Update(func(tx *Txn) error {
		if err := tx.WriteRCTOutput(1, ao); err != nil {
			return err
		}
		// The link points at a different position; erasing 1 must leave it.
		if err := tx.WriteRCTOutputLink(ao.PubKey, 9); err != nil {
			return err
		}
		return tx.EraseRCTOutput(1)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = db.View(func(tx *Txn) error {
		pos, ok, err := tx.ReadRCTOutputLink(ao.PubKey)
		if err != nil || !ok || pos != 9 {
			t.Fatalf("link: pos=%d ok=%v err=%v", pos, ok, err)
		}
		return nil
	})
}

func TestDB_KeyImagesAfterHeight(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := db.Update(func(tx *Txn) error {
				for i, h := range []int32{5, 6, 7, 8} {
					info := consensus.KeyImageInfo{Height: h}
					info.Txid[0] = byte(i)
					if err := tx.WriteRCTKeyImage(testKeyImage(byte(i)), info); err != nil {
						return err
					}
				}
				var legacyTxid [32]byte
				legacyTxid[0] = 0xee
				return tx.WriteLegacyRCTKeyImage(testKeyImage(0xee), legacyTxid)
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}

			var removed, total int
			err = db.Update(func(tx *Txn) error {
				var err error
				removed, total, err = tx.EraseRCTKeyImagesAfterHeight(6)
				return err
			})
			if err != nil {
				t.Fatalf("EraseRCTKeyImagesAfterHeight: %v", err)
			}
			if removed != 2 || total != 5 {
				t.Fatalf("removed=%d total=%d, want 2/5", removed, total)
			}

			_ = db.View(func(tx *Txn) error {
				for i, want := range []bool{true, true, false, false} {
					_, ok, err := tx.ReadRCTKeyImage(testKeyImage(byte(i)))
					if err != nil || ok != want {
						t.Fatalf("key image %d: ok=%v want %v err=%v", i, ok, want, err)
					}
				}
				info, ok, err := tx.ReadRCTKeyImage(testKeyImage(0xee))
				if err != nil || !ok {
					t.Fatalf("legacy key image: ok=%v err=%v", ok, err)
				}
				if info.Height != -1 || info.Txid[0] != 0xee {
					t.Fatalf("legacy key image decoded as %+v", info)
				}
				n, err := tx.CountRCTKeyImages()
				if err != nil || n != 3 {
					t.Fatalf("CountRCTKeyImages=%d err=%v", n, err)
				}
				return nil
			})
		})
	}
}

func TestDB_TruncateAndRepair(t *testing.T) {
	db := NewDB(mustBadger(t))
	err := db.Update(func(tx *Txn) error {
		for i := byte(1); i <= 5; i++ {
			if _, err := tx.AppendRCTOutput(testOutput(i, 1)); err != nil {
				return err
			}
		}
		n, err := tx.TruncateRCTOutputs(3)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("TruncateRCTOutputs removed %d", n)
		}
		// Leave a stray record above the marker, as an interrupted append would.
		if err := tx.WriteRCTOutput(4, testOutput(4, 1)); err != nil {
			return err
		}
		n, err = tx.EraseRCTOutputsAbove(2)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("EraseRCTOutputsAbove removed %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = db.View(func(tx *Txn) error {
		last, _ := tx.LastRCTIndex()
		if last != 2 {
			t.Fatalf("LastRCTIndex=%d want 2", last)
		}
		for pos := int64(3); pos <= 5; pos++ {
			if _, ok, _ := tx.ReadRCTOutput(pos); ok {
				t.Fatalf("position %d survived", pos)
			}
		}
		return nil
	})
}

func TestDB_UpdateErrorRollsBack(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			err := db.Update(func(tx *Txn) error {
				if _, err := tx.AppendRCTOutput(testOutput(1, 1)); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected callback error, got %v", err)
			}
			if errors.Is(err, ErrStorage) {
				t.Fatalf("callback error wrapped as storage failure: %v", err)
			}
			_ = db.View(func(tx *Txn) error {
				if last, _ := tx.LastRCTIndex(); last != 0 {
					t.Fatalf("partial write committed: last=%d", last)
				}
				return nil
			})
		})
	}
}

func TestDB_BlockIndexUndoTip(t *testing.T) {
	db := NewDB(mustBadger(t))
	e := BlockIndexEntry{Height: 4, AnonOutputs: 12}
	e.Hash[0] = 0xaa
	e.PrevHash[0] = 0xbb
	err := db.Update(func(tx *Txn) error {
		if err := tx.WriteBlockIndex(e); err != nil {
			return err
		}
		if err := tx.WriteUndo(4, UndoRecord{AnonOutputsBefore: 10}); err != nil {
			return err
		}
		return tx.SetTip(e)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = db.View(func(tx *Txn) error {
		got, ok, err := tx.ReadBlockIndex(4)
		if err != nil || !ok || got != e {
			t.Fatalf("ReadBlockIndex: %+v ok=%v err=%v", got, ok, err)
		}
		u, ok, err := tx.ReadUndo(4)
		if err != nil || !ok || u.AnonOutputsBefore != 10 {
			t.Fatalf("ReadUndo: %+v ok=%v err=%v", u, ok, err)
		}
		tip, ok, err := tx.Tip()
		if err != nil || !ok || tip != e {
			t.Fatalf("Tip: %+v ok=%v err=%v", tip, ok, err)
		}
		return nil
	})
}

func TestDB_CorruptRecordIsStorageError(t *testing.T) {
	db := NewDB(mustBadger(t))
	_ = db.Update(func(tx *Txn) error {
		return tx.kv.Put(anonOutputKey(1), []byte{1, 2, 3})
	})
	err := db.View(func(tx *Txn) error {
		_, _, err := tx.ReadRCTOutput(1)
		return err
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestDB_KeyLayoutLittleEndian(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := db.Update(func(tx *Txn) error {
				for i := byte(1); i <= 2; i++ {
					if _, err := tx.AppendRCTOutput(testOutput(i, 7)); err != nil {
						return err
					}
				}
				return tx.WriteBlockIndex(BlockIndexEntry{Height: 0x0102, AnonOutputs: 2})
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			err = db.View(func(tx *Txn) error {
				for _, key := range [][]byte{
					{'A', 0x02, 0, 0, 0, 0, 0, 0, 0},
					{'B', 0x02, 0x01, 0, 0},
				} {
					v, err := tx.kv.Get(key)
					if err != nil {
						return err
					}
					if v == nil {
						t.Fatalf("no record under key %x", key)
					}
				}
				v, err := tx.kv.Get([]byte{'A', 0, 0, 0, 0, 0, 0, 0, 0x02})
				if err != nil {
					return err
				}
				if v != nil {
					t.Fatalf("record stored under a big-endian key")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("view: %v", err)
			}
		})
	}
}

func TestOpen_ManifestPinsBackend(t *testing.T) {
	datadir := t.TempDir()
	db, err := Open(datadir, "regtest", Options{Backend: BackendBolt})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m := db.Manifest(); m == nil || m.Network != "regtest" || m.Backend != BackendBolt {
		t.Fatalf("manifest: %+v", db.Manifest())
	}
	if _, err := os.Stat(filepath.Join(db.ChainDir(), "MANIFEST.json")); err != nil {
		t.Fatalf("manifest file: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Open(datadir, "regtest", Options{Backend: BackendBadger}); err == nil {
		t.Fatalf("expected backend mismatch error")
	}
	if _, err := Open(datadir, "regtest", Options{Backend: "leveldb"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	db, err = Open(datadir, "regtest", Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = db.Close()
}

func TestCrashSimulator_NoPartialBatch(t *testing.T) {
	sim := NewCrashSimulator(mustBadger(t), 2, 7)
	db := NewDB(sim)

	committed := int64(0)
	for i := 1; i <= 40; i++ {
		seed := byte(i)
		err := db.Update(func(tx *Txn) error {
			if _, err := tx.AppendRCTOutput(testOutput(seed, 1)); err != nil {
				return err
			}
			return tx.WriteRCTKeyImage(testKeyImage(seed), consensus.KeyImageInfo{Height: 1})
		})
		switch {
		case err == nil:
			committed++
		case errors.Is(err, ErrSimulatedCrash) && errors.Is(err, ErrStorage):
		default:
			t.Fatalf("Update %d: %v", i, err)
		}
	}
	if sim.Batches() != 40 {
		t.Fatalf("Batches=%d", sim.Batches())
	}
	if sim.Crashes() == 0 || sim.Crashes() == 40 {
		t.Fatalf("crash ratio not exercised: %d crashes", sim.Crashes())
	}
	if uint64(committed)+sim.Crashes() != 40 {
		t.Fatalf("committed=%d crashes=%d", committed, sim.Crashes())
	}

	_ = db.View(func(tx *Txn) error {
		last, _ := tx.LastRCTIndex()
		if last != committed {
			t.Fatalf("LastRCTIndex=%d committed=%d", last, committed)
		}
		n, _ := tx.CountRCTKeyImages()
		if int64(n) != committed {
			t.Fatalf("key images=%d committed=%d", n, committed)
		}
		return nil
	})
}

func TestCrashSimulator_ConcurrentUpdates(t *testing.T) {
	sim := NewCrashSimulator(mustBadger(t), 3, 5)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	var failed atomic.Uint64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := []byte{'x', byte(w), byte(i)}
				err := sim.Update(func(tx KVTx) error { return tx.Put(key, []byte{1}) })
				if err != nil && !errors.Is(err, ErrSimulatedCrash) {
					failed.Inc()
				}
			}
		}(w)
	}
	wg.Wait()

	if failed.Load() != 0 {
		t.Fatalf("%d updates failed with an unexpected error", failed.Load())
	}
	if sim.Batches() != workers*perWorker {
		t.Fatalf("Batches=%d", sim.Batches())
	}
	if sim.Crashes() == 0 || sim.Crashes() == workers*perWorker {
		t.Fatalf("crash ratio not exercised: %d crashes", sim.Crashes())
	}
}

func mustBadger(t *testing.T) *BadgerKV {
	t.Helper()
	kv, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}
