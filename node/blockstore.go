package node

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

const (
	blockArchiveVersion = 1
	blockStoreDirName   = "blockstore"
)

var ErrBlockNotArchived = errors.New("block not archived")

// BlockStore archives the raw bytes of connected blocks by hash together
// with the anon output count each one left behind. Rewinding only moves the
// tip; the blocks above it stay archived until a different block is stored
// at their height, so a rewound range can be replayed.
type BlockStore struct {
	root      string
	indexPath string
	blocksDir string
	archive   blockArchive
}

type blockArchive struct {
	Version uint32          `json:"version"`
	Tip     int32           `json:"tip"`
	Blocks  []archivedEntry `json:"blocks"`
}

type archivedEntry struct {
	Hash        string `json:"hash"`
	AnonOutputs int64  `json:"anon_outputs"`
}

// ArchivedBlock describes the block archived at Height.
type ArchivedBlock struct {
	Height      int32
	Hash        [32]byte
	AnonOutputs int64
	// Connected is false for blocks above the tip.
	Connected bool
}

func BlockStorePath(chainDir string) string {
	return filepath.Join(chainDir, blockStoreDirName)
}

func OpenBlockStore(root string) (*BlockStore, error) {
	bs := &BlockStore{
		root:      root,
		indexPath: filepath.Join(root, "archive.json"),
		blocksDir: filepath.Join(root, "blocks"),
	}
	if err := os.MkdirAll(bs.blocksDir, 0o750); err != nil {
		return nil, err
	}
	archive, err := loadBlockArchive(bs.indexPath)
	if err != nil {
		return nil, err
	}
	bs.archive = archive
	return bs, nil
}

// PutBlock archives raw as the block connected at height and makes it the
// tip. A different block at an archived height drops everything from that
// height up.
func (bs *BlockStore) PutBlock(height int32, raw []byte, anonOutputs int64) ([32]byte, error) {
	var hash [32]byte
	if height < 0 {
		return hash, fmt.Errorf("invalid height: %d", height)
	}
	if height > bs.archive.Tip+1 {
		return hash, fmt.Errorf("height gap: got %d, tip %d", height, bs.archive.Tip)
	}
	b, err := consensus.ParseBlock(raw)
	if err != nil {
		return hash, err
	}
	hash = b.Hash()
	hashHex := hex.EncodeToString(hash[:])
	if err := writeFileIfAbsent(filepath.Join(bs.blocksDir, hashHex+".bin"), raw); err != nil {
		return hash, err
	}

	entry := archivedEntry{Hash: hashHex, AnonOutputs: anonOutputs}
	next := bs.archive
	switch {
	case int(height) == len(next.Blocks):
		next.Blocks = append(next.Blocks, entry)
	case next.Blocks[height] != entry:
		next.Blocks = append(next.Blocks[:height:height], entry)
	}
	next.Tip = height
	if err := saveBlockArchive(bs.indexPath, next); err != nil {
		return hash, err
	}
	bs.archive = next
	return hash, nil
}

// RewindToHeight moves the tip down to height; -1 leaves no connected block.
func (bs *BlockStore) RewindToHeight(height int32) error {
	if height < -1 || height > bs.archive.Tip {
		return fmt.Errorf("rewind height %d out of range [-1,%d]", height, bs.archive.Tip)
	}
	next := bs.archive
	next.Tip = height
	if err := saveBlockArchive(bs.indexPath, next); err != nil {
		return err
	}
	bs.archive = next
	return nil
}

// Tip returns height -1 when no archived block is connected.
func (bs *BlockStore) Tip() (int32, [32]byte, error) {
	if bs.archive.Tip < 0 {
		return -1, [32]byte{}, nil
	}
	a, _, err := bs.Archived(bs.archive.Tip)
	return a.Height, a.Hash, err
}

// ArchivedHeight is the highest archived height, connected or not.
func (bs *BlockStore) ArchivedHeight() int32 {
	return int32(len(bs.archive.Blocks)) - 1
}

func (bs *BlockStore) Archived(height int32) (ArchivedBlock, bool, error) {
	if height < 0 || height > bs.ArchivedHeight() {
		return ArchivedBlock{}, false, nil
	}
	e := bs.archive.Blocks[height]
	hash, err := parseHex32(fmt.Sprintf("block %d", height), e.Hash)
	if err != nil {
		return ArchivedBlock{}, false, err
	}
	return ArchivedBlock{
		Height:      height,
		Hash:        hash,
		AnonOutputs: e.AnonOutputs,
		Connected:   height <= bs.archive.Tip,
	}, true, nil
}

// Find looks hash up among the archived heights.
func (bs *BlockStore) Find(hash [32]byte) (ArchivedBlock, bool, error) {
	want := hex.EncodeToString(hash[:])
	for h, e := range bs.archive.Blocks {
		if e.Hash == want {
			return bs.Archived(int32(h))
		}
	}
	return ArchivedBlock{}, false, nil
}

// ReadBlock loads an archived block and checks it still hashes to hash.
func (bs *BlockStore) ReadBlock(hash [32]byte) (*consensus.Block, []byte, error) {
	raw, err := readFileFromDir(bs.blocksDir, hex.EncodeToString(hash[:])+".bin")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %x", ErrBlockNotArchived, hash)
	}
	if err != nil {
		return nil, nil, err
	}
	b, err := consensus.ParseBlock(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("archived block %x: %w", hash, err)
	}
	if b.Hash() != hash {
		return nil, nil, fmt.Errorf("archived block %x: content hashes to %x", hash, b.Hash())
	}
	return b, raw, nil
}

func loadBlockArchive(path string) (blockArchive, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return blockArchive{Version: blockArchiveVersion, Tip: -1, Blocks: []archivedEntry{}}, nil
	}
	if err != nil {
		return blockArchive{}, err
	}
	var a blockArchive
	if err := json.Unmarshal(raw, &a); err != nil {
		return blockArchive{}, fmt.Errorf("decode block archive: %w", err)
	}
	if a.Version != blockArchiveVersion {
		return blockArchive{}, fmt.Errorf("unsupported block archive version: %d", a.Version)
	}
	if a.Tip < -1 || int(a.Tip) >= len(a.Blocks) {
		return blockArchive{}, fmt.Errorf("block archive tip %d outside %d blocks", a.Tip, len(a.Blocks))
	}
	for i, e := range a.Blocks {
		if _, err := parseHex32(fmt.Sprintf("block %d", i), e.Hash); err != nil {
			return blockArchive{}, err
		}
	}
	return a, nil
}

func saveBlockArchive(path string, a blockArchive) error {
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(raw, '\n'), 0o640)
}

// writeFileIfAbsent is a no-op when path already holds content.
func writeFileIfAbsent(path string, content []byte) error {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !bytes.Equal(existing, content) {
			return fmt.Errorf("%s exists with different content", path)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return writeFileAtomic(path, content, 0o640)
}

func parseHex32(name, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(value)
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s: expected 32 bytes, got %d", name, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp, mode)
	}
	if werr == nil {
		werr = os.Rename(tmp, path)
	}
	if werr != nil {
		_ = os.Remove(tmp)
	}
	return werr
}
