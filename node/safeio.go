package node

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghost-coin/ghost-core-sub001/consensus"
)

func readFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return readFileFromDir(dir, name)
}

func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

// ReadBlockFile loads a serialized block from path. Files ending in .hex
// hold the block as hex text; anything else is raw bytes.
func ReadBlockFile(path string) (*consensus.Block, []byte, error) {
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(path, ".hex") {
		raw, err = hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
		if err != nil {
			return nil, nil, fmt.Errorf("block hex: %w", err)
		}
	}
	b, err := consensus.ParseBlock(raw)
	if err != nil {
		return nil, nil, err
	}
	return b, raw, nil
}
