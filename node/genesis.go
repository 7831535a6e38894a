package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"basalt.dev/node/consensus"
)

// GenesisAlloc maps address strings to starting balances in minor units.
type GenesisAlloc map[string]int64

// LoadGenesisAlloc reads the allocation table from disk. A missing file is
// reported through the second return, not as an error, so the bootstrap can
// fall back to configured defaults.
func LoadGenesisAlloc(path string) (GenesisAlloc, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var alloc GenesisAlloc
	if err := json.Unmarshal(raw, &alloc); err != nil {
		return nil, false, fmt.Errorf("decode genesis alloc: %w", err)
	}
	if err := validateAlloc(alloc); err != nil {
		return nil, false, err
	}
	return alloc, true, nil
}

// SaveGenesisAlloc pretty-prints the allocation table and writes it with an
// atomic rename.
func SaveGenesisAlloc(path string, alloc GenesisAlloc) error {
	if err := validateAlloc(alloc); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(alloc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode genesis alloc: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, raw, 0o644)
}

func validateAlloc(alloc GenesisAlloc) error {
	for addr, balance := range alloc {
		if !consensus.ValidAddress(addr) {
			return fmt.Errorf("genesis alloc: bad address %q", addr)
		}
		if balance < 0 {
			return fmt.Errorf("genesis alloc: negative balance for %q", addr)
		}
	}
	return nil
}

// NewGenesisBlock mints the height-0 block: all-zero parent, empty
// transaction list (zero merkle root), zero difficulty, zero nonce.
func NewGenesisBlock(nowMS uint64) *consensus.Block {
	return &consensus.Block{
		Header: consensus.BlockHeader{
			ParentHash:     consensus.ZeroHash,
			MerkleRoot:     consensus.ZeroHash,
			Height:         0,
			TimestampMS:    nowMS,
			DifficultyBits: 0,
			Nonce:          0,
		},
	}
}

// seedAlloc writes balances absolutely and resets nonces to zero.
func seedAlloc(state *StateStore, alloc GenesisAlloc) {
	for addr, balance := range alloc {
		state.SetBalance(addr, balance)
		state.SetNonce(addr, 0)
	}
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
