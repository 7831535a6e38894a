package node

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"basalt.dev/node/consensus"
)

func TestGenesisAlloc_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis-alloc.json")
	alloc := GenesisAlloc{addrA: 1_000_000, addrB: 500_000}

	if err := SaveGenesisAlloc(path, alloc); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := LoadGenesisAlloc(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("file written but reported absent")
	}
	if len(loaded) != 2 || loaded[addrA] != 1_000_000 || loaded[addrB] != 500_000 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "\n  ") {
		t.Fatalf("allocation file must be pretty-printed:\n%s", raw)
	}
}

func TestGenesisAlloc_AbsentFile(t *testing.T) {
	_, ok, err := LoadGenesisAlloc(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("absent file must not error: %v", err)
	}
	if ok {
		t.Fatalf("absent file reported present")
	}
}

func TestGenesisAlloc_RejectsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis-alloc.json")
	if err := SaveGenesisAlloc(path, GenesisAlloc{"bad addr": 1}); err == nil {
		t.Fatalf("bad address must be rejected")
	}
	if err := SaveGenesisAlloc(path, GenesisAlloc{addrA: -5}); err == nil {
		t.Fatalf("negative balance must be rejected")
	}

	if err := os.WriteFile(path, []byte(`{"`+addrA+`": -1}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := LoadGenesisAlloc(path); err == nil {
		t.Fatalf("negative balance on disk must be rejected")
	}
}

func TestNewGenesisBlock_Shape(t *testing.T) {
	genesis := NewGenesisBlock(genesisTS)
	header := genesis.Header
	if header.ParentHash != consensus.ZeroHash {
		t.Fatalf("genesis parent must be all-zero")
	}
	if header.Height != 0 || header.DifficultyBits != 0 || header.Nonce != 0 {
		t.Fatalf("genesis header wrong: %+v", header)
	}
	if header.MerkleRoot != consensus.ZeroHash || len(genesis.Transactions) != 0 {
		t.Fatalf("genesis must carry no transactions")
	}
	if err := consensus.ValidateBlock(genesis, emptyView{}, genesisTS); err != nil {
		t.Fatalf("genesis fails its own consensus rules: %v", err)
	}
}

type emptyView struct{}

func (emptyView) HeaderByHash([32]byte) (consensus.BlockHeader, bool, error) {
	return consensus.BlockHeader{}, false, nil
}
