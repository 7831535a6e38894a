package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"basalt.dev/node/consensus"
	"basalt.dev/node/node/store"
)

func chainBlock(t *testing.T, parent [32]byte, height uint64, txs ...consensus.Transaction) *consensus.Block {
	t.Helper()
	root, err := consensus.BlockMerkleRoot(txs)
	require.NoError(t, err)
	block, err := consensus.BuildBlock(consensus.BlockHeader{
		ParentHash:  parent,
		MerkleRoot:  root,
		Height:      height,
		TimestampMS: genesisTS + height,
	}, txs)
	require.NoError(t, err)
	return block
}

func TestReplayChain_RebuildsState(t *testing.T) {
	chain := store.NewMemory()
	genesis := NewGenesisBlock(genesisTS)
	require.NoError(t, chain.PutBlock(genesis))
	b1 := chainBlock(t, consensus.BlockHash(genesis.Header), 1,
		transfer(addrA, addrB, 100, 1, 0))
	require.NoError(t, chain.PutBlock(b1))
	b2 := chainBlock(t, consensus.BlockHash(b1.Header), 2,
		transfer(addrA, addrB, 200, 2, 1),
		transfer(addrB, addrA, 50, 0, 0))
	require.NoError(t, chain.PutBlock(b2))

	state := NewStateStore()
	summary, err := ReplayChain(state, chain, GenesisAlloc{addrA: 1_000_000, addrB: 500_000}, quietLogger())
	require.NoError(t, err)

	require.Equal(t, uint64(3), summary.BlocksApplied)
	require.Equal(t, uint64(3), summary.TxsApplied)
	require.Equal(t, uint64(0), summary.TopUps)

	require.Equal(t, int64(1_000_000-101-202+50), state.GetBalance(addrA))
	require.Equal(t, int64(500_000+300-50), state.GetBalance(addrB))
	require.Equal(t, uint64(2), state.GetNonce(addrA))
	require.Equal(t, uint64(1), state.GetNonce(addrB))
}

// A sender whose funds came from a pre-restart miner reward has no on-chain
// source after replay. The exact deficit is credited first and counted.
func TestReplayChain_TopsUpUnfundedSender(t *testing.T) {
	chain := store.NewMemory()
	genesis := NewGenesisBlock(genesisTS)
	require.NoError(t, chain.PutBlock(genesis))
	b1 := chainBlock(t, consensus.BlockHash(genesis.Header), 1,
		transfer(addrC, addrB, 60, 1, 0))
	require.NoError(t, chain.PutBlock(b1))

	state := NewStateStore()
	summary, err := ReplayChain(state, chain, GenesisAlloc{addrB: 1000}, quietLogger())
	require.NoError(t, err)

	require.Equal(t, uint64(1), summary.TopUps)
	require.Equal(t, uint64(61), summary.TopUpMinor)
	require.Equal(t, int64(0), state.GetBalance(addrC))
	require.Equal(t, int64(1060), state.GetBalance(addrB))
	require.Equal(t, uint64(1), state.GetNonce(addrC))
}

func TestReplayChain_AllocationsSeededAbsolutely(t *testing.T) {
	chain := store.NewMemory()
	require.NoError(t, chain.PutBlock(NewGenesisBlock(genesisTS)))

	state := NewStateStore()
	state.SetBalance(addrA, 42)
	state.SetNonce(addrA, 7)

	_, err := ReplayChain(state, chain, GenesisAlloc{addrA: 5}, quietLogger())
	require.NoError(t, err)
	require.Equal(t, int64(5), state.GetBalance(addrA))
	require.Equal(t, uint64(0), state.GetNonce(addrA))
}

func TestReplayChain_EmptyStore(t *testing.T) {
	state := NewStateStore()
	summary, err := ReplayChain(state, store.NewMemory(), GenesisAlloc{addrA: 10}, quietLogger())
	require.NoError(t, err)
	require.Equal(t, uint64(0), summary.BlocksApplied)
	require.Equal(t, int64(10), state.GetBalance(addrA))
}
