package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"basalt.dev/node/consensus"
	"basalt.dev/node/node/store"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DifficultyBits = 0
	cfg.GenesisAllocations = GenesisAlloc{
		addrA: 1_000_000,
		addrB: 500_000,
	}
	return cfg
}

func startedNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	n, err := New(cfg, store.NewMemory(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { require.NoError(t, n.Close()) })
	return n
}

// Genesis-only boot: an empty store gets one block at height 0 and the
// allocation table becomes the visible balances.
func TestNodeStart_GenesisBoot(t *testing.T) {
	n := startedNode(t, testConfig())

	head, ok, err := n.HeadHash()
	require.NoError(t, err)
	require.True(t, ok)
	height, ok, err := n.Chain().GetHeight(head)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), height)

	size, err := n.Chain().Size()
	require.NoError(t, err)
	require.Equal(t, uint64(1), size)

	require.Equal(t, int64(1_000_000), n.State().GetBalance(addrA))
	require.Equal(t, int64(500_000), n.State().GetBalance(addrB))
}

func TestNodeStart_Twice(t *testing.T) {
	n := startedNode(t, testConfig())
	require.Error(t, n.Start())
}

func TestNodeTick_BeforeStart(t *testing.T) {
	n, err := New(testConfig(), store.NewMemory(), quietLogger())
	require.NoError(t, err)
	_, _, err = n.Tick()
	require.Error(t, err)
}

func TestNode_TransferEndToEnd(t *testing.T) {
	n := startedNode(t, testConfig())

	require.NoError(t, n.Mempool().Add(transfer(addrA, addrB, 100, 1, 0)))
	hash, produced, err := n.Tick()
	require.NoError(t, err)
	require.True(t, produced)

	require.Equal(t, int64(999_899), n.State().GetBalance(addrA))
	require.Equal(t, int64(500_100), n.State().GetBalance(addrB))
	require.Equal(t, uint64(1), n.State().GetNonce(addrA))

	head, ok, err := n.HeadHash()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, head)
}

// Nonce ordering at the node surface: a nonce ahead of state is rejected
// with the expected/got pair, the correct nonce is accepted, and a second
// submission for the same (sender, nonce) replaces the first.
func TestNode_NonceOrdering(t *testing.T) {
	n := startedNode(t, testConfig())

	err := n.Mempool().Add(transfer(addrA, addrB, 100, 1, 1))
	var bad *BadNonceError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, uint64(0), bad.Expected)
	require.Equal(t, uint64(1), bad.Got)

	require.NoError(t, n.Mempool().Add(transfer(addrA, addrB, 100, 1, 0)))
	require.NoError(t, n.Mempool().Add(transfer(addrA, addrB, 300, 1, 0)))
	require.Equal(t, 1, n.Mempool().Size())

	_, produced, err := n.Tick()
	require.NoError(t, err)
	require.True(t, produced)
	require.Equal(t, int64(500_300), n.State().GetBalance(addrB))
}

func TestNode_MultiBlockGrowth(t *testing.T) {
	n := startedNode(t, testConfig())

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, n.Mempool().Add(transfer(addrA, addrB, 100, 1, i)))
		_, produced, err := n.Tick()
		require.NoError(t, err)
		require.True(t, produced)
	}

	head, _, err := n.HeadHash()
	require.NoError(t, err)
	height, _, err := n.Chain().GetHeight(head)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
	require.Equal(t, uint64(3), n.State().GetNonce(addrA))
	require.Equal(t, int64(1_000_000-3*101), n.State().GetBalance(addrA))

	blocks, err := n.Chain().BlocksInOrder()
	require.NoError(t, err)
	require.Len(t, blocks, 4)
}

// Restarting against the same chain store replays the persisted blocks into
// fresh state.
func TestNode_RestartReplaysChain(t *testing.T) {
	chain := store.NewMemory()
	cfg := testConfig()

	n1, err := New(cfg, chain, quietLogger())
	require.NoError(t, err)
	require.NoError(t, n1.Start())
	require.NoError(t, n1.Mempool().Add(transfer(addrA, addrB, 100, 1, 0)))
	_, produced, err := n1.Tick()
	require.NoError(t, err)
	require.True(t, produced)

	n2, err := New(cfg, chain, quietLogger())
	require.NoError(t, err)
	require.NoError(t, n2.Start())

	require.Equal(t, int64(999_899), n2.State().GetBalance(addrA))
	require.Equal(t, int64(500_100), n2.State().GetBalance(addrB))
	require.Equal(t, uint64(1), n2.State().GetNonce(addrA))
}

func TestNodeOpen_DurableStore(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()

	n, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())
	require.NoError(t, n.Mempool().Add(transfer(addrA, addrB, 100, 1, 0)))
	_, produced, err := n.Tick()
	require.NoError(t, err)
	require.True(t, produced)
	require.NoError(t, n.Close())

	// The allocation table was written for an empty data dir.
	alloc, ok, err := LoadGenesisAlloc(store.GenesisAllocPath(cfg.DataDir))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1_000_000), alloc[addrA])

	// Reopen: replay rebuilds the same balances from disk.
	n2, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, n2.Start())
	defer func() { require.NoError(t, n2.Close()) }()

	require.Equal(t, int64(999_899), n2.State().GetBalance(addrA))
	require.Equal(t, uint64(1), n2.State().GetNonce(addrA))

	size, err := n2.Chain().Size()
	require.NoError(t, err)
	require.Equal(t, uint64(2), size)
}

// Consensus rejection at the block level: a zero merkle root over a
// non-empty transaction list is refused by validation, which is what the
// producer relies on for its rollback path.
func TestNode_ConsensusRejectsForeignMerkleMismatch(t *testing.T) {
	n := startedNode(t, testConfig())
	head, _, err := n.HeadHash()
	require.NoError(t, err)

	bad := chainBlock(t, head, 1, transfer(addrA, addrB, 100, 1, 0))
	bad.Header.MerkleRoot = consensus.ZeroHash
	err = consensus.ValidateBlock(bad, n.Chain(), genesisTS+consensus.MaxFutureDriftMS)
	require.Equal(t, consensus.BLOCK_ERR_MERKLE_INVALID, consensus.CodeOf(err))
}
