package consensus

import "testing"

// testBlock assembles a block whose merkle root commits to txs. The
// timestamp advances with height so contextual rules accept chains built
// from it.
func testBlock(t *testing.T, parent [32]byte, height uint64, difficultyBits uint32, txs ...Transaction) *Block {
	t.Helper()
	root, err := BlockMerkleRoot(txs)
	if err != nil {
		t.Fatalf("merkle: %v", err)
	}
	block, err := BuildBlock(BlockHeader{
		ParentHash:     parent,
		MerkleRoot:     root,
		Height:         height,
		TimestampMS:    1_700_000_000_000 + height,
		DifficultyBits: difficultyBits,
		Nonce:          0,
	}, txs)
	if err != nil {
		t.Fatalf("build block: %v", err)
	}
	return block
}

func TestBuildBlock_TxCountCap(t *testing.T) {
	txs := make([]Transaction, MaxBlockTxCount+1)
	_, err := BuildBlock(BlockHeader{}, txs)
	if CodeOf(err) != BLOCK_ERR_TX_COUNT_EXCEEDED {
		t.Fatalf("expected BLOCK_ERR_TX_COUNT_EXCEEDED, got %v", err)
	}
}

func TestBlockHeaderBytes_Length(t *testing.T) {
	header := BlockHeader{Height: 7, TimestampMS: 9, DifficultyBits: 3, Nonce: 11}
	raw := BlockHeaderBytes(header)
	if len(raw) != BlockHeaderLen {
		t.Fatalf("header length = %d, want %d", len(raw), BlockHeaderLen)
	}
	decoded, err := ParseBlockHeader(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != header {
		t.Fatalf("header round trip mismatch: %+v != %+v", decoded, header)
	}
}

func TestBlockHash_StableUnderReserialization(t *testing.T) {
	block := testBlock(t, ZeroHash, 0, 0, validTx())
	h1 := BlockHash(block.Header)
	raw, err := BlockBytes(block)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := ParseBlock(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if BlockHash(decoded.Header) != h1 {
		t.Fatalf("hash changed across re-serialization")
	}
}

func TestBlockHash_VariesWithNonce(t *testing.T) {
	block := testBlock(t, ZeroHash, 0, 0)
	h1 := BlockHash(block.Header)
	block.Header.Nonce++
	if BlockHash(block.Header) == h1 {
		t.Fatalf("hash did not change with nonce")
	}
}
