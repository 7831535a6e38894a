package consensus

import "fmt"

// MaxFutureDriftMS is how far ahead of local wall-clock time a block
// timestamp may claim.
const MaxFutureDriftMS = 60_000

// ChainView is the read surface the consensus rules need from a chain store:
// header lookup by block hash. Both store implementations satisfy it.
type ChainView interface {
	HeaderByHash(hash [32]byte) (BlockHeader, bool, error)
}

// ValidateBlock applies the contextual block rules against a chain view:
//
//  1. An all-zero parent claims the genesis slot (parent height -1); any
//     other parent must be present in the view.
//  2. The height must be exactly parent height + 1.
//  3. The merkle root must commit to the transaction list.
//  4. The header must meet its own proof-of-work target.
//  5. The timestamp must not be more than 60s ahead of nowMS and must be
//     strictly greater than the parent's.
//
// It does not touch account state; stateful checks happen at admission and
// apply time.
func ValidateBlock(block *Block, view ChainView, nowMS uint64) error {
	if block == nil {
		return ruleErr(BLOCK_ERR_PARSE, "nil block")
	}
	if len(block.Transactions) > MaxBlockTxCount {
		return ruleErr(BLOCK_ERR_TX_COUNT_EXCEEDED, "too many transactions")
	}
	header := block.Header

	var parent BlockHeader
	parentKnown := false
	if header.ParentHash == ZeroHash {
		if header.Height != 0 {
			return ruleErr(BLOCK_ERR_HEIGHT_INVALID,
				fmt.Sprintf("genesis parent claims height %d", header.Height))
		}
	} else {
		var ok bool
		var err error
		parent, ok, err = view.HeaderByHash(header.ParentHash)
		if err != nil {
			return err
		}
		if !ok {
			return ruleErr(BLOCK_ERR_LINKAGE_INVALID, "unknown parent")
		}
		parentKnown = true
		if header.Height != parent.Height+1 {
			return ruleErr(BLOCK_ERR_HEIGHT_INVALID,
				fmt.Sprintf("height %d does not extend parent height %d", header.Height, parent.Height))
		}
	}

	merkle, err := BlockMerkleRoot(block.Transactions)
	if err != nil {
		return err
	}
	if header.MerkleRoot != merkle {
		return ruleErr(BLOCK_ERR_MERKLE_INVALID, "merkle root does not commit to transactions")
	}

	if !MeetsTarget(header) {
		return ruleErr(BLOCK_ERR_POW_INVALID, "hash misses difficulty target")
	}

	if header.TimestampMS == 0 {
		return ruleErr(BLOCK_ERR_TIMESTAMP_INVALID, "timestamp must be > 0")
	}
	if header.TimestampMS > nowMS+MaxFutureDriftMS {
		return ruleErr(BLOCK_ERR_TIMESTAMP_INVALID, "timestamp too far in the future")
	}
	if parentKnown && header.TimestampMS <= parent.TimestampMS {
		return ruleErr(BLOCK_ERR_TIMESTAMP_INVALID, "timestamp does not advance past parent")
	}
	return nil
}
