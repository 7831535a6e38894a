package store

import (
	"errors"
	"fmt"
	"math/big"

	"basalt.dev/node/consensus"
)

// ErrUnknownHash is returned by SetHead when the target block is not stored.
var ErrUnknownHash = errors.New("store: unknown block hash")

// ChainStore is the persistent fork-aware block index. Two implementations
// sit behind it: a thread-safe in-memory map for tests and a bbolt-backed
// store for production. All operations are safe for concurrent use.
//
// PutBlock is atomic across its key families: block bytes, height, the
// parent's deduplicated child list, cumulative work, and the head. The head
// moves iff the new block carries strictly more cumulative work, or equal
// work at strictly greater height; remaining ties keep the incumbent. The
// first block stored always becomes head.
type ChainStore interface {
	consensus.ChainView

	PutBlock(block *consensus.Block) error
	GetBlock(hash [32]byte) (*consensus.Block, bool, error)
	GetHead() ([32]byte, bool, error)
	SetHead(hash [32]byte) error
	GetHeight(hash [32]byte) (uint64, bool, error)
	GetTotalWork(hash [32]byte) (*big.Int, bool, error)
	GetChildren(parent [32]byte) ([][32]byte, error)
	Size() (uint64, error)

	// BlocksInOrder walks from the head back to genesis via parent links and
	// returns the chain oldest-first. An empty store yields an empty slice.
	BlocksInOrder() ([]*consensus.Block, error)

	Close() error
}

// headImproves decides whether a candidate displaces the current head.
func headImproves(newWork *big.Int, newHeight uint64, curWork *big.Int, curHeight uint64) bool {
	switch newWork.Cmp(curWork) {
	case 1:
		return true
	case 0:
		return newHeight > curHeight
	default:
		return false
	}
}

// encodeWork serializes cumulative work as 32 bytes big-endian.
func encodeWork(work *big.Int) ([]byte, error) {
	if work == nil || work.Sign() < 0 {
		return nil, fmt.Errorf("store: cumulative work must be non-negative")
	}
	if work.BitLen() > 256 {
		return nil, fmt.Errorf("store: cumulative work exceeds 32 bytes")
	}
	out := make([]byte, 32)
	work.FillBytes(out)
	return out, nil
}

func decodeWork(b []byte) (*big.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("store: work record: expected 32 bytes, got %d", len(b))
	}
	return new(big.Int).SetBytes(b), nil
}

// parentWorkOrZero resolves the cumulative work a child builds on. The
// all-zero parent contributes nothing, as does a parent that is not stored
// (permitted for the genesis slot only; consensus validation rejects unknown
// parents everywhere else).
func parentWorkOrZero(lookup func([32]byte) (*big.Int, bool, error), parent [32]byte) (*big.Int, error) {
	if parent == consensus.ZeroHash {
		return new(big.Int), nil
	}
	work, ok, err := lookup(parent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return work, nil
}

// childListContains scans a concatenation of 32-byte hashes.
func childListContains(list []byte, hash [32]byte) bool {
	for off := 0; off+32 <= len(list); off += 32 {
		if [32]byte(list[off:off+32]) == hash {
			return true
		}
	}
	return false
}

func splitChildList(list []byte) ([][32]byte, error) {
	if len(list)%32 != 0 {
		return nil, fmt.Errorf("store: child list length %d not a multiple of 32", len(list))
	}
	out := make([][32]byte, 0, len(list)/32)
	for off := 0; off < len(list); off += 32 {
		out = append(out, [32]byte(list[off:off+32]))
	}
	return out, nil
}
