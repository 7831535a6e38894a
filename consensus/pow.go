package consensus

import (
	"math/big"
	"math/bits"
)

// MeetsTarget tests the proof of work: the header hash must carry at least
// DifficultyBits leading zero bits. Zero bits is trivially satisfied; more
// than 256 is unsatisfiable.
func MeetsTarget(header BlockHeader) bool {
	dbits := header.DifficultyBits
	if dbits == 0 {
		return true
	}
	if dbits > MaxDifficultyBits {
		return false
	}
	hash := BlockHash(header)
	return leadingZeroBits(hash) >= dbits
}

func leadingZeroBits(hash [32]byte) uint32 {
	var n uint32
	for _, b := range hash {
		if b == 0 {
			n += 8
			continue
		}
		n += uint32(bits.LeadingZeros8(b))
		break
	}
	return n
}

// Mine searches nonces for a header meeting the target, starting at the
// template's nonce and trying at most maxTries values. The timestamp is
// frozen: only the nonce varies between attempts. Mine holds no shared locks
// and is the core's only cooperative cancellation point; it reports false on
// exhaustion.
func Mine(template *Block, maxTries uint64) (*Block, bool) {
	if template == nil {
		return nil, false
	}
	header := template.Header
	for i := uint64(0); i < maxTries; i++ {
		if MeetsTarget(header) {
			return &Block{Header: header, Transactions: template.Transactions}, true
		}
		header.Nonce++
	}
	return nil, false
}

// BlockWork is the fork-choice weight of a single header:
// 1 when difficulty is zero, otherwise 1 << min(bits, 256). Cumulative work
// along a chain is the sum of its headers' work and is unbounded, so it is
// carried as a big integer.
func BlockWork(header BlockHeader) *big.Int {
	dbits := header.DifficultyBits
	if dbits == 0 {
		return big.NewInt(1)
	}
	if dbits > MaxDifficultyBits {
		dbits = MaxDifficultyBits
	}
	return new(big.Int).Lsh(big.NewInt(1), uint(dbits))
}
