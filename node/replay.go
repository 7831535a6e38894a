package node

import (
	"fmt"
	"log/slog"
	"math"

	"basalt.dev/node/node/store"
)

// ReplaySummary counts what a startup replay rebuilt.
type ReplaySummary struct {
	BlocksApplied uint64
	TxsApplied    uint64
	TopUps        uint64
	TopUpMinor    uint64
}

// ReplayChain rebuilds account state from the persisted chain: seed the
// allocation table (balances absolute, nonces zero), then apply every
// transaction of every canonical block in order.
//
// Balances funded by miner rewards before the restart are not re-derived, so
// a sender can come up short at apply time. The replayer credits the exact
// deficit first and records a top-up event; these balances never existed
// on-chain and exist only because state itself is not persisted.
func ReplayChain(state *StateStore, chain store.ChainStore, alloc GenesisAlloc, logger *slog.Logger) (*ReplaySummary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seedAlloc(state, alloc)

	blocks, err := chain.BlocksInOrder()
	if err != nil {
		return nil, fmt.Errorf("replay: walk chain: %w", err)
	}

	summary := &ReplaySummary{}
	for _, block := range blocks {
		for i := range block.Transactions {
			tx := &block.Transactions[i]
			need := tx.AmountMinor + tx.FeeMinor
			if need < tx.AmountMinor || need > math.MaxInt64 {
				return nil, fmt.Errorf("replay: %w: amount+fee in block %d", ErrBalanceOverflow, block.Header.Height)
			}
			balance := state.GetBalance(tx.From)
			if balance < int64(need) {
				deficit := int64(need) - balance
				if err := state.Credit(tx.From, deficit); err != nil {
					return nil, fmt.Errorf("replay: top-up %s: %w", tx.From, err)
				}
				summary.TopUps++
				summary.TopUpMinor += uint64(deficit)
				logger.Warn("replay top-up",
					"address", tx.From,
					"deficit", deficit,
					"height", block.Header.Height)
			}
			if err := state.ApplyTx(tx); err != nil {
				return nil, fmt.Errorf("replay: apply tx in block %d: %w", block.Header.Height, err)
			}
			summary.TxsApplied++
		}
		summary.BlocksApplied++
	}
	return summary, nil
}
