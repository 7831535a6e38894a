package node

import (
	"errors"
	"fmt"

	"basalt.dev/node/consensus"
)

// Config is the slice of node configuration the core consumes. The CLI and
// server collaborators layer their own options on top.
type Config struct {
	DataDir            string       `json:"data_dir"`
	DifficultyBits     uint32       `json:"difficulty_bits"`
	MaxTxPerBlock      int          `json:"max_tx_per_block"`
	MaxPowTries        uint64       `json:"max_pow_tries"`
	MinFeeMinor        uint64       `json:"min_fee_minor"`
	BlockRewardMinor   uint64       `json:"block_reward_minor"`
	MinerAddress       string       `json:"miner_address"`
	GenesisAllocations GenesisAlloc `json:"genesis_allocations"`
}

func DefaultConfig() Config {
	return Config{
		DifficultyBits:   16,
		MaxTxPerBlock:    1024,
		MaxPowTries:      5_000_000,
		MinFeeMinor:      0,
		BlockRewardMinor: 50,
	}
}

func ValidateConfig(cfg Config) error {
	if cfg.MaxTxPerBlock <= 0 {
		return errors.New("max_tx_per_block must be > 0")
	}
	if cfg.MaxTxPerBlock > consensus.MaxBlockTxCount {
		return fmt.Errorf("max_tx_per_block must be <= %d", consensus.MaxBlockTxCount)
	}
	if cfg.DifficultyBits > consensus.MaxDifficultyBits {
		return fmt.Errorf("difficulty_bits must be <= %d", consensus.MaxDifficultyBits)
	}
	if cfg.DifficultyBits > 0 && cfg.MaxPowTries == 0 {
		return errors.New("max_pow_tries must be > 0 when difficulty_bits > 0")
	}
	if cfg.MinerAddress != "" && !consensus.ValidAddress(cfg.MinerAddress) {
		return fmt.Errorf("invalid miner_address %q", cfg.MinerAddress)
	}
	if err := validateAlloc(cfg.GenesisAllocations); err != nil {
		return err
	}
	return nil
}
