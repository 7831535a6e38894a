package node

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"basalt.dev/node/consensus"
	"basalt.dev/node/node/store"
)

// ProducerConfig carries the knobs one production attempt consumes.
// NowMS is injectable for tests; nil means wall clock.
type ProducerConfig struct {
	DifficultyBits   uint32
	MaxTxPerBlock    int
	MaxPowTries      uint64
	MinerAddress     string
	BlockRewardMinor uint64
	NowMS            func() uint64
}

// Producer builds, mines, validates, applies and persists one block per
// Tick. It is the sole writer of committed state and of the chain store in
// the single-node case. A failed tick is indistinguishable from no tick to
// external observers, modulo re-queued mempool membership.
type Producer struct {
	mu      sync.Mutex
	cfg     ProducerConfig
	mempool *Mempool
	state   *StateStore
	chain   store.ChainStore
	log     *slog.Logger
}

func NewProducer(cfg ProducerConfig, mempool *Mempool, state *StateStore, chain store.ChainStore, logger *slog.Logger) *Producer {
	if cfg.NowMS == nil {
		cfg.NowMS = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		cfg:     cfg,
		mempool: mempool,
		state:   state,
		chain:   chain,
		log:     logger,
	}
}

// Tick runs one production attempt, transactional end-to-end. It returns the
// new head hash and true when a block was committed, and false when there was
// nothing to mine or the nonce search exhausted its budget. Any error after
// state was touched rolls everything back before returning.
//
// Ticks are serialized by the producer's own lock. The mempool, state and
// chain locks are each taken inside a single component call and never held
// together, so a concurrent reader can observe applied balances before the
// block is persisted. Within PutBlock the chain store commits its key
// families as one batch.
func (p *Producer) Tick() ([32]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent := consensus.ZeroHash
	var height uint64
	var parentHeader consensus.BlockHeader
	parentKnown := false

	headHash, hasHead, err := p.chain.GetHead()
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("producer: read head: %w", err)
	}
	if hasHead {
		parent = headHash
		header, ok, err := p.chain.HeaderByHash(headHash)
		if err != nil {
			return [32]byte{}, false, fmt.Errorf("producer: read head header: %w", err)
		}
		if !ok {
			return [32]byte{}, false, fmt.Errorf("producer: head %x missing from store", headHash)
		}
		parentHeader = header
		parentKnown = true
		height = header.Height + 1
	}

	txs := p.mempool.GetBatch(p.cfg.MaxTxPerBlock)
	if len(txs) == 0 && height > 0 {
		return [32]byte{}, false, nil
	}
	requeue := func() { p.mempool.Requeue(txs) }

	totalFees, err := sumFees(txs)
	if err != nil {
		requeue()
		return [32]byte{}, false, err
	}
	var reward uint64
	if p.cfg.MinerAddress != "" {
		reward = p.cfg.BlockRewardMinor + totalFees
		if reward < totalFees || reward > math.MaxInt64 {
			requeue()
			return [32]byte{}, false, fmt.Errorf("producer: %w: reward", ErrBalanceOverflow)
		}
	}

	// The timestamp is taken once and frozen in the header; the nonce search
	// never re-reads the clock.
	now := p.cfg.NowMS()
	ts := now
	if parentKnown && ts <= parentHeader.TimestampMS {
		ts = parentHeader.TimestampMS + 1
	}

	merkle, err := consensus.BlockMerkleRoot(txs)
	if err != nil {
		requeue()
		return [32]byte{}, false, err
	}
	template, err := consensus.BuildBlock(consensus.BlockHeader{
		ParentHash:     parent,
		MerkleRoot:     merkle,
		Height:         height,
		TimestampMS:    ts,
		DifficultyBits: p.cfg.DifficultyBits,
		Nonce:          0,
	}, txs)
	if err != nil {
		requeue()
		return [32]byte{}, false, err
	}

	block := template
	if p.cfg.DifficultyBits > 0 {
		mined, ok := consensus.Mine(template, p.cfg.MaxPowTries)
		if !ok {
			requeue()
			p.log.Debug("pow budget exhausted", "height", height, "tries", p.cfg.MaxPowTries)
			return [32]byte{}, false, nil
		}
		block = mined
	}

	// Validate against the real wall clock: if the monotonicity bump pushed
	// the timestamp past the drift bound, the tick fails like any other
	// rule rejection instead of certifying its own drift.
	if err := consensus.ValidateBlock(block, p.chain, now); err != nil {
		requeue()
		return [32]byte{}, false, err
	}

	applied := false
	rewarded := false
	rollback := func(cause error) error {
		if rewarded {
			if err := p.state.Credit(p.cfg.MinerAddress, -int64(reward)); err != nil {
				p.log.Error("rollback: undo reward credit", "err", err)
			}
		}
		if applied {
			if err := p.state.RevertBlock(block); err != nil {
				p.log.Error("rollback: revert block", "err", err)
			}
		}
		requeue()
		return cause
	}

	if err := p.state.ApplyBlock(block); err != nil {
		return [32]byte{}, false, rollback(fmt.Errorf("producer: apply state: %w", err))
	}
	applied = true
	if reward > 0 {
		if err := p.state.Credit(p.cfg.MinerAddress, int64(reward)); err != nil {
			return [32]byte{}, false, rollback(fmt.Errorf("producer: credit reward: %w", err))
		}
		rewarded = true
	}

	if err := p.chain.PutBlock(block); err != nil {
		return [32]byte{}, false, rollback(fmt.Errorf("producer: persist block: %w", err))
	}
	p.mempool.RemoveAll(txs)

	hash := consensus.BlockHash(block.Header)
	p.log.Info("block produced",
		"height", height,
		"hash", fmt.Sprintf("%x", hash[:8]),
		"txs", len(block.Transactions),
		"fees", totalFees,
		"nonce", block.Header.Nonce)
	return hash, true, nil
}

func sumFees(txs []consensus.Transaction) (uint64, error) {
	var total uint64
	for i := range txs {
		next := total + txs[i].FeeMinor
		if next < total {
			return 0, fmt.Errorf("producer: %w: fee sum", ErrBalanceOverflow)
		}
		total = next
	}
	return total, nil
}
