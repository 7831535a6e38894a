package node

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basalt.dev/node/consensus"
	"basalt.dev/node/node/store"
)

// Node wires the core together: one state store, one mempool, one chain
// store, one producer — constructed once by the bootstrap and shared by
// reference. There is no runtime loop here; an external scheduler drives
// Tick.
type Node struct {
	cfg      Config
	log      *slog.Logger
	state    *StateStore
	mempool  *Mempool
	chain    store.ChainStore
	producer *Producer
	nowMS    func() uint64
	started  bool
}

// New assembles a node over an already-open chain store. The caller keeps
// ownership of nothing: Close releases the store.
func New(cfg Config, chain store.ChainStore, logger *slog.Logger) (*Node, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, errors.New("node: nil chain store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	state := NewStateStore()
	mempool := NewMempool(state, cfg.MinFeeMinor)
	nowMS := func() uint64 { return uint64(time.Now().UnixMilli()) }
	producer := NewProducer(ProducerConfig{
		DifficultyBits:   cfg.DifficultyBits,
		MaxTxPerBlock:    cfg.MaxTxPerBlock,
		MaxPowTries:      cfg.MaxPowTries,
		MinerAddress:     cfg.MinerAddress,
		BlockRewardMinor: cfg.BlockRewardMinor,
		NowMS:            nowMS,
	}, mempool, state, chain, logger)
	return &Node{
		cfg:      cfg,
		log:      logger,
		state:    state,
		mempool:  mempool,
		chain:    chain,
		producer: producer,
		nowMS:    nowMS,
	}, nil
}

// Open prepares the data directory and opens the durable chain store before
// assembling the node.
func Open(cfg Config, logger *slog.Logger) (*Node, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("node: data dir required")
	}
	if err := store.EnsureDataDir(cfg.DataDir); err != nil {
		return nil, err
	}
	chain, err := store.Open(store.ChainDBPath(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	n, err := New(cfg, chain, logger)
	if err != nil {
		_ = chain.Close()
		return nil, err
	}
	return n, nil
}

// Start brings state in line with the chain store: an empty store mints the
// genesis block and seeds allocations; a non-empty store replays every block
// of the canonical chain into fresh state. Startup replay failures are fatal to the
// caller.
func (n *Node) Start() error {
	if n.started {
		return errors.New("node: already started")
	}

	alloc := n.cfg.GenesisAllocations
	if n.cfg.DataDir != "" {
		path := store.GenesisAllocPath(n.cfg.DataDir)
		fromDisk, ok, err := LoadGenesisAlloc(path)
		if err != nil {
			return err
		}
		if ok {
			alloc = fromDisk
		} else if len(alloc) > 0 {
			if err := SaveGenesisAlloc(path, alloc); err != nil {
				return err
			}
		}
	}

	size, err := n.chain.Size()
	if err != nil {
		return fmt.Errorf("node: read store size: %w", err)
	}
	if size == 0 {
		genesis := NewGenesisBlock(n.nowMS())
		if err := n.chain.PutBlock(genesis); err != nil {
			return fmt.Errorf("node: persist genesis: %w", err)
		}
		seedAlloc(n.state, alloc)
		hash := consensus.BlockHash(genesis.Header)
		n.log.Info("genesis minted", "hash", fmt.Sprintf("%x", hash[:8]), "allocations", len(alloc))
	} else {
		summary, err := ReplayChain(n.state, n.chain, alloc, n.log)
		if err != nil {
			return err
		}
		n.log.Info("chain replayed",
			"blocks", summary.BlocksApplied,
			"txs", summary.TxsApplied,
			"topups", summary.TopUps)
	}
	n.started = true
	return nil
}

// Tick runs one production attempt. See Producer.Tick.
func (n *Node) Tick() ([32]byte, bool, error) {
	if !n.started {
		return [32]byte{}, false, errors.New("node: not started")
	}
	return n.producer.Tick()
}

// Close releases the chain store. Safe to call more than once.
func (n *Node) Close() error {
	return n.chain.Close()
}

func (n *Node) State() *StateStore      { return n.state }
func (n *Node) Mempool() *Mempool       { return n.mempool }
func (n *Node) Chain() store.ChainStore { return n.chain }

// HeadHash reports the canonical tip for the read-only server adapters.
func (n *Node) HeadHash() ([32]byte, bool, error) {
	return n.chain.GetHead()
}
