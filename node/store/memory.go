package store

import (
	"fmt"
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"basalt.dev/node/consensus"
)

// Memory is the in-memory ChainStore used by tests and single-process tools.
// Blocks are held in serialized form so reads hand out independent copies.
type Memory struct {
	mu       sync.RWMutex
	blocks   map[[32]byte][]byte
	heights  map[[32]byte]uint64
	work     map[[32]byte]*big.Int
	children map[[32]byte]mapset.Set[[32]byte]
	head     [32]byte
	hasHead  bool
}

var _ ChainStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		blocks:   make(map[[32]byte][]byte),
		heights:  make(map[[32]byte]uint64),
		work:     make(map[[32]byte]*big.Int),
		children: make(map[[32]byte]mapset.Set[[32]byte]),
	}
}

func (m *Memory) PutBlock(block *consensus.Block) error {
	if block == nil {
		return fmt.Errorf("store: nil block")
	}
	raw, err := consensus.BlockBytes(block)
	if err != nil {
		return err
	}
	hash := consensus.BlockHash(block.Header)

	m.mu.Lock()
	defer m.mu.Unlock()

	parentWork, err := parentWorkOrZero(m.workLocked, block.Header.ParentHash)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(parentWork, consensus.BlockWork(block.Header))

	m.blocks[hash] = raw
	m.heights[hash] = block.Header.Height
	set, ok := m.children[block.Header.ParentHash]
	if !ok {
		set = mapset.NewThreadUnsafeSet[[32]byte]()
		m.children[block.Header.ParentHash] = set
	}
	set.Add(hash)
	m.work[hash] = total

	if !m.hasHead {
		m.head = hash
		m.hasHead = true
		return nil
	}
	if headImproves(total, block.Header.Height, m.work[m.head], m.heights[m.head]) {
		m.head = hash
	}
	return nil
}

func (m *Memory) workLocked(hash [32]byte) (*big.Int, bool, error) {
	w, ok := m.work[hash]
	if !ok {
		return nil, false, nil
	}
	return w, true, nil
}

func (m *Memory) GetBlock(hash [32]byte) (*consensus.Block, bool, error) {
	m.mu.RLock()
	raw, ok := m.blocks[hash]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	block, err := consensus.ParseBlock(raw)
	if err != nil {
		return nil, false, fmt.Errorf("store: corrupt block record: %w", err)
	}
	return block, true, nil
}

func (m *Memory) HeaderByHash(hash [32]byte) (consensus.BlockHeader, bool, error) {
	m.mu.RLock()
	raw, ok := m.blocks[hash]
	m.mu.RUnlock()
	if !ok {
		return consensus.BlockHeader{}, false, nil
	}
	header, err := consensus.ParseBlockHeader(raw[:consensus.BlockHeaderLen])
	if err != nil {
		return consensus.BlockHeader{}, false, fmt.Errorf("store: corrupt header record: %w", err)
	}
	return header, true, nil
}

func (m *Memory) GetHead() ([32]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasHead {
		return [32]byte{}, false, nil
	}
	return m.head, true, nil
}

func (m *Memory) SetHead(hash [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[hash]; !ok {
		return ErrUnknownHash
	}
	m.head = hash
	m.hasHead = true
	return nil
}

func (m *Memory) GetHeight(hash [32]byte) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.heights[hash]
	return h, ok, nil
}

func (m *Memory) GetTotalWork(hash [32]byte) (*big.Int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.work[hash]
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(w), true, nil
}

func (m *Memory) GetChildren(parent [32]byte) ([][32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.children[parent]
	if !ok {
		return nil, nil
	}
	return set.ToSlice(), nil
}

func (m *Memory) Size() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.blocks)), nil
}

func (m *Memory) BlocksInOrder() ([]*consensus.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasHead {
		return nil, nil
	}
	var reversed []*consensus.Block
	cursor := m.head
	for {
		raw, ok := m.blocks[cursor]
		if !ok {
			return nil, fmt.Errorf("store: broken parent link at %x", cursor)
		}
		block, err := consensus.ParseBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt block record: %w", err)
		}
		reversed = append(reversed, block)
		if block.Header.ParentHash == consensus.ZeroHash {
			break
		}
		cursor = block.Header.ParentHash
	}
	out := make([]*consensus.Block, len(reversed))
	for i, b := range reversed {
		out[len(reversed)-1-i] = b
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
