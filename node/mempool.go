package node

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"basalt.dev/node/consensus"
)

// Admission failures. BadNonceError carries the expected/got pair so
// submission adapters can report it to clients.
var (
	ErrFeeBelowMinimum     = errors.New("mempool: fee below minimum")
	ErrInsufficientBalance = errors.New("mempool: insufficient balance")
	ErrMissingSignature    = errors.New("mempool: missing signature")
)

type BadNonceError struct {
	Expected uint64
	Got      uint64
}

func (e *BadNonceError) Error() string {
	return fmt.Sprintf("mempool: bad nonce: expected %d, got %d", e.Expected, e.Got)
}

type senderKey struct {
	from  string
	nonce uint64
}

// Mempool holds admitted transactions awaiting inclusion: a per-sender
// nonce index plus a FIFO insertion list. Add and GetBatch are mutually
// exclusive under the pool lock. Admission is stateful: it reads the state
// store for the sender's expected nonce and spendable balance.
//
// Cryptographic signature verification is delegated to the wallet
// collaborator at submission time; admission requires only a non-empty
// signature.
type Mempool struct {
	mu     sync.Mutex
	state  *StateStore
	minFee uint64
	byKey  map[senderKey]*consensus.Transaction
	fifo   []*consensus.Transaction
}

func NewMempool(state *StateStore, minFee uint64) *Mempool {
	return &Mempool{
		state:  state,
		minFee: minFee,
		byKey:  make(map[senderKey]*consensus.Transaction),
	}
}

// Add admits a transaction:
// stateless validation, fee floor, nonce equality against state, spendable
// funds, non-empty signature. An existing (from, nonce) entry is replaced
// and its FIFO slot dropped; the replacement joins the FIFO tail.
func (mp *Mempool) Add(tx consensus.Transaction) error {
	built, err := consensus.BuildTx(tx)
	if err != nil {
		return err
	}
	if built.FeeMinor < mp.minFee {
		return ErrFeeBelowMinimum
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	expected := mp.state.GetNonce(built.From)
	if built.Nonce != expected {
		return &BadNonceError{Expected: expected, Got: built.Nonce}
	}
	need := built.AmountMinor + built.FeeMinor
	if need < built.AmountMinor {
		return ErrInsufficientBalance
	}
	balance := mp.state.GetBalance(built.From)
	if balance < 0 || uint64(balance) < need || need > math.MaxInt64 {
		return ErrInsufficientBalance
	}
	if len(built.Signature) == 0 {
		return ErrMissingSignature
	}

	key := senderKey{from: built.From, nonce: built.Nonce}
	if prev, ok := mp.byKey[key]; ok {
		mp.dropFromFIFO(prev)
	}
	entry := &built
	mp.byKey[key] = entry
	mp.fifo = append(mp.fifo, entry)
	return nil
}

// GetBatch pops up to max transactions from the FIFO head, removing them
// from the per-sender index as well.
func (mp *Mempool) GetBatch(max int) []consensus.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if max < 0 {
		max = 0
	}
	n := len(mp.fifo)
	if n > max {
		n = max
	}
	out := make([]consensus.Transaction, 0, n)
	for _, entry := range mp.fifo[:n] {
		delete(mp.byKey, senderKey{from: entry.From, nonce: entry.Nonce})
		out = append(out, *entry)
	}
	mp.fifo = append([]*consensus.Transaction(nil), mp.fifo[n:]...)
	return out
}

// RemoveAll evicts transactions by (from, nonce) identity.
func (mp *Mempool) RemoveAll(txs []consensus.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	for i := range txs {
		key := senderKey{from: txs[i].From, nonce: txs[i].Nonce}
		if entry, ok := mp.byKey[key]; ok {
			delete(mp.byKey, key)
			mp.dropFromFIFO(entry)
		}
	}
}

// Requeue reinserts a drained batch at the FIFO head in its original order,
// bypassing admission. It is the producer's rollback path: state has been
// restored to its pre-tick shape, so the batch is as admissible as when it
// first entered. A (from, nonce) slot taken while the batch was out keeps
// its newer occupant.
func (mp *Mempool) Requeue(txs []consensus.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	restored := make([]*consensus.Transaction, 0, len(txs))
	for i := range txs {
		key := senderKey{from: txs[i].From, nonce: txs[i].Nonce}
		if _, ok := mp.byKey[key]; ok {
			continue
		}
		tx := txs[i]
		entry := &tx
		mp.byKey[key] = entry
		restored = append(restored, entry)
	}
	mp.fifo = append(restored, mp.fifo...)
}

func (mp *Mempool) Size() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.fifo)
}

func (mp *Mempool) dropFromFIFO(entry *consensus.Transaction) {
	for i, e := range mp.fifo {
		if e == entry {
			mp.fifo = append(mp.fifo[:i], mp.fifo[i+1:]...)
			return
		}
	}
}
