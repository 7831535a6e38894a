package node

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"basalt.dev/node/consensus"
)

var (
	// ErrBalanceOverflow reports balance arithmetic leaving the int64 range.
	ErrBalanceOverflow = errors.New("state: balance overflow")

	// ErrNegativeBalance reports a debit below zero. Admission and replay
	// top-ups keep this unreachable; seeing it means corrupted balances. The
	// bootstrap driver stops producing when a tick returns it.
	ErrNegativeBalance = errors.New("state: negative balance")
)

type account struct {
	balance int64
	nonce   uint64
}

// StateStore holds the account map: address -> (balance, nonce). Missing
// entries read as (0, 0). All operations are serializable under a single
// lock; entries are created lazily on first credit or debit and live for the
// process lifetime. State is derived, never persisted: the replayer rebuilds
// it from the chain on startup.
type StateStore struct {
	mu       sync.Mutex
	accounts map[string]account
}

func NewStateStore() *StateStore {
	return &StateStore{accounts: make(map[string]account)}
}

func (s *StateStore) GetBalance(addr string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr].balance
}

func (s *StateStore) GetNonce(addr string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr].nonce
}

func (s *StateStore) SetBalance(addr string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[addr]
	acct.balance = balance
	s.accounts[addr] = acct
}

func (s *StateStore) SetNonce(addr string, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[addr]
	acct.nonce = nonce
	s.accounts[addr] = acct
}

// Credit adds amount to an address balance. A negative amount undoes an
// earlier credit (the producer's reward rollback path).
func (s *StateStore) Credit(addr string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(addr, amount)
}

func (s *StateStore) creditLocked(addr string, amount int64) error {
	acct := s.accounts[addr]
	next, err := addI64(acct.balance, amount)
	if err != nil {
		return err
	}
	acct.balance = next
	s.accounts[addr] = acct
	return nil
}

// ApplyTx moves amount+fee out of the sender, advances the sender nonce, and
// credits amount to the recipient. The fee is burned here; the producer
// credits it to the miner separately when one is configured.
func (s *StateStore) ApplyTx(tx *consensus.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyTxLocked(tx)
}

func (s *StateStore) applyTxLocked(tx *consensus.Transaction) error {
	debit, err := txDebit(tx)
	if err != nil {
		return err
	}
	from := s.accounts[tx.From]
	nextFrom, err := subI64(from.balance, debit)
	if err != nil {
		return err
	}
	if nextFrom < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeBalance, tx.From)
	}
	to := s.accounts[tx.To]
	nextTo, err := addI64(to.balance, int64(tx.AmountMinor))
	if err != nil {
		return err
	}

	from.balance = nextFrom
	from.nonce++
	to.balance = nextTo
	s.accounts[tx.From] = from
	s.accounts[tx.To] = to
	return nil
}

// RevertTx is the exact arithmetic inverse of ApplyTx.
func (s *StateStore) RevertTx(tx *consensus.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revertTxLocked(tx)
}

func (s *StateStore) revertTxLocked(tx *consensus.Transaction) error {
	debit, err := txDebit(tx)
	if err != nil {
		return err
	}
	from := s.accounts[tx.From]
	nextFrom, err := addI64(from.balance, debit)
	if err != nil {
		return err
	}
	to := s.accounts[tx.To]
	nextTo, err := subI64(to.balance, int64(tx.AmountMinor))
	if err != nil {
		return err
	}

	from.balance = nextFrom
	from.nonce--
	to.balance = nextTo
	s.accounts[tx.From] = from
	s.accounts[tx.To] = to
	return nil
}

// ApplyBlock applies every transaction in order. On a mid-block failure the
// already-applied prefix is reverted, so the call is all-or-nothing.
func (s *StateStore) ApplyBlock(block *consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range block.Transactions {
		if err := s.applyTxLocked(&block.Transactions[i]); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = s.revertTxLocked(&block.Transactions[j])
			}
			return err
		}
	}
	return nil
}

// RevertBlock reverts every transaction in reverse order.
func (s *StateStore) RevertBlock(block *consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(block.Transactions) - 1; i >= 0; i-- {
		if err := s.revertTxLocked(&block.Transactions[i]); err != nil {
			return err
		}
	}
	return nil
}

// txDebit is the sender-side cost of a transaction: amount + fee, checked
// into the int64 balance domain.
func txDebit(tx *consensus.Transaction) (int64, error) {
	total := tx.AmountMinor + tx.FeeMinor
	if total < tx.AmountMinor || total > math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount+fee", ErrBalanceOverflow)
	}
	return int64(total), nil
}

func addI64(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrBalanceOverflow
	}
	return sum, nil
}

func subI64(a, b int64) (int64, error) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, ErrBalanceOverflow
	}
	return diff, nil
}
