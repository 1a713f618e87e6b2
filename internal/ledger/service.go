package ledger

import (
	"context"
	"sync"
)

// Page sizes shared by every TransactionRepository and the list view.
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// PageSize clamps a requested page size into (0, MaxPageSize].
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// TransactionRepository supplies transaction snapshots to the engine.
type TransactionRepository interface {
	GetTransaction(ctx context.Context, reference string) (TransactionRecord, error)
	ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]TransactionRecord, uint64, error)
}

// BalanceSource provides opening balances for tracked accounts.
type BalanceSource interface {
	OpeningBalances(ctx context.Context, accounts ...string) (BalanceSnapshot, error)
}

// InMemory implements TransactionRepository and BalanceSource with
// in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	seq      uint64
	txs      []TransactionRecord
	byRef    map[string]int
	balances map[string]Money
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		byRef:    make(map[string]int),
		balances: make(map[string]Money),
	}
}

// Add appends records in order, assigning sequence numbers. A reference
// that is already present is ignored, so replaying a feed is harmless.
func (s *InMemory) Add(ctx context.Context, recs ...TransactionRecord) ([]TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []TransactionRecord
	for _, rec := range recs {
		if rec.Reference == "" {
			return added, ErrMissingReference
		}
		if _, ok := s.byRef[rec.Reference]; ok {
			continue
		}
		s.seq++
		rec.Sequence = s.seq
		s.byRef[rec.Reference] = len(s.txs)
		s.txs = append(s.txs, rec)
		added = append(added, rec)
	}
	return added, nil
}

// SetBalance records the current balance of a tracked account.
func (s *InMemory) SetBalance(account string, m Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = m
}

func (s *InMemory) GetTransaction(ctx context.Context, reference string) (TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byRef[reference]
	if !ok {
		return TransactionRecord{}, ErrNotFound
	}
	return s.txs[idx], nil
}

func (s *InMemory) ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]TransactionRecord, uint64, error) {
	limit = PageSize(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []TransactionRecord
	var last uint64
	for _, tx := range s.txs {
		if tx.Sequence <= afterSeq {
			continue
		}
		res = append(res, tx)
		last = tx.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func (s *InMemory) OpeningBalances(ctx context.Context, accounts ...string) (BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(BalanceSnapshot, len(accounts))
	for _, a := range accounts {
		if m, ok := s.balances[a]; ok {
			snap[a] = m
		}
	}
	return snap, nil
}

// TrackedAccounts lists the accounts whose balances a journal for rec may
// carry under the given chart.
func TrackedAccounts(rec TransactionRecord, chart Chart) []string {
	if _, ok := templates[rec.Type]; !ok {
		return nil
	}
	switch rec.Type {
	case FundsIn, WalletTopUp, FundsOut:
		return []string{chart.OVA, rec.PayeeAccountID}
	}
	return []string{rec.PayerAccountID, rec.PayeeAccountID, chart.FeeAccount}
}
