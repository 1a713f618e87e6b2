package wallet

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"fundsflow.org/internal/ledger"
)

// Repository is the read model behind the wallet views.
type Repository interface {
	ListWallets(ctx context.Context) ([]Wallet, error)
	// GetWallet looks a wallet up by ID or by account number.
	GetWallet(ctx context.Context, id string) (Wallet, error)
	ListMovements(ctx context.Context, walletID string) ([]Movement, error)
	// ExternalBalances returns provider-reported balances keyed by wallet ID.
	ExternalBalances(ctx context.Context) (map[string]ledger.Money, error)
}

// InMemory implements Repository and ledger.BalanceSource. Wallet balances
// double as opening balances for the account numbers they carry.
type InMemory struct {
	mu        sync.RWMutex
	wallets   map[string]Wallet
	movements map[string][]Movement
	external  map[string]ledger.Money
}

var (
	_ Repository           = (*InMemory)(nil)
	_ ledger.BalanceSource = (*InMemory)(nil)
)

func NewInMemory() *InMemory {
	return &InMemory{
		wallets:   make(map[string]Wallet),
		movements: make(map[string][]Movement),
		external:  make(map[string]ledger.Money),
	}
}

// Put inserts or replaces wallets.
func (s *InMemory) Put(ws ...Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range ws {
		s.wallets[w.ID] = w
	}
}

func (s *InMemory) AddMovements(ms ...Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		s.movements[m.WalletID] = append(s.movements[m.WalletID], m)
	}
}

func (s *InMemory) SetExternalBalance(walletID string, m ledger.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.external[walletID] = m
}

// ListWallets orders wallets by numeric ID, falling back to string order.
func (s *InMemory) ListWallets(ctx context.Context) ([]Wallet, error) {
	s.mu.RLock()
	out := make([]Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out, nil
}

func (s *InMemory) GetWallet(ctx context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.wallets[id]; ok {
		return w, nil
	}
	for _, w := range s.wallets {
		if w.AccountNumber == id {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (s *InMemory) ListMovements(ctx context.Context, walletID string) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms := s.movements[walletID]
	out := make([]Movement, len(ms))
	copy(out, ms)
	return out, nil
}

func (s *InMemory) ExternalBalances(ctx context.Context) (map[string]ledger.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ledger.Money, len(s.external))
	for k, v := range s.external {
		out[k] = v
	}
	return out, nil
}

// OpeningBalances returns the balances of wallets whose account numbers
// are among accounts.
func (s *InMemory) OpeningBalances(ctx context.Context, accounts ...string) (ledger.BalanceSnapshot, error) {
	want := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		want[a] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(ledger.BalanceSnapshot)
	for _, w := range s.wallets {
		if _, ok := want[w.AccountNumber]; ok {
			snap[w.AccountNumber] = w.Balance
		}
	}
	return snap, nil
}

func lessID(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
