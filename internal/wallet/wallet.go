package wallet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fundsflow.org/internal/ledger"
)

type Type string

const (
	TypeInternal Type = "Internal"
	TypeExternal Type = "External"
	TypeFee      Type = "Fee"
)

// Wallet is a platform-held account shown in the wallets view.
type Wallet struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	AccountNumber      string       `json:"account_number"`
	Provider           string       `json:"provider"`
	Balance            ledger.Money `json:"balance"`
	LastReconciliation time.Time    `json:"last_reconciliation"` // RFC3339 on the wire
	Type               Type         `json:"type"`
}

type EntryStatus string

const (
	Reconciled EntryStatus = "Reconciled"
	Pending    EntryStatus = "Pending"
	Uncleared  EntryStatus = "Uncleared"
)

// Movement is one posting on a wallet. Exactly one of Debit and Credit is
// normally non-zero; both zero is a memo line.
type Movement struct {
	ID           string      `json:"id"`
	WalletID     string      `json:"wallet_id"`
	Reference    string      `json:"reference"`
	At           time.Time   `json:"at"`
	Description  string      `json:"description"`
	Counterparty string      `json:"counterparty"`
	Type         string      `json:"type"`
	Debit        int64       `json:"debit"`
	Credit       int64       `json:"credit"`
	Status       EntryStatus `json:"status"`
}

// LedgerItem is a statement row. Balance is the wallet balance after the
// movement.
type LedgerItem struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transaction_id"`
	Reference     string        `json:"reference"`
	Date          time.Time     `json:"date"`
	Description   string        `json:"description"`
	Counterparty  string        `json:"counterparty"`
	Type          string        `json:"type"`
	Debit         *ledger.Money `json:"debit,omitempty"`
	Credit        *ledger.Money `json:"credit,omitempty"`
	Balance       ledger.Money  `json:"balance"`
	Status        EntryStatus   `json:"status"`
}

type Range string

const (
	RangeToday     Range = "Today"
	RangeYesterday Range = "Yesterday"
	RangeThisWeek  Range = "This Week"
	RangeThisMonth Range = "This Month"
	RangeLastMonth Range = "Last Month"
	RangeYTD       Range = "YTD"
)

var Ranges = []Range{RangeToday, RangeYesterday, RangeThisWeek, RangeThisMonth, RangeLastMonth, RangeYTD}

var (
	ErrNotFound     = ledger.ErrNotFound
	ErrInvalidRange = errors.New("invalid statement range")
)

// ParseRange accepts a range label in any case, with "_" or "-" in place of
// spaces. Empty selects This Month.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	if s == "" {
		return RangeThisMonth, nil
	}
	for _, r := range Ranges {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRange, s)
}

type Metrics struct {
	PeriodStart    time.Time    `json:"period_start"`
	PeriodEnd      time.Time    `json:"period_end"`
	OpeningBalance ledger.Money `json:"opening_balance"`
	TotalDebits    ledger.Money `json:"total_debits"`
	TotalCredits   ledger.Money `json:"total_credits"`
	ClosingBalance ledger.Money `json:"closing_balance"`
}

// Statement is a wallet's movements over a range, newest first.
type Statement struct {
	Wallet  Wallet       `json:"wallet"`
	Range   Range        `json:"range"`
	Metrics Metrics      `json:"metrics"`
	Items   []LedgerItem `json:"items"`
}
