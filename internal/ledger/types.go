package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Money is represented in minor units (e.g., cents). No floats.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Add returns m+o. Both values must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Currency: m.Currency, Amount: m.Amount + o.Amount}, nil
}

// Sub returns m-o. Both values must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Currency: m.Currency, Amount: m.Amount - o.Amount}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%s %d", m.Currency, m.Amount)
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money { return Money{Currency: currency} }

// TransactionType is the product-level kind of a transaction. The string
// value is the label shown by the console and used on the wire.
type TransactionType string

const (
	FundsIn              TransactionType = "Funds in"
	FundsOut             TransactionType = "Funds out"
	WalletTopUp          TransactionType = "Wallet Top Up"
	Withdrawal           TransactionType = "Withdrawal"
	Payment              TransactionType = "Payment"
	MerchantPayment      TransactionType = "Merchant Payment"
	PreFunded            TransactionType = "Pre-funded"
	DeactivationTransfer TransactionType = "Deactivation Transfer"
)

// TransactionTypes lists every type the engine can journal, in display order.
var TransactionTypes = []TransactionType{
	FundsIn, WalletTopUp, FundsOut, Withdrawal, Payment, MerchantPayment, PreFunded, DeactivationTransfer,
}

// ParseTransactionType accepts the display label in any case. Labels the
// engine does not know are returned as-is so the caller sees
// UnknownTransactionTypeError at derivation time.
func ParseTransactionType(s string) TransactionType {
	s = strings.TrimSpace(s)
	for _, t := range TransactionTypes {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return TransactionType(s)
}

type TransactionStatus string

const (
	StatusApproved TransactionStatus = "APPROVED"
	StatusPending  TransactionStatus = "PENDING"
	StatusFailed   TransactionStatus = "FAILED"
	StatusDeclined TransactionStatus = "DECLINED"
	StatusExpired  TransactionStatus = "EXPIRED"
)

var TransactionStatuses = []TransactionStatus{
	StatusApproved, StatusPending, StatusFailed, StatusDeclined, StatusExpired,
}

// ParseTransactionStatus is case-insensitive ("Approved" == "APPROVED").
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	for _, st := range TransactionStatuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// Label is the status shown on journal entries.
func (s TransactionStatus) Label() string {
	if s == StatusApproved {
		return "COMPLETED"
	}
	return strings.ToUpper(string(s))
}

// settled reports whether value actually moved to the payee.
func (s TransactionStatus) settled() bool {
	switch s {
	case StatusFailed, StatusDeclined, StatusExpired:
		return false
	}
	return true
}

// TransactionRecord is an immutable snapshot of one transaction.
type TransactionRecord struct {
	Reference      string            `json:"reference"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	NominalAmount  Money             `json:"nominal_amount"`
	PayerFee       Money             `json:"payer_fee"`
	PayeeFee       Money             `json:"payee_fee"`
	PayerAccountID string            `json:"payer_account_id"`
	PayeeAccountID string            `json:"payee_account_id"`
	PaymentMethod  string            `json:"payment_method"`
	CreatedAt      time.Time         `json:"created_at"`

	// Presentation metadata; never read by the engine.
	Message      string `json:"message,omitempty"`
	Remark       string `json:"remark,omitempty"`
	Location     string `json:"location,omitempty"`
	POSID        string `json:"pos_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	School       string `json:"school,omitempty"`

	Sequence uint64 `json:"sequence"`
}

// PartyBreakdown is the payer or payee view of a transaction.
type PartyBreakdown struct {
	AccountID     string `json:"account_id"`
	NominalAmount Money  `json:"nominal_amount"`
	Fee           Money  `json:"fee"`
	FixedFee      Money  `json:"fixed_fee"`
	PercentageFee string `json:"percentage_fee"`
	Total         Money  `json:"total"`
}

type AccountRole string

const (
	RolePayerWallet        AccountRole = "PayerWallet"
	RolePayeeWallet        AccountRole = "PayeeWallet"
	RoleInternalFeeAccount AccountRole = "InternalFeeAccount"
	RoleIntermediateOVA    AccountRole = "IntermediateOVA"
	RoleProviderFeeAccount AccountRole = "ProviderFeeAccount"
)

type Direction string

const (
	Debit  Direction = "Debit"
	Credit Direction = "Credit"
)

// Leg names the movement an entry belongs to.
type Leg string

const (
	LegTransfer     Leg = "Transfer"
	LegCollection   Leg = "Collection"
	LegFee          Leg = "Fee"
	LegDisbursement Leg = "Disbursement"
	LegReversal     Leg = "Reversal"
)

// JournalEntry is one debit or credit of a transaction's journal.
// Balances are nil for accounts whose balance the platform does not track.
type JournalEntry struct {
	ID             string      `json:"id"`
	Sequence       int         `json:"sequence"`
	Account        string      `json:"account"`
	AccountRole    AccountRole `json:"account_role"`
	Leg            Leg         `json:"leg"`
	Direction      Direction   `json:"direction"`
	Amount         Money       `json:"amount"`
	OpeningBalance *Money      `json:"opening_balance"`
	ClosingBalance *Money      `json:"closing_balance"`
	Status         string      `json:"status"`
	Timestamp      time.Time   `json:"timestamp"`
}

// DerivedTransactionDetail is everything the detail view renders.
type DerivedTransactionDetail struct {
	Reference     string            `json:"reference"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	CreatedAt     time.Time         `json:"created_at"`
	NominalAmount Money             `json:"nominal_amount"`
	GrossAmount   Money             `json:"gross_amount"`
	NetAmount     Money             `json:"net_amount"`
	Payer         PartyBreakdown    `json:"payer"`
	Payee         PartyBreakdown    `json:"payee"`
	Journal       []JournalEntry    `json:"journal"`
	Commissions   Commissions       `json:"commissions"`
}

// Commissions splits the fees of a transaction between the parties that
// earn them. Client is always zero; unsettled transactions earn nothing.
type Commissions struct {
	Client   Money `json:"client_earned"`
	Platform Money `json:"platform_earned"`
	Partner  Money `json:"partner_earned"`
}

// Total is the sum of all three shares.
func (c Commissions) Total() int64 {
	return c.Client.Amount + c.Platform.Amount + c.Partner.Amount
}

var (
	ErrNotFound               = errors.New("not found")
	ErrMissingReference       = errors.New("reference is required")
	ErrInvalidAmount          = errors.New("invalid amount (must be > 0)")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrCurrencyMismatch       = errors.New("currency mismatch")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
)

// InvalidFeeError reports amounts the engine refuses to journal.
type InvalidFeeError struct {
	Reference string
	Reason    string
}

func (e *InvalidFeeError) Error() string {
	return fmt.Sprintf("invalid fee on %s: %s", e.Reference, e.Reason)
}

func (e *InvalidFeeError) Is(target error) bool { return target == ErrInvalidFee }

// UnknownTransactionTypeError reports a type with no journal template.
type UnknownTransactionTypeError struct {
	Reference string
	Type      TransactionType
}

func (e *UnknownTransactionTypeError) Error() string {
	return fmt.Sprintf("unknown transaction type %q on %s", e.Type, e.Reference)
}

func (e *UnknownTransactionTypeError) Is(target error) bool {
	return target == ErrUnknownTransactionType
}
