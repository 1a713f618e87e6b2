package ledger

import (
	"fmt"
	"math"
	"strings"
)

// Chart names the platform accounts that appear in derived journals.
type Chart struct {
	FeeAccount         string `json:"fee_account" yaml:"fee_account"`
	OVA                string `json:"ova" yaml:"ova"`
	ProviderFeeAccount string `json:"provider_fee_account" yaml:"provider_fee_account"`
}

// DefaultChart matches the accounts seeded by the fixture wallets.
func DefaultChart() Chart {
	return Chart{
		FeeAccount:         "FEE-EARN-01",
		OVA:                "GEN-OVA-001",
		ProviderFeeAccount: "2600000000002",
	}
}

// BalanceSnapshot holds opening balances of tracked accounts, keyed by
// account identifier. It is read, never written, by the engine.
type BalanceSnapshot map[string]Money

// Opening returns the snapshot balance of account in currency. Accounts
// missing from the snapshot, or held in another currency, open at zero.
func (s BalanceSnapshot) Opening(account, currency string) Money {
	if m, ok := s[account]; ok && m.Currency == currency {
		return m
	}
	return Zero(currency)
}

// Engine derives transaction details against a fixed chart of accounts.
// The zero value is not useful; use NewEngine.
type Engine struct {
	chart Chart
}

func NewEngine(chart Chart) Engine {
	def := DefaultChart()
	if chart.FeeAccount == "" {
		chart.FeeAccount = def.FeeAccount
	}
	if chart.OVA == "" {
		chart.OVA = def.OVA
	}
	if chart.ProviderFeeAccount == "" {
		chart.ProviderFeeAccount = def.ProviderFeeAccount
	}
	return Engine{chart: chart}
}

func (e Engine) Chart() Chart { return e.chart }

// Derive runs the default engine with no opening balances.
func Derive(rec TransactionRecord) (DerivedTransactionDetail, error) {
	return NewEngine(DefaultChart()).Derive(rec, nil)
}

// Derive computes gross and net amounts, both party breakdowns and the
// journal for rec. It never mutates rec or balances.
func (e Engine) Derive(rec TransactionRecord, balances BalanceSnapshot) (DerivedTransactionDetail, error) {
	rec = normalizeFees(rec)
	gross, net, err := DeriveGrossAndNet(rec)
	if err != nil {
		return DerivedTransactionDetail{}, err
	}
	payer, payee := DerivePartyBreakdown(rec, gross, net)
	journal, err := e.BuildJournal(rec, gross, net, balances)
	if err != nil {
		return DerivedTransactionDetail{}, err
	}
	return DerivedTransactionDetail{
		Reference:     rec.Reference,
		Type:          rec.Type,
		Status:        rec.Status,
		PaymentMethod: rec.PaymentMethod,
		CreatedAt:     rec.CreatedAt,
		NominalAmount: rec.NominalAmount,
		GrossAmount:   gross,
		NetAmount:     net,
		Payer:         payer,
		Payee:         payee,
		Journal:       journal,
		Commissions:   DeriveCommissions(journal, rec.NominalAmount.Currency),
	}, nil
}

// DeriveCommissions reads fee shares off a posted journal. The partner
// earns what the provider fee account is credited; the platform earns the
// internal fee account credits plus whatever the OVA keeps.
func DeriveCommissions(entries []JournalEntry, currency string) Commissions {
	c := Commissions{
		Client:   Zero(currency),
		Platform: Zero(currency),
		Partner:  Zero(currency),
	}
	for _, e := range entries {
		amt := e.Amount.Amount
		if e.Direction == Debit {
			amt = -amt
		}
		switch e.AccountRole {
		case RoleProviderFeeAccount:
			c.Partner.Amount += amt
		case RoleInternalFeeAccount, RoleIntermediateOVA:
			c.Platform.Amount += amt
		}
	}
	return c
}

// DeriveGrossAndNet returns gross = nominal + payer fee (debited from the
// payer) and net = nominal - payee fee (credited to the payee).
func DeriveGrossAndNet(rec TransactionRecord) (gross, net Money, err error) {
	rec = normalizeFees(rec)
	if err := validate(rec); err != nil {
		return Money{}, Money{}, err
	}
	gross, err = rec.NominalAmount.Add(rec.PayerFee)
	if err != nil {
		return Money{}, Money{}, invalidFee(rec, err.Error())
	}
	if gross.IsNegative() {
		return Money{}, Money{}, invalidFee(rec, "gross amount overflows")
	}
	net, err = rec.NominalAmount.Sub(rec.PayeeFee)
	if err != nil {
		return Money{}, Money{}, invalidFee(rec, err.Error())
	}
	if net.IsNegative() {
		return Money{}, Money{}, invalidFee(rec, "payee fee exceeds nominal amount")
	}
	return gross, net, nil
}

func DerivePartyBreakdown(rec TransactionRecord, gross, net Money) (payer, payee PartyBreakdown) {
	rec = normalizeFees(rec)
	currency := rec.NominalAmount.Currency
	payer = PartyBreakdown{
		AccountID:     rec.PayerAccountID,
		NominalAmount: rec.NominalAmount,
		Fee:           rec.PayerFee,
		FixedFee:      Zero(currency),
		PercentageFee: "0%",
		Total:         gross,
	}
	payee = PartyBreakdown{
		AccountID:     rec.PayeeAccountID,
		NominalAmount: rec.NominalAmount,
		Fee:           rec.PayeeFee,
		FixedFee:      Zero(currency),
		PercentageFee: "0%",
		Total:         net,
	}
	return payer, payee
}

// BuildJournal runs the default engine's journal step.
func BuildJournal(rec TransactionRecord, gross, net Money) ([]JournalEntry, error) {
	return NewEngine(DefaultChart()).BuildJournal(rec, gross, net, nil)
}

// BuildJournal selects the template for rec.Type and posts its legs.
func (e Engine) BuildJournal(rec TransactionRecord, gross, net Money, balances BalanceSnapshot) ([]JournalEntry, error) {
	tmpl, ok := templates[rec.Type]
	if !ok {
		return nil, &UnknownTransactionTypeError{Reference: rec.Reference, Type: rec.Type}
	}
	rec = normalizeFees(rec)
	j := &journal{
		rec:      rec,
		chart:    e.chart,
		status:   rec.Status.Label(),
		balances: balances,
		running:  make(map[string]Money, 4),
	}
	tmpl(j, gross, net)
	return j.entries, nil
}

// JournalTotals sums debits and credits of entries.
func JournalTotals(entries []JournalEntry) (debits, credits int64) {
	for _, e := range entries {
		switch e.Direction {
		case Debit:
			debits += e.Amount.Amount
		case Credit:
			credits += e.Amount.Amount
		}
	}
	return debits, credits
}

// CheckBalanced verifies the accounting identity and the single currency
// of a journal.
func CheckBalanced(entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	currency := entries[0].Amount.Currency
	for _, e := range entries {
		if e.Amount.Currency != currency {
			return fmt.Errorf("%w: entry %s in %s, journal in %s", ErrCurrencyMismatch, e.ID, e.Amount.Currency, currency)
		}
	}
	if d, c := JournalTotals(entries); d != c {
		return fmt.Errorf("journal unbalanced: debits=%d credits=%d", d, c)
	}
	return nil
}

func validate(rec TransactionRecord) error {
	currency := strings.TrimSpace(rec.NominalAmount.Currency)
	if currency == "" {
		return invalidFee(rec, ErrInvalidCurrency.Error())
	}
	if rec.PayerFee.Currency != currency {
		return invalidFee(rec, fmt.Sprintf("payer fee currency %s does not match %s", rec.PayerFee.Currency, currency))
	}
	if rec.PayeeFee.Currency != currency {
		return invalidFee(rec, fmt.Sprintf("payee fee currency %s does not match %s", rec.PayeeFee.Currency, currency))
	}
	if !rec.NominalAmount.IsPositive() {
		return invalidFee(rec, "nominal amount must be positive")
	}
	if rec.PayerFee.IsNegative() || rec.PayeeFee.IsNegative() {
		return invalidFee(rec, "fees must not be negative")
	}
	if rec.PayeeFee.Amount > rec.NominalAmount.Amount {
		return invalidFee(rec, "payee fee exceeds nominal amount")
	}
	if rec.PayerFee.Amount > math.MaxInt64-rec.NominalAmount.Amount {
		return invalidFee(rec, "gross amount overflows")
	}
	return nil
}

// normalizeFees lets callers leave a zero fee as Money{}.
func normalizeFees(rec TransactionRecord) TransactionRecord {
	currency := rec.NominalAmount.Currency
	if rec.PayerFee.Currency == "" && rec.PayerFee.Amount == 0 {
		rec.PayerFee = Zero(currency)
	}
	if rec.PayeeFee.Currency == "" && rec.PayeeFee.Amount == 0 {
		rec.PayeeFee = Zero(currency)
	}
	return rec
}

func invalidFee(rec TransactionRecord, reason string) error {
	return &InvalidFeeError{Reference: rec.Reference, Reason: reason}
}
