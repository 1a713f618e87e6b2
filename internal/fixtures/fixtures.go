// Package fixtures builds deterministic synthetic data for demos, the
// in-memory read model and tests. The same seed and clock always produce
// the same records.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"fundsflow.org/internal/ids"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/wallet"
)

const (
	Currency = "UGX"
	// PayerFee is the flat fee charged on every generated transaction.
	PayerFee = 10
)

var (
	statuses = []ledger.TransactionStatus{
		ledger.StatusApproved, ledger.StatusApproved, ledger.StatusApproved, ledger.StatusApproved,
		ledger.StatusApproved, ledger.StatusApproved, ledger.StatusApproved,
		ledger.StatusFailed,
		ledger.StatusDeclined,
	}
	methods   = []string{"External transfer", "Physical card", "QR code", "Transfer", "Mobile Money"}
	amounts   = []int64{1000, 2000, 5000, 10000, 20000, 50000, 100000, 150000, 200000, 500000, 1000000}
	locations = []string{"Kampala", "Entebbe", "Gulu", "Mbarara", "Jinja"}
)

// Generator produces transactions. Not safe for concurrent use.
type Generator struct {
	rnd *rand.Rand
	ids *ids.Source
	now time.Time
}

func New(seed int64, now time.Time) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		ids: ids.NewSource(seed),
		now: now,
	}
}

// Transactions returns n records created within the day before now.
func (g *Generator) Transactions(n int) []ledger.TransactionRecord {
	out := make([]ledger.TransactionRecord, 0, n)
	for i := 0; i < n; i++ {
		at := g.now.Add(-time.Duration(g.rnd.Intn(24*60*60)) * time.Second)
		out = append(out, g.TransactionAt(at))
	}
	return out
}

// TransactionAt returns one record created at t.
func (g *Generator) TransactionAt(t time.Time) ledger.TransactionRecord {
	typ := ledger.TransactionTypes[g.rnd.Intn(len(ledger.TransactionTypes))]
	status := statuses[g.rnd.Intn(len(statuses))]
	method := methods[g.rnd.Intn(len(methods))]
	amount := amounts[g.rnd.Intn(len(amounts))]

	message := "Success"
	switch status {
	case ledger.StatusFailed:
		message = "Insufficient funds"
	case ledger.StatusDeclined:
		message = "Risk threshold exceeded"
	}
	serial := "--"
	if g.rnd.Float64() > 0.7 {
		serial = fmt.Sprintf("SN-%d", g.rnd.Intn(10000))
	}

	return ledger.TransactionRecord{
		Reference:      g.ids.Reference(t),
		Type:           typ,
		Status:         status,
		NominalAmount:  ledger.Money{Currency: Currency, Amount: amount},
		PayerFee:       ledger.Money{Currency: Currency, Amount: PayerFee},
		PayeeFee:       ledger.Zero(Currency),
		PayerAccountID: fmt.Sprintf("221%09d", g.rnd.Intn(1_000_000_000)),
		PayeeAccountID: fmt.Sprintf("251%09d", g.rnd.Intn(1_000_000_000)),
		PaymentMethod:  method,
		CreatedAt:      t.UTC(),
		Message:        message,
		Location:       locations[g.rnd.Intn(len(locations))],
		POSID:          fmt.Sprintf("POS-%04d", g.rnd.Intn(10000)),
		SerialNumber:   serial,
		School:         "--",
	}
}

func ugx(amount int64) ledger.Money { return ledger.Money{Currency: Currency, Amount: amount} }

// Wallets returns the platform wallets, last reconciled at reconciledAt.
func Wallets(reconciledAt time.Time) []wallet.Wallet {
	w := func(id, name, account, provider string, balance int64, typ wallet.Type) wallet.Wallet {
		return wallet.Wallet{ID: id, Name: name, AccountNumber: account, Provider: provider,
			Balance: ugx(balance), LastReconciliation: reconciledAt, Type: typ}
	}
	return []wallet.Wallet{
		w("1", "General OVA", "GEN-OVA-001", "VeryPay", -347635687, wallet.TypeInternal),
		w("2", "Pre-funded OVA", "PRE-OVA-002", "VeryPay", -3999161, wallet.TypeInternal),
		w("3", "Invoice OVA (MTN)", "INV-MTN-001", "MTN", -11300, wallet.TypeExternal),
		w("4", "Invoice OVA (Airtel)", "INV-AIR-002", "Airtel", -27639, wallet.TypeExternal),
		w("5", "Airtel OVA", "AIR-OVA-001", "Airtel", 5458895, wallet.TypeExternal),
		w("6", "YO OVA (Airtel)", "YO-AIR-001", "Yo! Payments", 13500, wallet.TypeExternal),
		w("7", "YO OVA (MTN)", "YO-MTN-002", "Yo! Payments", 15763, wallet.TypeExternal),
		w("8", "YO OVA (Warid)", "YO-WAR-003", "Yo! Payments", 116607794, wallet.TypeExternal),
		w("9", "Fee Distribution", "FEE-DIST-01", "VeryPay", 286939, wallet.TypeFee),
		w("10", "Fee Earning", "FEE-EARN-01", "VeryPay", 594628, wallet.TypeFee),
		w("11", "Airtel Fee Earning", "FEE-AIR-01", "Airtel", 132798, wallet.TypeFee),
		w("12", "YO Fee Earning", "FEE-YO-01", "Yo! Payments", 112340, wallet.TypeFee),
	}
}

// ExternalBalances returns provider-reported balances for the external
// wallets; YO OVA (MTN) and YO OVA (Airtel) disagree with the platform.
func ExternalBalances() map[string]ledger.Money {
	return map[string]ledger.Money{
		"5": ugx(5458895),
		"6": ugx(13250),
		"7": ugx(15500),
		"8": ugx(116607794),
	}
}

type movementSpec struct {
	id, reference, description, counterparty, typ string
	daysAgo, hour, minute                          int
	debit, credit                                  int64
	status                                         wallet.EntryStatus
}

var movementSpecs = []movementSpec{
	{"t1", "REF-NOW-1", "Merchant Settlement", "Kampala Store", "Settlement", 0, 14, 30, 50000, 0, wallet.Pending},
	{"t2", "REF-NOW-2", "Top Up", "Equity Bank", "Funding", 0, 11, 15, 0, 300000, wallet.Reconciled},
	{"t3", "REF-NOW-3", "Opening Check", "System", "Audit", 0, 9, 0, 0, 0, wallet.Reconciled},
	{"y1", "REF-YST-1", "EOD Sweep", "Treasury", "Transfer", 1, 16, 45, 1500000, 0, wallet.Reconciled},
	{"y2", "REF-YST-2", "Bulk Collection", "Aggregator", "Collection", 1, 10, 0, 0, 3000000, wallet.Reconciled},
	{"w1", "REF-WK-1", "Fee Payout", "Partner A", "Fee", 2, 14, 20, 45000, 0, wallet.Reconciled},
	{"w2", "REF-WK-2", "Liquidity Injection", "Central Bank", "Funding", 3, 9, 15, 0, 5000000, wallet.Reconciled},
	{"w3", "REF-WK-3", "Merchant Settlement", "City Supermarket", "Settlement", 4, 11, 0, 120000, 0, wallet.Reconciled},
	{"m1", "REF-M-1", "Monthly Server Fee", "AWS", "OpEx", 10, 15, 30, 2500000, 0, wallet.Reconciled},
	{"m2", "REF-M-2", "Large Deposit", "Agent Network", "Collection", 15, 8, 45, 0, 12000000, wallet.Reconciled},
	{"m3", "REF-M-3", "Tax Remittance", "URA", "Tax", 20, 13, 0, 3400000, 0, wallet.Reconciled},
	{"m4", "REF-M-4", "System Adjustment", "Ops Team", "Adjustment", 25, 10, 0, 0, 500, wallet.Uncleared},
	{"old1", "REF-OLD-1", "Q3 Disbursement", "Multiple", "Disbursement", 45, 12, 0, 45000000, 0, wallet.Reconciled},
	{"old2", "REF-OLD-2", "Capital Funding", "Investors", "Funding", 60, 12, 0, 0, 150000000, wallet.Reconciled},
}

// Movements returns the statement history of walletID relative to now.
// Every wallet carries the same pattern; IDs are prefixed with the wallet
// ID so they stay unique.
func Movements(walletID string, now time.Time) []wallet.Movement {
	y, m, d := now.Date()
	out := make([]wallet.Movement, 0, len(movementSpecs))
	for _, s := range movementSpecs {
		out = append(out, wallet.Movement{
			ID:           walletID + "-" + s.id,
			WalletID:     walletID,
			Reference:    s.reference,
			At:           time.Date(y, m, d-s.daysAgo, s.hour, s.minute, 0, 0, now.Location()),
			Description:  s.description,
			Counterparty: s.counterparty,
			Type:         s.typ,
			Debit:        s.debit,
			Credit:       s.credit,
			Status:       s.status,
		})
	}
	return out
}

// Seed loads transactions, wallets, movements and external balances into
// the in-memory read models.
func Seed(ctx context.Context, g *Generator, n int, txs *ledger.InMemory, wallets *wallet.InMemory) error {
	if _, err := txs.Add(ctx, g.Transactions(n)...); err != nil {
		return err
	}
	for _, w := range Wallets(g.now.Add(-72 * time.Hour)) {
		wallets.Put(w)
		wallets.AddMovements(Movements(w.ID, g.now)...)
		txs.SetBalance(w.AccountNumber, w.Balance)
	}
	for id, m := range ExternalBalances() {
		wallets.SetExternalBalance(id, m)
	}
	return nil
}
