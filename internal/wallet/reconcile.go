package wallet

import (
	"fmt"
	"time"

	"fundsflow.org/internal/ledger"
)

type DiscrepancyStatus string

const (
	DiscrepancyOpen     DiscrepancyStatus = "Open"
	DiscrepancyResolved DiscrepancyStatus = "Resolved"
)

// Discrepancy compares a wallet's internal balance with the balance its
// provider reports.
type Discrepancy struct {
	ID            string            `json:"id"`
	DetectedAt    time.Time         `json:"detected_at"`
	WalletID      string            `json:"wallet_id"`
	WalletName    string            `json:"wallet_name"`
	AccountNumber string            `json:"account_number"`
	Internal      ledger.Money      `json:"internal_balance"`
	External      ledger.Money      `json:"external_balance"`
	Difference    *ledger.Money     `json:"difference"`
	Status        DiscrepancyStatus `json:"status"`
	Note          string            `json:"note,omitempty"`
}

// Discrepancies checks every wallet that has an externally reported
// balance, keyed by wallet ID. Difference is external minus internal; a
// non-zero difference, or balances in different currencies, is open.
// Results keep the order of wallets.
func Discrepancies(wallets []Wallet, external map[string]ledger.Money, now time.Time) []Discrepancy {
	var out []Discrepancy
	for _, w := range wallets {
		ext, ok := external[w.ID]
		if !ok {
			continue
		}
		d := Discrepancy{
			ID:            fmt.Sprintf("DISC-%03d", len(out)+1),
			DetectedAt:    now,
			WalletID:      w.ID,
			WalletName:    w.Name,
			AccountNumber: w.AccountNumber,
			Internal:      w.Balance,
			External:      ext,
			Status:        DiscrepancyResolved,
		}
		diff, err := ext.Sub(w.Balance)
		switch {
		case err != nil:
			d.Status = DiscrepancyOpen
			d.Note = err.Error()
		case !diff.IsZero():
			d.Status = DiscrepancyOpen
			d.Difference = &diff
		default:
			d.Difference = &diff
		}
		out = append(out, d)
	}
	return out
}

// OpenCount returns how many discrepancies are still open.
func OpenCount(ds []Discrepancy) int {
	n := 0
	for _, d := range ds {
		if d.Status == DiscrepancyOpen {
			n++
		}
	}
	return n
}
