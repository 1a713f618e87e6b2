package wallet

import (
	"sort"
	"time"

	"fundsflow.org/internal/ledger"
)

const day = 24 * time.Hour

// window is an inclusive range of calendar days before now.
type window struct {
	minDays, maxDays int
	start, end       time.Time
	sameYear         bool
}

func windowFor(r Range, now time.Time) window {
	today := startOfDay(now)
	switch r {
	case RangeToday:
		return window{minDays: 0, maxDays: 0, start: today, end: now}
	case RangeYesterday:
		return window{minDays: 1, maxDays: 1, start: today.Add(-day), end: today}
	case RangeThisWeek:
		return window{minDays: 0, maxDays: 7, start: today.AddDate(0, 0, -7), end: now}
	case RangeLastMonth:
		return window{minDays: 31, maxDays: 60, start: today.AddDate(0, 0, -60), end: today.AddDate(0, 0, -30)}
	case RangeYTD:
		jan1 := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return window{minDays: 0, maxDays: int(^uint(0) >> 1), start: jan1, end: now, sameYear: true}
	}
	return window{minDays: 0, maxDays: 30, start: today.AddDate(0, 0, -30), end: now}
}

// BuildStatement selects the movements of w that fall in r, measured in
// calendar days before now, and derives running balances backwards from
// the wallet's current balance: movements newer than the window are
// unwound first to find the closing balance of the period.
func BuildStatement(w Wallet, movements []Movement, r Range, now time.Time) Statement {
	if r == "" {
		r = RangeThisMonth
	}
	win := windowFor(r, now)
	currency := w.Balance.Currency

	sorted := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if m.WalletID == "" || m.WalletID == w.ID {
			sorted = append(sorted, m)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.After(sorted[j].At) })

	closing := w.Balance.Amount
	var inWindow []Movement
	for _, m := range sorted {
		d := daysAgo(m.At, now)
		switch {
		case d < win.minDays:
			closing = closing - m.Credit + m.Debit
		case d <= win.maxDays && (!win.sameYear || m.At.In(now.Location()).Year() == now.Year()):
			inWindow = append(inWindow, m)
		}
	}

	running := closing
	var debits, credits int64
	items := make([]LedgerItem, 0, len(inWindow))
	for _, m := range inWindow {
		item := LedgerItem{
			ID:            m.ID,
			TransactionID: "TX-" + m.ID,
			Reference:     m.Reference,
			Date:          m.At,
			Description:   m.Description,
			Counterparty:  m.Counterparty,
			Type:          m.Type,
			Balance:       ledger.Money{Currency: currency, Amount: running},
			Status:        m.Status,
		}
		if m.Debit != 0 {
			item.Debit = &ledger.Money{Currency: currency, Amount: m.Debit}
			debits += m.Debit
		}
		if m.Credit != 0 {
			item.Credit = &ledger.Money{Currency: currency, Amount: m.Credit}
			credits += m.Credit
		}
		running = running - m.Credit + m.Debit
		items = append(items, item)
	}

	return Statement{
		Wallet: w,
		Range:  r,
		Metrics: Metrics{
			PeriodStart:    win.start,
			PeriodEnd:      win.end,
			OpeningBalance: ledger.Money{Currency: currency, Amount: running},
			TotalDebits:    ledger.Money{Currency: currency, Amount: debits},
			TotalCredits:   ledger.Money{Currency: currency, Amount: credits},
			ClosingBalance: ledger.Money{Currency: currency, Amount: closing},
		},
		Items: items,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysAgo counts calendar days between at and now in now's location.
// Movements dated after today are negative.
func daysAgo(at, now time.Time) int {
	a := startOfDay(at.In(now.Location()))
	b := startOfDay(now)
	return int(b.Sub(a).Round(time.Hour) / day)
}
