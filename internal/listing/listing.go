// Package listing filters and pages transaction records for the
// transaction list view.
package listing

import (
	"sort"
	"strings"

	"fundsflow.org/internal/ledger"
)

const (
	DefaultLimit = ledger.DefaultPageSize
	MaxLimit     = ledger.MaxPageSize
)

// AnySchool disables the school filter.
const AnySchool = "--"

// Filter selects records. Zero-valued fields match everything.
type Filter struct {
	Search        string
	Types         []ledger.TransactionType
	Statuses      []ledger.TransactionStatus
	PaymentMethod string
	School        string
}

// Match reports whether rec passes every set criterion. Search matches a
// case-insensitive substring of the reference or a substring of the payer
// account.
func (f Filter) Match(rec ledger.TransactionRecord) bool {
	if q := strings.TrimSpace(f.Search); q != "" {
		inRef := strings.Contains(strings.ToLower(rec.Reference), strings.ToLower(q))
		if !inRef && !strings.Contains(rec.PayerAccountID, q) {
			return false
		}
	}
	if len(f.Types) > 0 && !containsType(f.Types, rec.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, rec.Status) {
		return false
	}
	if f.PaymentMethod != "" && !strings.EqualFold(f.PaymentMethod, rec.PaymentMethod) {
		return false
	}
	if f.School != "" && f.School != AnySchool && f.School != rec.School {
		return false
	}
	return true
}

// Apply returns the records that match f, keeping their order.
func Apply(records []ledger.TransactionRecord, f Filter) []ledger.TransactionRecord {
	out := make([]ledger.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Page returns up to limit records whose sequence is greater than after,
// ordered by sequence, and the cursor for the next page (0 when exhausted).
func Page(records []ledger.TransactionRecord, limit int, after uint64) ([]ledger.TransactionRecord, uint64) {
	limit = ClampLimit(limit)
	sorted := make([]ledger.TransactionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	start := sort.Search(len(sorted), func(i int) bool { return sorted[i].Sequence > after })
	end := start + limit
	if end >= len(sorted) {
		return sorted[start:], 0
	}
	page := sorted[start:end]
	return page, page[len(page)-1].Sequence
}

func ClampLimit(limit int) int { return ledger.PageSize(limit) }

// Totals sums nominal amounts per currency.
func Totals(records []ledger.TransactionRecord) map[string]int64 {
	out := make(map[string]int64)
	for _, rec := range records {
		out[rec.NominalAmount.Currency] += rec.NominalAmount.Amount
	}
	return out
}

func containsType(set []ledger.TransactionType, t ledger.TransactionType) bool {
	for _, s := range set {
		if strings.EqualFold(string(s), string(t)) {
			return true
		}
	}
	return false
}

func containsStatus(set []ledger.TransactionStatus, st ledger.TransactionStatus) bool {
	for _, s := range set {
		if strings.EqualFold(string(s), string(st)) {
			return true
		}
	}
	return false
}
