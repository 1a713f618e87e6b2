package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"fundsflow.org/internal/audit"
	"fundsflow.org/internal/cache"
	"fundsflow.org/internal/export"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/listing"
	"fundsflow.org/internal/obs"
)

type listTransactionsResponse struct {
	Items     []ledger.TransactionRecord `json:"items"`
	Total     int                        `json:"total"`
	Totals    map[string]int64           `json:"totals"`
	NextAfter uint64                     `json:"next_after"`
	AsOf      time.Time                  `json:"as_of"`
}

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), listing.DefaultLimit, 1, listing.MaxLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after, err := parseAfter(q.Get("after"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	all, err := a.allTransactions(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	matched := listing.Apply(all, f)
	items, next := listing.Page(matched, limit, after)
	if items == nil {
		items = []ledger.TransactionRecord{}
	}

	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Items:     items,
		Total:     len(matched),
		Totals:    listing.Totals(matched),
		NextAfter: next,
		AsOf:      a.now().UTC(),
	})
}

func (a *API) exportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	all, err := a.allTransactions(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	matched := listing.Apply(all, f)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := export.ListingCSV(w, matched); err != nil {
		obs.FromContext(r.Context()).Error().Err(err).Msg("csv_export_failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "transactions.exported", map[string]any{
		"format": "csv",
		"rows":   len(matched),
	})
}

func (a *API) getTransactionDetail(w http.ResponseWriter, r *http.Request) {
	d, hit, err := a.detail(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	source := "derived"
	if hit {
		source = "cached"
	}
	_ = audit.LogEvent(r.Context(), "transaction.detail_viewed", map[string]any{
		"reference": d.Reference,
		"source":    source,
	})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) exportTransactionPDF(w http.ResponseWriter, r *http.Request) {
	d, _, err := a.detail(r.Context(), mux.Vars(r)["reference"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, d.Reference))
	if err := export.DetailPDF(w, d); err != nil {
		obs.FromContext(r.Context()).Error().Err(err).Str("reference", d.Reference).Msg("pdf_export_failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "transaction.exported", map[string]any{
		"format":    "pdf",
		"reference": d.Reference,
	})
}

// detail loads the record, its opening balances and derives it, going
// through the detail cache. hit reports a cached detail.
func (a *API) detail(ctx context.Context, reference string) (d ledger.DerivedTransactionDetail, hit bool, err error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ledger.DerivedTransactionDetail{}, false, ledger.ErrMissingReference
	}
	var rec ledger.TransactionRecord
	d, hit, err = cache.ReadThrough(ctx, a.cache, reference, func(ctx context.Context) (ledger.DerivedTransactionDetail, error) {
		var err error
		rec, err = a.txs.GetTransaction(ctx, reference)
		if err != nil {
			return ledger.DerivedTransactionDetail{}, err
		}
		var snap ledger.BalanceSnapshot
		if a.bals != nil {
			snap, err = a.bals.OpeningBalances(ctx, ledger.TrackedAccounts(rec, a.engine.Chart())...)
			if err != nil {
				return ledger.DerivedTransactionDetail{}, fmt.Errorf("opening balances: %w", err)
			}
		}
		return a.engine.Derive(rec, snap)
	})
	switch {
	case hit:
		obs.ObserveDerivation(string(d.Type), string(d.Status), "cached")
	case err == nil:
		obs.ObserveDerivation(string(d.Type), string(d.Status), "ok")
	default:
		outcome := derivationOutcome(err)
		obs.ObserveDerivation(string(rec.Type), string(rec.Status), outcome)
		if isDerivationError(err) {
			_ = audit.LogEvent(ctx, "transaction.derivation_failed", map[string]any{
				"reference": reference,
				"outcome":   outcome,
			})
		}
	}
	return d, hit, err
}

func derivationOutcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidFee):
		return "invalid_fee"
	case errors.Is(err, ledger.ErrUnknownTransactionType):
		return "unknown_type"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// allTransactions drains the repository in sequence order.
func (a *API) allTransactions(ctx context.Context) ([]ledger.TransactionRecord, error) {
	var (
		out   []ledger.TransactionRecord
		after uint64
	)
	for {
		page, next, err := a.txs.ListTransactions(ctx, listing.MaxLimit, after)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, page...)
		if len(page) < listing.MaxLimit || next <= after {
			return out, nil
		}
		after = next
	}
}

func parseFilter(q url.Values) (listing.Filter, error) {
	f := listing.Filter{
		Search:        q.Get("search"),
		PaymentMethod: strings.TrimSpace(q.Get("method")),
		School:        strings.TrimSpace(q.Get("school")),
	}
	for _, raw := range splitValues(q["type"]) {
		f.Types = append(f.Types, ledger.ParseTransactionType(raw))
	}
	for _, raw := range splitValues(q["status"]) {
		st, err := ledger.ParseTransactionStatus(raw)
		if err != nil {
			return listing.Filter{}, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, nil
}

// splitValues accepts both repeated and comma separated parameters.
func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("limit must be between %d and %d", min, max)
	}
	return val, nil
}

func parseAfter(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("after must be a non-negative integer")
	}
	return v, nil
}
