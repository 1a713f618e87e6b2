package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fundsflow.org/internal/cache"
	"fundsflow.org/internal/feed"
	"fundsflow.org/internal/invoice"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/wallet"
)

const serviceName = "fundsflow-api"

// Pinger is satisfied by the Redis detail cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores; nil members are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		if err := rp.Cache.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps wires the read models into the API.
type Deps struct {
	Transactions ledger.TransactionRepository
	Balances     ledger.BalanceSource
	Wallets      wallet.Repository
	Engine       ledger.Engine
	Cache        cache.DetailCache
	Stream       *feed.Stream
	Reconciler   ReconcileStatus
	Commit       string
	Now          func() time.Time
}

// ReconcileStatus reports the scheduled reconciler's last and next runs.
type ReconcileStatus interface {
	Last() (at time.Time, ds []wallet.Discrepancy)
	Next(t time.Time) time.Time
}

// Limits configures the middleware chain.
type Limits struct {
	RatePerSec   float64
	RateBurst    int
	MaxBodyBytes int64
	CORSOrigins  []string
}

// API is the HTTP layer of the operations console.
type API struct {
	router     *mux.Router
	readyProbe readinessChecker
	version    string

	txs     ledger.TransactionRepository
	bals    ledger.BalanceSource
	wallets wallet.Repository
	engine  ledger.Engine
	cache   cache.DetailCache
	stream  *feed.Stream
	recon   ReconcileStatus
	build   obs.Build
	now     func() time.Time

	limits Limits
}

func New(rp readinessChecker, version string, d Deps, limits Limits) *API {
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if limits.RatePerSec <= 0 {
		limits.RatePerSec = 50
	}
	if limits.RateBurst <= 0 {
		limits.RateBurst = 100
	}
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = 1 << 20
	}
	chart := d.Engine.Chart()
	a := &API{
		router:     mux.NewRouter(),
		readyProbe: rp,
		version:    version,
		txs:        d.Transactions,
		bals:       d.Balances,
		wallets:    d.Wallets,
		engine:     d.Engine,
		cache:      d.Cache,
		stream:     d.Stream,
		recon:      d.Reconciler,
		build:      obs.NewBuild(version, d.Commit, chart.FeeAccount, chart.OVA, chart.ProviderFeeAccount),
		now:        d.Now,
		limits:     limits,
	}

	r := a.router
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/transactions", a.listTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/export.csv", a.exportTransactionsCSV).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{reference}", a.getTransactionDetail).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{reference}/export.pdf", a.exportTransactionPDF).Methods(http.MethodGet)
	v1.HandleFunc("/wallets", a.listWallets).Methods(http.MethodGet)
	v1.HandleFunc("/wallets/{id}", a.getWallet).Methods(http.MethodGet)
	v1.HandleFunc("/wallets/{id}/statement", a.walletStatement).Methods(http.MethodGet)
	v1.HandleFunc("/reconciliation/discrepancies", a.listDiscrepancies).Methods(http.MethodGet)
	v1.HandleFunc("/invoices/preview", a.previewInvoice).Methods(http.MethodPost)
	v1.HandleFunc("/stream", a.Stream).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return a
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	h = RateLimit(h, a.limits.RateBurst, a.limits.RatePerSec)
	h = CORS(h, a.limits.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       a.now().UTC().Format(time.RFC3339),
		"version":    a.build.Version,
		"commit":     a.build.Commit,
		"go_version": a.build.GoVersion,
		"chart":      a.engine.Chart(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleError maps domain errors onto HTTP responses.
// isDerivationError reports errors the engine raises for records it
// refuses to journal.
func isDerivationError(err error) bool {
	return errors.Is(err, ledger.ErrInvalidFee) ||
		errors.Is(err, ledger.ErrUnknownTransactionType) ||
		errors.Is(err, ledger.ErrCurrencyMismatch) ||
		errors.Is(err, ledger.ErrInvalidAmount) ||
		errors.Is(err, ledger.ErrInvalidCurrency)
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrMissingReference), errors.Is(err, wallet.ErrInvalidRange):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, invoice.ErrInvalidInvoice):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case isDerivationError(err):
		obs.FromContext(r.Context()).Warn().Err(err).Msg("derivation_failed")
		writeError(w, r, http.StatusUnprocessableEntity, "unable to load transaction detail")
	default:
		obs.FromContext(r.Context()).Error().Err(err).Msg("request_failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
