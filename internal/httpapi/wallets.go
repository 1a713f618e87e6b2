package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/wallet"
)

type listWalletsResponse struct {
	Items []wallet.Wallet `json:"items"`
}

type discrepanciesResponse struct {
	Items   []wallet.Discrepancy `json:"items"`
	Open    int                  `json:"open"`
	LastRun *reconcileRun        `json:"last_run,omitempty"`
	NextRun *time.Time           `json:"next_run,omitempty"`
}

// reconcileRun summarises the scheduled reconciler's most recent pass.
type reconcileRun struct {
	At      time.Time `json:"at"`
	Checked int       `json:"checked"`
	Open    int       `json:"open"`
}

func (a *API) listWallets(w http.ResponseWriter, r *http.Request) {
	ws, err := a.wallets.ListWallets(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if ws == nil {
		ws = []wallet.Wallet{}
	}
	writeJSON(w, http.StatusOK, listWalletsResponse{Items: ws})
}

func (a *API) getWallet(w http.ResponseWriter, r *http.Request) {
	wl, err := a.wallets.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (a *API) walletStatement(w http.ResponseWriter, r *http.Request) {
	rng, err := wallet.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	wl, err := a.wallets.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	ms, err := a.wallets.ListMovements(r.Context(), wl.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet.BuildStatement(wl, ms, rng, a.now()))
}

func (a *API) listDiscrepancies(w http.ResponseWriter, r *http.Request) {
	ws, err := a.wallets.ListWallets(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	external, err := a.wallets.ExternalBalances(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	ds := wallet.Discrepancies(ws, external, a.now())
	if ds == nil {
		ds = []wallet.Discrepancy{}
	}
	open := wallet.OpenCount(ds)
	obs.SetOpenDiscrepancies(open)
	resp := discrepanciesResponse{Items: ds, Open: open}
	if a.recon != nil {
		now := a.now()
		next := a.recon.Next(now)
		resp.NextRun = &next
		if at, last := a.recon.Last(); !at.IsZero() {
			resp.LastRun = &reconcileRun{At: at, Checked: len(last), Open: wallet.OpenCount(last)}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
