package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fundsflow.org/internal/audit"
	"fundsflow.org/internal/invoice"
)

type invoicePreviewResponse struct {
	Invoice invoice.Invoice `json:"invoice"`
	Totals  invoice.Totals  `json:"totals"`
}

// previewInvoice prices a draft invoice without issuing it.
func (a *API) previewInvoice(w http.ResponseWriter, r *http.Request) {
	var inv invoice.Invoice
	if err := decodeJSON(r, &inv); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	totals, err := inv.Totals()
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "invoice.previewed", map[string]any{
		"name":  inv.Name,
		"items": len(inv.Items),
		"final": totals.Final.Amount,
	})
	writeJSON(w, http.StatusOK, invoicePreviewResponse{Invoice: inv, Totals: totals})
}

// decodeJSON reads exactly one JSON document. The body size is already
// capped by MaxBodyBytes.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
