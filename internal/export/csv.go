// Package export renders transaction data for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"fundsflow.org/internal/ledger"
)

var listingHeader = []string{
	"reference", "date", "type", "status", "currency", "nominal_amount", "gross_amount", "net_amount",
	"payer_account", "payee_account", "payment_method", "message", "school", "serial_number",
}

// ListingCSV writes one row per record. Gross and net are computed from
// the fees; records whose fees do not derive leave those cells empty.
func ListingCSV(w io.Writer, records []ledger.TransactionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(listingHeader); err != nil {
		return err
	}
	for _, rec := range records {
		gross, net := "", ""
		if g, n, err := ledger.DeriveGrossAndNet(rec); err == nil {
			gross, net = strconv.FormatInt(g.Amount, 10), strconv.FormatInt(n.Amount, 10)
		}
		row := []string{
			rec.Reference,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			string(rec.Type),
			string(rec.Status),
			rec.NominalAmount.Currency,
			strconv.FormatInt(rec.NominalAmount.Amount, 10),
			gross,
			net,
			rec.PayerAccountID,
			rec.PayeeAccountID,
			rec.PaymentMethod,
			rec.Message,
			rec.School,
			rec.SerialNumber,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
