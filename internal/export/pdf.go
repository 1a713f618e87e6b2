package export

import (
	"fmt"
	"io"

	"github.com/phpdave11/gofpdf"

	"fundsflow.org/internal/ledger"
)

const timeLayout = "02/01/06 15:04:05"

// DetailPDF renders the transaction detail view, including the journal, as
// an A4 landscape PDF.
func DetailPDF(w io.Writer, d ledger.DerivedTransactionDetail) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetCreationDate(d.CreatedAt)
	pdf.SetTitle("Transaction "+d.Reference, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Transaction "+d.Reference, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	summary := [][2]string{
		{"Type", string(d.Type)},
		{"Status", d.Status.Label()},
		{"Payment method", d.PaymentMethod},
		{"Created", d.CreatedAt.Format(timeLayout)},
		{"Nominal amount", d.NominalAmount.String()},
		{"Gross amount", d.GrossAmount.String()},
		{"Net amount", d.NetAmount.String()},
		{"Platform earned", d.Commissions.Platform.String()},
		{"Partner earned", d.Commissions.Partner.String()},
	}
	for _, kv := range summary {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	partyTable(pdf, d.Payer, d.Payee)
	pdf.Ln(6)
	journalTable(pdf, d.Journal)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func partyTable(pdf *gofpdf.Fpdf, payer, payee ledger.PartyBreakdown) {
	header := []string{"Party", "Account", "Amount", "Fee", "Fixed fee", "Percentage", "Total"}
	widths := []float64{25, 55, 40, 30, 30, 25, 40}
	tableHeader(pdf, header, widths)
	for _, row := range []struct {
		name string
		p    ledger.PartyBreakdown
	}{{"Payer", payer}, {"Payee", payee}} {
		cells := []string{row.name, row.p.AccountID, row.p.NominalAmount.String(), row.p.Fee.String(),
			row.p.FixedFee.String(), row.p.PercentageFee, row.p.Total.String()}
		tableRow(pdf, cells, widths)
	}
}

func journalTable(pdf *gofpdf.Fpdf, entries []ledger.JournalEntry) {
	header := []string{"#", "Account", "Role", "Leg", "Dr/Cr", "Amount", "Opening", "Closing", "Status"}
	widths := []float64{10, 45, 40, 27, 17, 35, 35, 35, 26}
	tableHeader(pdf, header, widths)
	for _, e := range entries {
		cells := []string{fmt.Sprint(e.Sequence), e.Account, string(e.AccountRole), string(e.Leg),
			string(e.Direction), e.Amount.String(), balance(e.OpeningBalance), balance(e.ClosingBalance), e.Status}
		tableRow(pdf, cells, widths)
	}
	debits, credits := ledger.JournalTotals(entries)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(0, 7, fmt.Sprintf("Total debits %d, total credits %d", debits, credits), "", 1, "R", false, 0, "")
}

func tableHeader(pdf *gofpdf.Fpdf, header []string, widths []float64) {
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(235, 238, 245)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func tableRow(pdf *gofpdf.Fpdf, cells []string, widths []float64) {
	pdf.SetFont("Arial", "", 9)
	for i, c := range cells {
		pdf.CellFormat(widths[i], 6, c, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func balance(m *ledger.Money) string {
	if m == nil {
		return "-"
	}
	return m.String()
}
