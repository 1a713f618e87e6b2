package invoice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundsflow.org/internal/ledger"
)

func ugx(amount int64) ledger.Money { return ledger.Money{Currency: "UGX", Amount: amount} }

func termInvoice() Invoice {
	return Invoice{
		Name:            "Term 1 fees",
		Type:            Subscription,
		Recipient:       "student_1",
		Currency:        "UGX",
		Issue:           IssueImmediately,
		PaymentTermDays: 30,
		ReminderDays:    7,
		AllowPartial:    true,
		Items: []LineItem{
			{Description: "Tuition", UnitPrice: ugx(450000), Quantity: 1, Fee: ugx(2500), Tax: ugx(0)},
			{Description: "Textbooks", UnitPrice: ugx(15000), Quantity: 4, Discount: ugx(10000), Tax: ugx(1800)},
		},
	}
}

func TestTotals(t *testing.T) {
	got, err := termInvoice().Totals()
	require.NoError(t, err)

	assert.Equal(t, ugx(510000), got.Subtotal)
	assert.Equal(t, ugx(2500), got.Fee)
	assert.Equal(t, ugx(1800), got.Tax)
	assert.Equal(t, ugx(10000), got.Discount)
	assert.Equal(t, ugx(510000+2500+1800-10000), got.Final)
}

func TestTotalsLeavesZeroAmountsEmpty(t *testing.T) {
	inv := termInvoice()
	inv.Items = []LineItem{{Description: "Trip", UnitPrice: ugx(20000), Quantity: 3}}

	got, err := inv.Totals()
	require.NoError(t, err)
	assert.Equal(t, ugx(60000), got.Final)
	assert.Equal(t, ugx(0), got.Fee)
}

func TestRejectsInvalidInvoices(t *testing.T) {
	cases := map[string]func(*Invoice){
		"missing name":      func(inv *Invoice) { inv.Name = " " },
		"unknown type":      func(inv *Invoice) { inv.Type = "Donation" },
		"missing recipient": func(inv *Invoice) { inv.Recipient = "" },
		"missing currency":  func(inv *Invoice) { inv.Currency = "" },
		"unknown issue":     func(inv *Invoice) { inv.Issue = "Later" },
		"negative terms":    func(inv *Invoice) { inv.PaymentTermDays = -1 },
		"odd reminder":      func(inv *Invoice) { inv.ReminderDays = 2 },
		"no items":          func(inv *Invoice) { inv.Items = nil },
		"zero quantity":     func(inv *Invoice) { inv.Items[0].Quantity = 0 },
		"negative tax":      func(inv *Invoice) { inv.Items[0].Tax = ugx(-1) },
		"currency mismatch": func(inv *Invoice) { inv.Items[1].UnitPrice = ledger.Money{Currency: "KES", Amount: 100} },
		"discount above total": func(inv *Invoice) {
			inv.Items = []LineItem{{UnitPrice: ugx(100), Quantity: 1, Discount: ugx(101)}}
		},
		"line overflow": func(inv *Invoice) {
			inv.Items = []LineItem{{UnitPrice: ugx(math.MaxInt64 / 2), Quantity: 3}}
		},
		"total overflow": func(inv *Invoice) {
			inv.Items = []LineItem{
				{UnitPrice: ugx(math.MaxInt64 - 10), Quantity: 1},
				{UnitPrice: ugx(11), Quantity: 1},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			inv := termInvoice()
			mutate(&inv)
			_, err := inv.Totals()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInvoice)
		})
	}
}

func TestValidateAcceptsDefaultIssueMode(t *testing.T) {
	inv := termInvoice()
	inv.Issue = ""
	inv.ReminderDays = 0
	assert.NoError(t, inv.Validate())
}
