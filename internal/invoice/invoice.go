// Package invoice prices invoices issued from the console: line items are
// summed into a subtotal, then fees and tax are added and discounts taken
// off.
package invoice

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"fundsflow.org/internal/ledger"
)

type Type string

const (
	Subscription       Type = "Subscription"
	ServicesOrProducts Type = "Services or Products"
)

// IssueMode says when the invoice goes out to the recipient.
type IssueMode string

const (
	IssueImmediately IssueMode = "Immediately"
	IssueScheduled   IssueMode = "Scheduled"
)

// ReminderDays lists the supported reminder intervals. Zero disables
// reminders.
var ReminderDays = []int{0, 1, 3, 7}

var ErrInvalidInvoice = errors.New("invalid invoice")

// LineItem is one priced row. Zero fee, discount and tax may be left as
// ledger.Money{}.
type LineItem struct {
	Description string       `json:"description"`
	UnitPrice   ledger.Money `json:"unit_price"`
	Quantity    int64        `json:"quantity"`
	Fee         ledger.Money `json:"fee"`
	Discount    ledger.Money `json:"discount"`
	Tax         ledger.Money `json:"tax"`
}

type Invoice struct {
	Name            string     `json:"name"`
	Type            Type       `json:"type"`
	Description     string     `json:"description,omitempty"`
	Recipient       string     `json:"recipient"`
	Currency        string     `json:"currency"`
	Issue           IssueMode  `json:"issue"`
	PaymentTermDays int        `json:"payment_term_days"`
	ReminderDays    int        `json:"reminder_days"`
	AllowPartial    bool       `json:"allow_partial"`
	Items           []LineItem `json:"items"`
}

// Totals is the priced summary of an invoice.
type Totals struct {
	Subtotal ledger.Money `json:"subtotal"`
	Fee      ledger.Money `json:"fee"`
	Tax      ledger.Money `json:"tax"`
	Discount ledger.Money `json:"discount"`
	Final    ledger.Money `json:"final"`
}

// Validate checks the invoice header. Line items are checked by Totals.
func (inv Invoice) Validate() error {
	if strings.TrimSpace(inv.Name) == "" {
		return invalid("name is required")
	}
	switch inv.Type {
	case Subscription, ServicesOrProducts:
	default:
		return invalid(fmt.Sprintf("unknown invoice type %q", inv.Type))
	}
	if strings.TrimSpace(inv.Recipient) == "" {
		return invalid("recipient is required")
	}
	if strings.TrimSpace(inv.Currency) == "" {
		return invalid(ledger.ErrInvalidCurrency.Error())
	}
	switch inv.Issue {
	case "", IssueImmediately, IssueScheduled:
	default:
		return invalid(fmt.Sprintf("unknown issue mode %q", inv.Issue))
	}
	if inv.PaymentTermDays < 0 {
		return invalid("payment terms must not be negative")
	}
	if !validReminder(inv.ReminderDays) {
		return invalid(fmt.Sprintf("reminder every %d days is not supported", inv.ReminderDays))
	}
	if len(inv.Items) == 0 {
		return invalid("at least one line item is required")
	}
	return nil
}

// Totals validates inv and prices it:
// final = sum(unit price * quantity) + fees + tax - discounts.
func (inv Invoice) Totals() (Totals, error) {
	if err := inv.Validate(); err != nil {
		return Totals{}, err
	}
	cur := inv.Currency
	t := Totals{
		Subtotal: ledger.Zero(cur),
		Fee:      ledger.Zero(cur),
		Tax:      ledger.Zero(cur),
		Discount: ledger.Zero(cur),
	}
	for i, item := range inv.Items {
		item = normalize(item, cur)
		line := i + 1
		if item.Quantity <= 0 {
			return Totals{}, invalid(fmt.Sprintf("line %d: quantity must be positive", line))
		}
		for _, m := range []ledger.Money{item.UnitPrice, item.Fee, item.Discount, item.Tax} {
			if m.Currency != cur {
				return Totals{}, invalid(fmt.Sprintf("line %d: %s does not match invoice currency %s", line, m.Currency, cur))
			}
			if m.IsNegative() {
				return Totals{}, invalid(fmt.Sprintf("line %d: amounts must not be negative", line))
			}
		}
		amount, ok := mul(item.UnitPrice.Amount, item.Quantity)
		if !ok {
			return Totals{}, invalid(fmt.Sprintf("line %d: amount overflows", line))
		}
		if !addTo(&t.Subtotal, amount) || !addTo(&t.Fee, item.Fee.Amount) ||
			!addTo(&t.Tax, item.Tax.Amount) || !addTo(&t.Discount, item.Discount.Amount) {
			return Totals{}, invalid("invoice total overflows")
		}
	}
	final := t.Subtotal
	if !addTo(&final, t.Fee.Amount) || !addTo(&final, t.Tax.Amount) {
		return Totals{}, invalid("invoice total overflows")
	}
	final.Amount -= t.Discount.Amount
	if final.IsNegative() {
		return Totals{}, invalid("discounts exceed the invoice amount")
	}
	t.Final = final
	return t, nil
}

func normalize(item LineItem, currency string) LineItem {
	for _, m := range []*ledger.Money{&item.UnitPrice, &item.Fee, &item.Discount, &item.Tax} {
		if m.Currency == "" && m.Amount == 0 {
			*m = ledger.Zero(currency)
		}
	}
	return item
}

func validReminder(days int) bool {
	for _, d := range ReminderDays {
		if d == days {
			return true
		}
	}
	return false
}

func mul(a, b int64) (int64, bool) {
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// addTo adds a non-negative amount to m unless the sum would overflow.
func addTo(m *ledger.Money, amount int64) bool {
	if amount > math.MaxInt64-m.Amount {
		return false
	}
	m.Amount += amount
	return true
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInvoice, reason)
}
