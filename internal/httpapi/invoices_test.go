package httpapi

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (c *apiClient) post(path, body string) *http.Response {
	c.t.Helper()
	resp, err := c.client.Post(c.baseURL+path, "application/json", strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("post request: %v", err)
	}
	return resp
}

func TestPreviewInvoice(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/invoices/preview", `{
		"name": "Term 1 fees",
		"type": "Subscription",
		"recipient": "guardian_1",
		"currency": "UGX",
		"payment_term_days": 14,
		"reminder_days": 3,
		"allow_partial": true,
		"items": [
			{"description": "Tuition", "unit_price": {"currency": "UGX", "amount": 300000}, "quantity": 2,
			 "fee": {"currency": "UGX", "amount": 1500}, "discount": {"currency": "UGX", "amount": 50000}},
			{"description": "Uniform", "unit_price": {"currency": "UGX", "amount": 45000}, "quantity": 1,
			 "tax": {"currency": "UGX", "amount": 8100}}
		]
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decode[invoicePreviewResponse](t, resp)
	assert.Equal(t, int64(645000), body.Totals.Subtotal.Amount)
	assert.Equal(t, int64(645000+1500+8100-50000), body.Totals.Final.Amount)
	assert.Equal(t, "UGX", body.Totals.Final.Currency)
	assert.True(t, body.Invoice.AllowPartial)
}

func TestPreviewInvoiceErrors(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"unknown field", `{"name": "x", "colour": "red"}`, http.StatusBadRequest},
		{"trailing data", `{"name": "x"} {}`, http.StatusBadRequest},
		{"no items", `{"name": "x", "type": "Subscription", "recipient": "r", "currency": "UGX"}`, http.StatusUnprocessableEntity},
		{"zero quantity", `{"name": "x", "type": "Subscription", "recipient": "r", "currency": "UGX",
			"items": [{"unit_price": {"currency": "UGX", "amount": 10}, "quantity": 0}]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		resp := api.post("/v1/invoices/preview", tc.body)
		if resp.StatusCode != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, resp.StatusCode)
		}
		body := decode[map[string]any](t, resp)
		require.NotEmpty(t, body["error"], tc.name)
	}

	resp := api.get("/v1/invoices/preview", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}
}
