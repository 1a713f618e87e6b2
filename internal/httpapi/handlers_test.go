package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundsflow.org/internal/feed"
	"fundsflow.org/internal/fixtures"
	"fundsflow.org/internal/jobs"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/wallet"
)

var testNow = time.Date(2025, 11, 24, 8, 0, 0, 0, time.UTC)

type memCache struct {
	mu   sync.Mutex
	data map[string]ledger.DerivedTransactionDetail
	hits int
}

func (c *memCache) Get(_ context.Context, ref string) (ledger.DerivedTransactionDetail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[ref]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, d ledger.DerivedTransactionDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[d.Reference] = d
	return nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	txs    *ledger.InMemory
	stream *feed.Stream
	cache  *memCache
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	txs := ledger.NewInMemory()
	wallets := wallet.NewInMemory()
	if err := fixtures.Seed(context.Background(), fixtures.New(7, testNow), 120, txs, wallets); err != nil {
		t.Fatalf("seed fixtures: %v", err)
	}
	c := &memCache{data: make(map[string]ledger.DerivedTransactionDetail)}
	s := feed.New()

	api := New(ReadyProbe{}, "test", Deps{
		Transactions: txs,
		Balances:     txs,
		Wallets:      wallets,
		Engine:       ledger.NewEngine(ledger.DefaultChart()),
		Cache:        c,
		Stream:       s,
		Now:          func() time.Time { return testNow },
	}, Limits{RatePerSec: 1000, RateBurst: 1000})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		txs:     txs,
		stream:  s,
		cache:   c,
	}
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	resp, err := c.client.Get(u.String())
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) firstRecord() ledger.TransactionRecord {
	c.t.Helper()
	recs, _, err := c.txs.ListTransactions(context.Background(), 1, 0)
	if err != nil || len(recs) == 0 {
		c.t.Fatalf("no seeded records: %v", err)
	}
	return recs[0]
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	resp = api.get("/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected ready status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	info := decode[map[string]any](t, api.get("/v1/info", nil))
	chart, ok := info["chart"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "GEN-OVA-001", chart["ova"])
	assert.Equal(t, "test", info["version"])
	assert.Equal(t, runtime.Version(), info["go_version"])
}

func TestListTransactionsPaging(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/transactions", url.Values{"limit": []string{"10"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	page := decode[listTransactionsResponse](t, resp)
	require.Len(t, page.Items, 10)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, uint64(10), page.NextAfter)
	assert.Positive(t, page.Totals[fixtures.Currency])

	next := decode[listTransactionsResponse](t, api.get("/v1/transactions", url.Values{
		"limit": []string{"10"},
		"after": []string{"10"},
	}))
	require.Len(t, next.Items, 10)
	assert.Equal(t, uint64(11), next.Items[0].Sequence)
}

func TestListTransactionsFilters(t *testing.T) {
	api := newTestAPI(t)

	page := decode[listTransactionsResponse](t, api.get("/v1/transactions", url.Values{
		"status": []string{"failed,declined"},
		"limit":  []string{"1000"},
	}))
	require.NotEmpty(t, page.Items)
	for _, rec := range page.Items {
		if rec.Status != ledger.StatusFailed && rec.Status != ledger.StatusDeclined {
			t.Fatalf("unexpected status in filtered page: %s", rec.Status)
		}
	}

	ref := api.firstRecord().Reference
	page = decode[listTransactionsResponse](t, api.get("/v1/transactions", url.Values{
		"search": []string{strings.ToLower(ref)},
	}))
	require.Len(t, page.Items, 1)
	assert.Equal(t, ref, page.Items[0].Reference)
}

func TestListTransactionsRejectsBadParams(t *testing.T) {
	api := newTestAPI(t)

	for _, params := range []url.Values{
		{"status": []string{"settled"}},
		{"limit": []string{"0"}},
		{"limit": []string{"abc"}},
		{"after": []string{"-1"}},
	} {
		resp := api.get("/v1/transactions", params)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("params %v: expected 400, got %d", params, resp.StatusCode)
		}
		body := decode[map[string]any](t, resp)
		if body["error"] == "" || body["request_id"] == "" {
			t.Fatalf("params %v: expected error and request_id, got %v", params, body)
		}
	}
}

func TestTransactionDetail(t *testing.T) {
	api := newTestAPI(t)
	rec := api.firstRecord()

	resp := api.get("/v1/transactions/"+rec.Reference, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	d := decode[ledger.DerivedTransactionDetail](t, resp)
	assert.Equal(t, rec.Reference, d.Reference)
	require.NotEmpty(t, d.Journal)
	require.NoError(t, ledger.CheckBalanced(d.Journal))

	want, err := ledger.NewEngine(ledger.DefaultChart()).Derive(rec, nil)
	require.NoError(t, err)
	assert.Equal(t, want.GrossAmount, d.GrossAmount)
	assert.Equal(t, want.NetAmount, d.NetAmount)

	// second read is served from the cache
	resp = api.get("/v1/transactions/"+rec.Reference, nil)
	resp.Body.Close()
	assert.Equal(t, 1, api.cache.hits)
}

func TestTransactionDetailErrors(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/transactions/REF-MISSING", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	_, err := api.txs.Add(context.Background(), ledger.TransactionRecord{
		Reference:      "REF-BADFEE",
		Type:           ledger.Payment,
		Status:         ledger.StatusApproved,
		NominalAmount:  ledger.Money{Currency: "UGX", Amount: 100},
		PayeeFee:       ledger.Money{Currency: "UGX", Amount: 500},
		PayerAccountID: "221000000001",
		PayeeAccountID: "251000000002",
		CreatedAt:      testNow,
	})
	require.NoError(t, err)

	resp = api.get("/v1/transactions/REF-BADFEE", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "unable to load transaction detail", body["error"])
	assert.NotEmpty(t, body["request_id"])
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// auditEvents returns the fields of every audit line written so far, keyed
// by event name.
func (b *lockedBuffer) auditEvents(t *testing.T) map[string][]map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]map[string]any)
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log is not valid JSON: %v", err)
		}
		if entry["type"] != "audit" {
			continue
		}
		fields, _ := entry["fields"].(map[string]any)
		name, _ := entry["event"].(string)
		out[name] = append(out[name], fields)
	}
	return out
}

func TestTransactionDetailAudit(t *testing.T) {
	logs := &lockedBuffer{}
	restore := obs.SetOutput(logs)
	defer restore()

	api := newTestAPI(t)
	rec := api.firstRecord()
	for i := 0; i < 2; i++ {
		resp := api.get("/v1/transactions/"+rec.Reference, nil)
		resp.Body.Close()
	}

	_, err := api.txs.Add(context.Background(), ledger.TransactionRecord{
		Reference:      "REF-BADFEE",
		Type:           ledger.Payment,
		Status:         ledger.StatusApproved,
		NominalAmount:  ledger.Money{Currency: "UGX", Amount: 100},
		PayerFee:       ledger.Money{Currency: "UGX", Amount: 0},
		PayeeFee:       ledger.Money{Currency: "UGX", Amount: 500},
		PayerAccountID: "221000000001",
		PayeeAccountID: "251000000002",
		CreatedAt:      testNow,
	})
	require.NoError(t, err)
	resp := api.get("/v1/transactions/REF-BADFEE", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	events := logs.auditEvents(t)
	viewed := events["transaction.detail_viewed"]
	require.Len(t, viewed, 2)
	assert.Equal(t, rec.Reference, viewed[0]["reference"])
	assert.Equal(t, "derived", viewed[0]["source"])
	assert.Equal(t, "cached", viewed[1]["source"])

	failed := events["transaction.derivation_failed"]
	require.Len(t, failed, 1)
	assert.Equal(t, "REF-BADFEE", failed[0]["reference"])
	assert.Equal(t, "invalid_fee", failed[0]["outcome"])
}

func TestTransactionExports(t *testing.T) {
	api := newTestAPI(t)
	rec := api.firstRecord()

	resp := api.get("/v1/transactions/"+rec.Reference+"/export.pdf", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected pdf status: %d", resp.StatusCode)
	}
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	pdf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	resp = api.get("/v1/transactions/export.csv", url.Values{"type": []string{string(rec.Type)}})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected csv status: %d", resp.StatusCode)
	}
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 1)
	assert.Equal(t, "reference", rows[0][0])
	for _, row := range rows[1:] {
		assert.Equal(t, string(rec.Type), row[2])
	}
}

func TestWallets(t *testing.T) {
	api := newTestAPI(t)

	list := decode[listWalletsResponse](t, api.get("/v1/wallets", nil))
	require.Len(t, list.Items, 12)
	assert.Equal(t, "1", list.Items[0].ID)

	byAccount := decode[wallet.Wallet](t, api.get("/v1/wallets/YO-MTN-002", nil))
	assert.Equal(t, "7", byAccount.ID)

	resp := api.get("/v1/wallets/404", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWalletStatement(t *testing.T) {
	api := newTestAPI(t)

	for _, rng := range wallet.Ranges {
		resp := api.get("/v1/wallets/7/statement", url.Values{"range": []string{string(rng)}})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("range %s: unexpected status %d", rng, resp.StatusCode)
		}
		st := decode[wallet.Statement](t, resp)
		m := st.Metrics
		if m.OpeningBalance.Amount+m.TotalCredits.Amount-m.TotalDebits.Amount != m.ClosingBalance.Amount {
			t.Fatalf("range %s: statement does not add up: %+v", rng, m)
		}
	}

	resp := api.get("/v1/wallets/7/statement", url.Values{"range": []string{"fortnight"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown range, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDiscrepancies(t *testing.T) {
	api := newTestAPI(t)

	body := decode[discrepanciesResponse](t, api.get("/v1/reconciliation/discrepancies", nil))
	require.Len(t, body.Items, 4)
	assert.Equal(t, 2, body.Open)
	assert.Nil(t, body.LastRun)
	assert.Nil(t, body.NextRun)
}

func TestDiscrepanciesReportScheduledRuns(t *testing.T) {
	txs := ledger.NewInMemory()
	wallets := wallet.NewInMemory()
	require.NoError(t, fixtures.Seed(context.Background(), fixtures.New(7, testNow), 10, txs, wallets))

	recon, err := jobs.NewReconciler("0 8 * * *", wallets, func() time.Time { return testNow })
	require.NoError(t, err)
	api := New(ReadyProbe{}, "test", Deps{
		Transactions: txs,
		Balances:     wallets,
		Wallets:      wallets,
		Engine:       ledger.NewEngine(ledger.DefaultChart()),
		Reconciler:   recon,
		Now:          func() time.Time { return testNow.Add(time.Hour) },
	}, Limits{})
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	fetch := func() discrepanciesResponse {
		resp, err := srv.Client().Get(srv.URL + "/v1/reconciliation/discrepancies")
		require.NoError(t, err)
		return decode[discrepanciesResponse](t, resp)
	}

	body := fetch()
	assert.Nil(t, body.LastRun)
	require.NotNil(t, body.NextRun)
	assert.Equal(t, time.Date(2025, 11, 25, 8, 0, 0, 0, time.UTC), body.NextRun.UTC())

	_, err = recon.RunOnce(context.Background())
	require.NoError(t, err)
	body = fetch()
	require.NotNil(t, body.LastRun)
	assert.True(t, testNow.Equal(body.LastRun.At))
	assert.Equal(t, 4, body.LastRun.Checked)
	assert.Equal(t, 2, body.LastRun.Open)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v2/nothing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "resource not found", body["error"])
}

func TestStreamDeliversEvents(t *testing.T) {
	api := newTestAPI(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/stream", nil)
	require.NoError(t, err)
	resp, err := api.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": stream started\n", line)

	deadline := time.Now().Add(2 * time.Second)
	for api.stream.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	api.stream.Publish(feed.EventFor(api.firstRecord()))

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}
	var evt feed.TransactionEvent
	require.NoError(t, json.Unmarshal([]byte(data), &evt))
	assert.Equal(t, api.firstRecord().Reference, evt.Reference)
}
