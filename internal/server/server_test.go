package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/dispatch"
	"github.com/you/paygate/internal/gateway"
	"github.com/you/paygate/internal/lnurl"
	"github.com/you/paygate/internal/storage"
)

type stubLN struct {
	mu      sync.Mutex
	settled bool
	seq     int
}

func (s *stubLN) FetchParams(context.Context, string) (*lnurl.PayParams, error) {
	return &lnurl.PayParams{Callback: "https://ln.example/cb", MinSendable: 1000, MaxSendable: 10_000_000_000}, nil
}

func (s *stubLN) RequestInvoice(_ context.Context, _ string, msats int64, _ time.Duration) (*lnurl.InvoiceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	pr := fmt.Sprintf("lnbc-%d-%d", msats, s.seq)
	return &lnurl.InvoiceResult{PR: pr, Verify: "https://ln.example/verify/" + pr}, nil
}

func (s *stubLN) Verify(context.Context, string) (*lnurl.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &lnurl.VerifyResult{Status: "OK", Settled: s.settled}, nil
}

func (s *stubLN) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = true
}

type stubRates struct{ rate float64 }

func (s stubRates) BTCUSD(context.Context) (float64, error) { return s.rate, nil }

func newTestGateway(t *testing.T, providerURL string) (http.Handler, *stubLN) {
	t.Helper()
	ln := &stubLN{}
	reg := dispatch.NewRegistry(&dispatch.Entry{
		Service:    "GPT",
		PriceUSD:   0.01,
		Schema:     dispatch.ChatSchema,
		Dispatcher: dispatch.NewHTTPDispatcher("GPT", providerURL, "sk-test", zap.NewNop()),
	})
	gw := gateway.New(storage.NewMemStore(), ln, stubRates{rate: 100000}, reg, gateway.Config{
		LightningAddress: "pay@gateway.example",
		Endpoint:         "https://gateway.example",
		ProfitMarginPct:  0,
		InvoiceExpiry:    time.Hour,
		DispatchTimeout:  2 * time.Second,
	}, zap.NewNop(), gateway.WithDecoder(func(pr string) (string, error) {
		return "hash-" + pr, nil
	}))
	return New(gw, zap.NewNop()), ln
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestGateway_EndToEnd(t *testing.T) {
	var providerCalls int
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls++
		body, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(body), "api_key", "undeclared fields are stripped")
		w.Write([]byte(`{"choices":[{"text":"pong"}]}`))
	}))
	defer provider.Close()

	h, ln := newTestGateway(t, provider.URL)

	// 1. create: 402 with a fresh invoice
	rec, inv := doJSON(t, h, http.MethodPost, "/GPT",
		`{"model":"gpt-4","messages":[{"role":"user","content":"ping"}],"api_key":"sneaky"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	hash := inv["paymentHash"].(string)
	assert.NotEmpty(t, hash)
	assert.NotEmpty(t, inv["pr"])
	assert.Equal(t, float64(10000), inv["price"], "$0.01 at $100k, no margin")

	// 2. poll before payment: 402, nothing dispatched
	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/get_result", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Zero(t, providerCalls)

	// 3. check_payment: not paid yet
	rec, cp := doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/check_payment", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, cp["isPaid"])

	// 4. settle and poll: sync service answers inline
	ln.settle()
	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/get_result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, providerCalls)
	first := rec.Body.String()
	assert.Contains(t, first, "pong")

	// 5. re-poll: identical stored payload, no re-dispatch
	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/get_result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.String())
	assert.Equal(t, 1, providerCalls)

	// 6. check_payment now cached as paid
	rec, cp = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/check_payment", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, cp["isPaid"])
}

func TestGateway_ErrorGetsOwnStatus(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"provider exploded"}`))
	}))
	defer provider.Close()

	h, ln := newTestGateway(t, provider.URL)

	rec, inv := doJSON(t, h, http.MethodPost, "/GPT", `{"model":"gpt-4"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	hash := inv["paymentHash"].(string)

	ln.settle()
	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/get_result", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"provider exploded"}`, rec.Body.String())

	// terminal: same payload on re-read
	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/"+hash+"/get_result", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"provider exploded"}`, rec.Body.String())
}

func TestGateway_NotFoundCases(t *testing.T) {
	h, _ := newTestGateway(t, "http://127.0.0.1:0")

	rec, _ := doJSON(t, h, http.MethodPost, "/NOPE", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/deadbeef/get_result", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/GPT/deadbeef/check_payment", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_Health(t *testing.T) {
	h, _ := newTestGateway(t, "http://127.0.0.1:0")
	rec, body := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
