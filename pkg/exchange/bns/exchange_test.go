package bns

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"xchg/config"
	"xchg/pkg/apierr"
	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

const (
	testKey    = "bn_key"
	testSecret = "bn_secret"
)

type request struct {
	method string
	path   string
	params url.Values
}

// fakeBinance verifies the SDK's query signature on signed routes and
// answers from canned handlers keyed by "METHOD /path".
type fakeBinance struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []request
}

func newFakeBinance(t *testing.T) (*fakeBinance, *httptest.Server) {
	t.Helper()
	f := &fakeBinance{routes: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBinance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	params := r.URL.Query()
	if form, err := url.ParseQuery(string(body)); err == nil {
		for k, v := range form {
			params[k] = v
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, request{method: r.Method, path: r.URL.Path, params: params})
	route, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if params.Get("signature") != "" || strings.HasPrefix(r.URL.Path, "/api/v3/account") || strings.HasPrefix(r.URL.Path, "/api/v3/o") {
		if r.Header.Get("X-MBX-APIKEY") != testKey || !validSignature(r.URL.RawQuery, string(body)) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":-1022,"msg":"Signature for this request is not valid."}`))
			return
		}
	}
	route(w, r)
}

func validSignature(rawQuery string, body string) bool {
	i := strings.LastIndex(rawQuery, "signature=")
	if i < 0 {
		return false
	}
	payload := strings.TrimSuffix(rawQuery[:i], "&") + body
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)) == rawQuery[i+len("signature="):]
}

func (f *fakeBinance) handle(route string, fn http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = fn
}

func (f *fakeBinance) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.method+" "+r.path == route {
			n++
		}
	}
	return n
}

func (f *fakeBinance) last() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("fail to read fixture %v: %v", name, err)
	}
	return string(data)
}

func reply(t *testing.T, code int, fixtureName string) http.HandlerFunc {
	payload := loadFixture(t, fixtureName)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write([]byte(payload))
	}
}

func testConfig(baseUrl string) *config.ExchangeConfig {
	return &config.ExchangeConfig{
		ExchangeName:   types.ExchangeBns,
		Authentication: map[string]string{"key": testKey, "secret": testSecret},
		Network: config.NetworkConfig{
			ConnectionTimeout: 5,
			MaxAttempts:       3,
			RetryDelayMs:      1,
			MaxRetryDelayMs:   2,
		},
		Optional: map[string]string{config.OptionalBaseUrl: baseUrl},
	}
}

func newTestExchange(t *testing.T, cfg *config.ExchangeConfig) *BnsExchange {
	t.Helper()
	e, err := New(cfg, WithClientOrderIdGenerator(func() string { return "00000000-0000-0000-0000-000000000001" }))
	if err != nil {
		t.Fatalf("unexpected init error: %v", err)
	}
	return e
}

func TestGetMarketOrders(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/depth", reply(t, http.StatusOK, "depth.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	book, err := e.GetMarketOrders(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	if !bid.Price.Equal(decimal.NewFromInt(100)) || !ask.Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("unexpected top of book %v / %v", bid.Price, ask.Price)
	}
	if got := fake.last().params.Get("symbol"); got != "BTCUSDT" {
		t.Errorf("unexpected symbol %v", got)
	}
}

func TestGetMarketOrdersRetriesNonFatalStatus(t *testing.T) {
	fake, srv := newFakeBinance(t)
	var calls int32
	depth := loadFixture(t, "depth.json")
	fake.handle("GET /api/v3/depth", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(depth))
	})
	e := newTestExchange(t, testConfig(srv.URL))

	if _, err := e.GetMarketOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := fake.count("GET /api/v3/depth"); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestGetLatestMarketPrice(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/ticker/bookTicker", reply(t, http.StatusOK, "book_ticker.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	bid, err := e.GetLatestMarketPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bid.Equal(decimal.RequireFromString("62000.49")) {
		t.Errorf("unexpected bid %v", bid)
	}

	fake.handle("GET /api/v3/ticker/bookTicker", reply(t, http.StatusOK, "book_ticker_missing_bid.json"))
	_, err = e.GetLatestMarketPrice(context.Background(), "BTCUSDT")
	if !errors.Is(err, apierr.ErrMalformedResponse) {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestGetYourOpenOrders(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/openOrders", reply(t, http.StatusOK, "open_orders.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	orders, err := e.GetYourOpenOrders(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].Id != "28457" || !orders[0].Quantity.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("unexpected orders %+v", orders)
	}
}

func TestCreateOrder(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("POST /api/v3/order", reply(t, http.StatusOK, "order_created.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	id, err := e.CreateOrder(context.Background(), "BTCUSDT", types.OrderSideBuy, decimal.RequireFromString("0.0100"), decimal.RequireFromString("60000.10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "28458" {
		t.Errorf("unexpected order id %v", id)
	}

	params := fake.last().params
	want := map[string]string{
		"symbol":           "BTCUSDT",
		"side":             "BUY",
		"type":             "LIMIT",
		"timeInForce":      "GTC",
		"quantity":         "0.01",
		"price":            "60000.1",
		"newClientOrderId": "00000000-0000-0000-0000-000000000001",
	}
	for k, v := range want {
		if got := params.Get(k); got != v {
			t.Errorf("param %v: expected %v, got %v", k, v, got)
		}
	}
}

func TestCreateOrderRetryOptIn(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		fake, srv := newFakeBinance(t)
		fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		})
		e := newTestExchange(t, testConfig(srv.URL))

		_, err := e.CreateOrder(context.Background(), "BTCUSDT", types.OrderSideSell, decimal.NewFromInt(1), decimal.NewFromInt(60000))
		var apiErr *apierr.Error
		if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindNetworkExhausted || !apiErr.Ambiguous {
			t.Fatalf("expected ambiguous network exhausted, got %v", err)
		}
		if n := fake.count("POST /api/v3/order"); n != 1 {
			t.Errorf("expected 1 attempt, got %d", n)
		}
	})

	t.Run("enabled resolves duplicate order", func(t *testing.T) {
		fake, srv := newFakeBinance(t)
		var calls int32
		duplicate := loadFixture(t, "error_duplicate.json")
		fake.handle("POST /api/v3/order", func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(duplicate))
		})
		fake.handle("GET /api/v3/order", reply(t, http.StatusOK, "order_created.json"))
		cfg := testConfig(srv.URL)
		cfg.Optional[config.OptionalRetryCreateOrder] = "true"
		e := newTestExchange(t, cfg)

		id, err := e.CreateOrder(context.Background(), "BTCUSDT", types.OrderSideBuy, decimal.NewFromInt(1), decimal.NewFromInt(60000))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "28458" {
			t.Errorf("unexpected order id %v", id)
		}
		if got := fake.last().params.Get("origClientOrderId"); got != "00000000-0000-0000-0000-000000000001" {
			t.Errorf("expected lookup by client order id, got %v", got)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		fixture string
		want    bool
		wantErr error
	}{
		{"accepted", http.StatusOK, "order_canceled.json", true, nil},
		{"already gone", http.StatusBadRequest, "error_unknown_order.json", false, nil},
		{"invalid key", http.StatusUnauthorized, "error_invalid_key.json", false, apierr.ErrAuthentication},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake, srv := newFakeBinance(t)
			fake.handle("DELETE /api/v3/order", reply(t, tc.status, tc.fixture))
			e := newTestExchange(t, testConfig(srv.URL))

			got, err := e.CancelOrder(context.Background(), "28457", "BTCUSDT")
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
			if id := fake.last().params.Get("orderId"); id != "28457" {
				t.Errorf("unexpected order id param %v", id)
			}
		})
	}
}

func TestCancelOrderRejectsNonNumericId(t *testing.T) {
	e := newTestExchange(t, testConfig("http://127.0.0.1:1"))
	if _, err := e.CancelOrder(context.Background(), "JRF-1", "BTCUSDT"); !errors.Is(err, apierr.ErrRejected) {
		t.Errorf("expected rejected, got %v", err)
	}
}

func TestWrongSecretIsAuthenticationFailure(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/account", reply(t, http.StatusOK, "account.json"))
	cfg := testConfig(srv.URL)
	cfg.Authentication["secret"] = "wrong"
	e := newTestExchange(t, cfg)

	_, err := e.GetBalanceInfo(context.Background())
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestGetBalanceInfo(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/account", reply(t, http.StatusOK, "account.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	info, err := e.GetBalanceInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Available["BTC"].Equal(decimal.RequireFromString("0.5")) || !info.OnHold["BTC"].Equal(decimal.RequireFromString("1")) {
		t.Errorf("unexpected BTC balance %v / %v", info.Available["BTC"], info.OnHold["BTC"])
	}
}

func TestExchangeFees(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/account", reply(t, http.StatusOK, "account.json"))
	cfg := testConfig(srv.URL)
	cfg.Optional[config.OptionalBuyFee] = "0.075"
	e := newTestExchange(t, cfg)

	buy, err := e.GetPercentageOfBuyOrderTakenForExchangeFee(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !buy.Equal(decimal.RequireFromString("0.00075")) {
		t.Errorf("unexpected configured buy fee %v", buy)
	}
	if n := fake.count("GET /api/v3/account"); n != 0 {
		t.Errorf("configured fee must not query the exchange, got %d calls", n)
	}

	sell, err := e.GetPercentageOfSellOrderTakenForExchangeFee(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sell.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("unexpected sell fee %v", sell)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testConfig("http://localhost")
	delete(cfg.Authentication, "secret")
	if _, err := New(cfg); !errors.Is(err, apierr.ErrInitialization) {
		t.Errorf("expected initialization error, got %v", err)
	}
}

func TestClosedExchange(t *testing.T) {
	e := newTestExchange(t, testConfig("http://localhost"))
	if e.State() != types.AdapterReady {
		t.Fatalf("expected ready adapter")
	}
	e.Close()
	if e.State() != types.AdapterUninitialized {
		t.Errorf("expected uninitialized after close")
	}
	if _, err := e.GetYourOpenOrders(context.Background(), "BTCUSDT"); !errors.Is(err, apierr.ErrNotInitialized) {
		t.Errorf("expected not initialized, got %v", err)
	}

	var zero BnsExchange
	if _, err := zero.GetMarketOrders(context.Background(), "BTCUSDT"); !errors.Is(err, apierr.ErrNotInitialized) {
		t.Errorf("expected not initialized, got %v", err)
	}
}

func TestCloseWhileCallsInFlight(t *testing.T) {
	fake, srv := newFakeBinance(t)
	fake.handle("GET /api/v3/account", reply(t, http.StatusOK, "account.json"))
	e := newTestExchange(t, testConfig(srv.URL))

	const callers = 50
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GetBalanceInfo(context.Background())
			errs <- err
		}()
	}
	e.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, apierr.ErrNotInitialized) {
			t.Errorf("expected success or not initialized, got %v", err)
		}
	}
}

func TestCloseNilExchange(t *testing.T) {
	var e *BnsExchange
	e.Close()
	if _, err := e.GetBalanceInfo(context.Background()); !errors.Is(err, apierr.ErrNotInitialized) {
		t.Errorf("expected not initialized, got %v", err)
	}
}
