package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"xchg/pkg/apierr"
)

func testPolicy() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.Timeout = time.Second
	policy.RetryDelay = time.Millisecond
	policy.MaxRetryDelay = 2 * time.Millisecond
	policy.MaxAttempts = 3
	return policy
}

// statusServer answers with the given statuses in order and repeats the last one.
func statusServer(t *testing.T, hits *int32, statuses ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(hits, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoRetriesNonFatalStatusUntilExhausted(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusServiceUnavailable)
	transport := NewTransport(srv.Client(), testPolicy())

	res, err := transport.Do(context.Background(), Request{Method: "GET", Url: srv.URL + "/v1/getboard", Retryable: true})
	if res != nil {
		t.Fatalf("expected no response, got %+v", res)
	}
	if !errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Fatalf("expected network exhausted, got %v", err)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected last status 503 on error, got %v", err)
	}
	if apiErr.Ambiguous {
		t.Errorf("retryable request must not be ambiguous")
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDoReturnsFatalStatusAfterOneAttempt(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusInternalServerError)
	transport := NewTransport(srv.Client(), testPolicy())

	res, err := transport.Do(context.Background(), Request{Method: "GET", Url: srv.URL, Retryable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusInternalServerError || res.IsSuccess() {
		t.Errorf("expected 500 response, got %d", res.StatusCode)
	}
	if res.Body != `{"ok":true}` {
		t.Errorf("unexpected body: %s", res.Body)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusOK)
	transport := NewTransport(srv.Client(), testPolicy())

	res, err := transport.Do(context.Background(), Request{Method: "GET", Url: srv.URL, Retryable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsSuccess() {
		t.Errorf("expected success, got %d", res.StatusCode)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDoSendsNonRetryableRequestOnce(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusServiceUnavailable, http.StatusOK)
	transport := NewTransport(srv.Client(), testPolicy())

	_, err := transport.Do(context.Background(), Request{Method: "POST", Url: srv.URL, Body: `{"size":"1"}`})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindNetworkExhausted {
		t.Fatalf("expected network exhausted, got %v", err)
	}
	if !apiErr.Ambiguous {
		t.Errorf("expected ambiguous outcome for a mutating request")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestDoForwardsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ACCESS-KEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer srv.Close()
	transport := NewTransport(srv.Client(), testPolicy())

	res, err := transport.Do(context.Background(), Request{
		Method:  "POST",
		Url:     srv.URL,
		Body:    `{"a":1}`,
		Headers: map[string]string{"ACCESS-KEY": "key"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK || res.Body != `{"a":1}` {
		t.Errorf("unexpected response: %d %s", res.StatusCode, res.Body)
	}
}

func closedServerUrl(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestDoRetriesNonFatalNetworkMessage(t *testing.T) {
	url := closedServerUrl(t)
	transport := NewTransport(&http.Client{}, testPolicy())

	_, err := transport.Do(context.Background(), Request{Method: "GET", Url: url, Retryable: true})
	if !errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Fatalf("expected connection refused to be retried until exhausted, got %v", err)
	}
}

func TestDoFailsFastOnFatalNetworkError(t *testing.T) {
	url := closedServerUrl(t)
	policy := testPolicy()
	policy.NonFatalMessages = nil
	transport := NewTransport(&http.Client{}, policy)

	start := time.Now()
	_, err := transport.Do(context.Background(), Request{Method: "GET", Url: url, Retryable: true})
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("expected fatal network error, got %v", err)
	}
	if errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Fatalf("fatal error must not be reported as exhausted")
	}
	if time.Since(start) > time.Second {
		t.Errorf("fatal error must not wait for retries")
	}
}

func TestDoRetriesTimeouts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	policy := testPolicy()
	policy.Timeout = 20 * time.Millisecond
	transport := NewTransport(srv.Client(), policy)

	_, err := transport.Do(context.Background(), Request{Method: "GET", Url: srv.URL, Retryable: true})
	if !errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Fatalf("expected network exhausted, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDoStopsOnCallerCancellation(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusServiceUnavailable)
	transport := NewTransport(srv.Client(), testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := transport.Do(ctx, Request{Method: "GET", Url: srv.URL, Retryable: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Errorf("cancellation must not be reported as exhausted")
	}
	if got := atomic.LoadInt32(&hits); got > 1 {
		t.Errorf("expected no retry after cancellation, got %d attempts", got)
	}
}

func TestRetryPassesThroughPermanentErrors(t *testing.T) {
	transport := NewTransport(nil, testPolicy())
	calls := 0
	boom := errors.New("insufficient balance")

	err := transport.Retry(context.Background(), true, "createOrder", func(ctx context.Context) error {
		calls++
		return boom
	})
	if err != boom {
		t.Fatalf("expected raw error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsOnTransientErrors(t *testing.T) {
	transport := NewTransport(nil, testPolicy())
	calls := 0

	err := transport.Retry(context.Background(), true, "depth", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("read: connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls = 0
	err = transport.Retry(context.Background(), true, "depth", func(ctx context.Context) error {
		calls++
		return errors.New("dial tcp: connect: connection refused")
	})
	if !errors.Is(err, apierr.ErrNetworkExhausted) {
		t.Fatalf("expected network exhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	transport := NewTransport(nil, testPolicy())
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{errors.New("Remote host closed connection during handshake"), true},
		{errors.New("remote host closed connection during handshake"), true},
		{errors.New("x509: certificate signed by unknown authority"), false},
	}
	for _, tc := range cases {
		if got := transport.IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v): expected %v, got %v", tc.err, tc.want, got)
		}
	}
}

func TestClientTurnsNonFatalStatusIntoTransientError(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusServiceUnavailable, http.StatusOK)
	transport := NewTransport(srv.Client(), testPolicy())
	client := transport.Client()

	var status int
	err := transport.Retry(context.Background(), true, "depth", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		status = res.StatusCode
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClientExhaustionKeepsStatusCode(t *testing.T) {
	var hits int32
	srv := statusServer(t, &hits, http.StatusBadGateway)
	transport := NewTransport(srv.Client(), testPolicy())
	client := transport.Client()

	err := transport.Retry(context.Background(), true, "depth", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err != nil {
			return err
		}
		res.Body.Close()
		return nil
	})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindNetworkExhausted || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected network exhausted with status 502, got %v", err)
	}
}
