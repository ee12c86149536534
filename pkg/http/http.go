package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"xchg/pkg/apierr"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Response is the raw outcome of one HTTP exchange. It is never mutated
// after the transport returns it.
type Response struct {
	StatusCode int
	Status     string
	Body       string
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Request struct {
	Method  string
	Url     string
	Body    string
	Headers map[string]string

	// Retryable must only be set when repeating the request has no extra
	// side effect (GET calls, or POSTs the exchange deduplicates).
	Retryable bool
}

type RetryPolicy struct {
	Timeout             time.Duration // per attempt
	NonFatalStatusCodes []int
	NonFatalMessages    []string // matched case-insensitively against network errors
	MaxAttempts         int      // total attempts including the first
	RetryDelay          time.Duration
	MaxRetryDelay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:             30 * time.Second,
		NonFatalStatusCodes: []int{502, 503, 504},
		NonFatalMessages: []string{
			"Connection refused",
			"Connection reset",
			"Remote host closed connection during handshake",
			"TLS handshake timeout",
			"unexpected EOF",
		},
		MaxAttempts:   3,
		RetryDelay:    time.Second,
		MaxRetryDelay: 10 * time.Second,
	}
}

// Transport executes requests for one adapter. It keeps no state between
// calls besides the injected client and policy.
type Transport struct {
	client *http.Client
	policy RetryPolicy
}

func NewTransport(client *http.Client, policy RetryPolicy) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Transport{
		client: client,
		policy: policy,
	}
}

func (t *Transport) Policy() RetryPolicy {
	return t.policy
}

type statusError struct {
	statusCode int
	status     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("non-fatal status: %v", e.status)
}

// Do sends req and returns the response for any status not listed as
// non-fatal. Non-fatal statuses, timeouts and network errors matching a
// non-fatal message are retried while attempts remain.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	var res *Response
	err := t.retry(ctx, req.Retryable, req.Method+" "+stripQuery(req.Url), func(ctx context.Context) (bool, error) {
		r, err := t.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return false, apierr.Wrap(apierr.KindNetwork, "", "", ctx.Err())
			}
			if t.IsTransient(err) {
				return true, err
			}
			return false, apierr.Wrap(apierr.KindNetwork, "", "", err)
		}
		if t.isNonFatalStatus(r.StatusCode) {
			return true, &statusError{statusCode: r.StatusCode, status: r.Status}
		}
		res = r
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Retry runs fn under the transport's retry policy. It is meant for calls
// made through a third-party SDK that owns the HTTP request itself, using
// the client returned by Client. Errors fn returns that are not transient
// come back unchanged.
func (t *Transport) Retry(ctx context.Context, retryable bool, name string, fn func(ctx context.Context) error) error {
	return t.retry(ctx, retryable, name, func(ctx context.Context) (bool, error) {
		attemptCtx := ctx
		if t.policy.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, t.policy.Timeout)
			defer cancel()
		}
		err := fn(attemptCtx)
		if err == nil {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, apierr.Wrap(apierr.KindNetwork, "", "", ctx.Err())
		}
		var se *statusError
		return errors.As(err, &se) || t.IsTransient(err), err
	})
}

// Client returns a copy of the injected client whose round trips fail on
// the policy's non-fatal status codes, so that SDK calls wrapped by Retry
// see them as transient.
func (t *Transport) Client() *http.Client {
	next := t.client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c := *t.client
	c.Transport = &statusRoundTripper{next: next, transport: t}
	return &c
}

type statusRoundTripper struct {
	next      http.RoundTripper
	transport *Transport
}

func (rt *statusRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := rt.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.transport.isNonFatalStatus(res.StatusCode) {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		return nil, &statusError{statusCode: res.StatusCode, status: res.Status}
	}
	return res, nil
}

func (t *Transport) retry(ctx context.Context, retryable bool, name string, attemptFn func(ctx context.Context) (bool, error)) error {
	maxAttempts := t.policy.MaxAttempts
	if !retryable {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		transient, err := attemptFn(ctx)
		if err == nil {
			return nil
		}
		if !transient {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"request": name,
			"attempt": attempt,
			"wait":    wait,
		}).Warnf("transient failure, retrying: %v", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}

	// permanent errors come back unwrapped by backoff
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) {
				return err
			}
			return apierr.Wrap(apierr.KindNetwork, "", "", err)
		}
	}
	if !t.isTransientResult(err) {
		return err
	}

	exhausted := &apierr.Error{
		Kind:      apierr.KindNetworkExhausted,
		Message:   fmt.Sprintf("%v gave up after %d attempt(s)", name, attempt),
		Ambiguous: !retryable,
		Err:       err,
	}
	var se *statusError
	if errors.As(err, &se) {
		exhausted.StatusCode = se.statusCode
	}
	log.WithFields(log.Fields{
		"request":  name,
		"attempts": attempt,
	}).Errorf("network exhausted: %v", err)
	return exhausted
}

// isTransientResult tells whether err is the last transient error of an
// exhausted retry loop rather than a permanent one.
func (t *Transport) isTransientResult(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return false
	}
	return t.IsTransient(err)
}

func (t *Transport) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.policy.RetryDelay
	b.MaxInterval = t.policy.MaxRetryDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by attempts, not time
	return b
}

// IsTransient reports whether a network error is eligible for retry:
// any timeout, or an error whose message contains a configured non-fatal
// message.
func (t *Transport) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range t.policy.NonFatalMessages {
		if m != "" && strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func (t *Transport) isNonFatalStatus(code int) bool {
	for _, c := range t.policy.NonFatalStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (t *Transport) send(ctx context.Context, r Request) (*Response, error) {
	if t.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.policy.Timeout)
		defer cancel()
	}

	var body io.Reader
	if r.Body != "" {
		body = bytes.NewReader([]byte(r.Body))
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.Url, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNetwork, "", "", err)
	}

	// set headers
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	// send request
	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Body:       string(resBody),
	}, nil
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
