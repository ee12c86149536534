package apierr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInitialization
	KindNotInitialized
	KindAuthentication
	KindNetwork          // fatal network failure, not retried
	KindNetworkExhausted // transient network failure, retries used up
	KindMalformedResponse
	KindRejected // well-formed business error from the exchange
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindNotInitialized:
		return "not initialized"
	case KindAuthentication:
		return "authentication"
	case KindNetwork:
		return "network"
	case KindNetworkExhausted:
		return "network exhausted"
	case KindMalformedResponse:
		return "malformed response"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is the typed failure every Trading API operation returns.
//
// Ambiguous is set when a mutating request may have reached the exchange
// before the failure, e.g. a create-order call that timed out.
type Error struct {
	Kind       Kind
	Exchange   string
	Op         string
	StatusCode int
	Code       string
	Message    string
	Ambiguous  bool
	Err        error
}

// sentinels for errors.Is
var (
	ErrInitialization    = &Error{Kind: KindInitialization}
	ErrNotInitialized    = &Error{Kind: KindNotInitialized}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrNetworkExhausted  = &Error{Kind: KindNetworkExhausted}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrRejected          = &Error{Kind: KindRejected}
)

func New(kind Kind, exchange string, op string, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Exchange: exchange,
		Op:       op,
		Message:  fmt.Sprintf(format, args...),
	}
}

func Wrap(kind Kind, exchange string, op string, err error) *Error {
	return &Error{
		Kind:     kind,
		Exchange: exchange,
		Op:       op,
		Err:      err,
	}
}

func Malformed(exchange string, op string, format string, args ...any) *Error {
	return New(KindMalformedResponse, exchange, op, format, args...)
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Exchange != "" {
		sb.WriteString(e.Exchange)
		sb.WriteString(": ")
	}
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&sb, " [code %s]", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Ambiguous {
		sb.WriteString(" (outcome unknown, request may have been accepted)")
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// WithOp stamps exchange and op onto err when it is an *Error that does not
// carry them yet. Other errors are returned unchanged.
func WithOp(err error, exchange string, op string) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Exchange != "" && apiErr.Op != "" {
		return err
	}
	stamped := *apiErr
	if stamped.Exchange == "" {
		stamped.Exchange = exchange
	}
	if stamped.Op == "" {
		stamped.Op = op
	}
	return &stamped
}

// MarkAmbiguous flags a network exhausted err as having an unknown outcome.
// Mutating calls use it when an earlier attempt may have been accepted.
func MarkAmbiguous(err error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetworkExhausted || apiErr.Ambiguous {
		return err
	}
	marked := *apiErr
	marked.Ambiguous = true
	return &marked
}
