package translate

import (
	"errors"
	"fmt"

	"chatlibre/internal/provider"
)

// External error categories returned by Orchestrator.Translate. Callers map
// them onto status codes; the wrapped cause is for logs only.
var (
	ErrTooManyRequests    = errors.New("too many requests")
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrAllModelsFailed accompanies ErrServiceUnavailable when every
	// candidate replied but none produced a valid result.
	ErrAllModelsFailed = errors.New("all models failed")
)

// FailureKind tags a failed attempt against a single model.
type FailureKind int

const (
	RateLimited FailureKind = iota + 1
	UpstreamError
	TransportError
	DecodeError
)

func (k FailureKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case UpstreamError:
		return "upstream_error"
	case TransportError:
		return "transport_error"
	case DecodeError:
		return "decode_error"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Failure is the error returned by Invoker.Invoke.
type Failure struct {
	Kind  FailureKind
	Model string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s from model %s: %v", f.Kind, f.Model, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func decodeFailure(model string, format string, args ...any) *Failure {
	return &Failure{Kind: DecodeError, Model: model, Err: fmt.Errorf(format, args...)}
}

// classify maps a provider error onto the failure taxonomy. Errors that carry
// no provider signal are treated as upstream failures.
func classify(model string, err error) *Failure {
	kind := UpstreamError
	switch {
	case errors.Is(err, provider.ErrRateLimited):
		kind = RateLimited
	case errors.Is(err, provider.ErrTransport):
		kind = TransportError
	}
	return &Failure{Kind: kind, Model: model, Err: err}
}
