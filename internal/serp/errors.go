package serp

import "errors"

// Kind classifies an EngineError.
type Kind int

const (
	KindUnexpected Kind = iota
	KindConfiguration
	KindRequest
	KindEmptyResultSet
)

var (
	// ErrConfiguration reports an adapter that could not be constructed,
	// such as an invalid selector expression.
	ErrConfiguration = errors.New("configuration error")
	// ErrRequest reports a transport failure while fetching the upstream page.
	ErrRequest = errors.New("request error")
	// ErrEmptyResultSet reports that the upstream page found no matches.
	ErrEmptyResultSet = errors.New("empty result set")
	// ErrUnexpected covers anything not otherwise classified.
	ErrUnexpected = errors.New("unexpected error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindRequest:
		return ErrRequest
	case KindEmptyResultSet:
		return ErrEmptyResultSet
	default:
		return ErrUnexpected
	}
}

// String returns the kind's short label, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindRequest:
		return "request"
	case KindEmptyResultSet:
		return "empty"
	default:
		return "unexpected"
	}
}

// EngineError is the error type returned by adapters. It matches its kind's
// sentinel with errors.Is and unwraps to the underlying cause, if any.
type EngineError struct {
	Engine string
	Kind   Kind
	Err    error
}

func newError(engine string, kind Kind, err error) *EngineError {
	return &EngineError{Engine: engine, Kind: kind, Err: err}
}

func (e *EngineError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Engine != "" {
		msg = e.Engine + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *EngineError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf classifies err. A nil error has no meaningful kind and reports
// KindUnexpected, as does any error not produced by this package.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrRequest):
		return KindRequest
	case errors.Is(err, ErrEmptyResultSet):
		return KindEmptyResultSet
	}
	return KindUnexpected
}
