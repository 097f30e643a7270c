package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique key is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Kind classifies cart synchronization failures so callers can react to them
// without parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidArgument: caller supplied an out-of-contract value. Never reaches the network.
	KindInvalidArgument
	// KindInvalidState: operation needs a cart identifier and there is none.
	KindInvalidState
	// KindCartNotFound: the gateway no longer recognizes the identifier.
	KindCartNotFound
	// KindGatewayRejected: the gateway executed the request and declined it.
	KindGatewayRejected
	// KindGatewayError: transport, timeout or malformed-response failure.
	KindGatewayError
	// KindBusy: another mutation is in flight.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindCartNotFound:
		return "cart_not_found"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindGatewayError:
		return "gateway_error"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrCartNotFound    = &Error{Kind: KindCartNotFound}
	ErrGatewayRejected = &Error{Kind: KindGatewayRejected}
	ErrGatewayError    = &Error{Kind: KindGatewayError}
	ErrBusy            = &Error{Kind: KindBusy}
)

// Error is a classified cart error. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a classified error. Message may be empty when err carries the detail.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserError is a business-rule failure reported by the gateway for a mutation.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}
