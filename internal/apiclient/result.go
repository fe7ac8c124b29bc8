package apiclient

import (
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindNetwork means no HTTP response arrived (unreachable, timeout, cancelled).
	KindNetwork Kind = iota + 1
	// KindServer means the server answered with a non-2xx status or success=false.
	KindServer
	// KindContract means a 2xx response could not be understood.
	KindContract
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindContract:
		return "contract"
	default:
		return "unknown"
	}
}

// Error is the failure half of a Result.
type Error struct {
	Kind   Kind
	Status int
	// Detail is the server's own explanation, taken from {"detail": ...} when present.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s error: %s", e.Kind, http.StatusText(e.Status))
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the user. The server detail wins; without it
// the fallback is qualified so network and server failures read differently.
func (e *Error) Message(fallback string) string {
	if e.Detail != "" {
		return e.Detail
	}
	switch e.Kind {
	case KindNetwork:
		return fallback + ": server unreachable"
	case KindServer:
		if e.Status != 0 {
			return fmt.Sprintf("%s (HTTP %d)", fallback, e.Status)
		}
		return fallback
	case KindContract:
		return fallback + ": unexpected response from server"
	default:
		return fallback
	}
}

// Result is either Ok(Value) or Err(Err); exactly one is meaningful.
type Result[T any] struct {
	Value T
	Err   *Error
}

// Ok wraps a successful payload.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a failure.
func Fail[T any](err *Error) Result[T] { return Result[T]{Err: err} }

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap converts the result into Go's usual (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}
