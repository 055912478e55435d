package chat

import (
	"errors"
	"fmt"
)

// ErrStreamInProgress is returned when Send is called while a previous
// stream for the same client is still active. Calling Send twice
// concurrently is a caller error; the engine never interleaves streams.
var ErrStreamInProgress = errors.New("a stream is already in progress")

// Category classifies a stream failure.
type Category int

const (
	// CategoryRateLimited maps HTTP 429. Surfaced verbatim to the user.
	CategoryRateLimited Category = iota

	// CategoryPaymentRequired maps HTTP 402. Surfaced verbatim to the user.
	CategoryPaymentRequired

	// CategoryTransportFailure covers any other non-success status, a
	// missing response body, or a network failure mid-stream.
	CategoryTransportFailure

	// CategoryProtocolViolation means a data payload stayed malformed
	// after recombination with every subsequent chunk and the stream then
	// ended. Partial text already shown is kept and persisted.
	CategoryProtocolViolation

	// CategoryCancelled is a caller-initiated abort.
	CategoryCancelled
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryPaymentRequired:
		return "payment_required"
	case CategoryTransportFailure:
		return "transport_failure"
	case CategoryProtocolViolation:
		return "protocol_violation"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a categorized stream failure.
type Error struct {
	Category Category

	// Status is the HTTP status code that triggered the failure, when one
	// was involved.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := "chat stream " + e.Category.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the end user. Rate limiting and
// payment problems get specific messages; everything else collapses to a
// generic retry message so transport internals never leak.
func (e *Error) UserMessage() string {
	switch e.Category {
	case CategoryRateLimited:
		return "You're sending messages too quickly. Please wait a moment and try again."
	case CategoryPaymentRequired:
		return "You're out of assistant credits. Top up your account to continue chatting."
	default:
		return "Something went wrong. Please try again."
	}
}
