// Package stream implements one streaming message exchange against the
// alchemister backend: framing raw response bytes into lines, decoding lines
// into typed events, watching for stalled connections, retrying failed
// attempts with backoff, and coalescing rapid content deltas before they
// reach the caller.
//
// The only unit exchanged across component boundaries is Event. For a given
// exchange, events are strictly ordered and exactly one terminal event
// (MessageEnd, MessageCancelled, or Error) is the last event the caller sees.
package stream

// EventType discriminates the Event union.
type EventType string

const (
	// TypeMessageStart signals the exchange has been accepted by the transport.
	TypeMessageStart EventType = "message_start"

	// TypeContentDelta carries an incremental fragment of reply content.
	// Fragments are order-significant and concatenation-only.
	TypeContentDelta EventType = "content_delta"

	// TypeInfo is a non-fatal diagnostic, e.g. a pending retry notice.
	TypeInfo EventType = "info"

	// TypeMessageEnd signals the reply is complete.
	TypeMessageEnd EventType = "message_end"

	// TypeMessageCancelled signals the exchange was aborted by the caller.
	// Distinct from an error.
	TypeMessageCancelled EventType = "message_cancelled"

	// TypeError is a terminal failure for the exchange.
	TypeError EventType = "error"
)

// Event is a single typed application event decoded from the response stream
// or synthesized by the session (retry notices, cancellation).
type Event struct {
	Type EventType

	// Content is the delta text. Set only for TypeContentDelta.
	Content string

	// Message is the human-readable text for TypeInfo and TypeError.
	Message string

	// Status, Code and Details carry the error classification detail
	// for TypeError when available.
	Status  int
	Code    string
	Details string
}

// Terminal reports whether no further events follow e for the same exchange.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeMessageEnd, TypeMessageCancelled, TypeError:
		return true
	default:
		return false
	}
}
