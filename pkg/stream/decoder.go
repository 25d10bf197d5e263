package stream

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// dataPrefix is the optional transport-level line prefix. Lines arrive either
// bare or SSE-style ("data: {...}"); both carry the same JSON payload.
const dataPrefix = "data: "

// wireEvent is the JSON shape of one streamed line. The backend uses
// "content_delta" as the payload key for delta text; "data" is accepted as a
// legacy alias.
type wireEvent struct {
	Type         string `json:"type"`
	ContentDelta string `json:"content_delta"`
	Data         string `json:"data"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	Details      string `json:"details"`
	Status       int    `json:"status"`
	Code         string `json:"code"`
}

// Decoder interprets framed lines as typed events.
type Decoder struct {
	logger *zap.Logger
}

// NewDecoder creates a Decoder. Drops are logged on the given logger at
// debug level.
func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode produces zero or one Event from a framed line. Unparseable lines and
// unknown event tags are dropped: they are logged and skipped, never fatal to
// the exchange.
func (d *Decoder) Decode(line string) (Event, bool) {
	payload := strings.TrimPrefix(line, dataPrefix)

	var we wireEvent
	if err := json.Unmarshal([]byte(payload), &we); err != nil {
		d.logger.Debug("dropping malformed stream line",
			zap.Error(err),
			zap.String("line", line),
		)
		return Event{}, false
	}

	switch EventType(we.Type) {
	case TypeMessageStart:
		return Event{Type: TypeMessageStart}, true

	case TypeContentDelta:
		text := we.ContentDelta
		if text == "" {
			text = we.Data
		}
		return Event{Type: TypeContentDelta, Content: text}, true

	case TypeInfo:
		return Event{Type: TypeInfo, Message: we.Message}, true

	case TypeMessageEnd:
		return Event{Type: TypeMessageEnd}, true

	case TypeMessageCancelled:
		return Event{Type: TypeMessageCancelled}, true

	case TypeError:
		msg := we.Error
		if msg == "" {
			msg = we.Message
		}
		return Event{
			Type:    TypeError,
			Message: msg,
			Status:  we.Status,
			Code:    we.Code,
			Details: we.Details,
		}, true

	default:
		// Unknown tags are dropped so newer backends stay compatible.
		d.logger.Debug("dropping unknown stream event type",
			zap.String("type", we.Type),
		)
		return Event{}, false
	}
}
