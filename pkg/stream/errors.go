package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// errorBody is the backend's error envelope. The error field arrives either
// as an object or as a bare string; both shapes are accepted.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details string          `json:"details"`
}

type errorObject struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// errorEventFromBody builds a terminal Error event from a non-success
// response body, defaulting the message when the body does not parse.
func errorEventFromBody(body []byte, status int) Event {
	ev := Event{
		Type:    TypeError,
		Status:  status,
		Message: fmt.Sprintf("request failed with status %d %s", status, http.StatusText(status)),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ev
	}

	if eb.Message != "" {
		ev.Message = eb.Message
	}
	ev.Code = eb.Code
	ev.Details = eb.Details

	if len(eb.Error) > 0 {
		var msg string
		if json.Unmarshal(eb.Error, &msg) == nil && msg != "" {
			ev.Message = msg
			return ev
		}

		var obj errorObject
		if json.Unmarshal(eb.Error, &obj) == nil {
			if obj.Message != "" {
				ev.Message = obj.Message
			}
			if obj.Code != "" {
				ev.Code = obj.Code
			}
			if obj.Details != "" {
				ev.Details = obj.Details
			}
		}
	}

	return ev
}
