package transport

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// envelope is the wire envelope Ledgerline responses use. Some endpoints
// return it, some return the payload bare; callers of the client never see
// either; they receive only the unwrapped payload.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// unwrap decodes a response body into out, stripping the envelope when one
// is present.
func unwrap(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		body = env.Data
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "[unwrap] decoding response payload")
	}
	return nil
}

// messageFrom pulls a human-readable error message out of a response body,
// falling back to the HTTP status text.
func messageFrom(body []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return fallback
}
