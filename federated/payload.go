package federated

import (
	"encoding/json"
	"net/url"

	"github.com/pkg/errors"
)

// DecodePayload accepts the federated-login completion payload either as an
// already-parsed object or as a URL-encoded JSON string, and returns the
// parsed map.
func DecodePayload(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			// Not URL-encoded after all; try the string as-is.
			decoded = v
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
			return nil, errors.Wrap(err, "[DecodePayload] payload is not valid JSON")
		}
		return payload, nil
	case nil:
		return nil, errors.New("[DecodePayload] payload is missing")
	default:
		return nil, errors.Errorf("[DecodePayload] unsupported payload type %T", raw)
	}
}

// Unwrap strips the optional outer {success, data} envelope from a
// completion payload.
func Unwrap(payload map[string]any) map[string]any {
	if data, ok := payload["data"].(map[string]any); ok {
		return data
	}
	return payload
}
