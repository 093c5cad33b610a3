// internal/simclient/normalize.go
package simclient

import (
	"bytes"
	stdjson "encoding/json"
)

// isJSON reports whether b holds exactly one JSON value. jsoniter's Valid
// rejects a bare top-level number, so validation goes through encoding/json.
func isJSON(b []byte) bool {
	return stdjson.Valid(b)
}

// NormalizeResponse decodes v when it is a string holding JSON and returns
// anything else unchanged. The service returns some documents as parsed
// objects and others as JSON text, so this is safe to apply to every value.
func NormalizeResponse(v any) any {
	var text []byte
	switch s := v.(type) {
	case string:
		text = []byte(s)
	case []byte:
		text = s
	default:
		return v
	}

	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 || !isJSON(trimmed) {
		return v
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return v
	}
	return decoded
}

// normalizeBody is the transport-boundary form of NormalizeResponse: a body
// that is a JSON string literal whose content is itself JSON is unwrapped, so
// `"{\"id\":1}"` becomes `{"id":1}`. Any other body is returned as is.
func normalizeBody(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	for len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			break
		}
		candidate := bytes.TrimSpace([]byte(inner))
		if len(candidate) == 0 || !isJSON(candidate) {
			break
		}
		trimmed = candidate
	}
	return trimmed
}
