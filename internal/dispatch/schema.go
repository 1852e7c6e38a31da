package dispatch

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Schema is a minimal JSON-schema subset used as an allow-list for
// client payloads: object schemas keep only declared properties, array
// schemas sanitize each element, scalar schemas pass values through.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

// Sanitize rebuilds raw keeping only what the schema declares, so
// client-supplied payloads cannot smuggle unexpected fields to a paid
// third-party API. A nil schema passes the payload through.
func Sanitize(raw json.RawMessage, s *Schema) (json.RawMessage, error) {
	if s == nil {
		return raw, nil
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, errors.Wrap(err, "sanitize: decode payload")
	}
	clean, err := json.Marshal(sanitizeValue(value, s))
	if err != nil {
		return nil, errors.Wrap(err, "sanitize: encode payload")
	}
	return clean, nil
}

func sanitizeValue(value any, s *Schema) any {
	switch {
	case s.Type == "object" && s.Properties != nil:
		obj, ok := value.(map[string]any)
		if !ok {
			return map[string]any{}
		}
		out := make(map[string]any)
		for key, sub := range s.Properties {
			if v, ok := obj[key]; ok {
				out[key] = sanitizeValue(v, sub)
			}
		}
		return out
	case s.Type == "array" && s.Items != nil:
		arr, ok := value.([]any)
		if !ok {
			return []any{}
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = sanitizeValue(item, s.Items)
		}
		return out
	default:
		return value
	}
}
