package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// extractJSON strips markdown code fences and stray prose around a JSON payload
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Leading prose before the object, e.g. "Here are the decisions: {...}"
	if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
		if start := strings.IndexAny(raw, "{["); start != -1 {
			raw = raw[start:]
		}
	}
	return raw
}

// decodeItems parses a JSON reply that is either a bare array or an object
// holding the array under key
func decodeItems(raw, key string) ([]map[string]any, error) {
	cleaned := extractJSON(raw)

	var items []map[string]any
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	payload, ok := wrapper[key]
	if !ok {
		return nil, fmt.Errorf("parse response: missing %q", key)
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("parse response %q: %w", key, err)
	}
	return items, nil
}

// field returns the first present key, accepting camelCase and snake_case spellings
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// coerceString returns "" for null and for the literal strings "null"/"none"
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(val)
		switch strings.ToLower(s) {
		case "null", "none":
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
