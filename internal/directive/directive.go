// ABOUTME: Total parser for inline {{ ... }} configuration directives
// ABOUTME: Malformed input degrades to prose; values are clamped, never rejected

package directive

import (
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/2389/threadloom/internal/session"
)

// Parse extracts an optional leading {{ ... }} directive from message text and
// returns the override patch plus the remaining prose.
//
// Parsing is total: a chat message cannot be retried, so malformed syntax is
// never an error. A broken directive yields an empty patch and the original
// text untouched. Unknown keys are ignored and out-of-range values clamped.
//
// Both the doubled {{key: value}} form and a plain leading {key: value}
// object are accepted. The literal body is JSON5, so relaxed forms like
// {temperature: 0.2} or {'system': 'be terse'} work as users expect.
func Parse(text string) (session.Overrides, string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return session.Overrides{}, trimmed
	}

	var body, rest string
	if strings.HasPrefix(trimmed, "{{") {
		end := strings.Index(trimmed, "}}")
		if end < 0 {
			return session.Overrides{}, trimmed
		}
		body = trimmed[2:end]
		rest = trimmed[end+2:]
	} else {
		end := strings.IndexByte(trimmed, '}')
		if end < 0 {
			return session.Overrides{}, trimmed
		}
		body = trimmed[1:end]
		rest = trimmed[end+1:]
	}

	var raw map[string]any
	if err := json5.Unmarshal([]byte("{"+body+"}"), &raw); err != nil {
		return session.Overrides{}, trimmed
	}

	return fromRaw(raw), strings.TrimSpace(rest)
}

// fromRaw converts the decoded literal into a typed override patch. Values of
// the wrong type are treated like unknown keys and dropped.
func fromRaw(raw map[string]any) session.Overrides {
	var o session.Overrides

	if v, ok := raw["temperature"]; ok {
		if f, ok := toFloat(v); ok {
			f = clamp(f, 0, 1)
			o.Temperature = &f
		}
	}
	if v, ok := raw["system"]; ok {
		if s, ok := v.(string); ok {
			o.SystemPrompt = &s
		}
	}
	if v, ok := raw["ai"]; ok {
		if b, ok := v.(bool); ok {
			o.AIEnabled = &b
		}
	}

	return o
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
