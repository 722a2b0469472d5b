package phind

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize renders obj the way the Phind web client does before hashing:
// keys sorted, no braces at the top level, nil values skipped.
func Canonicalize(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		value, ok := canonicalValue(obj[k])
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(value)
	}
	return b.String()
}

func canonicalValue(v any) (string, bool) {
	switch val := v.(type) {
	case map[string]any:
		return "{" + Canonicalize(val) + "}", true
	case []any:
		return canonicalArray(val), true
	case string:
		return `"` + val + `"`, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case float64:
		return formatNumber(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return "", false
		}
		return formatNumber(f), true
	case int:
		return formatNumber(float64(val)), true
	case int64:
		return formatNumber(float64(val)), true
	default:
		return "", false
	}
}

// Arrays are ordered by the elements' string conversion before rendering, and a stable
// sort keeps objects (which all convert to the same string) in their original order.
func canonicalArray(items []any) string {
	sorted := make([]any, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	parts := make([]string, len(sorted))
	for i, item := range sorted {
		// nil elements join as empty strings
		parts[i], _ = canonicalValue(item)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func sortKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			if item != nil {
				parts[i] = sortKey(item)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(val)
	}
}

// formatNumber prints eight decimals and strips trailing zeros and a dangling point.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 8, 64)
	if !strings.Contains(s, ".") {
		return s
	}
	trimmed := strings.TrimRight(s, "0")
	if trimmed == s {
		return s
	}
	return strings.TrimSuffix(trimmed, ".")
}

// toGeneric converts a JSON-tagged value into the map form Canonicalize expects.
func toGeneric(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return generic, nil
}
