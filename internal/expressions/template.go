package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// Interpolate replaces ${{path}} references in template with values from data.
// A path is dot-delimited from a top-level key, e.g. ${{node.label}} or
// ${{degree}}. Strings are inserted verbatim, other values as JSON.
func Interpolate(template string, data map[string]any) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}
		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ reference")
		}
		end += start

		ref := strings.TrimSpace(template[start:end])
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested reference not allowed: ${{...}} cannot contain ${{")
		}
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty reference: ${{  }}")
		}

		val, err := traversePath(data, ref)
		if err != nil {
			return "", err
		}
		result.WriteString(marshalInline(val))
		i = end + 2
	}
	return result.String(), nil
}

// HasInterpolation reports whether s contains any ${{...}} reference.
func HasInterpolation(s string) bool {
	return strings.Contains(s, "${{")
}

// traversePath navigates into nested maps using a dot-delimited path.
func traversePath(root map[string]any, path string) (any, error) {
	var current any = root
	for i, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"empty segment in path %q at position %d", path, i).
				WithDetails(map[string]any{"path": path})
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, path, current).
				WithDetails(map[string]any{"path": path})
		}
		val, ok := m[seg]
		if !ok {
			keys := mapKeys(m)
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"field %q not found in %q; available: [%s]", seg, path, strings.Join(keys, ", ")).
				WithDetails(map[string]any{"path": path, "available_fields": keys})
		}
		current = val
	}
	return current, nil
}

// marshalInline converts a resolved value into its inline text form.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool, float64, int, int64:
		return fmt.Sprintf("%v", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
