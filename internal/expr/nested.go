package expr

import "strings"

// GetNestedValue resolves a dot-path like "trigger.record.total" against a nested
// map[string]interface{}, the way workflow instance context is addressed in §4.9. Ported from
// station's GetNestedValue in internal/workflows/runtime/starlark_eval.go.
func GetNestedValue(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}
	var current interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// SetNestedValue writes value at path within data, creating intermediate maps as needed.
func SetNestedValue(data map[string]interface{}, path string, value interface{}) {
	if path == "" {
		return
	}
	parts := strings.Split(path, ".")
	current := data
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
