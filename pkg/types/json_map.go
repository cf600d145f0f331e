package types

import "strings"

// JSONMap stores an arbitrary JSON object, typically provider metadata.
type JSONMap map[string]any

// String returns the trimmed string value stored under key, or "".
func (j JSONMap) String(key string) string {
	if j == nil {
		return ""
	}
	value, ok := j[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// Merge copies every entry of other into j, allocating when needed.
func (j JSONMap) Merge(other JSONMap) JSONMap {
	if len(other) == 0 {
		return j
	}
	out := JSONMap{}
	for k, v := range j {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
