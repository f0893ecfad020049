// Package dotpath implements the dotted-path conventions the data model
// uses throughout: reading a value out of a nested payload map, rewriting
// one in place, and expanding a flat dotted-path map back into a nested
// object for the canonical view and root snapshot.
package dotpath

import "strings"

// Get reads the value at path (dot-separated) from data. Returns
// (nil, false) if any segment is missing or not a map.
func Get(data map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var cur interface{} = data
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Set writes value at path into data, creating intermediate maps as
// needed. It mutates data in place.
func Set(data map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	cur := data
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
}

// Values normalizes a path's value into a slice of individual,
// non-empty values: scalars become single-element slices, []interface{}
// and []string are split into elements, and empty/nil values become an
// empty slice.
func Values(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, item := range t {
			if isEmpty(item) {
				continue
			}
			out = append(out, item)
		}
		return out
	case []string:
		out := make([]interface{}, 0, len(t))
		for _, item := range t {
			if item == "" {
				continue
			}
			out = append(out, item)
		}
		return out
	default:
		if isEmpty(v) {
			return nil
		}
		return []interface{}{v}
	}
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// Flatten walks a nested map and returns dotted-path -> leaf-value pairs.
// Leaf values are anything that is not itself a map[string]interface{}.
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(data, "", out)
	return out
}

func flattenInto(data map[string]interface{}, prefix string, out map[string]interface{}) {
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(nested, path, out)
			continue
		}
		out[path] = v
	}
}

// Expand converts a flat dotted-path map into a nested object, the
// inverse of Flatten. e.g. {"a.b.c": [x]} -> {"a": {"b": {"c": [x]}}}.
func Expand(flat map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for path, v := range flat {
		Set(out, path, v)
	}
	return out
}

// HasPrefix reports whether path starts with prefix as a dotted-path
// segment boundary (prefix may or may not end in a dot).
func HasPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, ".") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+".")
}
