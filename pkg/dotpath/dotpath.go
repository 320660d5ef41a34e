// Package dotpath reads and writes dotted paths (e.g. "address.city") in
// generic JSON-like objects. Intermediate maps are created on Set; Get and
// Delete tolerate missing segments.
package dotpath

import "strings"

// Get returns the value at the dotted path and whether it was present.
func Get(obj map[string]interface{}, path string) (interface{}, bool) {
	if obj == nil || path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	current := obj
	for i, segment := range segments {
		value, ok := current[segment]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Set assigns the value at the dotted path, creating intermediate maps as
// needed. A non-map intermediate value is overwritten with a map.
func Set(obj map[string]interface{}, path string, value interface{}) {
	if obj == nil || path == "" {
		return
	}

	segments := strings.Split(path, ".")
	current := obj
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// Delete removes the value at the dotted path. Missing segments are a no-op.
func Delete(obj map[string]interface{}, path string) {
	if obj == nil || path == "" {
		return
	}

	segments := strings.Split(path, ".")
	current := obj
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// DeepCopy returns a copy of the object that shares no maps or slices with
// the original. Scalar values are shared, which is safe since they're
// immutable.
func DeepCopy(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		return DeepCopy(tv)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
