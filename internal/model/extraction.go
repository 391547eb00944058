package model

// Extraction is one agent's extracted field map for a single document.
// Values are whatever the agent produced: scalars, lists, or nested maps.
// The coaching core treats extractions as immutable once captured.
type Extraction map[string]any

// IsEmpty reports whether the extraction is nil or has no fields.
func (e Extraction) IsEmpty() bool {
	return len(e) == 0
}

// Clone returns a shallow copy. Callers that hand an extraction to the
// store keep their own copy untouched.
func (e Extraction) Clone() Extraction {
	if e == nil {
		return nil
	}
	out := make(Extraction, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// NonEmpty reports whether v carries a usable value. nil, empty strings,
// zero numbers, empty slices and empty maps all count as empty.
func NonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}
