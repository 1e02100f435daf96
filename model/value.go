package model

// CloneValue returns a deep copy of the maps and lists in value. Scalars and
// other types are returned as they are.
func CloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return v
		}

		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = CloneValue(item)
		}

		return out
	case []any:
		if v == nil {
			return v
		}

		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneValue(item)
		}

		return out
	default:
		return value
	}
}
