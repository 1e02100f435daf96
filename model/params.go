package model

import (
	"fmt"
	"strings"
)

// ParamExtractor provides utilities for extracting and validating action parameters.
type ParamExtractor struct {
	params map[string]any
}

// NewParamExtractor creates a new parameter extractor.
func NewParamExtractor(params map[string]any) *ParamExtractor {
	return &ParamExtractor{params: params}
}

// Has reports whether the parameter is present.
func (p *ParamExtractor) Has(key string) bool {
	_, exists := p.params[key]

	return exists
}

// Get returns a raw parameter value.
func (p *ParamExtractor) Get(key string) (any, bool) {
	val, exists := p.params[key]

	return val, exists
}

// GetString extracts a string parameter.
func (p *ParamExtractor) GetString(key string, required bool) (string, error) {
	val, exists := p.params[key]
	if !exists || val == nil {
		if required {
			return "", fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return "", nil
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case int, int64, float64, bool:
		// YAML decodes bare scalars such as `expr: 3` or `delay: 1` into
		// non-string types; expressions are text, so take them verbatim.
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("parameter %q must be a string, got %T: %w", key, val, ErrParameterTypeMismatch)
	}
}

// GetStringSlice extracts a list of strings. A single string is split on
// whitespace, matching the SCXML namelist attribute.
func (p *ParamExtractor) GetStringSlice(key string, required bool) ([]string, error) {
	val, exists := p.params[key]
	if !exists {
		if required {
			return nil, fmt.Errorf("required parameter %q: %w", key, ErrParameterNotFound)
		}

		return nil, nil
	}

	switch v := val.(type) {
	case string:
		return strings.Fields(v), nil
	case []string:
		return v, nil
	case []any:
		result := make([]string, len(v))

		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %q[%d] must be a string, got %T: %w",
					key, i, item, ErrParameterTypeMismatch)
			}

			result[i] = str
		}

		return result, nil
	default:
		return nil, fmt.Errorf("parameter %q must be an array, got %T: %w", key, val, ErrParameterTypeMismatch)
	}
}

// GetMapSlice extracts a list of objects.
func (p *ParamExtractor) GetMapSlice(key string) ([]map[string]any, error) {
	val, exists := p.params[key]
	if !exists {
		return nil, nil
	}

	slice, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be an array, got %T: %w", key, val, ErrParameterTypeMismatch)
	}

	result := make([]map[string]any, len(slice))

	for i, item := range slice {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter %q[%d] must be an object, got %T: %w",
				key, i, item, ErrParameterTypeMismatch)
		}

		result[i] = m
	}

	return result, nil
}
