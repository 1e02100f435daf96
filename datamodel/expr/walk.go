package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Walk follows segments from root through nested maps and lists. A numeric
// segment indexes a list.
func Walk(root any, segments []string) (any, error) {
	current := root

	for i, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndefined, strings.Join(segments[:i+1], "."))
		}

		current = next
	}

	return current, nil
}

func step(current any, seg string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		v, ok := c[seg]

		return v, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, false
		}

		return c[idx], true
	}

	rv := reflect.ValueOf(current)

	switch rv.Kind() { //nolint:exhaustive
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}

		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}

		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}

// Set stores value at segments below root, which must already hold every
// intermediate container. The last segment may name a new map key.
func Set(root map[string]any, segments []string, value any) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: empty location", ErrSyntax)
	}

	if len(segments) == 1 {
		root[segments[0]] = value

		return nil
	}

	parent, err := Walk(root, segments[:len(segments)-1])
	if err != nil {
		return err
	}

	last := segments[len(segments)-1]
	location := strings.Join(segments, ".")

	switch p := parent.(type) {
	case map[string]any:
		p[last] = value

		return nil
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(p) {
			return fmt.Errorf("%w: index out of range at %s", ErrType, location)
		}

		p[idx] = value

		return nil
	default:
		return fmt.Errorf("%w: %s is not a container", ErrType, strings.Join(segments[:len(segments)-1], "."))
	}
}
