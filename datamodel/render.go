package datamodel

import (
	"reflect"
	"strconv"
	"strings"

	"facette.io/natsort"
	"github.com/amp-labs/statechart/datamodel/expr"
)

// Render converts a value to its display form. Scalars print bare, lists
// and maps print in a JSON-like form with map keys in natural order.
func Render(value any) string {
	var sb strings.Builder

	render(&sb, value, false)

	return sb.String()
}

func render(sb *strings.Builder, value any, nested bool) {
	switch v := value.(type) {
	case string:
		if nested {
			sb.WriteString(strconv.Quote(v))
		} else {
			sb.WriteString(v)
		}

		return
	case map[string]any:
		sb.WriteByte('{')

		for i, key := range sortedKeys(v) {
			if i > 0 {
				sb.WriteString(", ")
			}

			sb.WriteString(strconv.Quote(key))
			sb.WriteString(": ")
			render(sb, v[key], true)
		}

		sb.WriteByte('}')

		return
	case []any:
		renderList(sb, len(v), func(i int) any { return v[i] })

		return
	}

	rv := reflect.ValueOf(value)
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		renderList(sb, rv.Len(), func(i int) any { return rv.Index(i).Interface() })

		return
	}

	sb.WriteString(expr.Stringify(value))
}

func renderList(sb *strings.Builder, n int, at func(int) any) {
	sb.WriteByte('[')

	for i := range n {
		if i > 0 {
			sb.WriteString(", ")
		}

		render(sb, at(i), true)
	}

	sb.WriteByte(']')
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	natsort.Sort(keys)

	return keys
}
