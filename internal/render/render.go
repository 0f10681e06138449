// Package render turns structured values into the compact YAML-like text
// used for the preview and for the prompt handed to the chat assistant.
package render

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KV is one entry of an ordered mapping.
type KV struct {
	Key   string
	Value any
}

// Map is a mapping that renders in insertion order.
type Map []KV

// Get returns the value stored under key.
func (m Map) Get(key string) (any, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

const indentUnit = "  "

// Render returns the text form of v. Nested blocks start at the given
// indent level (two spaces per level). Rendering the same value twice
// yields identical output.
func Render(v any, indent int) string {
	v = normalize(v)
	switch val := v.(type) {
	case Map:
		if len(val) == 0 {
			return "{}"
		}
		return renderMap(val, indent)
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		if inlineable(val) {
			return renderInline(val)
		}
		return renderSeq(val, indent)
	default:
		return scalar(val)
	}
}

func pad(indent int) string {
	return strings.Repeat(indentUnit, indent)
}

func renderMap(m Map, indent int) string {
	lines := make([]string, 0, len(m))
	for _, kv := range m {
		key := pad(indent) + quoteString(kv.Key, false)
		value := normalize(kv.Value)
		if isBlock(value) {
			lines = append(lines, key+":", Render(value, indent+1))
			continue
		}
		lines = append(lines, key+": "+Render(value, indent))
	}
	return strings.Join(lines, "\n")
}

func renderSeq(items []any, indent int) string {
	lines := make([]string, 0, len(items))
	prefix := pad(indent) + "- "
	for _, item := range items {
		item = normalize(item)
		if isBlock(item) {
			nested := Render(item, indent+1)
			lines = append(lines, prefix+strings.TrimPrefix(nested, pad(indent+1)))
			continue
		}
		lines = append(lines, prefix+Render(item, indent))
	}
	return strings.Join(lines, "\n")
}

func renderInline(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			parts[i] = quote(s)
			continue
		}
		parts[i] = scalar(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// isBlock reports whether a normalized value renders over several lines.
func isBlock(v any) bool {
	switch val := v.(type) {
	case Map:
		return len(val) > 0
	case []any:
		return len(val) > 0 && !inlineable(val)
	}
	return false
}

// inlineable reports whether a sequence holds only strings and numbers.
func inlineable(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case string, int64, uint64, float64:
		default:
			return false
		}
	}
	return true
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteString(val, true)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return "null"
}

// quoteString quotes s when it would be ambiguous unquoted. Plain tokens
// pass through unchanged.
func quoteString(s string, isValue bool) string {
	if s == "" {
		return `""`
	}
	if needsQuote(s) || (isValue && s == "null") {
		return quote(s)
	}
	return s
}

func needsQuote(s string) bool {
	if strings.ContainsAny(s, "\n\r\t:#\"\\") {
		return true
	}
	switch c := s[0]; {
	case c >= '0' && c <= '9', c == ' ':
		return true
	case c == '[', c == '{', c == '-' && (len(s) == 1 || s[1] == ' '):
		return true
	}
	return strings.HasSuffix(s, " ")
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

// normalize maps arbitrary Go values onto the small set of shapes the
// renderer understands: Map, []any, string, bool, int64, uint64, float64, nil.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, uint64, float64, Map:
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []KV:
		return Map(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		out := make(Map, 0, len(keys))
		for _, k := range keys {
			out = append(out, KV{k, normalize(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())})
		}
		return out
	}
	return nil
}
