package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Field is the result of extracting one optional value from an upstream
// record: either Present with a value or Absent.
type Field[T any] struct {
	value   T
	present bool
}

// Present wraps a found value.
func Present[T any](v T) Field[T] {
	return Field[T]{value: v, present: true}
}

// Absent is the zero Field.
func Absent[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and whether it was present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.present
}

// IsPresent reports whether the field holds a value.
func (f Field[T]) IsPresent() bool {
	return f.present
}

// OrElse returns the value, or def when absent.
func (f Field[T]) OrElse(def T) T {
	if !f.present {
		return def
	}
	return f.value
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (f Field[T]) Ptr() *T {
	if !f.present {
		return nil
	}
	v := f.value
	return &v
}

// record is one decoded upstream object.
type record map[string]any

// truthy mirrors the loose truthiness upstream producers rely on: absent,
// null, false, zero, NaN and "" are all treated as unset.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	default:
		return true
	}
}

// first returns the first truthy value among keys, in priority order.
func (r record) first(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// object returns a nested object under key.
func (r record) object(key string) (record, bool) {
	m, ok := r[key].(map[string]any)
	return record(m), ok
}

// String returns the first truthy alias rendered as a string.
func (r record) String(keys ...string) Field[string] {
	v, ok := r.first(keys...)
	if !ok {
		return Absent[string]()
	}
	s, ok := scalarString(v)
	if !ok {
		return Absent[string]()
	}
	return Present(s)
}

// Bool reports whether any alias is truthy.
func (r record) Bool(keys ...string) bool {
	_, ok := r.first(keys...)
	return ok
}

// Float parses the first truthy alias. Unparseable and zero results are
// absent.
func (r record) Float(keys ...string) Field[float64] {
	v, ok := r.first(keys...)
	if !ok {
		return Absent[float64]()
	}
	f, ok := parseFloat(v)
	if !ok || f == 0 {
		return Absent[float64]()
	}
	return Present(f)
}

// Int parses the first truthy alias as an integer. Unparseable and zero
// results are absent.
func (r record) Int(keys ...string) Field[int] {
	v, ok := r.first(keys...)
	if !ok {
		return Absent[int]()
	}
	n, ok := parseInt(v)
	if !ok || n == 0 {
		return Absent[int]()
	}
	return Present(n)
}

// Price reads a per-token price and converts it to dollars per million
// tokens. A missing or unparseable value is 0, never an error.
func (r record) Price(keys ...string) float64 {
	return r.OptionalPrice(keys...).OrElse(0)
}

// OptionalPrice is Price for fields that may be absent altogether. A
// present but unparseable value yields 0.
func (r record) OptionalPrice(keys ...string) Field[float64] {
	v, ok := r.first(keys...)
	if !ok {
		return Absent[float64]()
	}
	f, ok := parseFloat(v)
	if !ok {
		return Present(0.0)
	}
	return Present(f * 1_000_000)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// parseFloat accepts finite numbers and strings with a numeric prefix,
// so "70B" parses as 70.
func parseFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case string:
		m := floatPrefix.FindString(strings.TrimSpace(t))
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseInt truncates numbers and reads the leading integer of strings,
// so "128k" parses as 128.
func parseInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number, float64, int:
		f, ok := parseFloat(t)
		if !ok || f >= math.MaxInt64 || f <= math.MinInt64 {
			return 0, false
		}
		return int(f), true
	case string:
		m := intPrefix.FindString(strings.TrimSpace(t))
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(m)
		return n, err == nil
	default:
		return 0, false
	}
}
