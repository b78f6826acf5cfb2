package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// Shape identifies which recognized payload layout a payload uses.
type Shape string

const (
	// ShapeArray is a bare array of upstream records.
	ShapeArray Shape = "array"
	// ShapeCanonical is an already-normalized {models, categories, vendors} object.
	ShapeCanonical Shape = "canonical"
	// ShapeWrapped is an object with the record array under a known key.
	ShapeWrapped Shape = "wrapped"
)

// wrappedPaths are probed in order after the top-level "models" key.
var wrappedPaths = [][]string{
	{"models"},
	{"data", "models"},
	{"response", "models"},
	{"results", "models"},
	{"items"},
	{"list"},
	{"data"},
}

// Payload is a resolved payload: exactly one of Records or Canonical is set.
type Payload struct {
	Shape Shape
	// Path is the dotted location of the record array for wrapped payloads.
	Path      string
	Records   []any
	Canonical *models.Graph
}

// Decode parses raw JSON, keeping numbers as json.Number so integers and
// prices survive untouched.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DataFormatError{Reason: "decode payload", Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DataFormatError{Reason: "decode payload", Err: fmt.Errorf("%w: trailing data after top-level value", ErrInvalidPayload)}
	}
	return v, nil
}

// Resolve locates the record array in a decoded payload. It fails with a
// *DataFormatError when no recognizable layout is found.
func Resolve(raw any) (Payload, error) {
	switch v := raw.(type) {
	case []any:
		return Payload{Shape: ShapeArray, Records: v}, nil
	case map[string]any:
		if isCanonical(v) {
			g, err := decodeCanonical(v)
			if err != nil {
				return Payload{}, err
			}
			return Payload{Shape: ShapeCanonical, Canonical: g}, nil
		}
		for _, path := range wrappedPaths {
			if arr, ok := lookupArray(v, path); ok {
				return Payload{Shape: ShapeWrapped, Path: joinPath(path), Records: arr}, nil
			}
		}
		return Payload{}, &DataFormatError{Reason: "unrecognized payload", Keys: sortedKeys(v), Err: ErrNoModelArray}
	default:
		return Payload{}, &DataFormatError{Reason: fmt.Sprintf("unsupported top-level %T", raw), Err: ErrNoModelArray}
	}
}

func isCanonical(v map[string]any) bool {
	for _, key := range []string{"models", "categories", "vendors"} {
		if _, ok := v[key].([]any); !ok {
			return false
		}
	}
	return true
}

func decodeCanonical(v map[string]any) (*models.Graph, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &DataFormatError{Reason: "canonical payload", Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	var g models.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &DataFormatError{Reason: "canonical payload", Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	g.Models = compact(g.Models)
	g.Categories = compact(g.Categories)
	g.Vendors = compact(g.Vendors)
	return &g, nil
}

// compact drops null entries.
func compact[T any](items []*T) []*T {
	out := items[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

func lookupArray(v map[string]any, path []string) ([]any, bool) {
	cur := v
	for i, key := range path {
		next, ok := cur[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			arr, ok := next.([]any)
			return arr, ok
		}
		if cur, ok = next.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func joinPath(path []string) string {
	var b bytes.Buffer
	for i, p := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

func sortedKeys(v map[string]any) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
