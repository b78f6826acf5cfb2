package normalize

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	rec := `{"id": "anthropic/claude-3-haiku", "name": "Claude 3 Haiku"}`
	tests := []struct {
		name      string
		payload   string
		wantShape Shape
		wantPath  string
	}{
		{"bare array", `[` + rec + `]`, ShapeArray, ""},
		{"models key", `{"models": [` + rec + `]}`, ShapeWrapped, "models"},
		{"data.models", `{"data": {"models": [` + rec + `]}}`, ShapeWrapped, "data.models"},
		{"response.models", `{"response": {"models": [` + rec + `]}}`, ShapeWrapped, "response.models"},
		{"results.models", `{"results": {"models": [` + rec + `]}}`, ShapeWrapped, "results.models"},
		{"items", `{"items": [` + rec + `]}`, ShapeWrapped, "items"},
		{"list", `{"list": [` + rec + `]}`, ShapeWrapped, "list"},
		{"data array", `{"data": [` + rec + `]}`, ShapeWrapped, "data"},
		{"models beats items", `{"items": [], "models": [` + rec + `]}`, ShapeWrapped, "models"},
		{"canonical", `{"models": [], "categories": [], "vendors": []}`, ShapeCanonical, ""},
		{"partial canonical is wrapped", `{"models": [` + rec + `], "categories": []}`, ShapeWrapped, "models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			p, err := Resolve(raw)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if p.Shape != tt.wantShape {
				t.Errorf("Shape = %q, want %q", p.Shape, tt.wantShape)
			}
			if p.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", p.Path, tt.wantPath)
			}
			if tt.wantShape == ShapeCanonical {
				if p.Canonical == nil {
					t.Error("Canonical should be set")
				}
			} else if len(p.Records) != 1 {
				t.Errorf("Records = %d, want 1", len(p.Records))
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantErr  error
		wantKeys []string
	}{
		{"unknown keys", `{"status": "ok", "count": 3}`, ErrNoModelArray, []string{"count", "status"}},
		{"models not an array", `{"models": {"a": 1}}`, ErrNoModelArray, []string{"models"}},
		{"data.models not an array", `{"data": {"models": "none"}}`, ErrNoModelArray, []string{"data"}},
		{"scalar", `42`, ErrNoModelArray, nil},
		{"null", `null`, ErrNoModelArray, nil},
		{"bad canonical", `{"models": [{"id": "one"}], "categories": [], "vendors": []}`, ErrInvalidPayload, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			_, err = Resolve(raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			var dfe *DataFormatError
			if !errors.As(err, &dfe) {
				t.Fatalf("error should be a *DataFormatError, got %T", err)
			}
			if !reflect.DeepEqual(dfe.Keys, tt.wantKeys) {
				t.Errorf("Keys = %v, want %v", dfe.Keys, tt.wantKeys)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, payload := range []string{``, `{`, `[] []`, `{"a":1} trailing`} {
		_, err := Decode([]byte(payload))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidPayload", payload, err)
		}
	}
}
