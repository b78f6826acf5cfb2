package usage

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"two words", "Hello world", 3},
		{"punctuation", "Hello, world!", 4},
		{"long unbroken string uses character estimate", "abcdefghijklmnopqrstuvwxyz", 7},
		{"whitespace only", "   ", 1},
		{"marker only", "[TOKEN_MULTIPLIER:5]", 0},
		{"marker multiplies", "[TOKEN_MULTIPLIER:3]Hello world", 9},
		{"marker not at start is text", "x[TOKEN_MULTIPLIER:3]", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokenCount(tt.text); got != tt.want {
				t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateTokenCount_MultiplierLaw(t *testing.T) {
	texts := []string{
		"",
		"Hello world",
		DefaultSample().Input,
		DefaultSample().Output,
		strings.Repeat("token ", 500),
	}
	for _, text := range texts {
		base := EstimateTokenCount(text)
		for _, n := range []int{1, 2, 7, 100} {
			if got := EstimateTokenCount(WithMultiplier(text, n)); got != n*base {
				t.Errorf("multiplier %d on %d-byte text = %d, want %d", n, len(text), got, n*base)
			}
		}
	}
}

func TestEstimateTokenCount_HugeMultiplier(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"product overflows", "[TOKEN_MULTIPLIER:4000000000000000000]Hello world", math.MaxInt},
		{"max multiplier", "[TOKEN_MULTIPLIER:9223372036854775807]Hello world", math.MaxInt},
		{"max multiplier on one token", "[TOKEN_MULTIPLIER:9223372036854775807]a", math.MaxInt},
		{"huge multiplier on empty body", "[TOKEN_MULTIPLIER:4000000000000000000]", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokenCount(tt.text); got != tt.want {
				t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}

	// A marker too long for an int is treated as plain text.
	if got := EstimateTokenCount("[TOKEN_MULTIPLIER:40000000000000000000]Hello world"); got <= 0 {
		t.Errorf("unparseable marker count = %d, want > 0", got)
	}
	price := 3.0
	if cost := CalculateCost("[TOKEN_MULTIPLIER:4000000000000000000]Hello world", &price); cost == nil || *cost < 0 {
		t.Errorf("CalculateCost() = %v, want a non-negative cost", cost)
	}
}

func TestEstimateTokenCount_Deterministic(t *testing.T) {
	text := DefaultSample().Output
	first := EstimateTokenCount(text)
	for i := 0; i < 10; i++ {
		if got := EstimateTokenCount(text); got != first {
			t.Fatalf("call %d = %d, want %d", i, got, first)
		}
	}
}

func TestEstimateTokens_Breakdown(t *testing.T) {
	est := EstimateTokens("[TOKEN_MULTIPLIER:2]Call me at 555, ok?")
	if est.Multiplier != 2 {
		t.Errorf("Multiplier = %d, want 2", est.Multiplier)
	}
	if est.Words != 5 {
		t.Errorf("Words = %d, want 5", est.Words)
	}
	if est.Digits != 3 {
		t.Errorf("Digits = %d, want 3", est.Digits)
	}
	if est.SpecialChars != 2 {
		t.Errorf("SpecialChars = %d, want 2", est.SpecialChars)
	}
	// ceil(5*1.3 + 2*0.5 + 3*0.3) = ceil(8.4) = 9; ceil(19/4) = 5
	if est.Tokens != 18 {
		t.Errorf("Tokens = %d, want 18", est.Tokens)
	}
}

func TestCalculateCost(t *testing.T) {
	if got := CalculateCost("Hello world", nil); got != nil {
		t.Errorf("CalculateCost(nil price) = %v, want nil", *got)
	}

	price := 15.0
	got := CalculateCost("Hello world", &price)
	if got == nil {
		t.Fatal("CalculateCost() = nil")
	}
	want := (price / 1_000_000) * float64(EstimateTokenCount("Hello world"))
	if *got != want {
		t.Errorf("CalculateCost() = %v, want %v", *got, want)
	}

	zero := 0.0
	if got := CalculateCost("Hello world", &zero); got == nil || *got != 0 {
		t.Errorf("zero price should cost 0")
	}
}

func TestCalculateTotalCost(t *testing.T) {
	in, out := 3.0, 15.0

	tc := CalculateTotalCost("Hello world", "Hello, world!", &in, &out)
	if tc.Input == nil || tc.Output == nil || tc.Total == nil {
		t.Fatalf("expected all legs set, got %+v", tc)
	}
	if *tc.Total != *tc.Input+*tc.Output {
		t.Errorf("Total = %v, want %v", *tc.Total, *tc.Input+*tc.Output)
	}

	tc = CalculateTotalCost("a", "b", nil, &out)
	if tc.Total != nil || tc.Input != nil || tc.Output == nil {
		t.Errorf("missing input price: got %+v", tc)
	}

	tc = CalculateTotalCost("a", "b", &in, nil)
	if tc.Total != nil || tc.Output != nil || tc.Input == nil {
		t.Errorf("missing output price: got %+v", tc)
	}
}

func TestFormatPrice(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		price *float64
		want  string
	}{
		{nil, "N/A"},
		{f(0), "$0.000"},
		{f(37.5), "$37.500"},
		{f(150), "$150.000"},
		{f(0.0005), "ERROR: $0.000500 ⚠️"},
		{f(600), "CHECK: $600.000 ⚠️"},
		{f(500), "$500.000"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.price); got != tt.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tt.price, got, tt.want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	c := 0.0123
	if got := FormatCost(&c); got != "$0.012" {
		t.Errorf("FormatCost() = %q, want $0.012", got)
	}
	if got := FormatCost(nil); got != "N/A" {
		t.Errorf("FormatCost(nil) = %q, want N/A", got)
	}
}

func TestFormatTokens(t *testing.T) {
	i := func(v int) *int { return &v }
	tests := []struct {
		tokens *int
		want   string
	}{
		{nil, "N/A"},
		{i(999), "999"},
		{i(8000), "8K"},
		{i(128000), "128K"},
		{i(1000000), "1.0M"},
		{i(2000000), "2.0M"},
	}
	for _, tt := range tests {
		if got := FormatTokens(tt.tokens); got != tt.want {
			t.Errorf("FormatTokens(%v) = %q, want %q", tt.tokens, got, tt.want)
		}
	}
}

func TestFormatParameters(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		params *float64
		want   string
	}{
		{nil, "N/A"},
		{f(7), "7B"},
		{f(7.5), "7.5B"},
		{f(405), "405B"},
		{f(1800), "1.8T"},
	}
	for _, tt := range tests {
		if got := FormatParameters(tt.params); got != tt.want {
			t.Errorf("FormatParameters(%v) = %q, want %q", tt.params, got, tt.want)
		}
	}
}

func TestSample_Scaled(t *testing.T) {
	s := Sample{Input: "Hello world", Output: "Hi"}

	if got := s.Scaled(1); got != s {
		t.Errorf("Scaled(1) changed the sample: %+v", got)
	}
	if got := s.Scaled(0); got != s {
		t.Errorf("Scaled(0) changed the sample: %+v", got)
	}
	if got := s.Scaled(4).Input; got != "[TOKEN_MULTIPLIER:4]Hello world" {
		t.Errorf("Scaled(4).Input = %q", got)
	}
	if got := s.Scaled(5000).Input; !strings.HasPrefix(got, "[TOKEN_MULTIPLIER:1000]") {
		t.Errorf("Scaled(5000) should clamp to 1000, got %q", got)
	}
}

func TestDefaultSample(t *testing.T) {
	s := DefaultSample()
	if !strings.HasPrefix(s.Input, "User: ") || strings.Count(s.Input, "User: ") != len(UserMessages) {
		t.Errorf("unexpected default input: %q", s.Input)
	}
	if !strings.HasPrefix(s.Output, "Assistant: ") {
		t.Errorf("unexpected default output: %q", s.Output)
	}

	in, out := 37.5, 150.0
	tc := s.Cost(&in, &out)
	if tc.Total == nil || *tc.Total <= 0 {
		t.Errorf("expected positive sample cost, got %+v", tc)
	}
}
