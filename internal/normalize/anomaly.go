package normalize

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// AnomalyKind classifies a suspicious price.
type AnomalyKind string

const (
	// AnomalyLow is a positive price below SuspiciousLow, usually a
	// per-token value stored as per-million.
	AnomalyLow AnomalyKind = "suspiciously_low"
	// AnomalyHigh exceeds the per-field ceiling.
	AnomalyHigh AnomalyKind = "suspiciously_high"
	// AnomalyVerify is a known unit-confusion value that needs review.
	AnomalyVerify AnomalyKind = "verify"
)

// Anomaly is an advisory note about one price field. The price itself is
// never altered.
type Anomaly struct {
	ModelID    int         `json:"model_id"`
	SystemName string      `json:"system_name"`
	Field      string      `json:"field"`
	Value      float64     `json:"value"`
	Kind       AnomalyKind `json:"kind"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s=%g (%s)", a.SystemName, a.Field, a.Value, a.Kind)
}

// Flag is the compact form stored on Pricing.Flags.
func (a Anomaly) Flag() string {
	return a.Field + ":" + string(a.Kind)
}

// AnomalyRules holds the thresholds used to flag prices.
type AnomalyRules struct {
	SuspiciousLow float64
	MaxInput      float64
	MaxOutput     float64
	// Exceptions are name fragments of models whose unusual prices are
	// known to be correct.
	Exceptions []string
}

// DefaultAnomalyRules returns the built-in thresholds.
func DefaultAnomalyRules() AnomalyRules {
	return AnomalyRules{
		SuspiciousLow: 0.001,
		MaxInput:      200,
		MaxOutput:     500,
		Exceptions:    []string{"o1-pro", "gpt-4.5", "gpt 4.5"},
	}
}

// Check returns the anomalies of one model's pricing.
func (r AnomalyRules) Check(m *models.Model) []Anomaly {
	if m == nil || m.Pricing == nil || r.excepted(m) {
		return nil
	}
	p := m.Pricing
	var out []Anomaly
	add := func(field string, v float64, kind AnomalyKind) {
		out = append(out, Anomaly{ModelID: m.ID, SystemName: m.SystemName, Field: field, Value: v, Kind: kind})
	}

	fields := []struct {
		name    string
		value   *float64
		ceiling float64
	}{
		{"inputText", &p.InputText, r.MaxInput},
		{"outputText", &p.OutputText, r.MaxOutput},
		{"finetuningInput", p.FinetuningInput, 0},
		{"finetuningOutput", p.FinetuningOutput, 0},
		{"trainingCost", p.TrainingCost, 0},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v := *f.value
		if v > 0 && v < r.SuspiciousLow {
			add(f.name, v, AnomalyLow)
		}
		if f.ceiling > 0 && v > f.ceiling {
			add(f.name, v, AnomalyHigh)
		}
	}

	// 37.5 is Google's 0.0375 per-million-character price entered per token.
	if strings.Contains(strings.ToLower(m.Host), "google") && p.InputText == 37.5 {
		add("inputText", p.InputText, AnomalyVerify)
	}
	return out
}

func (r AnomalyRules) excepted(m *models.Model) bool {
	sys := strings.ToLower(m.SystemName)
	display := strings.ToLower(m.DisplayName)
	for _, e := range r.Exceptions {
		e = strings.ToLower(e)
		if e != "" && (strings.Contains(sys, e) || strings.Contains(display, e)) {
			return true
		}
	}
	return false
}

// Annotate replaces the flags of every priced model with its current
// anomalies and returns them all.
func (r AnomalyRules) Annotate(list []*models.Model) []Anomaly {
	var all []Anomaly
	for _, m := range list {
		if m.Pricing == nil {
			continue
		}
		found := r.Check(m)
		m.Pricing.Flags = nil
		for _, a := range found {
			m.Pricing.Flags = append(m.Pricing.Flags, a.Flag())
		}
		all = append(all, found...)
	}
	return all
}
