// Package catalog classifies raw upstream model records into a vendor, a
// topical category and a capability tier using ordered keyword rules.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// DefaultCategory is assigned when no category rule matches.
const DefaultCategory = "General"

// CategoryRule assigns Name when any keyword occurs in the record text.
type CategoryRule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Bound is a half-open numeric range [Min, Max). A zero Max is unbounded.
type Bound struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Contains reports whether a positive v lies within the bound.
func (b *Bound) Contains(v float64) bool {
	if b == nil || v <= 0 {
		return false
	}
	return v >= b.Min && (b.Max == 0 || v < b.Max)
}

// TierRule assigns Tier when any keyword occurs in the record text or
// either numeric signal falls within its bound.
type TierRule struct {
	Tier       models.CapabilityTier `yaml:"tier" json:"tier"`
	Keywords   []string              `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Parameters *Bound                `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Context    *Bound                `yaml:"context,omitempty" json:"context,omitempty"`
}

func (r TierRule) matches(text string, params float64, context float64) bool {
	if containsAny(text, r.Keywords) {
		return true
	}
	return r.Parameters.Contains(params) || r.Context.Contains(context)
}

// Rules is the complete, data-driven rule table. Rules are evaluated in
// order and the first match wins.
type Rules struct {
	// KnownVendors are searched in display names when an identifier
	// carries no vendor prefix.
	KnownVendors []string       `yaml:"known_vendors" json:"known_vendors"`
	Categories   []CategoryRule `yaml:"categories" json:"categories"`
	Tiers        []TierRule     `yaml:"tiers" json:"tiers"`

	// DefaultTier is assigned when no tier rule matches.
	DefaultTier models.CapabilityTier `yaml:"default_tier" json:"default_tier"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	return Rules{
		KnownVendors: []string{"openai", "anthropic", "google", "meta", "microsoft", "cohere", "deepseek", "mistral", "qwen"},
		Categories: []CategoryRule{
			{Name: "Code Generation", Keywords: []string{"code", "coding", "programmer", "developer", "github", "repository", "programming"}},
			{Name: "Multimodal", Keywords: []string{"vision", "image", "visual", "multimodal", "picture", "photo", "camera", "ocr"}},
			{Name: "Reasoning", Keywords: []string{"reasoning", "thinking", "logic", "math", "problem", "analysis", "analytical"}},
			{Name: "Conversational", Keywords: []string{"chat", "conversation", "assistant", "dialogue", "instruct", "helpful"}},
			{Name: "Specialized", Keywords: []string{"medical", "legal", "financial", "scientific", "research", "domain", "expert"}},
		},
		Tiers: []TierRule{
			{
				Tier: models.TierFrontier,
				Keywords: []string{
					"gpt-4o", "gpt-4-turbo", "claude-3.5-sonnet", "claude-3-opus", "gemini-1.5-pro", "gemini-2.0",
					"o1-preview", "o1-mini", "llama-3.1-405b", "llama-3.2-90b", "qwen2.5-72b", "deepseek-v3",
				},
				Parameters: &Bound{Min: 70},
				Context:    &Bound{Min: 1_000_000},
			},
			{
				Tier:     models.TierExperimental,
				Keywords: []string{"preview", "beta", "alpha", "experimental", "research", "test", "dev", "unstable", "snapshot", "nightly"},
			},
			{
				Tier: models.TierSpecialized,
				Keywords: []string{
					"code", "medical", "legal", "finance", "embed", "rerank", "vision", "audio", "translation",
					"summarization", "instruct", "finetune", "reasoning", "math", "science",
				},
			},
			{
				Tier: models.TierProduction,
				Keywords: []string{
					"gpt-3.5-turbo", "claude-3-haiku", "claude-3-sonnet", "gemini-1.5-flash", "gemini-pro",
					"llama-3.1-70b", "llama-3.1-8b", "mistral-large", "mixtral-8x7b", "qwen2.5-32b",
				},
				Parameters: &Bound{Min: 7, Max: 70},
				Context:    &Bound{Min: 32_000, Max: 1_000_000},
			},
			{Tier: models.TierProduction, Parameters: &Bound{Min: 30}, Context: &Bound{Min: 128_000}},
			{Tier: models.TierStandard, Parameters: &Bound{Min: 7}, Context: &Bound{Min: 16_000}},
			{Tier: models.TierLightweight, Parameters: &Bound{Min: 0}, Context: &Bound{Min: 0}},
		},
		DefaultTier: models.TierStandard,
	}
}

// Validate checks that every rule names a category or a known tier.
func (r Rules) Validate() error {
	var errs []error
	for i, c := range r.Categories {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name is required", i))
		}
		if len(c.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("categories[%d] %q: at least one keyword is required", i, c.Name))
		}
	}
	for i, t := range r.Tiers {
		if !t.Tier.Valid() {
			errs = append(errs, fmt.Errorf("tiers[%d]: unknown tier %q", i, t.Tier))
		}
		if len(t.Keywords) == 0 && t.Parameters == nil && t.Context == nil {
			errs = append(errs, fmt.Errorf("tiers[%d] %s: rule can never match", i, t.Tier))
		}
	}
	if r.DefaultTier != "" && !r.DefaultTier.Valid() {
		errs = append(errs, fmt.Errorf("default_tier: unknown tier %q", r.DefaultTier))
	}
	return errors.Join(errs...)
}

// LoadRules reads a YAML rule table from path. Omitted sections keep
// their built-in defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (Rules, error) {
	var raw Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	rules := DefaultRules()
	if raw.KnownVendors != nil {
		rules.KnownVendors = raw.KnownVendors
	}
	if raw.Categories != nil {
		rules.Categories = raw.Categories
	}
	if raw.Tiers != nil {
		rules.Tiers = raw.Tiers
	}
	if raw.DefaultTier != "" {
		rules.DefaultTier = raw.DefaultTier
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
