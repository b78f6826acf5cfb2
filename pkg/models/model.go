// Package models defines the canonical pricing schema shared by every
// component: models, their pricing, categories and vendors.
package models

// CapabilityTier is a coarse quality/maturity classification of a model.
type CapabilityTier string

const (
	TierFrontier     CapabilityTier = "Frontier"
	TierProduction   CapabilityTier = "Production"
	TierSpecialized  CapabilityTier = "Specialized"
	TierExperimental CapabilityTier = "Experimental"
	TierStandard     CapabilityTier = "Standard"
	TierLightweight  CapabilityTier = "Lightweight"
)

// Tiers lists every capability tier in display order.
var Tiers = []CapabilityTier{
	TierFrontier,
	TierProduction,
	TierSpecialized,
	TierExperimental,
	TierStandard,
	TierLightweight,
}

// Valid reports whether t is one of the known tiers.
func (t CapabilityTier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// Model is a single inference offering.
type Model struct {
	// ID is unique within a graph.
	ID int `json:"id"`

	// SystemName is the raw upstream identifier (e.g. "anthropic/claude-3-opus").
	SystemName string `json:"systemName"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"displayName"`

	CategoryID int `json:"categoryId"`
	VendorID   int `json:"vendorId"`

	// Host is the display name of the vendor serving the model.
	Host string `json:"host,omitempty"`

	CapabilityTier CapabilityTier `json:"capabilityTier,omitempty"`
	Modality       string         `json:"modality,omitempty"`

	// ParametersB is the parameter count in billions.
	ParametersB   *float64 `json:"parametersB" jsonschema:"oneof_type=number;null"`
	ContextWindow *int     `json:"contextWindow,omitempty"`
	TokenLimit    *int     `json:"tokenLimit,omitempty"`

	Precision   string `json:"precision,omitempty"`
	Description string `json:"description,omitempty"`

	// ReleaseDate is formatted YYYY-MM-DD.
	ReleaseDate  string `json:"releaseDate,omitempty"`
	IsOpenSource bool   `json:"isOpenSource"`
	IsHidden     bool   `json:"isHidden"`

	Pricing *Pricing `json:"pricing,omitempty"`

	// Category and Vendor are derived by Graph.Link and never persisted.
	Category *Category `json:"-"`
	Vendor   *Vendor   `json:"-"`
}

// Pricing holds the prices of a model. Every price is in dollars per one
// million tokens.
type Pricing struct {
	ID      int `json:"id"`
	ModelID int `json:"modelId"`

	InputText  float64 `json:"inputText"`
	OutputText float64 `json:"outputText"`

	FinetuningInput  *float64 `json:"finetuningInput,omitempty"`
	FinetuningOutput *float64 `json:"finetuningOutput,omitempty"`
	TrainingCost     *float64 `json:"trainingCost,omitempty"`

	// Flags carries advisory anomaly notes; the values above are never altered.
	Flags []string `json:"flags,omitempty"`
}

// InputPrice returns a pointer to the input price, or nil when p is nil.
func (p *Pricing) InputPrice() *float64 {
	if p == nil {
		return nil
	}
	v := p.InputText
	return &v
}

// OutputPrice returns a pointer to the output price, or nil when p is nil.
func (p *Pricing) OutputPrice() *float64 {
	if p == nil {
		return nil
	}
	v := p.OutputText
	return &v
}

// Category groups models by topic.
type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UseCase     string `json:"useCase,omitempty"`

	// Models is derived by Graph.Link.
	Models []*Model `json:"-"`
}

// Vendor is the company that created a model.
type Vendor struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PricingURL    string `json:"pricingUrl"`
	ModelsListURL string `json:"modelsListUrl"`

	// Models is derived by Graph.Link.
	Models []*Model `json:"-"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
