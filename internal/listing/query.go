package listing

import (
	"github.com/haasonsaas/inferprice/internal/usage"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// Query combines the filters and ordering of one table view.
type Query struct {
	Categories []string
	Vendors    []string
	Context    ContextBucket
	Sort       SortKey
	Direction  Direction
	// Sample prices the samplePrice column; nil leaves every model unpriced.
	Sample *usage.Sample
}

// Apply filters then sorts list. An empty Sort keeps the input order.
func (q Query) Apply(list []*models.Model) []*models.Model {
	out := FilterModels(list, q.Categories, q.Vendors)
	out = FilterByContextWindow(out, q.Context)
	if q.Sort == "" {
		return out
	}
	return SortModels(out, q.Sort, q.Direction, q.Sample)
}

// Row is a display-ready view of one model.
type Row struct {
	ID            int      `json:"id"`
	SystemName    string   `json:"systemName"`
	DisplayName   string   `json:"displayName"`
	Vendor        string   `json:"vendor"`
	Category      string   `json:"category"`
	Tier          string   `json:"capabilityTier,omitempty"`
	Parameters    string   `json:"parameters"`
	ContextWindow string   `json:"contextWindow"`
	TokenLimit    string   `json:"tokenLimit"`
	InputPrice    string   `json:"inputPrice"`
	OutputPrice   string   `json:"outputPrice"`
	InputCost     string   `json:"inputCost"`
	OutputCost    string   `json:"outputCost"`
	TotalCost     string   `json:"totalCost"`
	PricingURL    string   `json:"pricingUrl,omitempty"`
	Flags         []string `json:"flags,omitempty"`
}

// Rows formats models for display, pricing sample against each one.
func Rows(list []*models.Model, sample usage.Sample) []Row {
	rows := make([]Row, 0, len(list))
	for _, m := range list {
		r := Row{
			ID:            m.ID,
			SystemName:    m.SystemName,
			DisplayName:   m.DisplayName,
			Tier:          string(m.CapabilityTier),
			Parameters:    usage.FormatParameters(m.ParametersB),
			ContextWindow: usage.FormatTokens(m.ContextWindow),
			TokenLimit:    usage.FormatTokens(m.TokenLimit),
			InputPrice:    usage.FormatPrice(m.Pricing.InputPrice()),
			OutputPrice:   usage.FormatPrice(m.Pricing.OutputPrice()),
			Vendor:        "Unknown",
			Category:      "Unknown",
		}
		if m.Vendor != nil {
			r.Vendor = m.Vendor.Name
			r.PricingURL = m.Vendor.PricingURL
		}
		if m.Category != nil {
			r.Category = m.Category.Name
		}
		tc := sample.Cost(m.Pricing.InputPrice(), m.Pricing.OutputPrice())
		r.InputCost = usage.FormatCost(tc.Input)
		r.OutputCost = usage.FormatCost(tc.Output)
		r.TotalCost = usage.FormatCost(tc.Total)
		if m.Pricing != nil {
			r.Flags = m.Pricing.Flags
		}
		rows = append(rows, r)
	}
	return rows
}

// CategoryNames returns the names of categories that have at least one
// listed model, in graph order.
func CategoryNames(g *models.Graph) []string {
	var names []string
	for _, c := range g.Categories {
		if len(FilterModels(c.Models, nil, nil)) > 0 {
			names = append(names, c.Name)
		}
	}
	return names
}

// VendorNames returns the names of vendors that have at least one listed
// model, in graph order.
func VendorNames(g *models.Graph) []string {
	var names []string
	for _, v := range g.Vendors {
		if len(FilterModels(v.Models, nil, nil)) > 0 {
			names = append(names, v.Name)
		}
	}
	return names
}
