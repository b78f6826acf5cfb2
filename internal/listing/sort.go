package listing

import (
	"cmp"
	"math"
	"slices"

	"github.com/haasonsaas/inferprice/internal/format"
	"github.com/haasonsaas/inferprice/internal/usage"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// SortKey names a sortable column.
type SortKey string

const (
	SortDisplayName   SortKey = "displayName"
	SortVendorName    SortKey = "vendorName"
	SortCategoryName  SortKey = "categoryName"
	SortParameters    SortKey = "parametersB"
	SortContextWindow SortKey = "contextWindow"
	SortTokenLimit    SortKey = "tokenLimit"
	SortInputPrice    SortKey = "inputPrice"
	SortOutputPrice   SortKey = "outputPrice"
	SortSamplePrice   SortKey = "samplePrice"
)

// SortKeys lists every supported key.
var SortKeys = []SortKey{
	SortDisplayName,
	SortVendorName,
	SortCategoryName,
	SortParameters,
	SortContextWindow,
	SortTokenLimit,
	SortInputPrice,
	SortOutputPrice,
	SortSamplePrice,
}

// Valid reports whether k is a supported key.
func (k SortKey) Valid() bool {
	return slices.Contains(SortKeys, k)
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortModels returns a stably sorted copy of list. samplePrice uses
// sample to price each model; without a sample every model is unpriced.
// Unpriced models sort as +Inf, so last when ascending. An unknown key
// returns the list in its original order.
func SortModels(list []*models.Model, key SortKey, dir Direction, sample *usage.Sample) []*models.Model {
	out := slices.Clone(list)
	less := comparator(key, sample)
	if less == nil {
		return out
	}
	if dir == Desc {
		slices.SortStableFunc(out, func(a, b *models.Model) int { return less(b, a) })
	} else {
		slices.SortStableFunc(out, less)
	}
	return out
}

func comparator(key SortKey, sample *usage.Sample) func(a, b *models.Model) int {
	switch key {
	case SortDisplayName:
		return byString(func(m *models.Model) string { return m.DisplayName })
	case SortVendorName:
		return byString(func(m *models.Model) string {
			if m.Vendor == nil {
				return ""
			}
			return m.Vendor.Name
		})
	case SortCategoryName:
		return byString(func(m *models.Model) string {
			if m.Category == nil {
				return ""
			}
			return m.Category.Name
		})
	case SortParameters:
		return byNumber(func(m *models.Model) float64 { return derefOr(m.ParametersB, 0) })
	case SortContextWindow:
		return byNumber(func(m *models.Model) float64 { return float64(derefOr(m.ContextWindow, 0)) })
	case SortTokenLimit:
		return byNumber(func(m *models.Model) float64 { return float64(derefOr(m.TokenLimit, 0)) })
	case SortInputPrice:
		return byNumber(func(m *models.Model) float64 { return derefOr(m.Pricing.InputPrice(), math.Inf(1)) })
	case SortOutputPrice:
		return byNumber(func(m *models.Model) float64 { return derefOr(m.Pricing.OutputPrice(), math.Inf(1)) })
	case SortSamplePrice:
		return byNumber(func(m *models.Model) float64 { return SamplePrice(m, sample) })
	}
	return nil
}

// SamplePrice is the total cost of the sample texts through the model's
// pricing, or +Inf when either is missing.
func SamplePrice(m *models.Model, sample *usage.Sample) float64 {
	if sample == nil || m.Pricing == nil {
		return math.Inf(1)
	}
	tc := sample.Cost(m.Pricing.InputPrice(), m.Pricing.OutputPrice())
	return derefOr(tc.Total, math.Inf(1))
}

func byString(field func(*models.Model) string) func(a, b *models.Model) int {
	collate := format.Collator()
	return func(a, b *models.Model) int {
		return collate(field(a), field(b))
	}
}

// byNumber evaluates field at most once per model.
func byNumber(field func(*models.Model) float64) func(a, b *models.Model) int {
	cache := make(map[*models.Model]float64)
	value := func(m *models.Model) float64 {
		if v, ok := cache[m]; ok {
			return v
		}
		v := field(m)
		cache[m] = v
		return v
	}
	return func(a, b *models.Model) int {
		return cmp.Compare(value(a), value(b))
	}
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
