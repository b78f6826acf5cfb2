package normalize

import (
	"fmt"
	"time"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one integrity problem found in a canonical graph.
type Issue struct {
	Severity Severity `json:"severity"`
	Entity   string   `json:"entity"`
	ID       int      `json:"id"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s %d: %s", i.Severity, i.Entity, i.ID, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateGraph checks referential integrity, id uniqueness and pricing
// sanity of a canonical graph. Suspicious prices are warnings.
func ValidateGraph(g *models.Graph, rules AnomalyRules) []Issue {
	var issues []Issue
	errorf := func(entity string, id int, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(entity string, id int, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Entity: entity, ID: id, Message: fmt.Sprintf(format, args...)})
	}
	if g == nil {
		return nil
	}

	categories := make(map[int]bool, len(g.Categories))
	for _, c := range g.Categories {
		if categories[c.ID] {
			errorf("category", c.ID, "duplicate category id")
		}
		categories[c.ID] = true
		if c.Name == "" {
			errorf("category", c.ID, "missing name")
		}
	}
	vendors := make(map[int]bool, len(g.Vendors))
	for _, v := range g.Vendors {
		if vendors[v.ID] {
			errorf("vendor", v.ID, "duplicate vendor id")
		}
		vendors[v.ID] = true
		if v.Name == "" {
			errorf("vendor", v.ID, "missing name")
		}
	}

	modelIDs := make(map[int]bool, len(g.Models))
	pricingIDs := make(map[int]bool, len(g.Models))
	for _, m := range g.Models {
		if modelIDs[m.ID] {
			errorf("model", m.ID, "duplicate model id")
		}
		modelIDs[m.ID] = true

		if m.SystemName == "" {
			errorf("model", m.ID, "missing systemName")
		}
		if m.DisplayName == "" {
			errorf("model", m.ID, "missing displayName")
		}
		if !categories[m.CategoryID] {
			errorf("model", m.ID, "categoryId %d does not exist", m.CategoryID)
		}
		if !vendors[m.VendorID] {
			errorf("model", m.ID, "vendorId %d does not exist", m.VendorID)
		}
		if m.CapabilityTier != "" && !m.CapabilityTier.Valid() {
			warnf("model", m.ID, "unknown capability tier %q", m.CapabilityTier)
		}
		if m.ReleaseDate != "" {
			if _, err := time.Parse(time.DateOnly, m.ReleaseDate); err != nil {
				warnf("model", m.ID, "releaseDate %q is not YYYY-MM-DD", m.ReleaseDate)
			}
		}

		p := m.Pricing
		if p == nil {
			warnf("model", m.ID, "%s has no pricing", m.SystemName)
			continue
		}
		if pricingIDs[p.ID] {
			errorf("pricing", p.ID, "duplicate pricing id")
		}
		pricingIDs[p.ID] = true
		if p.ModelID != m.ID {
			errorf("pricing", p.ID, "modelId %d does not match model %d", p.ModelID, m.ID)
		}
		prices := []struct {
			name  string
			value *float64
		}{
			{"inputText", &p.InputText},
			{"outputText", &p.OutputText},
			{"finetuningInput", p.FinetuningInput},
			{"finetuningOutput", p.FinetuningOutput},
			{"trainingCost", p.TrainingCost},
		}
		for _, price := range prices {
			if price.value != nil && *price.value < 0 {
				errorf("pricing", p.ID, "negative %s price %g", price.name, *price.value)
			}
		}
		for _, a := range rules.Check(m) {
			warnf("pricing", p.ID, "%s price $%g per million tokens is %s", a.Field, a.Value, a.Kind)
		}
	}
	return issues
}
