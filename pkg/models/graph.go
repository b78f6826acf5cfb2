package models

// Graph is the canonical {models, categories, vendors} shape.
type Graph struct {
	Models     []*Model    `json:"models"`
	Categories []*Category `json:"categories"`
	Vendors    []*Vendor   `json:"vendors"`
}

// Link recomputes every derived relationship from the entity lists:
// model.Category, model.Vendor, category.Models and vendor.Models.
// Previous derived values are discarded.
func (g *Graph) Link() {
	if g == nil {
		return
	}
	categories := make(map[int]*Category, len(g.Categories))
	for _, c := range g.Categories {
		c.Models = []*Model{}
		if _, ok := categories[c.ID]; !ok {
			categories[c.ID] = c
		}
	}
	vendors := make(map[int]*Vendor, len(g.Vendors))
	for _, v := range g.Vendors {
		v.Models = []*Model{}
		if _, ok := vendors[v.ID]; !ok {
			vendors[v.ID] = v
		}
	}

	for _, m := range g.Models {
		m.Category = categories[m.CategoryID]
		m.Vendor = vendors[m.VendorID]
		if m.Category != nil {
			m.Category.Models = append(m.Category.Models, m)
		}
		if m.Vendor != nil {
			m.Vendor.Models = append(m.Vendor.Models, m)
		}
	}
}

// CategoryByID returns the category with the given id.
func (g *Graph) CategoryByID(id int) (*Category, bool) {
	for _, c := range g.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// VendorByID returns the vendor with the given id.
func (g *Graph) VendorByID(id int) (*Vendor, bool) {
	for _, v := range g.Vendors {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// ModelByID returns the model with the given id.
func (g *Graph) ModelByID(id int) (*Model, bool) {
	for _, m := range g.Models {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Empty reports whether the graph holds no entities at all.
func (g *Graph) Empty() bool {
	return g == nil || (len(g.Models) == 0 && len(g.Categories) == 0 && len(g.Vendors) == 0)
}

// Clone returns a deep copy of the graph, linked.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{
		Models:     make([]*Model, 0, len(g.Models)),
		Categories: make([]*Category, 0, len(g.Categories)),
		Vendors:    make([]*Vendor, 0, len(g.Vendors)),
	}
	for _, c := range g.Categories {
		cp := *c
		cp.Models = nil
		out.Categories = append(out.Categories, &cp)
	}
	for _, v := range g.Vendors {
		cp := *v
		cp.Models = nil
		out.Vendors = append(out.Vendors, &cp)
	}
	for _, m := range g.Models {
		cp := *m
		cp.ParametersB = clonePtr(m.ParametersB)
		cp.ContextWindow = clonePtr(m.ContextWindow)
		cp.TokenLimit = clonePtr(m.TokenLimit)
		if m.Pricing != nil {
			p := *m.Pricing
			p.FinetuningInput = clonePtr(p.FinetuningInput)
			p.FinetuningOutput = clonePtr(p.FinetuningOutput)
			p.TrainingCost = clonePtr(p.TrainingCost)
			p.Flags = append([]string(nil), p.Flags...)
			cp.Pricing = &p
		}
		out.Models = append(out.Models, &cp)
	}
	out.Link()
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
