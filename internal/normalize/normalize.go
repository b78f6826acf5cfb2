// Package normalize converts heterogeneous upstream model listings into the
// canonical {models, categories, vendors} graph.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/haasonsaas/inferprice/internal/catalog"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// DefaultAllowedVendors are the vendor keys kept from raw listings.
var DefaultAllowedVendors = []string{"anthropic", "google", "meta", "deepseek", "inference-net"}

// DefaultHiddenCategoryIDs are category ids dropped from canonical payloads.
var DefaultHiddenCategoryIDs = []int{6}

// AllVendors in an allow-list disables vendor filtering.
const AllVendors = "*"

// Options configures a Normalizer.
type Options struct {
	// Classifier defaults to the built-in rule table.
	Classifier *catalog.Classifier
	// AllowedVendors defaults to DefaultAllowedVendors when nil.
	AllowedVendors []string
	// HiddenCategoryIDs defaults to DefaultHiddenCategoryIDs when nil.
	HiddenCategoryIDs []int
	// Anomalies defaults to DefaultAnomalyRules.
	Anomalies *AnomalyRules
	Logger    *slog.Logger
}

// Report summarizes one normalization run.
type Report struct {
	Shape Shape  `json:"shape"`
	Path  string `json:"path,omitempty"`

	// Records is the number of records in the located array.
	Records int `json:"records"`
	// Filtered records belonged to vendors outside the allow-list.
	Filtered int `json:"filtered"`
	// Failed records could not be extracted and were skipped.
	Failed int `json:"failed"`
	// Superseded models were removed by version deduplication.
	Superseded int `json:"superseded"`
	// Hidden models and categories were dropped from a canonical payload.
	Hidden int `json:"hidden"`
	// Orphaned models referenced a missing category or vendor.
	Orphaned int `json:"orphaned"`
	Accepted int `json:"accepted"`

	Errors    []*RecordError `json:"-"`
	Anomalies []Anomaly      `json:"anomalies,omitempty"`
}

// Normalizer turns raw payloads into canonical graphs. It holds no state
// between calls and is safe for concurrent use.
type Normalizer struct {
	classifier     *catalog.Classifier
	allowAll       bool
	allowed        map[string]bool
	hiddenCategory map[int]bool
	anomalies      AnomalyRules
	logger         *slog.Logger
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		classifier:     opts.Classifier,
		allowed:        make(map[string]bool),
		hiddenCategory: make(map[int]bool),
		anomalies:      DefaultAnomalyRules(),
		logger:         opts.Logger,
	}
	if n.classifier == nil {
		n.classifier = catalog.NewDefault()
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if opts.Anomalies != nil {
		n.anomalies = *opts.Anomalies
	}

	allowed := opts.AllowedVendors
	if allowed == nil {
		allowed = DefaultAllowedVendors
	}
	for _, v := range allowed {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == AllVendors {
			n.allowAll = true
		}
		n.allowed[v] = true
	}

	hidden := opts.HiddenCategoryIDs
	if hidden == nil {
		hidden = DefaultHiddenCategoryIDs
	}
	for _, id := range hidden {
		n.hiddenCategory[id] = true
	}
	return n
}

// NormalizeJSON decodes data and normalizes it.
func (n *Normalizer) NormalizeJSON(ctx context.Context, data []byte) (*models.Graph, *Report, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return n.Normalize(ctx, raw)
}

// Normalize resolves the payload layout and builds a linked graph. Only an
// unrecognizable payload is an error; bad individual records are skipped.
func (n *Normalizer) Normalize(ctx context.Context, raw any) (*models.Graph, *Report, error) {
	payload, err := Resolve(raw)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Shape: payload.Shape, Path: payload.Path}
	var g *models.Graph
	if payload.Canonical != nil {
		g = n.fromCanonical(ctx, payload.Canonical, report)
	} else {
		g = n.fromRecords(ctx, payload.Records, report)
	}

	report.Anomalies = n.anomalies.Annotate(g.Models)
	for _, a := range report.Anomalies {
		n.logger.WarnContext(ctx, "suspicious price",
			"model", a.SystemName,
			"field", a.Field,
			"value", a.Value,
			"kind", a.Kind,
		)
	}
	report.Accepted = len(g.Models)
	g.Link()
	return g, report, nil
}

func (n *Normalizer) allows(vendorKey string) bool {
	return n.allowAll || n.allowed[vendorKey]
}

// builder interns vendors and categories in first-seen order.
type builder struct {
	vendors       []*models.Vendor
	vendorByKey   map[string]*models.Vendor
	categories    []*models.Category
	categoryByKey map[string]*models.Category
}

func newBuilder() *builder {
	return &builder{
		vendorByKey:   make(map[string]*models.Vendor),
		categoryByKey: make(map[string]*models.Category),
	}
}

func (b *builder) vendor(key, name string) *models.Vendor {
	if v, ok := b.vendorByKey[key]; ok {
		return v
	}
	v := &models.Vendor{
		ID:            len(b.vendors) + 1,
		Name:          name,
		PricingURL:    "https://" + key + ".com/pricing",
		ModelsListURL: "https://" + key + ".com/models",
	}
	b.vendors = append(b.vendors, v)
	b.vendorByKey[key] = v
	return v
}

func (b *builder) category(name string) *models.Category {
	key := strings.Join(strings.Fields(strings.ToLower(name)), "-")
	if c, ok := b.categoryByKey[key]; ok {
		return c
	}
	c := &models.Category{
		ID:          len(b.categories) + 1,
		Name:        name,
		Description: name + " models and applications",
	}
	b.categories = append(b.categories, c)
	b.categoryByKey[key] = c
	return c
}

func (n *Normalizer) fromRecords(ctx context.Context, records []any, report *Report) *models.Graph {
	report.Records = len(records)
	b := newBuilder()
	var list []*models.Model

	index := 0
	for pos, item := range records {
		rec, ok := item.(map[string]any)
		if !ok {
			err := &RecordError{Index: pos, Err: fmt.Errorf("expected object, got %T", item)}
			report.Failed++
			report.Errors = append(report.Errors, err)
			n.logger.WarnContext(ctx, "skipping upstream record", "index", pos, "error", err)
			continue
		}
		r := record(rec)

		id := r.String("id").OrElse("")
		name := r.String("name").OrElse("")
		key, vendorName := n.classifier.Vendor(id, name)
		if !n.allows(key) {
			report.Filtered++
			continue
		}

		m, err := n.extract(r, index)
		if err != nil {
			recErr := &RecordError{Index: index, ID: id, Err: err}
			report.Failed++
			report.Errors = append(report.Errors, recErr)
			n.logger.WarnContext(ctx, "skipping upstream record", "index", index, "id", id, "error", err)
			index++
			continue
		}
		index++

		class := n.classifier.Classify(catalog.Record{
			ID:            id,
			Name:          name,
			Description:   r.String("description").OrElse(""),
			ParametersB:   ptrOr(m.ParametersB, 0),
			ContextWindow: float64(ptrOr(m.ContextWindow, 0)),
		})
		vendor := b.vendor(key, vendorName)
		category := b.category(class.Category)
		m.VendorID = vendor.ID
		m.CategoryID = category.ID
		m.Host = vendorName
		m.CapabilityTier = class.Tier
		list = append(list, m)
	}

	latest := LatestVersions(list)
	report.Superseded = len(list) - len(latest)

	return &models.Graph{
		Models:     latest,
		Categories: b.categories,
		Vendors:    b.vendors,
	}
}

// extract maps one raw record onto a Model. index is the record's
// position among allowed records.
func (n *Normalizer) extract(r record, index int) (*models.Model, error) {
	id := index + 1
	m := &models.Model{
		ID:           id,
		SystemName:   r.String("id").OrElse(fmt.Sprintf("unknown-%d", index)),
		DisplayName:  r.String("name", "display_name", "id").OrElse(fmt.Sprintf("Model %d", index)),
		ParametersB:  r.Float("parameters", "parametersB", "params").Ptr(),
		Description:  r.String("description", "desc").OrElse(""),
		Precision:    r.String("precision").OrElse(""),
		IsOpenSource: r.Bool("isOpenSource", "open_source"),
		IsHidden:     r.Bool("isHidden", "hidden"),
	}
	m.ContextWindow = r.Int("context_length", "contextWindow", "max_context", "context_size").Ptr()
	m.TokenLimit = tokenLimit(r).Ptr()
	m.Modality = modality(r).OrElse("")

	date, err := releaseDate(r)
	if err != nil {
		return nil, err
	}
	m.ReleaseDate = date.OrElse("")

	if pricing, ok := r.object("pricing"); ok {
		m.Pricing = &models.Pricing{
			ID:               id,
			ModelID:          id,
			InputText:        pricing.Price("prompt", "input", "inputText"),
			OutputText:       pricing.Price("completion", "output", "outputText"),
			FinetuningInput:  pricing.OptionalPrice("finetuningInput", "fine_tuning_input").Ptr(),
			FinetuningOutput: pricing.OptionalPrice("finetuningOutput", "fine_tuning_output").Ptr(),
			TrainingCost:     pricing.OptionalPrice("trainingCost", "training_cost").Ptr(),
		}
	}
	return m, nil
}

func tokenLimit(r record) Field[int] {
	if top, ok := r.object("top_provider"); ok {
		if f := top.Int("max_completion_tokens"); f.IsPresent() {
			return f
		}
		if _, set := top.first("max_completion_tokens"); set {
			return Absent[int]()
		}
	}
	return r.Int("max_tokens", "tokenLimit", "output_limit")
}

func modality(r record) Field[string] {
	if arch, ok := r.object("architecture"); ok {
		if f := arch.String("modality"); f.IsPresent() {
			return f
		}
	}
	return r.String("modality")
}

// maxDateMillis is the largest representable timestamp magnitude.
const maxDateMillis = 8.64e15

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	time.DateTime,
	"2006-01-02 15:04",
	time.DateOnly,
	"2006-01",
	"2006",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
}

// errInvalidDate marks a release date that is present but unusable.
var errInvalidDate = errors.New("invalid release date")

// releaseDate reads "created" (unix seconds or a date string) and falls
// back to "releaseDate" (unix milliseconds or a date string).
func releaseDate(r record) (Field[string], error) {
	if v, ok := r.first("created"); ok {
		return dateValue(v, time.Second)
	}
	if v, ok := r.first("releaseDate"); ok {
		return dateValue(v, time.Millisecond)
	}
	return Absent[string](), nil
}

func dateValue(v any, unit time.Duration) (Field[string], error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return Present(ts.UTC().Format(time.DateOnly)), nil
			}
		}
		return Absent[string](), fmt.Errorf("%w: %q", errInvalidDate, t)
	case bool, map[string]any, []any:
		return Absent[string](), nil
	}

	f, ok := parseFloat(v)
	if !ok {
		return Absent[string](), fmt.Errorf("%w: %v", errInvalidDate, v)
	}
	millis := f * float64(unit/time.Millisecond)
	if math.Abs(millis) > maxDateMillis {
		return Absent[string](), fmt.Errorf("%w: %v out of range", errInvalidDate, v)
	}
	ts := time.UnixMilli(int64(millis)).UTC()
	return Present(ts.Format(time.DateOnly)), nil
}

func (n *Normalizer) fromCanonical(ctx context.Context, g *models.Graph, report *Report) *models.Graph {
	report.Records = len(g.Models)

	categories := make([]*models.Category, 0, len(g.Categories))
	categoryIDs := make(map[int]bool)
	for _, c := range g.Categories {
		if n.categoryHidden(c) {
			report.Hidden++
			continue
		}
		categories = append(categories, c)
		categoryIDs[c.ID] = true
	}
	vendorIDs := make(map[int]bool)
	for _, v := range g.Vendors {
		vendorIDs[v.ID] = true
	}

	seen := make(map[int]bool)
	visible := make([]*models.Model, 0, len(g.Models))
	for _, m := range g.Models {
		switch {
		case m.IsHidden:
			report.Hidden++
		case seen[m.ID]:
			report.Failed++
			n.logger.WarnContext(ctx, "dropping duplicate model id", "id", m.ID, "model", m.SystemName)
		case !categoryIDs[m.CategoryID] || !vendorIDs[m.VendorID]:
			report.Orphaned++
			n.logger.DebugContext(ctx, "dropping model without visible category or vendor",
				"id", m.ID,
				"model", m.SystemName,
				"category_id", m.CategoryID,
				"vendor_id", m.VendorID,
			)
		default:
			seen[m.ID] = true
			visible = append(visible, m)
		}
	}

	return &models.Graph{
		Models:     visible,
		Categories: categories,
		Vendors:    slices.Clone(g.Vendors),
	}
}

func (n *Normalizer) categoryHidden(c *models.Category) bool {
	if n.hiddenCategory[c.ID] {
		return true
	}
	switch strings.ToLower(c.Name) {
	case "inactive", "hidden":
		return true
	}
	return false
}

func ptrOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
