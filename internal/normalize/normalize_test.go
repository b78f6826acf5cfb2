package normalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/inferprice/pkg/models"
)

func testNormalizer(opts Options) *Normalizer {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return New(opts)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestNormalize_ConvertsPerTokenPricing(t *testing.T) {
	payload := `[{"id":"anthropic/claude-3-opus","name":"Claude 3 Opus","pricing":{"prompt":0.000015,"completion":0.000075}}]`

	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if report.Shape != ShapeArray || report.Accepted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	m := g.Models[0]
	if m.Pricing == nil {
		t.Fatal("pricing should be set")
	}
	if !approx(m.Pricing.InputText, 15) || !approx(m.Pricing.OutputText, 75) {
		t.Errorf("pricing = %v/%v, want 15/75", m.Pricing.InputText, m.Pricing.OutputText)
	}
	if m.Pricing.ID != 1 || m.Pricing.ModelID != 1 {
		t.Errorf("pricing ids = %d/%d, want 1/1", m.Pricing.ID, m.Pricing.ModelID)
	}
	if m.ID != 1 || m.SystemName != "anthropic/claude-3-opus" || m.DisplayName != "Claude 3 Opus" {
		t.Errorf("identity = %d %q %q", m.ID, m.SystemName, m.DisplayName)
	}
	if m.Host != "Anthropic" || m.Vendor == nil || m.Vendor.Name != "Anthropic" {
		t.Errorf("vendor not linked: host=%q vendor=%+v", m.Host, m.Vendor)
	}
	if m.Vendor.PricingURL != "https://anthropic.com/pricing" || m.Vendor.ModelsListURL != "https://anthropic.com/models" {
		t.Errorf("vendor urls = %q %q", m.Vendor.PricingURL, m.Vendor.ModelsListURL)
	}
	if m.Category == nil || m.Category.Name != "General" {
		t.Errorf("category = %+v, want General", m.Category)
	}
	if m.Category.Description != "General models and applications" {
		t.Errorf("category description = %q", m.Category.Description)
	}
	if m.CapabilityTier != models.TierFrontier {
		t.Errorf("tier = %q, want Frontier", m.CapabilityTier)
	}
	if m.ParametersB != nil || m.ContextWindow != nil || m.ReleaseDate != "" {
		t.Errorf("missing fields should stay empty: %+v", m)
	}
}

func TestNormalize_OpenRouterListing(t *testing.T) {
	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), readFixture(t, "openrouter.json"))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}

	if report.Shape != ShapeWrapped || report.Path != "data" {
		t.Errorf("shape = %q path = %q", report.Shape, report.Path)
	}
	if report.Records != 8 || report.Filtered != 2 || report.Failed != 1 || report.Accepted != 5 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].ID != "deepseek/deepseek-chat" {
		t.Errorf("record errors = %v", report.Errors)
	}

	var gotIDs []int
	var gotNames []string
	for _, m := range g.Models {
		gotIDs = append(gotIDs, m.ID)
		gotNames = append(gotNames, m.SystemName)
	}
	wantNames := []string{
		"anthropic/claude-3-opus",
		"google/gemini-1.5-pro",
		"google/gemini-1.5-pro-preview",
		"meta/llama-3.1-8b-instruct",
		"deepseek/deepseek-r1",
	}
	wantIDs := []int{1, 2, 3, 4, 6}
	for i := range wantNames {
		if i >= len(gotNames) || gotNames[i] != wantNames[i] || gotIDs[i] != wantIDs[i] {
			t.Fatalf("models = %v %v, want %v %v", gotNames, gotIDs, wantNames, wantIDs)
		}
	}

	var vendorNames []string
	for _, v := range g.Vendors {
		vendorNames = append(vendorNames, v.Name)
	}
	if len(vendorNames) != 4 || vendorNames[0] != "Anthropic" || vendorNames[3] != "Deepseek" {
		t.Errorf("vendors = %v", vendorNames)
	}
	var categoryNames []string
	for _, c := range g.Categories {
		categoryNames = append(categoryNames, c.Name)
	}
	if len(categoryNames) != 3 || categoryNames[0] != "General" || categoryNames[1] != "Conversational" || categoryNames[2] != "Reasoning" {
		t.Errorf("categories = %v", categoryNames)
	}

	opus := g.Models[0]
	if opus.ReleaseDate != "2024-03-05" {
		t.Errorf("opus release date = %q", opus.ReleaseDate)
	}
	if opus.ContextWindow == nil || *opus.ContextWindow != 200000 {
		t.Errorf("opus context = %v", opus.ContextWindow)
	}
	if opus.TokenLimit == nil || *opus.TokenLimit != 4096 {
		t.Errorf("opus token limit = %v", opus.TokenLimit)
	}
	if opus.Modality != "text+image->text" {
		t.Errorf("opus modality = %q", opus.Modality)
	}

	llama := g.Models[3]
	if llama.ParametersB == nil || *llama.ParametersB != 8 {
		t.Errorf("llama parameters = %v", llama.ParametersB)
	}
	if llama.ContextWindow == nil || *llama.ContextWindow != 131072 {
		t.Errorf("llama context = %v", llama.ContextWindow)
	}
	if !llama.IsOpenSource {
		t.Error("llama should be open source")
	}
	if llama.Category.Name != "Conversational" || llama.CapabilityTier != models.TierSpecialized {
		t.Errorf("llama classified as %q/%q", llama.Category.Name, llama.CapabilityTier)
	}

	google := g.Models[1].Vendor
	if google == nil || len(google.Models) != 2 {
		t.Errorf("google vendor models not linked: %+v", google)
	}
	general := g.Categories[0]
	if len(general.Models) != 3 {
		t.Errorf("General has %d models, want 3", len(general.Models))
	}
}

func TestNormalize_AllowList(t *testing.T) {
	payload := `{"models": [
		{"id": "openai/gpt-4o", "name": "GPT-4o"},
		{"id": "anthropic/claude-3-haiku", "name": "Claude 3 Haiku"},
		{"id": "anthropic/claude-3-sonnet", "name": "Claude 3 Sonnet"}
	]}`

	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if report.Filtered != 1 || len(g.Models) != 2 {
		t.Fatalf("report = %+v models = %d", report, len(g.Models))
	}
	if g.Models[0].ID != 1 || g.Models[1].ID != 2 {
		t.Errorf("ids should count allowed records only: %d %d", g.Models[0].ID, g.Models[1].ID)
	}
	if g.Models[0].Pricing != nil {
		t.Error("record without pricing object should have no pricing")
	}

	g, _, err = testNormalizer(Options{AllowedVendors: []string{AllVendors}}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if len(g.Models) != 3 {
		t.Errorf("wildcard allow-list kept %d models, want 3", len(g.Models))
	}

	g, _, err = testNormalizer(Options{AllowedVendors: []string{" OpenAI "}}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if len(g.Models) != 1 || g.Models[0].SystemName != "openai/gpt-4o" {
		t.Errorf("custom allow-list kept %v", names(g.Models))
	}
}

func TestNormalize_SkipsMalformedRecords(t *testing.T) {
	payload := `[
		42,
		{"id": "anthropic/claude-3-haiku", "name": "Claude 3 Haiku", "created": "soon"},
		{"id": "anthropic/claude-3-opus", "name": "Claude 3 Opus"}
	]`

	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if report.Failed != 2 || len(g.Models) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if g.Models[0].ID != 2 {
		t.Errorf("surviving model id = %d, want 2", g.Models[0].ID)
	}
	if len(g.Vendors) != 1 || len(g.Categories) != 1 {
		t.Errorf("failed records should not intern vendors or categories: %d/%d", len(g.Vendors), len(g.Categories))
	}
}

func TestNormalize_DeduplicatesFamilies(t *testing.T) {
	payload := `[
		{"id": "google/gemini-1.5-pro", "name": "Gemini 1.5 Pro"},
		{"id": "google/gemini-1.5-pro-preview", "name": "Gemini 1.5 Pro Preview"},
		{"id": "google/gemini-1.0-pro", "name": "Gemini 1.0 Pro"},
		{"id": "google/gemini-1.5-pro-v1", "name": "Gemini 1.5 Pro v1.0"}
	]`

	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	got := names(g.Models)
	want := []string{"Gemini 1.5 Pro", "Gemini 1.5 Pro Preview", "Gemini 1.0 Pro"}
	if len(got) != len(want) {
		t.Fatalf("models = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("models[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if report.Superseded != 1 {
		t.Errorf("Superseded = %d, want 1", report.Superseded)
	}
	if n := len(g.Vendors[0].Models); n != 3 {
		t.Errorf("vendor should list deduplicated models only, got %d", n)
	}
}

func TestNormalize_KeepsSpaceSeparatedSiblings(t *testing.T) {
	payload := `[
		{"id": "meta-llama/llama-3.1-8b", "name": "Meta: Llama 3.1 8B", "created": "2024-07-23 12:00:00"},
		{"id": "meta-llama/llama-3.1-8b-instruct", "name": "Meta: Llama 3.1 8B Instruct", "created": "2024-07-23 12:00"}
	]`

	g, report, err := testNormalizer(Options{AllowedVendors: []string{AllVendors}}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if report.Failed != 0 || report.Superseded != 0 {
		t.Errorf("report = %+v", report)
	}
	got := names(g.Models)
	if len(got) != 2 || got[0] != "Meta: Llama 3.1 8B" || got[1] != "Meta: Llama 3.1 8B Instruct" {
		t.Fatalf("models = %v", got)
	}
	for _, m := range g.Models {
		if m.ReleaseDate != "2024-07-23" {
			t.Errorf("%s release date = %q", m.DisplayName, m.ReleaseDate)
		}
	}
}

func TestNormalize_FlagsSuspiciousPrices(t *testing.T) {
	payload := `[{"id": "anthropic/claude-3-haiku", "name": "Claude 3 Haiku", "pricing": {"prompt": "0.0000000002", "completion": "0.00125"}}]`

	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	p := g.Models[0].Pricing
	if !approx(p.InputText, 0.0002) || !approx(p.OutputText, 1250) {
		t.Errorf("prices must not be corrected: %v/%v", p.InputText, p.OutputText)
	}
	if len(report.Anomalies) != 2 {
		t.Fatalf("anomalies = %v", report.Anomalies)
	}
	if len(p.Flags) != 2 || p.Flags[0] != "inputText:suspiciously_low" || p.Flags[1] != "outputText:suspiciously_high" {
		t.Errorf("flags = %v", p.Flags)
	}
}

func TestNormalize_Canonical(t *testing.T) {
	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), readFixture(t, "canonical.json"))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if report.Shape != ShapeCanonical {
		t.Errorf("shape = %q", report.Shape)
	}
	if report.Hidden != 3 || report.Orphaned != 2 || report.Accepted != 2 {
		t.Errorf("report = %+v", report)
	}

	if len(g.Models) != 2 || g.Models[0].ID != 1 || g.Models[1].ID != 3 {
		t.Fatalf("visible models = %v", names(g.Models))
	}
	if len(g.Categories) != 2 {
		t.Errorf("categories = %d, want 2", len(g.Categories))
	}
	if len(g.Vendors) != 2 || len(g.Vendors[1].Models) != 1 {
		t.Errorf("vendors not relinked: %+v", g.Vendors)
	}
	if g.Models[1].Category == nil || g.Models[1].Category.Name != "Multimodal" {
		t.Errorf("model 3 category = %+v", g.Models[1].Category)
	}
	if g.Models[1].CapabilityTier != "" {
		t.Error("canonical payloads are not reclassified")
	}
	if flags := g.Models[1].Pricing.Flags; len(flags) != 1 || flags[0] != "inputText:verify" {
		t.Errorf("google 37.5 flags = %v", flags)
	}
	if g.Models[1].Pricing.InputText != 37.5 || g.Models[1].Pricing.OutputText != 150 {
		t.Errorf("canonical prices must pass through unchanged")
	}
}

func TestNormalize_CustomHiddenCategories(t *testing.T) {
	g, _, err := testNormalizer(Options{HiddenCategoryIDs: []int{}}).NormalizeJSON(context.Background(), readFixture(t, "canonical.json"))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if len(g.Categories) != 3 {
		t.Errorf("with no hidden ids, only named-inactive categories drop: got %d", len(g.Categories))
	}
	if len(g.Models) != 3 {
		t.Errorf("model in category 6 should now be visible: got %v", names(g.Models))
	}
}

func TestNormalize_DataFormatError(t *testing.T) {
	_, _, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(`{"status": "ok"}`))
	var dfe *DataFormatError
	if !errors.As(err, &dfe) || !errors.Is(err, ErrNoModelArray) {
		t.Fatalf("error = %v, want DataFormatError wrapping ErrNoModelArray", err)
	}
}

func TestNormalize_EmptyArray(t *testing.T) {
	g, report, err := testNormalizer(Options{}).NormalizeJSON(context.Background(), []byte(`[]`))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	if len(g.Models) != 0 || len(g.Vendors) != 0 || report.Records != 0 {
		t.Errorf("empty payload should yield an empty graph: %+v", report)
	}
}
