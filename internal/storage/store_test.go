package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/inferprice/pkg/models"
)

func testGraph() *models.Graph {
	g := &models.Graph{
		Categories: []*models.Category{
			{ID: 2, Name: "Code Generation", Description: "Programming"},
			{ID: 1, Name: "General"},
		},
		Vendors: []*models.Vendor{
			{ID: 1, Name: "Anthropic", PricingURL: "https://www.anthropic.com/pricing", ModelsListURL: "https://docs.anthropic.com/models"},
			{ID: 2, Name: "Meta"},
		},
		Models: []*models.Model{
			{
				ID: 1, SystemName: "anthropic/claude-3-opus", DisplayName: "Claude 3 Opus",
				CategoryID: 1, VendorID: 1, Host: "Anthropic", CapabilityTier: models.TierFrontier,
				ContextWindow: models.Int(200000), TokenLimit: models.Int(4096), ReleaseDate: "2024-03-04",
				Pricing: &models.Pricing{ID: 1, ModelID: 1, InputText: 15, OutputText: 75},
			},
			{
				ID: 2, SystemName: "meta/llama-3-70b", DisplayName: "Llama 3 70B",
				CategoryID: 2, VendorID: 2, ParametersB: models.Float(70), IsOpenSource: true,
				Pricing: &models.Pricing{
					ID: 2, ModelID: 2, InputText: 0.0005, OutputText: 0.8,
					FinetuningInput: models.Float(3), Flags: []string{"inputText:suspiciously_low"},
				},
			},
			{
				ID: 3, SystemName: "meta/llama-guard", DisplayName: "Llama Guard",
				CategoryID: 1, VendorID: 2, IsHidden: true,
			},
		},
	}
	g.Link()
	return g
}

// assertGraphEqual compares the persisted fields of two graphs.
func assertGraphEqual(t *testing.T, got, want *models.Graph) {
	t.Helper()
	if len(got.Models) != len(want.Models) || len(got.Categories) != len(want.Categories) || len(got.Vendors) != len(want.Vendors) {
		t.Fatalf("graph sizes = %d/%d/%d, want %d/%d/%d",
			len(got.Models), len(got.Categories), len(got.Vendors),
			len(want.Models), len(want.Categories), len(want.Vendors))
	}
	for i, c := range want.Categories {
		g := got.Categories[i]
		if g.ID != c.ID || g.Name != c.Name || g.Description != c.Description {
			t.Errorf("category %d = %+v, want %+v", i, g, c)
		}
	}
	for i, v := range want.Vendors {
		g := got.Vendors[i]
		if g.ID != v.ID || g.Name != v.Name || g.PricingURL != v.PricingURL || g.ModelsListURL != v.ModelsListURL {
			t.Errorf("vendor %d = %+v, want %+v", i, g, v)
		}
	}
	for i, m := range want.Models {
		g := got.Models[i]
		if g.ID != m.ID || g.SystemName != m.SystemName || g.DisplayName != m.DisplayName ||
			g.CategoryID != m.CategoryID || g.VendorID != m.VendorID || g.CapabilityTier != m.CapabilityTier ||
			g.IsOpenSource != m.IsOpenSource || g.IsHidden != m.IsHidden || g.ReleaseDate != m.ReleaseDate {
			t.Errorf("model %d = %+v, want %+v", i, g, m)
		}
		if !equalPtr(g.ParametersB, m.ParametersB) || !equalPtr(g.ContextWindow, m.ContextWindow) || !equalPtr(g.TokenLimit, m.TokenLimit) {
			t.Errorf("model %d optional fields differ", m.ID)
		}
		if (g.Pricing == nil) != (m.Pricing == nil) {
			t.Fatalf("model %d pricing presence differs", m.ID)
		}
		if m.Pricing != nil {
			gp, wp := g.Pricing, m.Pricing
			if gp.ID != wp.ID || gp.InputText != wp.InputText || gp.OutputText != wp.OutputText ||
				!equalPtr(gp.FinetuningInput, wp.FinetuningInput) || len(gp.Flags) != len(wp.Flags) {
				t.Errorf("model %d pricing = %+v, want %+v", m.ID, gp, wp)
			}
		}
		if g.Category == nil || g.Vendor == nil {
			t.Errorf("model %d not linked", m.ID)
		}
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default is memory", Config{}, false},
		{"memory", Config{Driver: "memory"}, false},
		{"file", Config{Driver: "file", Dir: filepath.Join(t.TempDir(), "store")}, false},
		{"file without dir", Config{Driver: "file"}, true},
		{"sqlite", Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "prices.db")}, false},
		{"sqlite without path", Config{Driver: "sqlite"}, true},
		{"postgres without dsn", Config{Driver: "postgres"}, true},
		{"unknown", Config{Driver: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				_ = store.Close()
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() on empty store error = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, &models.Graph{}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Save(empty) error = %v, want ErrEmpty", err)
	}

	want := testGraph()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want.Models[0].Pricing.InputText = 1

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Models[0].Pricing.InputText != 15 {
		t.Fatal("store shares the saved graph with the caller")
	}
	got.Models[0].DisplayName = "changed"

	again, _ := store.Load(ctx)
	if again.Models[0].DisplayName != "Claude 3 Opus" {
		t.Fatal("store shares the loaded graph with the caller")
	}
	assertGraphEqual(t, again, testGraph())
}
