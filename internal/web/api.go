package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/inferprice/internal/export"
	"github.com/haasonsaas/inferprice/internal/listing"
	"github.com/haasonsaas/inferprice/internal/storage"
	"github.com/haasonsaas/inferprice/internal/usage"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// maxEstimateBody bounds POST /api/estimate bodies.
const maxEstimateBody = 1 << 20

// ModelsResponse is the JSON response for /api/models.
type ModelsResponse struct {
	Models     []listing.Row `json:"models"`
	Total      int           `json:"total"`
	Multiplier int           `json:"multiplier"`
}

// EstimateRequest is the body of POST /api/estimate. Empty texts fall
// back to the configured sample.
type EstimateRequest struct {
	InputText  string `json:"inputText"`
	OutputText string `json:"outputText"`
	ModelID    *int   `json:"modelId,omitempty"`
	// Multiplier scales both texts. 0 and 1 leave them unscaled.
	Multiplier int `json:"multiplier,omitempty"`
}

// EstimateResponse reports token counts and per-model costs.
type EstimateResponse struct {
	InputTokens  int            `json:"inputTokens"`
	OutputTokens int            `json:"outputTokens"`
	Models       []ModelEstimate `json:"models"`
}

// ModelEstimate is the cost of the estimate texts on one model.
type ModelEstimate struct {
	ModelID     int      `json:"modelId"`
	SystemName  string   `json:"systemName"`
	DisplayName string   `json:"displayName"`
	InputCost   *float64 `json:"inputCost"`
	OutputCost  *float64 `json:"outputCost"`
	TotalCost   *float64 `json:"totalCost"`
}

// CategoryView is a category with its listed model count.
type CategoryView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Models      int    `json:"models"`
}

// VendorView is a vendor with its listed model count.
type VendorView struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PricingURL    string `json:"pricingUrl,omitempty"`
	ModelsListURL string `json:"modelsListUrl,omitempty"`
	Models        int    `json:"models"`
}

// HealthResponse is the JSON response for /healthz.
type HealthResponse struct {
	Status   string    `json:"status"`
	Models   int       `json:"models"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loadedAt,omitzero"`
	Fallback bool      `json:"fallback,omitempty"`
}

// apiModels handles GET /api/models.
func (h *Handler) apiModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	multiplier := min(max(parseIntParam(r, "multiplier", 1), 1), usage.MaxMultiplier)
	sample := h.sample.Scaled(multiplier)
	q.Sample = &sample

	g, ok := h.graph(w, r)
	if !ok {
		return
	}

	rows := listing.Rows(q.Apply(g.Models), sample)
	h.jsonResponse(w, ModelsResponse{Models: rows, Total: len(rows), Multiplier: multiplier})
}

// apiEstimate handles POST /api/estimate.
func (h *Handler) apiEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EstimateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEstimateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Multiplier < 0 || req.Multiplier > usage.MaxMultiplier {
		h.jsonError(w, fmt.Sprintf("multiplier must be between 0 and %d", usage.MaxMultiplier), http.StatusBadRequest)
		return
	}

	sample := usage.Sample{Input: req.InputText, Output: req.OutputText}
	if sample.Input == "" && sample.Output == "" {
		sample = h.sample
	}
	if req.Multiplier > 1 {
		sample = sample.Scaled(req.Multiplier)
	}

	g, ok := h.graph(w, r)
	if !ok {
		return
	}

	var targets []*models.Model
	if req.ModelID != nil {
		m, found := g.ModelByID(*req.ModelID)
		if !found {
			h.jsonError(w, fmt.Sprintf("model %d not found", *req.ModelID), http.StatusNotFound)
			return
		}
		targets = []*models.Model{m}
	} else {
		targets = listing.FilterModels(g.Models, nil, nil)
	}

	resp := EstimateResponse{
		InputTokens:  usage.EstimateTokenCount(sample.Input),
		OutputTokens: usage.EstimateTokenCount(sample.Output),
		Models:       make([]ModelEstimate, 0, len(targets)),
	}
	for _, m := range targets {
		tc := sample.Cost(m.Pricing.InputPrice(), m.Pricing.OutputPrice())
		resp.Models = append(resp.Models, ModelEstimate{
			ModelID:     m.ID,
			SystemName:  m.SystemName,
			DisplayName: m.DisplayName,
			InputCost:   tc.Input,
			OutputCost:  tc.Output,
			TotalCost:   tc.Total,
		})
	}
	h.jsonResponse(w, resp)
}

// apiCategories handles GET /api/categories.
func (h *Handler) apiCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g, ok := h.graph(w, r)
	if !ok {
		return
	}

	views := make([]CategoryView, 0, len(g.Categories))
	for _, c := range g.Categories {
		n := len(listing.FilterModels(c.Models, nil, nil))
		if n == 0 {
			continue
		}
		views = append(views, CategoryView{ID: c.ID, Name: c.Name, Description: c.Description, Models: n})
	}
	h.jsonResponse(w, views)
}

// apiVendors handles GET /api/vendors.
func (h *Handler) apiVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g, ok := h.graph(w, r)
	if !ok {
		return
	}

	views := make([]VendorView, 0, len(g.Vendors))
	for _, v := range g.Vendors {
		n := len(listing.FilterModels(v.Models, nil, nil))
		if n == 0 {
			continue
		}
		views = append(views, VendorView{
			ID:            v.ID,
			Name:          v.Name,
			PricingURL:    v.PricingURL,
			ModelsListURL: v.ModelsListURL,
			Models:        n,
		})
	}
	h.jsonResponse(w, views)
}

// apiExport handles GET /api/export.csv and /api/export.json. The same
// filters as /api/models apply.
func (h *Handler) apiExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := export.ParseFormat(strings.TrimPrefix(r.URL.Path, "/api/export."))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, ok := h.graph(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, export.PrepareRows(q.Apply(g.Models))); err != nil {
		h.config.Logger.ErrorContext(r.Context(), "export failed", "format", format, "error", err)
		h.jsonError(w, "Export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.config.Logger.DebugContext(r.Context(), "write export", "error", err)
	}
}

// apiStatus handles GET /api/status.
func (h *Handler) apiStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.Graphs == nil {
		h.jsonError(w, "Pricing data unavailable", http.StatusServiceUnavailable)
		return
	}
	h.jsonResponse(w, h.config.Graphs.Status())
}

// handleHealth reports 200 once a graph is loaded and 503 before.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "unavailable"}
	if h.config.Graphs != nil {
		st := h.config.Graphs.Status()
		if st.Loaded {
			resp = HealthResponse{
				Status:   "ok",
				Models:   st.Models,
				Source:   st.Source,
				LoadedAt: st.LoadedAt,
				Fallback: st.Fallback,
			}
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// graph loads the current graph or writes an error response.
func (h *Handler) graph(w http.ResponseWriter, r *http.Request) (*models.Graph, bool) {
	if h.config.Graphs == nil {
		h.jsonError(w, "Pricing data unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	g, err := h.config.Graphs.Graph(r.Context())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.config.Logger.ErrorContext(r.Context(), "load pricing graph", "error", err)
		}
		h.jsonError(w, "Pricing data unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return g, true
}

// parseQuery reads the shared filter and sort parameters.
func parseQuery(r *http.Request) (listing.Query, error) {
	values := r.URL.Query()
	q := listing.Query{
		Categories: listParam(values["category"]),
		Vendors:    listParam(values["vendor"]),
	}

	bucket, ok := listing.ParseBucket(values.Get("context"))
	if !ok {
		return q, fmt.Errorf("unknown context bucket %q", values.Get("context"))
	}
	q.Context = bucket

	if key := values.Get("sort"); key != "" {
		q.Sort = listing.SortKey(key)
		if !q.Sort.Valid() {
			return q, fmt.Errorf("unknown sort key %q", key)
		}
	}

	switch dir := strings.ToLower(values.Get("dir")); dir {
	case "", string(listing.Asc):
		q.Direction = listing.Asc
	case string(listing.Desc):
		q.Direction = listing.Desc
	default:
		return q, fmt.Errorf("unknown sort direction %q", dir)
	}
	return q, nil
}

// listParam accepts repeated and comma-separated values.
func listParam(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// jsonResponse writes a JSON response.
func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
