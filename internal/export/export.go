// Package export writes model listings as CSV or JSON downloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Default download names.
const (
	DefaultCSVName  = "ai_models_pricing.csv"
	DefaultJSONName = "ai_models_pricing.json"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv or json)", s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename returns the default download name for the format.
func (f Format) Filename() string {
	if f == FormatCSV {
		return DefaultCSVName
	}
	return DefaultJSONName
}

// Row is one exported model. Missing names, numbers and prices export as
// their zero values.
type Row struct {
	SystemName    string   `json:"systemName"`
	DisplayName   string   `json:"displayName"`
	CategoryName  string   `json:"categoryName"`
	ParametersB   *float64 `json:"parametersB"`
	InputText     float64  `json:"inputText"`
	OutputText    float64  `json:"outputText"`
	VendorName    string   `json:"vendorName"`
	ContextWindow int      `json:"contextWindow"`
	TokenLimit    int      `json:"tokenLimit"`
	Precision     string   `json:"precision"`
	IsOpenSource  bool     `json:"isOpenSource"`
	IsHidden      bool     `json:"isHidden"`
}

// Header is the CSV column order.
var Header = []string{
	"systemName",
	"displayName",
	"categoryName",
	"parametersB",
	"inputText",
	"outputText",
	"vendorName",
	"contextWindow",
	"tokenLimit",
	"precision",
	"isOpenSource",
	"isHidden",
}

// PrepareRows joins each model with its category and vendor names.
// Models must be linked (see models.Graph.Link).
func PrepareRows(list []*models.Model) []Row {
	rows := make([]Row, 0, len(list))
	for _, m := range list {
		r := Row{
			SystemName:   m.SystemName,
			DisplayName:  m.DisplayName,
			ParametersB:  m.ParametersB,
			Precision:    m.Precision,
			IsOpenSource: m.IsOpenSource,
			IsHidden:     m.IsHidden,
		}
		if m.Category != nil {
			r.CategoryName = m.Category.Name
		}
		if m.Vendor != nil {
			r.VendorName = m.Vendor.Name
		}
		if m.Pricing != nil {
			r.InputText = m.Pricing.InputText
			r.OutputText = m.Pricing.OutputText
		}
		if m.ContextWindow != nil {
			r.ContextWindow = *m.ContextWindow
		}
		if m.TokenLimit != nil {
			r.TokenLimit = *m.TokenLimit
		}
		rows = append(rows, r)
	}
	return rows
}

func (r Row) record() []string {
	params := ""
	if r.ParametersB != nil {
		params = formatFloat(*r.ParametersB)
	}
	return []string{
		r.SystemName,
		r.DisplayName,
		r.CategoryName,
		params,
		formatFloat(r.InputText),
		formatFloat(r.OutputText),
		r.VendorName,
		strconv.Itoa(r.ContextWindow),
		strconv.Itoa(r.TokenLimit),
		r.Precision,
		strconv.FormatBool(r.IsOpenSource),
		strconv.FormatBool(r.IsHidden),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes rows with a header line. No rows writes nothing.
func WriteCSV(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes rows as a two-space indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// Write dispatches on format.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatJSON:
		return WriteJSON(w, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}
