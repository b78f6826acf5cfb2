package usage

import (
	"fmt"
	"strconv"
)

// Price thresholds outside which a per-million price is probably in the
// wrong unit.
const (
	SuspiciousLowPrice  = 0.001
	SuspiciousHighPrice = 500
)

// FormatPrice formats a per-million-token price for display. The raw value
// is always shown; suspect magnitudes are prefixed with a marker.
func FormatPrice(pricePerMillion *float64) string {
	if pricePerMillion == nil {
		return "N/A"
	}
	p := *pricePerMillion
	switch {
	case p > 0 && p < SuspiciousLowPrice:
		return fmt.Sprintf("ERROR: $%.6f ⚠️", p)
	case p > SuspiciousHighPrice:
		return fmt.Sprintf("CHECK: $%.3f ⚠️", p)
	}
	return fmt.Sprintf("$%.3f", p)
}

// FormatCost formats a computed cost with three decimals.
func FormatCost(cost *float64) string {
	if cost == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.3f", *cost)
}

// FormatTokens formats a token window (128000 -> "128K").
func FormatTokens(tokens *int) string {
	if tokens == nil {
		return "N/A"
	}
	n := *tokens
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1_000)
	}
	return strconv.Itoa(n)
}

// FormatParameters formats a parameter count in billions (1800 -> "1.8T").
func FormatParameters(paramsB *float64) string {
	if paramsB == nil {
		return "N/A"
	}
	if *paramsB >= 1000 {
		return fmt.Sprintf("%.1fT", *paramsB/1000)
	}
	return strconv.FormatFloat(*paramsB, 'f', -1, 64) + "B"
}
