package usage

// CalculateCost returns the cost of text at pricePerMillion dollars per
// million tokens. A nil price yields a nil cost.
func CalculateCost(text string, pricePerMillion *float64) *float64 {
	if pricePerMillion == nil {
		return nil
	}
	cost := (*pricePerMillion / 1_000_000) * float64(EstimateTokenCount(text))
	return &cost
}

// TotalCost is the cost of one input/output exchange. Total is set only
// when both legs are priced.
type TotalCost struct {
	Total  *float64 `json:"total"`
	Input  *float64 `json:"input"`
	Output *float64 `json:"output"`
}

// CalculateTotalCost prices both legs independently and sums them.
func CalculateTotalCost(inputText, outputText string, inputPrice, outputPrice *float64) TotalCost {
	tc := TotalCost{
		Input:  CalculateCost(inputText, inputPrice),
		Output: CalculateCost(outputText, outputPrice),
	}
	if tc.Input != nil && tc.Output != nil {
		total := *tc.Input + *tc.Output
		tc.Total = &total
	}
	return tc
}
