// Package usage provides token count estimation, cost calculation, and formatting.
package usage

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var multiplierPattern = regexp.MustCompile(`^\[TOKEN_MULTIPLIER:(\d+)\]`)

const specialChars = `.,!?;:'"()[]{}`

// Estimate is the breakdown behind a token count estimate.
type Estimate struct {
	Words        int `json:"words"`
	SpecialChars int `json:"special_chars"`
	Digits       int `json:"digits"`
	Characters   int `json:"characters"`
	Multiplier   int `json:"multiplier"`
	Tokens       int `json:"tokens"`
}

// EstimateTokenCount returns a heuristic token count for text. A leading
// [TOKEN_MULTIPLIER:N] marker is stripped and the result multiplied by N.
// Products that do not fit an int saturate at math.MaxInt.
func EstimateTokenCount(text string) int {
	return EstimateTokens(text).Tokens
}

// EstimateTokens is EstimateTokenCount with the intermediate counts exposed.
func EstimateTokens(text string) Estimate {
	body, multiplier := splitMultiplier(text)
	est := Estimate{Multiplier: multiplier}
	if body == "" {
		return est
	}

	est.Words = len(strings.Fields(body))
	for _, r := range body {
		switch {
		case r >= '0' && r <= '9':
			est.Digits++
		case strings.ContainsRune(specialChars, r):
			est.SpecialChars++
		}
	}
	est.Characters = utf8.RuneCountInString(body)

	wordBased := int(math.Ceil(float64(est.Words)*1.3 + float64(est.SpecialChars)*0.5 + float64(est.Digits)*0.3))
	charBased := int(math.Ceil(float64(est.Characters) / 4))
	est.Tokens = saturatingMul(max(wordBased, charBased), multiplier)
	return est
}

// saturatingMul returns a*b for non-negative operands, capped at
// math.MaxInt.
func saturatingMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

// splitMultiplier strips a leading multiplier marker. Absent or
// unparseable markers yield multiplier 1 and leave the text untouched.
func splitMultiplier(text string) (string, int) {
	loc := multiplierPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, 1
	}
	n, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil {
		return text, 1
	}
	return text[loc[1]:], n
}

// WithMultiplier prefixes text with a multiplier marker. Values below 2
// return text unchanged.
func WithMultiplier(text string, n int) string {
	if n <= 1 {
		return text
	}
	return "[TOKEN_MULTIPLIER:" + strconv.Itoa(n) + "]" + text
}
