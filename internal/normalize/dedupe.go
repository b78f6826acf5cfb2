package normalize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/inferprice/internal/format"
	"github.com/haasonsaas/inferprice/pkg/models"
)

var (
	trailingVersion = regexp.MustCompile(`(?i)\s*(v?\d+\.?\d*\.?\d*)\s*$`)
	trailingKind    = regexp.MustCompile(`(?i)\s*-\s*(preview|beta|alpha|turbo|instruct)\s*$`)
	trailingParens  = regexp.MustCompile(`\s*\(.*\)\s*$`)
	trailingFree    = regexp.MustCompile(`(?i)\s*:\s*free\s*$`)

	previewMarker = regexp.MustCompile(`(?i)\b(preview|beta|alpha|experimental|dev|snapshot|nightly|unstable|test)\b`)
	versionNumber = regexp.MustCompile(`(\d+\.?\d*\.?\d*)`)
)

// FamilyName returns the version-family key of a display name: version
// numbers and hyphenated release-stage suffixes are stripped and the result
// lowered. "Llama 3.1 8B Instruct" and "Llama 3.1 8B" stay separate
// families while "GPT-4-Turbo" joins "GPT-4".
func FamilyName(displayName string) string {
	name := strings.ToLower(displayName)
	name = trailingVersion.ReplaceAllString(name, "")
	name = trailingKind.ReplaceAllString(name, "")
	name = trailingParens.ReplaceAllString(name, "")
	name = trailingFree.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// IsPreview reports whether a model is named like a pre-release build.
func IsPreview(m *models.Model) bool {
	return previewMarker.MatchString(m.DisplayName + " " + m.SystemName)
}

// LatestVersions keeps, for every vendor and version family, the newest
// preview-like model and the newest stable model. Vendors and families
// keep their first-seen order.
func LatestVersions(list []*models.Model) []*models.Model {
	var vendorOrder []int
	byVendor := make(map[int][]*models.Model)
	for _, m := range list {
		if _, ok := byVendor[m.VendorID]; !ok {
			vendorOrder = append(vendorOrder, m.VendorID)
		}
		byVendor[m.VendorID] = append(byVendor[m.VendorID], m)
	}

	out := make([]*models.Model, 0, len(list))
	for _, vendorID := range vendorOrder {
		var familyOrder []string
		families := make(map[string][]*models.Model)
		for _, m := range byVendor[vendorID] {
			key := FamilyName(m.DisplayName)
			if _, ok := families[key]; !ok {
				familyOrder = append(familyOrder, key)
			}
			families[key] = append(families[key], m)
		}

		for _, key := range familyOrder {
			members := slices.Clone(families[key])
			slices.SortStableFunc(members, compareFamilyMembers)

			var preview, stable *models.Model
			for _, m := range members {
				if IsPreview(m) {
					if preview == nil {
						preview = m
					}
				} else if stable == nil {
					stable = m
				}
			}
			if preview != nil {
				out = append(out, preview)
			}
			if stable != nil {
				out = append(out, stable)
			}
		}
	}
	return out
}

// compareFamilyMembers orders preview-like models first, then newest
// release date, then highest embedded version number.
func compareFamilyMembers(a, b *models.Model) int {
	ap, bp := IsPreview(a), IsPreview(b)
	switch {
	case ap && !bp:
		return -1
	case !ap && bp:
		return 1
	}
	if a.ReleaseDate != "" && b.ReleaseDate != "" {
		return compareDatesDesc(a.ReleaseDate, b.ReleaseDate)
	}
	return compareVersionsDesc(a.DisplayName, b.DisplayName)
}

func compareDatesDesc(a, b string) int {
	ta, errA := time.Parse(time.DateOnly, a)
	tb, errB := time.Parse(time.DateOnly, b)
	if errA != nil || errB != nil {
		return strings.Compare(b, a)
	}
	return tb.Compare(ta)
}

func compareVersionsDesc(a, b string) int {
	va, okA := leadingVersion(a)
	vb, okB := leadingVersion(b)
	if okA && okB {
		switch {
		case vb > va:
			return 1
		case vb < va:
			return -1
		}
		return 0
	}
	return format.LocaleCompare(b, a)
}

// leadingVersion parses the first numeric fragment of name, so
// "Gemini 1.5.2 Pro" yields 1.5.
func leadingVersion(name string) (float64, bool) {
	m := versionNumber.FindString(name)
	if m == "" {
		return 0, false
	}
	if i := strings.Index(m, "."); i >= 0 {
		if j := strings.Index(m[i+1:], "."); j >= 0 {
			m = m[:i+1+j]
		}
	}
	m = strings.TrimSuffix(m, ".")
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}
