// Package listing filters and sorts canonical model lists for display.
// Every function returns a new slice and leaves its input untouched.
package listing

import (
	"slices"
	"strings"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// selfModerated marks duplicate listings that are never shown.
const selfModerated = "self-moderated"

// ContextBucket groups models by context window size.
type ContextBucket string

const (
	BucketAll    ContextBucket = "all"
	BucketSmall  ContextBucket = "small"
	BucketMedium ContextBucket = "medium"
	BucketLarge  ContextBucket = "large"
	BucketXLarge ContextBucket = "xlarge"
)

// Buckets lists every context bucket.
var Buckets = []ContextBucket{BucketAll, BucketSmall, BucketMedium, BucketLarge, BucketXLarge}

// ParseBucket parses a bucket name. The empty string means BucketAll.
func ParseBucket(s string) (ContextBucket, bool) {
	b := ContextBucket(strings.ToLower(strings.TrimSpace(s)))
	if b == "" {
		return BucketAll, true
	}
	return b, slices.Contains(Buckets, b)
}

// Contains reports whether a context window falls in the bucket. A nil
// window counts as zero.
func (b ContextBucket) Contains(window *int) bool {
	n := 0
	if window != nil {
		n = *window
	}
	switch b {
	case BucketAll, "":
		return true
	case BucketSmall:
		return n < 32_000
	case BucketMedium:
		return n >= 32_000 && n < 128_000
	case BucketLarge:
		return n >= 128_000 && n < 1_000_000
	case BucketXLarge:
		return n >= 1_000_000
	}
	return false
}

// FilterModels keeps models whose category name is in categories and
// whose vendor name is in vendors. An empty list does not filter.
// Self-moderated listings are always dropped.
func FilterModels(list []*models.Model, categories, vendors []string) []*models.Model {
	out := make([]*models.Model, 0, len(list))
	for _, m := range list {
		if IsSelfModerated(m) {
			continue
		}
		if len(categories) > 0 && (m.Category == nil || !slices.Contains(categories, m.Category.Name)) {
			continue
		}
		if len(vendors) > 0 && (m.Vendor == nil || !slices.Contains(vendors, m.Vendor.Name)) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FilterByContextWindow keeps models in the given bucket.
func FilterByContextWindow(list []*models.Model, bucket ContextBucket) []*models.Model {
	out := make([]*models.Model, 0, len(list))
	for _, m := range list {
		if bucket.Contains(m.ContextWindow) {
			out = append(out, m)
		}
	}
	return out
}

// IsSelfModerated reports whether a model is a self-moderated listing.
func IsSelfModerated(m *models.Model) bool {
	return strings.Contains(strings.ToLower(m.SystemName), selfModerated) ||
		strings.Contains(strings.ToLower(m.DisplayName), selfModerated)
}
