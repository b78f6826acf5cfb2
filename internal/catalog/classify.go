package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// UnknownVendor is the key used when no vendor can be inferred.
const UnknownVendor = "unknown"

// vendorSeparators are tried in priority order.
var vendorSeparators = []string{"/", ":", "-"}

// Record holds the classification inputs of one upstream model record.
type Record struct {
	ID          string
	Name        string
	Description string

	// ParametersB and ContextWindow are zero when unknown.
	ParametersB   float64
	ContextWindow float64
}

// text is the lower-cased blob keyword rules are matched against.
func (r Record) text() string {
	return strings.ToLower(r.Name + " " + r.Description + " " + r.ID)
}

// Classification is the result of classifying one record.
type Classification struct {
	VendorKey  string                `json:"vendor_key"`
	VendorName string                `json:"vendor_name"`
	Category   string                `json:"category"`
	Tier       models.CapabilityTier `json:"tier"`
}

// Classifier applies a rule table. It is safe for concurrent use.
type Classifier struct {
	rules Rules
}

// New returns a classifier for rules.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// NewDefault returns a classifier using the built-in rules.
func NewDefault() *Classifier {
	return New(DefaultRules())
}

// Rules returns the rule table in use.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify infers vendor, category and tier. It never fails: missing
// inputs fall through to the defaults.
func (c *Classifier) Classify(r Record) Classification {
	key, name := c.Vendor(r.ID, r.Name)
	text := r.text()
	return Classification{
		VendorKey:  key,
		VendorName: name,
		Category:   c.category(text),
		Tier:       c.tier(text, r.ParametersB, r.ContextWindow),
	}
}

// Category returns the category name for r.
func (c *Classifier) Category(r Record) string {
	return c.category(r.text())
}

// Tier returns the capability tier for r.
func (c *Classifier) Tier(r Record) models.CapabilityTier {
	return c.tier(r.text(), r.ParametersB, r.ContextWindow)
}

func (c *Classifier) category(text string) string {
	for _, rule := range c.rules.Categories {
		if containsAny(text, rule.Keywords) {
			return rule.Name
		}
	}
	return DefaultCategory
}

func (c *Classifier) tier(text string, params, context float64) models.CapabilityTier {
	for _, rule := range c.rules.Tiers {
		if rule.matches(text, params, context) {
			return rule.Tier
		}
	}
	if c.rules.DefaultTier != "" {
		return c.rules.DefaultTier
	}
	return models.TierStandard
}

// Vendor returns the vendor key and display name for a record. The
// identifier prefix before the first "/", ":" or "-" wins; otherwise the
// display name is searched for a known vendor.
func (c *Classifier) Vendor(id, name string) (key, display string) {
	key = vendorPrefix(id)
	if key == "" {
		lower := strings.ToLower(name)
		for _, v := range c.rules.KnownVendors {
			if v != "" && strings.Contains(lower, strings.ToLower(v)) {
				key = v
				break
			}
		}
	}
	if key == "" {
		key = UnknownVendor
	}
	return strings.ToLower(key), capitalize(key)
}

func vendorPrefix(id string) string {
	for _, sep := range vendorSeparators {
		if i := strings.Index(id, sep); i >= 0 {
			return id[:i]
		}
	}
	return ""
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
