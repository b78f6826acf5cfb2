package format

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LocaleCompare orders two display strings the way a human-facing table
// would, returning -1, 0 or 1. Case is significant only when the strings
// are otherwise equal.
func LocaleCompare(a, b string) int {
	// collate.Collator is not safe for concurrent use.
	c := collate.New(language.English)
	return c.CompareString(a, b)
}

// Collator returns a reusable comparator for sorting many strings on one
// goroutine.
func Collator() func(a, b string) int {
	c := collate.New(language.English)
	return c.CompareString
}
