// Package format provides display helpers shared by the CLI and HTTP layers.
package format

import (
	"fmt"
	"strings"
	"time"
)

// Elapsed formats a load or fetch duration: "850ms" below one second,
// seconds with up to two decimals otherwise.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return trimTrailingZeros(fmt.Sprintf("%.2f", d.Seconds())) + "s"
}

// trimTrailingZeros turns "1.50" into "1.5" and "2.00" into "2".
func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
