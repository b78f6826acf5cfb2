// Package markdown renders tabular CLI output as aligned text, markdown
// pipe tables or bullet lists.
package markdown

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TableMode specifies how a table is rendered.
type TableMode string

const (
	// TableModeText pads columns with spaces for terminals.
	TableModeText TableMode = "text"
	// TableModeMarkdown emits a GitHub-style pipe table.
	TableModeMarkdown TableMode = "markdown"
	// TableModeBullets emits one bullet line per row.
	TableModeBullets TableMode = "bullets"
)

// IsValidTableMode checks if a mode string is valid.
func IsValidTableMode(mode string) bool {
	switch TableMode(strings.ToLower(mode)) {
	case TableModeText, TableModeMarkdown, TableModeBullets, "":
		return true
	default:
		return false
	}
}

// ParseTableMode parses a table mode string, returning the default if invalid.
func ParseTableMode(mode string, defaultMode TableMode) TableMode {
	m := TableMode(strings.ToLower(mode))
	switch m {
	case TableModeText, TableModeMarkdown, TableModeBullets:
		return m
	default:
		return defaultMode
	}
}

// Align is a column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table is a header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
	// Align holds per-column alignment; missing entries are left aligned.
	Align []Align
}

// AddRow appends a row, padding or truncating it to the header width.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

func (t *Table) align(col int) Align {
	if col < len(t.Align) {
		return t.Align[col]
	}
	return AlignLeft
}

// widths returns the display width of every column.
func (t *Table) widths() []int {
	w := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		w[i] = cellWidth(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(w) {
				w[i] = max(w[i], cellWidth(cell))
			}
		}
	}
	return w
}

// Render writes the table in the given mode.
func Render(w io.Writer, t *Table, mode TableMode) error {
	var out string
	switch mode {
	case TableModeMarkdown:
		out = t.Markdown()
	case TableModeBullets:
		out = t.Bullets()
	default:
		out = t.Text()
	}
	_, err := io.WriteString(w, out)
	return err
}

// Text renders the table with space-padded columns.
func (t *Table) Text() string {
	widths := t.widths()
	var b strings.Builder
	writeLine := func(cells []string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = pad(cell, widths[i], t.align(i))
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}
	writeLine(t.Headers)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}
	writeLine(rule)
	for _, row := range t.Rows {
		writeLine(row)
	}
	return b.String()
}

// Markdown renders the table as a pipe table.
func (t *Table) Markdown() string {
	widths := t.widths()
	var b strings.Builder
	writeLine := func(cells []string) {
		b.WriteByte('|')
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = escapeCell(cells[i])
			}
			fmt.Fprintf(&b, " %s |", pad(cell, widths[i], t.align(i)))
		}
		b.WriteByte('\n')
	}
	writeLine(t.Headers)
	b.WriteByte('|')
	for i, n := range widths {
		dashes := strings.Repeat("-", max(n, 3))
		if t.align(i) == AlignRight {
			dashes = dashes[1:] + ":"
		}
		fmt.Fprintf(&b, " %s |", dashes)
	}
	b.WriteByte('\n')
	for _, row := range t.Rows {
		writeLine(row)
	}
	return b.String()
}

// Bullets renders one "• header: cell | ..." line per row, skipping
// empty cells.
func (t *Table) Bullets() string {
	var lines []string
	for _, row := range t.Rows {
		var parts []string
		for i, cell := range row {
			if cell == "" {
				continue
			}
			header := ""
			if i < len(t.Headers) && t.Headers[i] != "" {
				header = t.Headers[i] + ": "
			}
			parts = append(parts, header+cell)
		}
		if len(parts) > 0 {
			lines = append(lines, "• "+strings.Join(parts, " | "))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Truncate shortens every cell of column col to at most n runes, marking
// cut cells with "…".
func (t *Table) Truncate(col, n int) {
	if n < 1 {
		return
	}
	for _, row := range t.Rows {
		if col < len(row) && utf8.RuneCountInString(row[col]) > n {
			r := []rune(row[col])
			row[col] = string(r[:n-1]) + "…"
		}
	}
}

// Width returns the rendered width of a text-mode line.
func (t *Table) Width() int {
	widths := t.widths()
	total := 0
	for _, n := range widths {
		total += n
	}
	if len(widths) > 1 {
		total += 2 * (len(widths) - 1)
	}
	return total
}

func cellWidth(s string) int {
	return utf8.RuneCountInString(s)
}

func pad(s string, width int, align Align) string {
	gap := width - cellWidth(s)
	if gap <= 0 {
		return s
	}
	if align == AlignRight {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
