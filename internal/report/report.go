// Package report renders filter results, execution records and ledger runs
// for the terminal and as JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format name. The empty string selects FormatTable.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// Palette
var (
	ColorAccent  = lipgloss.Color("#20B9B4")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6C8A94")
)

// styles holds the lipgloss styles bound to one output writer, so colors are
// only emitted when the writer is a terminal.
type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		Title:   r.NewStyle().Bold(true).Foreground(ColorAccent),
		Header:  r.NewStyle().Bold(true),
		Cell:    r.NewStyle(),
		Label:   r.NewStyle().Foreground(ColorMuted),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Error:   r.NewStyle().Foreground(ColorError),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// encode writes v as JSON or YAML. It reports false for FormatTable.
func encode(w io.Writer, format Format, v interface{}) (bool, error) {
	switch format {
	case FormatJSON:
		return true, writeJSON(w, v)
	case FormatYAML:
		return true, writeYAML(w, v)
	}
	return false, nil
}

// table renders aligned columns.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(st styles) string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			w := widths[i]
			if i < len(widths)-1 {
				w += 2
			}
			parts[i] = style.Width(w).Render(cell)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	lines := make([]string, 0, len(t.rows)+1)
	lines = append(lines, line(t.headers, st.Header))
	for _, row := range t.rows {
		lines = append(lines, line(row, st.Cell))
	}
	return strings.Join(lines, "\n")
}

// keyValues renders label/value pairs with aligned values.
func keyValues(st styles, pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = st.Label.Width(width+2).Render(p[0]) + p[1]
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n < 4 {
		return strings.Repeat(".", n)
	}
	return s[:n-3] + "..."
}

func formatClassID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}
