package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jacoco-filter/internal/probes"
)

// ProbeMap is the output of the probes command.
type ProbeMap struct {
	Classes []*probes.ClassProbes `json:"classes" yaml:"classes"`
	Errors  []string              `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// WriteProbes renders the method to probe id mapping of each class.
func WriteProbes(w io.Writer, m *ProbeMap, format Format) error {
	if ok, err := encode(w, format, m); ok {
		return err
	}

	st := newStyles(w)
	var b strings.Builder
	for i, cp := range m.Classes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(st.Title.Render(cp.Name))
		b.WriteString(st.Muted.Render(fmt.Sprintf("  id=%s probes=%d", formatClassID(cp.ID), cp.Total)))
		b.WriteString("\n")

		t := newTable("method", "descriptor", "probes")
		for _, mp := range cp.Methods {
			t.addRow(mp.Name, mp.Descriptor, formatProbeIDs(mp.Probes))
		}
		b.WriteString(t.render(st))
	}
	for _, e := range m.Errors {
		b.WriteString("\n")
		b.WriteString(st.Error.Render("error: " + e))
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}

func formatProbeIDs(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
