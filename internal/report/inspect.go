package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/pkg/filter"
)

// SessionView is a session with readable timestamps.
type SessionView struct {
	ID    string    `json:"id" yaml:"id"`
	Start time.Time `json:"start" yaml:"start"`
	Dump  time.Time `json:"dump" yaml:"dump"`
}

// EntryView summarizes one execution data entry.
type EntryView struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Probes int    `json:"probes" yaml:"probes"`
	Hit    int    `json:"hit" yaml:"hit"`
}

// Inspection is the content of an execution record.
type Inspection struct {
	Source   string        `json:"source,omitempty" yaml:"source,omitempty"`
	Sessions []SessionView `json:"sessions" yaml:"sessions"`
	Entries  []EntryView   `json:"entries" yaml:"entries"`
	Probes   int           `json:"probes" yaml:"probes"`
	Hit      int           `json:"hit" yaml:"hit"`
}

// NewInspection builds an Inspection of s. When prefix is set only entries
// whose class name starts with it are listed; dots and slashes are
// interchangeable in prefix.
func NewInspection(source string, s *execdata.Store, prefix string) *Inspection {
	ins := &Inspection{
		Source:   source,
		Sessions: make([]SessionView, 0, len(s.Sessions())),
		Entries:  make([]EntryView, 0, s.Len()),
	}
	for _, si := range s.Sessions() {
		ins.Sessions = append(ins.Sessions, SessionView{
			ID:    si.ID,
			Start: si.StartTime().UTC(),
			Dump:  si.DumpTime().UTC(),
		})
	}

	prefix = filter.NormalizeName(prefix)
	for _, d := range s.Entries() {
		if prefix != "" && !strings.HasPrefix(d.Name, prefix) {
			continue
		}
		e := EntryView{
			ID:     formatClassID(d.ID),
			Name:   d.Name,
			Probes: len(d.Probes),
			Hit:    d.HitCount(),
		}
		ins.Entries = append(ins.Entries, e)
		ins.Probes += e.Probes
		ins.Hit += e.Hit
	}
	return ins
}

// WriteInspection renders ins in the given format.
func WriteInspection(w io.Writer, ins *Inspection, format Format) error {
	if ok, err := encode(w, format, ins); ok {
		return err
	}

	st := newStyles(w)
	var b strings.Builder
	title := "Execution record"
	if ins.Source != "" {
		title += " " + ins.Source
	}
	b.WriteString(st.Title.Render(title))
	b.WriteString("\n\n")

	sessions := newTable("session", "start", "dump")
	for _, s := range ins.Sessions {
		sessions.addRow(s.ID, s.Start.Format(time.RFC3339), s.Dump.Format(time.RFC3339))
	}
	b.WriteString(sessions.render(st))
	b.WriteString("\n\n")

	entries := newTable("id", "class", "probes", "hit", "coverage")
	for _, e := range ins.Entries {
		entries.addRow(e.ID, e.Name, strconv.Itoa(e.Probes), strconv.Itoa(e.Hit), ratio(e.Hit, e.Probes))
	}
	b.WriteString(entries.render(st))
	b.WriteString("\n\n")
	b.WriteString(st.Muted.Render(fmt.Sprintf("%d entries, %d of %d probes hit (%s)",
		len(ins.Entries), ins.Hit, ins.Probes, ratio(ins.Hit, ins.Probes))))

	_, err := fmt.Fprintln(w, b.String())
	return err
}

func ratio(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
