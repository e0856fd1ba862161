package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jacoco-filter/internal/repository"
)

// WriteRuns renders ledger runs, newest first as returned by the ledger.
func WriteRuns(w io.Writer, runs []*repository.Run, format Format) error {
	if runs == nil {
		runs = []*repository.Run{}
	}
	if ok, err := encode(w, format, runs); ok {
		return err
	}

	st := newStyles(w)
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, st.Muted.Render("no runs recorded"))
		return err
	}

	t := newTable("id", "command", "status", "started", "duration", "classes", "probes", "output")
	for _, r := range runs {
		status := string(r.Status)
		switch r.Status {
		case repository.RunStatusSucceeded:
			status = st.Success.Render(status)
		case repository.RunStatusFailed:
			status = st.Error.Render(status)
		}
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.addRow(
			shortID(r.ID),
			r.Command,
			status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			strconv.Itoa(r.Classes),
			strconv.Itoa(r.ProbesMarked),
			truncate(r.Output, 48),
		)
	}
	_, err := fmt.Fprintln(w, t.render(st))
	return err
}

// WriteRunClasses renders the per-class outcomes of one run.
func WriteRunClasses(w io.Writer, classes []repository.RunClass, format Format) error {
	if classes == nil {
		classes = []repository.RunClass{}
	}
	if ok, err := encode(w, format, classes); ok {
		return err
	}

	st := newStyles(w)
	t := newTable("class", "id", "outcome", "probes")
	for _, c := range classes {
		t.addRow(c.Name, formatClassID(c.ClassID), c.Outcome, strconv.Itoa(c.ProbesMarked))
	}
	var b strings.Builder
	b.WriteString(t.render(st))
	_, err := fmt.Fprintln(w, b.String())
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
