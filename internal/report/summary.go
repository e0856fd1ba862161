package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jacoco-filter/internal/engine"
	"github.com/jacoco-filter/pkg/utils"
)

// SummaryOptions controls WriteSummary.
type SummaryOptions struct {
	// Verbose adds phase timings and the skipped classes.
	Verbose bool
	// MaxSkipped bounds the skipped classes listed. Zero means 20.
	MaxSkipped int
}

// WriteSummary renders the outcome of a filter run.
func WriteSummary(w io.Writer, title string, r *engine.Result, opts SummaryOptions) error {
	st := newStyles(w)

	pairs := [][2]string{{"classes", strconv.Itoa(len(r.Classes))}}
	for _, o := range engine.Outcomes {
		n := r.Count(o)
		if n == 0 && o.Skipped() {
			continue
		}
		value := strconv.Itoa(n)
		if n > 0 && o.Skipped() {
			value = st.Warning.Render(value)
		}
		pairs = append(pairs, [2]string{string(o), value})
	}
	pairs = append(pairs,
		[2]string{"probes marked", st.Success.Render(strconv.Itoa(r.ProbesMarked))},
		[2]string{"mismatches", strconv.Itoa(r.Mismatches)},
		[2]string{"entries", strconv.Itoa(r.Entries)},
	)
	if r.Session.ID != "" {
		pairs = append(pairs, [2]string{"session", r.Session.ID})
	}
	if r.Duration > 0 {
		pairs = append(pairs, [2]string{"duration", r.Duration.Round(time.Millisecond).String()})
	}

	var b strings.Builder
	b.WriteString(st.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(keyValues(st, pairs))

	if opts.Verbose && len(r.Phases) > 0 {
		t := newTable("phase", "duration")
		for _, p := range r.Phases {
			t.addRow(p.Name, p.Duration.Round(time.Microsecond).String())
		}
		b.WriteString("\n\n")
		b.WriteString(t.render(st))
	}

	if opts.Verbose {
		if skipped := skippedClasses(r); len(skipped) > 0 {
			limit := opts.MaxSkipped
			if limit <= 0 {
				limit = 20
			}
			t := newTable("class", "outcome", "reason")
			for i, c := range skipped {
				if i >= limit {
					break
				}
				reason := ""
				if c.Err != nil {
					reason = truncate(c.Err.Error(), 80)
				}
				t.addRow(c.Name, st.Warning.Render(string(c.Outcome)), reason)
			}
			b.WriteString("\n\n")
			b.WriteString(t.render(st))
			if len(skipped) > limit {
				b.WriteString("\n")
				b.WriteString(st.Muted.Render(fmt.Sprintf("... and %d more", len(skipped)-limit)))
			}
		}
	}

	_, err := fmt.Fprintln(w, st.Box.Render(b.String()))
	return err
}

func skippedClasses(r *engine.Result) []engine.ClassResult {
	var out []engine.ClassResult
	for _, c := range r.Classes {
		if c.Outcome.Skipped() {
			out = append(out, c)
		}
	}
	return out
}

// LogSummary writes a short summary of r to log.
func LogSummary(r *engine.Result, log utils.Logger) {
	log = utils.OrNull(log)
	log.Info("=== Filter Results ===")
	log.Info("Classes:        %d", len(r.Classes))
	for _, o := range engine.Outcomes {
		if n := r.Count(o); n > 0 {
			log.Info("  %-18s %d", o, n)
		}
	}
	log.Info("Probes marked:  %d", r.ProbesMarked)
	log.Info("Entries:        %d", r.Entries)
	for _, p := range r.Phases {
		log.Debug("Phase %-8s %v", p.Name, p.Duration)
	}
}
