package engine

import (
	"time"

	"github.com/jacoco-filter/internal/analyzer"
	"github.com/jacoco-filter/internal/execdata"
	"github.com/jacoco-filter/pkg/utils"
)

// Outcome classifies what happened to one class.
type Outcome string

const (
	// OutcomeUpdated means an existing entry was resolved and filtered.
	OutcomeUpdated Outcome = "updated"
	// OutcomeCreated means a fresh entry was inserted and filtered.
	OutcomeCreated Outcome = "created"
	// OutcomeNoProbes means the class has no probes and needs no entry.
	OutcomeNoProbes Outcome = "no_probes"
	// OutcomeNotFound means the class bytes could not be resolved.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeParseError means the class could not be parsed or mapped.
	OutcomeParseError Outcome = "parse_error"
	// OutcomeUnsupported means the class uses bytecode the mapper does not
	// replay, such as jsr/ret subroutines.
	OutcomeUnsupported Outcome = "unsupported"
	// OutcomeProbeMismatch means the stored entry has a different probe
	// count or name than the mapped class.
	OutcomeProbeMismatch Outcome = "probe_mismatch"
	// OutcomeChecksumMismatch means the record only knows other versions
	// of the class and the skip policy is active.
	OutcomeChecksumMismatch Outcome = "checksum_mismatch"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{
	OutcomeUpdated,
	OutcomeCreated,
	OutcomeNoProbes,
	OutcomeNotFound,
	OutcomeParseError,
	OutcomeUnsupported,
	OutcomeProbeMismatch,
	OutcomeChecksumMismatch,
}

// Skipped reports whether the class was left untouched because of an error
// or policy.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeNotFound, OutcomeParseError, OutcomeUnsupported, OutcomeProbeMismatch, OutcomeChecksumMismatch:
		return true
	}
	return false
}

// ClassResult is the outcome of one class.
type ClassResult struct {
	Name    string  `json:"name" yaml:"name"`
	ID      uint64  `json:"id" yaml:"id"`
	Source  string  `json:"source" yaml:"source"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	// Mismatch is set when the record held the class under another id.
	Mismatch bool `json:"mismatch,omitempty" yaml:"mismatch,omitempty"`
	// Methods holds the filtered method names found in the class.
	Methods      []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	ProbesMarked int      `json:"probes_marked" yaml:"probes_marked"`
	Err          error    `json:"-" yaml:"-"`
}

// Result summarizes a filter pass.
type Result struct {
	Classes        []ClassResult          `json:"classes" yaml:"classes"`
	AnalysisErrors []*analyzer.ClassError `json:"-" yaml:"-"`
	ProbesMarked   int                    `json:"probes_marked" yaml:"probes_marked"`
	Mismatches     int                    `json:"mismatches" yaml:"mismatches"`

	// Set by Run.
	Entries  int                  `json:"entries" yaml:"entries"`
	Session  execdata.SessionInfo `json:"session" yaml:"session"`
	Phases   []utils.Phase        `json:"-" yaml:"-"`
	Duration time.Duration        `json:"duration" yaml:"duration"`

	counts map[Outcome]int
}

func newResult() *Result {
	return &Result{counts: make(map[Outcome]int)}
}

func (r *Result) add(cr ClassResult) {
	r.Classes = append(r.Classes, cr)
	r.counts[cr.Outcome]++
	r.ProbesMarked += cr.ProbesMarked
	if cr.Mismatch {
		r.Mismatches++
	}
}

// Count returns the number of classes with outcome o.
func (r *Result) Count(o Outcome) int {
	return r.counts[o]
}

// Skipped returns the number of classes left untouched.
func (r *Result) Skipped() int {
	n := 0
	for o, c := range r.counts {
		if o.Skipped() {
			n += c
		}
	}
	return n
}

// Class returns the result for the class with the given VM name.
func (r *Result) Class(name string) (ClassResult, bool) {
	for _, cr := range r.Classes {
		if cr.Name == name {
			return cr, true
		}
	}
	return ClassResult{}, false
}
