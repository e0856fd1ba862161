// Package probes derives the probe ids owned by each method of a class by
// replaying coverage probe assignment over the class bytes.
//
// Ids are handed out by one counter that runs across all methods in class
// file order. Within a method, a probe is placed at every exit instruction,
// at every jump to a label reached from more than one place, on switch
// targets reached from more than one place, and on fall-through labels that
// are multi-targets or start a line containing a method invocation.
package probes

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jacoco-filter/internal/classfile"
	"github.com/jacoco-filter/internal/execdata"
)

var (
	// ErrSubroutine is returned for methods using jsr or ret.
	ErrSubroutine = errors.New("subroutines not supported")
	// ErrInstrumented is returned for classes that already carry coverage
	// instrumentation.
	ErrInstrumented = errors.New("class is already instrumented")
)

// MethodProbes holds the probe ids of one method.
type MethodProbes struct {
	Name        string `json:"name" yaml:"name"`
	Descriptor  string `json:"descriptor" yaml:"descriptor"`
	AccessFlags uint16 `json:"access" yaml:"access"`
	Probes      []int  `json:"probes" yaml:"probes"`
}

// ClassProbes is the probe mapping of one class.
type ClassProbes struct {
	Name    string         `json:"name" yaml:"name"`
	ID      uint64         `json:"id" yaml:"id"`
	Total   int            `json:"total" yaml:"total"`
	Methods []MethodProbes `json:"methods" yaml:"methods"`
}

// MapClass parses class bytes and maps their probes. Only methods accepted
// by rec appear in the result; Total always counts every method.
func MapClass(b []byte, rec Recorder) (*ClassProbes, error) {
	cf, err := classfile.Parse(b)
	if err != nil {
		return nil, err
	}
	return Map(cf, execdata.ClassID(b), rec)
}

// Map maps the probes of a parsed class with the given class id.
func Map(cf *classfile.ClassFile, id uint64, rec Recorder) (*ClassProbes, error) {
	if cf.IsInstrumented() {
		return nil, fmt.Errorf("%s: %w", cf.Name, ErrInstrumented)
	}
	if rec == nil {
		rec = AllMethods
	}

	cp := &ClassProbes{Name: cf.Name, ID: id}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		ids, err := mapMethod(m, cp.Total)
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", cf.Name, m.Name, m.Descriptor, err)
		}
		cp.Total += len(ids)
		if rec.Record(m) {
			cp.Methods = append(cp.Methods, MethodProbes{
				Name:        m.Name,
				Descriptor:  m.Descriptor,
				AccessFlags: m.AccessFlags,
				Probes:      ids,
			})
		}
	}
	return cp, nil
}

// mapMethod returns the ids assigned to m, starting at next.
func mapMethod(m *classfile.Method, next int) ([]int, error) {
	if m.Code == nil {
		return nil, nil
	}
	events, err := Events(m.Code)
	if err != nil {
		return nil, err
	}
	labels, err := analyzeFlow(m.Code, events)
	if err != nil {
		return nil, err
	}

	var ids []int
	nextID := func() {
		ids = append(ids, next)
		next++
	}
	for _, ev := range events {
		switch ev.Kind {
		case EventLabel:
			if labels.get(ev.Offset).needsProbe() {
				nextID()
			}
		case EventInsn:
			insn := ev.Insn
			switch insn.Kind {
			case classfile.KindExit:
				nextID()
			case classfile.KindJump:
				if labels.get(insn.Target).multiTarget {
					nextID()
				}
			case classfile.KindSwitch:
				labels.resetDone(insn.Targets...)
				dflt := labels.get(insn.Default)
				if dflt.multiTarget {
					nextID()
				}
				dflt.done = true
				for _, t := range insn.Targets {
					l := labels.get(t)
					if l.multiTarget && !l.done {
						nextID()
					}
					l.done = true
				}
			}
		}
	}
	return ids, nil
}

// ProbesFor returns the sorted, deduplicated probe ids of the methods whose
// name satisfies match.
func (cp *ClassProbes) ProbesFor(match func(name string) bool) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, m := range cp.Methods {
		if !match(m.Name) {
			continue
		}
		for _, id := range m.Probes {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

// MethodNames returns the distinct recorded method names in class file
// order.
func (cp *ClassProbes) MethodNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range cp.Methods {
		if !seen[m.Name] {
			seen[m.Name] = true
			names = append(names, m.Name)
		}
	}
	return names
}
