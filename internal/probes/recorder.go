package probes

import "github.com/jacoco-filter/internal/classfile"

// Recorder selects the methods whose probe ids are kept in the mapping.
// Probe ids are assigned to every method regardless, so the choice never
// shifts the ids of recorded methods.
type Recorder interface {
	Record(m *classfile.Method) bool
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(m *classfile.Method) bool

// Record calls f(m).
func (f RecorderFunc) Record(m *classfile.Method) bool { return f(m) }

// AllMethods records every method, synthetic bridges and lambda bodies
// included.
var AllMethods Recorder = RecorderFunc(func(*classfile.Method) bool {
	return true
})

// ByName records the methods whose name satisfies match.
func ByName(match func(name string) bool) Recorder {
	return RecorderFunc(func(m *classfile.Method) bool {
		return match(m.Name)
	})
}
