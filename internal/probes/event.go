package probes

import (
	"fmt"

	"github.com/jacoco-filter/internal/classfile"
)

// EventKind tags the structural events of a method body.
type EventKind uint8

const (
	// EventLabel marks a branch target, exception range boundary, line start
	// or local variable boundary.
	EventLabel EventKind = iota
	// EventLine starts a source line at the current label.
	EventLine
	// EventInsn is one instruction.
	EventInsn
)

func (k EventKind) String() string {
	switch k {
	case EventLabel:
		return "label"
	case EventLine:
		return "line"
	case EventInsn:
		return "insn"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is a single structural event. Offset is the bytecode offset the
// event belongs to; a label at the code length follows the last
// instruction. Line is set for EventLine and Insn for EventInsn.
type Event struct {
	Kind   EventKind
	Offset int
	Line   int
	Insn   classfile.Instruction
}

// Events decodes a method body into its event sequence. At each offset the
// label comes first, then line numbers in table order, then the
// instruction.
func Events(code *classfile.Code) ([]Event, error) {
	insns, err := classfile.Decode(code.Bytecode)
	if err != nil {
		return nil, err
	}

	labels := labelOffsets(code, insns)
	lines := make(map[int][]int, len(code.LineNumbers))
	for _, ln := range code.LineNumbers {
		lines[ln.StartPC] = append(lines[ln.StartPC], ln.Line)
	}

	events := make([]Event, 0, len(insns)+len(labels)+len(code.LineNumbers))
	for _, insn := range insns {
		if labels[insn.Offset] {
			events = append(events, Event{Kind: EventLabel, Offset: insn.Offset})
		}
		for _, line := range lines[insn.Offset] {
			events = append(events, Event{Kind: EventLine, Offset: insn.Offset, Line: line})
		}
		events = append(events, Event{Kind: EventInsn, Offset: insn.Offset, Insn: insn})
	}
	if end := len(code.Bytecode); labels[end] {
		events = append(events, Event{Kind: EventLabel, Offset: end})
	}
	return events, nil
}

// labelOffsets collects every offset that carries a label.
func labelOffsets(code *classfile.Code, insns []classfile.Instruction) map[int]bool {
	labels := make(map[int]bool)
	for _, insn := range insns {
		switch insn.Kind {
		case classfile.KindJump:
			labels[insn.Target] = true
		case classfile.KindSwitch:
			labels[insn.Default] = true
			for _, t := range insn.Targets {
				labels[t] = true
			}
		}
	}
	for _, h := range code.ExceptionTable {
		labels[h.StartPC] = true
		labels[h.EndPC] = true
		labels[h.HandlerPC] = true
	}
	for _, ln := range code.LineNumbers {
		labels[ln.StartPC] = true
	}
	for _, lv := range code.LocalVariables {
		labels[lv.StartPC] = true
		labels[lv.StartPC+lv.Length] = true
	}
	return labels
}
