package probes

import (
	"fmt"

	"github.com/jacoco-filter/internal/classfile"
)

// labelInfo is the control flow state of the label at one offset.
type labelInfo struct {
	target               bool
	successor            bool
	multiTarget          bool
	methodInvocationLine bool
	done                 bool
}

// setTarget records a jump or handler edge into the label. A second
// incoming edge, or any edge into a fall-through label, makes it a
// multi-target.
func (l *labelInfo) setTarget() {
	if l.target || l.successor {
		l.multiTarget = true
	} else {
		l.target = true
	}
}

// setSuccessor records that the previous instruction falls through.
func (l *labelInfo) setSuccessor() {
	l.successor = true
	if l.target {
		l.multiTarget = true
	}
}

func (l *labelInfo) needsProbe() bool {
	return l.successor && (l.multiTarget || l.methodInvocationLine)
}

type labelSet map[int]*labelInfo

func (s labelSet) get(offset int) *labelInfo {
	l, ok := s[offset]
	if !ok {
		l = &labelInfo{}
		s[offset] = l
	}
	return l
}

func (s labelSet) resetDone(offsets ...int) {
	for _, o := range offsets {
		s.get(o).done = false
	}
}

// analyzeFlow marks labels with their incoming edges. Exception handlers
// are visited first, in reverse table order, then the event sequence.
func analyzeFlow(code *classfile.Code, events []Event) (labelSet, error) {
	labels := make(labelSet)

	for i := len(code.ExceptionTable) - 1; i >= 0; i-- {
		h := code.ExceptionTable[i]
		// The try start becomes a multi-target when code also falls into it.
		labels.get(h.StartPC).setTarget()
		labels.get(h.HandlerPC).setTarget()
	}

	successor, first := false, true
	lineStart := -1
	for _, ev := range events {
		switch ev.Kind {
		case EventLabel:
			l := labels.get(ev.Offset)
			if first {
				l.setTarget()
			}
			if successor {
				l.setSuccessor()
			}
		case EventLine:
			lineStart = ev.Offset
		case EventInsn:
			insn := ev.Insn
			switch insn.Kind {
			case classfile.KindJump:
				labels.get(insn.Target).setTarget()
				successor = insn.Opcode != classfile.GOTO
			case classfile.KindSwitch:
				labels.resetDone(insn.Default)
				labels.resetDone(insn.Targets...)
				setTargetIfNotDone(labels.get(insn.Default))
				for _, t := range insn.Targets {
					setTargetIfNotDone(labels.get(t))
				}
				successor = false
			case classfile.KindExit:
				successor = false
			case classfile.KindSubroutine:
				return nil, fmt.Errorf("%w at offset %d", ErrSubroutine, insn.Offset)
			case classfile.KindInvoke:
				successor = true
				if lineStart >= 0 {
					labels.get(lineStart).methodInvocationLine = true
				}
			default:
				successor = true
			}
			first = false
		}
	}
	return labels, nil
}

func setTargetIfNotDone(l *labelInfo) {
	if !l.done {
		l.setTarget()
		l.done = true
	}
}
