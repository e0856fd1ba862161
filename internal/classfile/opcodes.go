package classfile

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a JVM instruction opcode.
type Opcode uint8

// Opcodes that affect control flow. Other opcodes are only sized.
const (
	NOP             Opcode = 0x00
	ALOAD_0         Opcode = 0x2a
	IINC            Opcode = 0x84
	IFEQ            Opcode = 0x99
	IFNE            Opcode = 0x9a
	IFLT            Opcode = 0x9b
	IFGE            Opcode = 0x9c
	IFGT            Opcode = 0x9d
	IFLE            Opcode = 0x9e
	IF_ICMPEQ       Opcode = 0x9f
	IF_ICMPNE       Opcode = 0xa0
	IF_ICMPLT       Opcode = 0xa1
	IF_ICMPGE       Opcode = 0xa2
	IF_ICMPGT       Opcode = 0xa3
	IF_ICMPLE       Opcode = 0xa4
	IF_ACMPEQ       Opcode = 0xa5
	IF_ACMPNE       Opcode = 0xa6
	GOTO            Opcode = 0xa7
	JSR             Opcode = 0xa8
	RET             Opcode = 0xa9
	TABLESWITCH     Opcode = 0xaa
	LOOKUPSWITCH    Opcode = 0xab
	IRETURN         Opcode = 0xac
	LRETURN         Opcode = 0xad
	FRETURN         Opcode = 0xae
	DRETURN         Opcode = 0xaf
	ARETURN         Opcode = 0xb0
	RETURN          Opcode = 0xb1
	INVOKEVIRTUAL   Opcode = 0xb6
	INVOKESPECIAL   Opcode = 0xb7
	INVOKESTATIC    Opcode = 0xb8
	INVOKEINTERFACE Opcode = 0xb9
	INVOKEDYNAMIC   Opcode = 0xba
	ATHROW          Opcode = 0xbf
	WIDE            Opcode = 0xc4
	IFNULL          Opcode = 0xc6
	IFNONNULL       Opcode = 0xc7
	GOTO_W          Opcode = 0xc8
	JSR_W           Opcode = 0xc9
)

// InsnKind classifies an instruction by its effect on control flow.
type InsnKind uint8

const (
	// KindPlain falls through to the next instruction.
	KindPlain InsnKind = iota
	// KindJump transfers to Target, conditionally unless the opcode is GOTO.
	KindJump
	// KindSwitch transfers to Default or one of Targets.
	KindSwitch
	// KindExit is a return or athrow.
	KindExit
	// KindInvoke calls a method and falls through.
	KindInvoke
	// KindSubroutine is jsr or ret.
	KindSubroutine
)

// Instruction is one decoded instruction. Branch offsets are absolute.
// GOTO_W and JSR_W are reported as GOTO and JSR.
type Instruction struct {
	Offset  int
	Opcode  Opcode
	Kind    InsnKind
	Target  int
	Default int
	Targets []int
}

const (
	lenInvalid  int8 = 0
	lenVariable int8 = -1
)

// insnLength holds the encoded size of fixed-length instructions.
var insnLength [256]int8

func init() {
	set := func(from, to Opcode, n int8) {
		for op := int(from); op <= int(to); op++ {
			insnLength[op] = n
		}
	}
	set(0x00, 0x0f, 1) // nop, constants
	set(0x10, 0x10, 2) // bipush
	set(0x11, 0x11, 3) // sipush
	set(0x12, 0x12, 2) // ldc
	set(0x13, 0x14, 3) // ldc_w, ldc2_w
	set(0x15, 0x19, 2) // loads
	set(0x1a, 0x35, 1)
	set(0x36, 0x3a, 2) // stores
	set(0x3b, 0x83, 1)
	set(IINC, IINC, 3)
	set(0x85, 0x98, 1) // conversions, compares
	set(IFEQ, JSR, 3)
	set(RET, RET, 2)
	set(TABLESWITCH, LOOKUPSWITCH, lenVariable)
	set(IRETURN, RETURN, 1)
	set(0xb2, INVOKESTATIC, 3) // field access, invokes
	set(INVOKEINTERFACE, INVOKEDYNAMIC, 5)
	set(0xbb, 0xbb, 3) // new
	set(0xbc, 0xbc, 2) // newarray
	set(0xbd, 0xbd, 3) // anewarray
	set(0xbe, ATHROW, 1)
	set(0xc0, 0xc1, 3) // checkcast, instanceof
	set(0xc2, 0xc3, 1) // monitors
	set(WIDE, WIDE, lenVariable)
	set(0xc5, 0xc5, 4) // multianewarray
	set(IFNULL, IFNONNULL, 3)
	set(GOTO_W, JSR_W, 5)
}

// Decode splits bytecode into instructions and resolves branch targets.
func Decode(code []byte) ([]Instruction, error) {
	var insns []Instruction
	for pc := 0; pc < len(code); {
		insn, next, err := decodeAt(code, pc)
		if err != nil {
			return nil, err
		}
		insns = append(insns, insn)
		pc = next
	}
	return insns, nil
}

func decodeAt(code []byte, pc int) (Instruction, int, error) {
	op := Opcode(code[pc])
	insn := Instruction{Offset: pc, Opcode: op, Kind: KindPlain}

	n := int(insnLength[op])
	switch insnLength[op] {
	case lenInvalid:
		return insn, 0, fmt.Errorf("%w %#02x at %d", ErrInvalidOpcode, uint8(op), pc)
	case lenVariable:
		var err error
		if op == WIDE {
			n, err = wideLength(code, pc)
			if err == nil && Opcode(code[pc+1]) == RET {
				insn.Kind = KindSubroutine
			}
		} else {
			n, err = decodeSwitch(code, pc, &insn)
		}
		if err != nil {
			return insn, 0, err
		}
	}
	if pc+n > len(code) {
		return insn, 0, fmt.Errorf("%w: instruction %#02x at %d overruns code", ErrInvalidCode, uint8(op), pc)
	}

	switch {
	case op >= IFEQ && op <= GOTO, op == IFNULL, op == IFNONNULL:
		insn.Kind = KindJump
		insn.Target = pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	case op == GOTO_W:
		insn.Opcode, insn.Kind = GOTO, KindJump
		insn.Target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	case op == JSR, op == JSR_W, op == RET:
		insn.Kind = KindSubroutine
		if op == JSR_W {
			insn.Opcode = JSR
		}
	case op >= IRETURN && op <= RETURN, op == ATHROW:
		insn.Kind = KindExit
	case op >= INVOKEVIRTUAL && op <= INVOKEDYNAMIC:
		insn.Kind = KindInvoke
	}

	if insn.Kind == KindJump {
		if err := checkTarget(code, pc, insn.Target); err != nil {
			return insn, 0, err
		}
	}
	return insn, pc + n, nil
}

func wideLength(code []byte, pc int) (int, error) {
	if pc+1 >= len(code) {
		return 0, fmt.Errorf("%w: wide at %d overruns code", ErrInvalidCode, pc)
	}
	switch op := Opcode(code[pc+1]); {
	case op == IINC:
		return 6, nil
	case op >= 0x15 && op <= 0x19, op >= 0x36 && op <= 0x3a, op == RET:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: wide %#02x at %d", ErrInvalidOpcode, uint8(op), pc)
	}
}

// decodeSwitch fills the switch targets in table order and returns the
// instruction length including the alignment padding.
func decodeSwitch(code []byte, pc int, insn *Instruction) (int, error) {
	p := pc + 1 + (4-(pc+1)%4)%4
	s4 := func(at int) (int, error) {
		if at+4 > len(code) {
			return 0, fmt.Errorf("%w: switch at %d overruns code", ErrInvalidCode, pc)
		}
		return int(int32(binary.BigEndian.Uint32(code[at:]))), nil
	}
	target := func(at int) (int, error) {
		off, err := s4(at)
		if err != nil {
			return 0, err
		}
		if err := checkTarget(code, pc, pc+off); err != nil {
			return 0, err
		}
		return pc + off, nil
	}

	insn.Kind = KindSwitch
	var err error
	if insn.Default, err = target(p); err != nil {
		return 0, err
	}

	// first is the position of the first jump offset.
	var count, stride, first int
	if insn.Opcode == TABLESWITCH {
		low, err := s4(p + 4)
		if err != nil {
			return 0, err
		}
		high, err := s4(p + 8)
		if err != nil {
			return 0, err
		}
		if high < low {
			return 0, fmt.Errorf("%w: tableswitch at %d has low %d > high %d", ErrInvalidCode, pc, low, high)
		}
		count, stride, first = high-low+1, 4, p+12
	} else {
		npairs, err := s4(p + 4)
		if err != nil {
			return 0, err
		}
		if npairs < 0 {
			return 0, fmt.Errorf("%w: lookupswitch at %d has %d pairs", ErrInvalidCode, pc, npairs)
		}
		// Pairs are a match followed by an offset.
		count, stride, first = npairs, 8, p+12
	}
	if count > len(code) {
		return 0, fmt.Errorf("%w: switch at %d has %d targets", ErrInvalidCode, pc, count)
	}

	insn.Targets = make([]int, count)
	for i := range insn.Targets {
		if insn.Targets[i], err = target(first + i*stride); err != nil {
			return 0, err
		}
	}
	return first + count*stride - (stride - 4) - pc, nil
}

func checkTarget(code []byte, pc, target int) error {
	if target < 0 || target >= len(code) {
		return fmt.Errorf("%w: %d from %d", ErrInvalidTarget, target, pc)
	}
	return nil
}
