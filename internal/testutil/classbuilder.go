package testutil

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Access flags used by ClassBuilder callers.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccStatic    uint16 = 0x0008
	AccNative    uint16 = 0x0100
	AccInterface uint16 = 0x0200
	AccAbstract  uint16 = 0x0400
	AccSynthetic uint16 = 0x1000
	AccModule    uint16 = 0x8000
)

// ClassBuilder assembles class files in memory for tests. The constant pool
// grows as names are referenced; entries are deduplicated.
type ClassBuilder struct {
	major   uint16
	access  uint16
	pool    [][]byte
	index   map[string]uint16
	this    uint16
	super   uint16
	fields  []member
	methods []*MethodBuilder
}

type member struct {
	access uint16
	name   uint16
	desc   uint16
}

// NewClassBuilder starts a public class extending java/lang/Object with
// major version 52.
func NewClassBuilder(name string) *ClassBuilder {
	b := &ClassBuilder{
		major:  52,
		access: AccPublic,
		pool:   [][]byte{nil},
		index:  make(map[string]uint16),
	}
	b.this = b.Class(name)
	b.super = b.Class("java/lang/Object")
	return b
}

// Major sets the class file major version.
func (b *ClassBuilder) Major(v uint16) *ClassBuilder {
	b.major = v
	return b
}

// Access sets the class access flags.
func (b *ClassBuilder) Access(flags uint16) *ClassBuilder {
	b.access = flags
	return b
}

// Field declares a field without attributes.
func (b *ClassBuilder) Field(access uint16, name, desc string) *ClassBuilder {
	b.fields = append(b.fields, member{access, b.UTF8(name), b.UTF8(desc)})
	return b
}

// Method declares a method. Add a body with MethodBuilder.Code; methods
// without one are written with no Code attribute.
func (b *ClassBuilder) Method(access uint16, name, desc string) *MethodBuilder {
	m := &MethodBuilder{
		class:  b,
		member: member{access, b.UTF8(name), b.UTF8(desc)},
	}
	b.methods = append(b.methods, m)
	return m
}

// UTF8 returns the pool index of a Utf8 constant.
func (b *ClassBuilder) UTF8(s string) uint16 {
	buf := []byte{1}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	buf = append(buf, s...)
	return b.constant(buf)
}

// Class returns the pool index of a Class constant.
func (b *ClassBuilder) Class(name string) uint16 {
	return b.ref(7, b.UTF8(name))
}

// MethodRef returns the pool index of a Methodref constant.
func (b *ClassBuilder) MethodRef(owner, name, desc string) uint16 {
	nat := b.ref(12, b.UTF8(name), b.UTF8(desc))
	return b.ref(10, b.Class(owner), nat)
}

// Long adds a long constant, which occupies two pool slots.
func (b *ClassBuilder) Long(v int64) uint16 {
	buf := binary.BigEndian.AppendUint64([]byte{5}, uint64(v))
	i := b.constant(buf)
	if int(i) == len(b.pool)-1 {
		b.pool = append(b.pool, nil)
	}
	return i
}

func (b *ClassBuilder) ref(tag byte, indexes ...uint16) uint16 {
	buf := []byte{tag}
	for _, i := range indexes {
		buf = binary.BigEndian.AppendUint16(buf, i)
	}
	return b.constant(buf)
}

func (b *ClassBuilder) constant(buf []byte) uint16 {
	key := string(buf)
	if i, ok := b.index[key]; ok {
		return i
	}
	i := uint16(len(b.pool))
	b.pool = append(b.pool, buf)
	b.index[key] = i
	return i
}

// Bytes encodes the class file.
func (b *ClassBuilder) Bytes() []byte {
	// Attribute names must be in the pool before it is written.
	for _, m := range b.methods {
		m.intern()
	}

	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, b.major)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.pool)))
	for _, c := range b.pool[1:] {
		out = append(out, c...)
	}
	out = binary.BigEndian.AppendUint16(out, b.access)
	out = binary.BigEndian.AppendUint16(out, b.this)
	out = binary.BigEndian.AppendUint16(out, b.super)
	out = binary.BigEndian.AppendUint16(out, 0) // interfaces

	out = binary.BigEndian.AppendUint16(out, uint16(len(b.fields)))
	for _, f := range b.fields {
		out = appendMember(out, f)
		out = binary.BigEndian.AppendUint16(out, 0)
	}

	out = binary.BigEndian.AppendUint16(out, uint16(len(b.methods)))
	for _, m := range b.methods {
		out = m.appendTo(out)
	}
	return binary.BigEndian.AppendUint16(out, 0) // class attributes
}

func appendMember(out []byte, m member) []byte {
	out = binary.BigEndian.AppendUint16(out, m.access)
	out = binary.BigEndian.AppendUint16(out, m.name)
	return binary.BigEndian.AppendUint16(out, m.desc)
}

// MethodBuilder adds a Code attribute to a declared method.
type MethodBuilder struct {
	class    *ClassBuilder
	member   member
	code     []byte
	handlers [][4]uint16
	lines    [][2]uint16
	locals   [][2]uint16
	names    map[string]uint16
}

// Code sets the bytecode.
func (m *MethodBuilder) Code(code *CodeBuilder) *MethodBuilder {
	m.code = code.Bytes()
	return m
}

// RawCode sets the bytecode from raw bytes.
func (m *MethodBuilder) RawCode(code ...byte) *MethodBuilder {
	m.code = code
	return m
}

// Handler adds an exception table row. An empty catchType is a finally
// handler.
func (m *MethodBuilder) Handler(start, end, handler int, catchType string) *MethodBuilder {
	var ct uint16
	if catchType != "" {
		ct = m.class.Class(catchType)
	}
	m.handlers = append(m.handlers, [4]uint16{uint16(start), uint16(end), uint16(handler), ct})
	return m
}

// Line adds a LineNumberTable entry.
func (m *MethodBuilder) Line(pc, line int) *MethodBuilder {
	m.lines = append(m.lines, [2]uint16{uint16(pc), uint16(line)})
	return m
}

// Local adds a LocalVariableTable entry covering start..start+length.
func (m *MethodBuilder) Local(start, length int) *MethodBuilder {
	m.locals = append(m.locals, [2]uint16{uint16(start), uint16(length)})
	return m
}

func (m *MethodBuilder) intern() {
	if m.code == nil {
		return
	}
	m.names = map[string]uint16{
		"Code":               m.class.UTF8("Code"),
		"LineNumberTable":    m.class.UTF8("LineNumberTable"),
		"LocalVariableTable": m.class.UTF8("LocalVariableTable"),
		"local":              m.class.UTF8("v"),
		"localDesc":          m.class.UTF8("I"),
	}
}

func (m *MethodBuilder) appendTo(out []byte) []byte {
	out = appendMember(out, m.member)
	if m.code == nil {
		return binary.BigEndian.AppendUint16(out, 0)
	}
	out = binary.BigEndian.AppendUint16(out, 1)

	body := binary.BigEndian.AppendUint16(nil, 8) // max_stack
	body = binary.BigEndian.AppendUint16(body, 8) // max_locals
	body = binary.BigEndian.AppendUint32(body, uint32(len(m.code)))
	body = append(body, m.code...)
	body = binary.BigEndian.AppendUint16(body, uint16(len(m.handlers)))
	for _, h := range m.handlers {
		for _, v := range h {
			body = binary.BigEndian.AppendUint16(body, v)
		}
	}

	var attrs [][]byte
	if len(m.lines) > 0 {
		a := binary.BigEndian.AppendUint16(nil, uint16(len(m.lines)))
		for _, l := range m.lines {
			a = binary.BigEndian.AppendUint16(a, l[0])
			a = binary.BigEndian.AppendUint16(a, l[1])
		}
		attrs = append(attrs, attribute(m.names["LineNumberTable"], a))
	}
	if len(m.locals) > 0 {
		a := binary.BigEndian.AppendUint16(nil, uint16(len(m.locals)))
		for i, l := range m.locals {
			a = binary.BigEndian.AppendUint16(a, l[0])
			a = binary.BigEndian.AppendUint16(a, l[1])
			a = binary.BigEndian.AppendUint16(a, m.names["local"])
			a = binary.BigEndian.AppendUint16(a, m.names["localDesc"])
			a = binary.BigEndian.AppendUint16(a, uint16(i))
		}
		attrs = append(attrs, attribute(m.names["LocalVariableTable"], a))
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(attrs)))
	for _, a := range attrs {
		body = append(body, a...)
	}
	return append(out, attribute(m.names["Code"], body)...)
}

func attribute(name uint16, body []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, name)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// CodeBuilder assembles bytecode with symbolic branch labels.
type CodeBuilder struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
}

type fixup struct {
	at    int // position of the offset operand
	from  int // offset of the branching instruction
	label string
	wide  bool
}

// NewCode starts an empty code body.
func NewCode() *CodeBuilder {
	return &CodeBuilder{labels: make(map[string]int)}
}

// Op appends an instruction with literal operand bytes.
func (c *CodeBuilder) Op(op byte, operands ...byte) *CodeBuilder {
	c.buf = append(c.buf, op)
	c.buf = append(c.buf, operands...)
	return c
}

// Mark binds label to the current offset.
func (c *CodeBuilder) Mark(label string) *CodeBuilder {
	if _, ok := c.labels[label]; ok {
		panic(fmt.Sprintf("label %q bound twice", label))
	}
	c.labels[label] = len(c.buf)
	return c
}

// Jump appends a branch with a 16-bit offset, or a 32-bit offset for
// goto_w and jsr_w.
func (c *CodeBuilder) Jump(op byte, label string) *CodeBuilder {
	from := len(c.buf)
	c.buf = append(c.buf, op)
	wide := op == 0xc8 || op == 0xc9
	c.fixups = append(c.fixups, fixup{at: len(c.buf), from: from, label: label, wide: wide})
	if wide {
		c.buf = append(c.buf, 0, 0, 0, 0)
	} else {
		c.buf = append(c.buf, 0, 0)
	}
	return c
}

// Invoke appends an invoke instruction referencing pool index idx.
func (c *CodeBuilder) Invoke(op byte, idx uint16) *CodeBuilder {
	c.buf = append(c.buf, op, byte(idx>>8), byte(idx))
	switch op {
	case 0xb9: // invokeinterface
		c.buf = append(c.buf, 1, 0)
	case 0xba: // invokedynamic
		c.buf = append(c.buf, 0, 0)
	}
	return c
}

// TableSwitch appends a tableswitch over low..low+len(labels)-1.
func (c *CodeBuilder) TableSwitch(dflt string, low int32, labels ...string) *CodeBuilder {
	from := c.switchHeader(0xaa, dflt)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(low))
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(low+int32(len(labels))-1))
	for _, l := range labels {
		c.offset32(from, l)
	}
	return c
}

// LookupSwitch appends a lookupswitch; keys and labels pair up by index.
func (c *CodeBuilder) LookupSwitch(dflt string, keys []int32, labels []string) *CodeBuilder {
	if len(keys) != len(labels) {
		panic("lookupswitch keys and labels differ in length")
	}
	from := c.switchHeader(0xab, dflt)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(len(keys)))
	for i, k := range keys {
		c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(k))
		c.offset32(from, labels[i])
	}
	return c
}

func (c *CodeBuilder) switchHeader(op byte, dflt string) int {
	from := len(c.buf)
	c.buf = append(c.buf, op)
	for len(c.buf)%4 != 0 {
		c.buf = append(c.buf, 0)
	}
	c.offset32(from, dflt)
	return from
}

func (c *CodeBuilder) offset32(from int, label string) {
	c.fixups = append(c.fixups, fixup{at: len(c.buf), from: from, label: label, wide: true})
	c.buf = append(c.buf, 0, 0, 0, 0)
}

// Offset returns the current code length.
func (c *CodeBuilder) Offset() int {
	return len(c.buf)
}

// Pos returns the offset bound to label.
func (c *CodeBuilder) Pos(label string) int {
	pos, ok := c.labels[label]
	if !ok {
		panic(fmt.Sprintf("unknown label %q", label))
	}
	return pos
}

// Bytes resolves branch offsets and returns the code.
func (c *CodeBuilder) Bytes() []byte {
	out := append([]byte(nil), c.buf...)
	for _, f := range c.fixups {
		rel := c.Pos(f.label) - f.from
		if f.wide {
			binary.BigEndian.PutUint32(out[f.at:], uint32(int32(rel)))
			continue
		}
		if rel < math.MinInt16 || rel > math.MaxInt16 {
			panic(fmt.Sprintf("branch to %q out of range", f.label))
		}
		binary.BigEndian.PutUint16(out[f.at:], uint16(int16(rel)))
	}
	return out
}
