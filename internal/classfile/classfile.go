// Package classfile parses the parts of JVM class files needed to replay
// probe assignment: the constant pool, fields, methods and their Code
// attributes with exception, line number and local variable tables.
package classfile

import (
	"fmt"
)

// Magic is the first word of every class file.
const Magic uint32 = 0xCAFEBABE

// Access flags.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccBridge       uint16 = 0x0040
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
	AccModule       uint16 = 0x8000
)

// Members that mark a class as already instrumented for coverage.
const (
	InitMethodName = "$jacocoInit"
	DataFieldName  = "$jacocoData"
)

// ClassFile is a parsed class.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	AccessFlags  uint16
	Name         string
	SuperName    string
	Interfaces   []string
	Fields       []Field
	Methods      []Method
	Pool         ConstantPool
}

// Field is a declared field.
type Field struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
}

// Method is a declared method. Code is nil for abstract and native methods.
type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *Code
}

// Code is the body of a method.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []ExceptionHandler
	LineNumbers    []LineNumber
	LocalVariables []LocalVariable
}

// ExceptionHandler is one exception table row. CatchType is empty for
// finally blocks.
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType string
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC int
	Line    int
}

// LocalVariable is the live range of a local variable from either the
// LocalVariableTable or the LocalVariableTypeTable.
type LocalVariable struct {
	StartPC int
	Length  int
	Index   int
}

// Parse decodes a class file.
func Parse(b []byte) (*ClassFile, error) {
	r := newReader(b)

	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("%w: %#08x", ErrInvalidMagic, magic)
	}
	cf := &ClassFile{
		MinorVersion: r.u2(),
		MajorVersion: r.u2(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read header: %w", r.err)
	}

	pool, err := readConstantPool(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read constant pool: %w", err)
	}
	cf.Pool = pool

	cf.AccessFlags = r.u2()
	thisClass := r.u2()
	superClass := r.u2()
	interfaces := make([]uint16, r.u2())
	for i := range interfaces {
		interfaces[i] = r.u2()
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to read class info: %w", r.err)
	}

	if cf.Name, err = pool.ClassName(thisClass); err != nil {
		return nil, fmt.Errorf("failed to resolve this_class: %w", err)
	}
	if superClass != 0 {
		if cf.SuperName, err = pool.ClassName(superClass); err != nil {
			return nil, fmt.Errorf("failed to resolve super_class: %w", err)
		}
	}
	for _, idx := range interfaces {
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve interface: %w", err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	fieldCount := int(r.u2())
	for i := 0; i < fieldCount; i++ {
		f, err := readField(r, pool)
		if err != nil {
			return nil, fmt.Errorf("failed to read field %d: %w", i, err)
		}
		cf.Fields = append(cf.Fields, f)
	}

	methodCount := int(r.u2())
	for i := 0; i < methodCount; i++ {
		m, err := readMethod(r, pool)
		if err != nil {
			return nil, fmt.Errorf("failed to read method %d: %w", i, err)
		}
		cf.Methods = append(cf.Methods, m)
	}

	// Class attributes carry nothing probe assignment depends on.
	if err := skipAttributes(r); err != nil {
		return nil, fmt.Errorf("failed to read class attributes: %w", err)
	}
	return cf, nil
}

// IsSynthetic reports whether the class is compiler generated.
func (cf *ClassFile) IsSynthetic() bool { return cf.AccessFlags&AccSynthetic != 0 }

// IsModule reports whether the class is a module-info descriptor.
func (cf *ClassFile) IsModule() bool { return cf.AccessFlags&AccModule != 0 }

// IsInterface reports whether the class is an interface.
func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }

// PackageName returns the VM package name, empty for the default package.
func (cf *ClassFile) PackageName() string {
	for i := len(cf.Name) - 1; i >= 0; i-- {
		if cf.Name[i] == '/' {
			return cf.Name[:i]
		}
	}
	return ""
}

// IsInstrumented reports whether the class already carries coverage
// instrumentation members.
func (cf *ClassFile) IsInstrumented() bool {
	for _, m := range cf.Methods {
		if m.Name == InitMethodName {
			return true
		}
	}
	for _, f := range cf.Fields {
		if f.Name == DataFieldName {
			return true
		}
	}
	return false
}

// IsSynthetic reports whether the method is compiler generated.
func (m *Method) IsSynthetic() bool { return m.AccessFlags&AccSynthetic != 0 }

// IsAbstract reports whether the method is abstract.
func (m *Method) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// IsNative reports whether the method is native.
func (m *Method) IsNative() bool { return m.AccessFlags&AccNative != 0 }

func readMember(r *reader, pool ConstantPool) (access uint16, name, desc string, err error) {
	access = r.u2()
	nameIdx := r.u2()
	descIdx := r.u2()
	if r.err != nil {
		return 0, "", "", r.err
	}
	if name, err = pool.UTF8(nameIdx); err != nil {
		return 0, "", "", err
	}
	if desc, err = pool.UTF8(descIdx); err != nil {
		return 0, "", "", err
	}
	return access, name, desc, nil
}

func readField(r *reader, pool ConstantPool) (Field, error) {
	access, name, desc, err := readMember(r, pool)
	if err != nil {
		return Field{}, err
	}
	if err := skipAttributes(r); err != nil {
		return Field{}, err
	}
	return Field{AccessFlags: access, Name: name, Descriptor: desc}, nil
}

func readMethod(r *reader, pool ConstantPool) (Method, error) {
	access, name, desc, err := readMember(r, pool)
	if err != nil {
		return Method{}, err
	}
	m := Method{AccessFlags: access, Name: name, Descriptor: desc}

	count := int(r.u2())
	for i := 0; i < count; i++ {
		attrName, body, err := readAttribute(r, pool)
		if err != nil {
			return Method{}, err
		}
		if attrName != "Code" {
			continue
		}
		if m.Code, err = readCode(body, pool); err != nil {
			return Method{}, fmt.Errorf("%s%s: %w", name, desc, err)
		}
	}
	return m, nil
}

func readAttribute(r *reader, pool ConstantPool) (string, []byte, error) {
	nameIdx := r.u2()
	body := r.bytes(int(r.u4()))
	if r.err != nil {
		return "", nil, r.err
	}
	name, err := pool.UTF8(nameIdx)
	if err != nil {
		return "", nil, fmt.Errorf("attribute name: %w", err)
	}
	return name, body, nil
}

func skipAttributes(r *reader) error {
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		r.skip(2)
		r.skip(int(r.u4()))
	}
	return r.err
}

func readCode(body []byte, pool ConstantPool) (*Code, error) {
	r := newReader(body)
	c := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	codeLen := int(r.u4())
	if r.err == nil && (codeLen == 0 || codeLen > 0xFFFF) {
		return nil, fmt.Errorf("%w: code length %d", ErrInvalidCode, codeLen)
	}
	c.Bytecode = r.bytes(codeLen)

	handlers := int(r.u2())
	for i := 0; i < handlers && r.err == nil; i++ {
		h := ExceptionHandler{
			StartPC:   int(r.u2()),
			EndPC:     int(r.u2()),
			HandlerPC: int(r.u2()),
		}
		catchType := r.u2()
		if r.err != nil {
			break
		}
		if h.StartPC >= codeLen || h.EndPC > codeLen || h.HandlerPC >= codeLen || h.StartPC >= h.EndPC {
			return nil, fmt.Errorf("%w: exception range %d..%d handler %d", ErrInvalidCode, h.StartPC, h.EndPC, h.HandlerPC)
		}
		if catchType != 0 {
			name, err := pool.ClassName(catchType)
			if err != nil {
				return nil, fmt.Errorf("catch type: %w", err)
			}
			h.CatchType = name
		}
		c.ExceptionTable = append(c.ExceptionTable, h)
	}

	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		name, attr, err := readAttribute(r, pool)
		if err != nil {
			return nil, err
		}
		switch name {
		case "LineNumberTable":
			if err := c.readLineNumbers(attr); err != nil {
				return nil, fmt.Errorf("LineNumberTable: %w", err)
			}
		case "LocalVariableTable", "LocalVariableTypeTable":
			if err := c.readLocalVariables(attr); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// readLineNumbers keeps entries in table order. Entries pointing at or past
// the end of the code are dropped.
func (c *Code) readLineNumbers(attr []byte) error {
	r := newReader(attr)
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		ln := LineNumber{StartPC: int(r.u2()), Line: int(r.u2())}
		if r.err == nil && ln.StartPC < len(c.Bytecode) {
			c.LineNumbers = append(c.LineNumbers, ln)
		}
	}
	return r.err
}

func (c *Code) readLocalVariables(attr []byte) error {
	r := newReader(attr)
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		lv := LocalVariable{StartPC: int(r.u2()), Length: int(r.u2())}
		r.skip(4) // name and descriptor or signature
		lv.Index = int(r.u2())
		if r.err != nil {
			break
		}
		if lv.StartPC+lv.Length > len(c.Bytecode) {
			return fmt.Errorf("%w: variable range %d+%d", ErrInvalidCode, lv.StartPC, lv.Length)
		}
		c.LocalVariables = append(c.LocalVariables, lv)
	}
	return r.err
}
