package classfile

import (
	"fmt"

	"github.com/jacoco-filter/internal/mutf8"
)

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

// Constant pool tags.
const (
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldref           ConstantTag = 9
	TagMethodref          ConstantTag = 10
	TagInterfaceMethodref ConstantTag = 11
	TagNameAndType        ConstantTag = 12
	TagMethodHandle       ConstantTag = 15
	TagMethodType         ConstantTag = 16
	TagDynamic            ConstantTag = 17
	TagInvokeDynamic      ConstantTag = 18
	TagModule             ConstantTag = 19
	TagPackage            ConstantTag = 20
)

// Constant is one constant pool entry. Only Utf8 values and the first two
// index operands are retained; numeric payloads are skipped.
type Constant struct {
	Tag    ConstantTag
	Utf8   string
	Index1 uint16
	Index2 uint16
}

// ConstantPool is indexed from 1. Slot 0 and the slot after a long or
// double constant hold a zero Constant.
type ConstantPool []Constant

func readConstantPool(r *reader) (ConstantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	cp := make(ConstantPool, count)
	for i := 1; i < count; i++ {
		tag := ConstantTag(r.u1())
		c := Constant{Tag: tag}
		switch tag {
		case TagUtf8:
			raw := r.bytes(int(r.u2()))
			if r.err != nil {
				return nil, r.err
			}
			s, err := mutf8.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: utf8 #%d: %v", ErrInvalidConstant, i, err)
			}
			c.Utf8 = s
		case TagInteger, TagFloat:
			r.skip(4)
		case TagLong, TagDouble:
			r.skip(8)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.Index1 = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			c.Index1 = r.u2()
			c.Index2 = r.u2()
		case TagMethodHandle:
			c.Index1 = uint16(r.u1())
			c.Index2 = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: unknown tag %d at #%d", ErrInvalidConstant, tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		cp[i] = c
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return cp, nil
}

func (cp ConstantPool) entry(i uint16, tag ConstantTag) (Constant, error) {
	if i == 0 || int(i) >= len(cp) {
		return Constant{}, fmt.Errorf("%w: index %d out of range", ErrInvalidConstant, i)
	}
	c := cp[i]
	if c.Tag != tag {
		return Constant{}, fmt.Errorf("%w: #%d has tag %d, expected %d", ErrInvalidConstant, i, c.Tag, tag)
	}
	return c, nil
}

// UTF8 returns the string of a Utf8 entry.
func (cp ConstantPool) UTF8(i uint16) (string, error) {
	c, err := cp.entry(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Utf8, nil
}

// ClassName returns the VM name referenced by a Class entry.
func (cp ConstantPool) ClassName(i uint16) (string, error) {
	c, err := cp.entry(i, TagClass)
	if err != nil {
		return "", err
	}
	return cp.UTF8(c.Index1)
}
