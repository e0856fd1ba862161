package classfile

import "errors"

// Parse errors.
var (
	ErrInvalidMagic     = errors.New("invalid class file magic")
	ErrTruncated        = errors.New("truncated class file")
	ErrInvalidConstant  = errors.New("invalid constant pool entry")
	ErrInvalidCode      = errors.New("invalid code attribute")
	ErrInvalidOpcode    = errors.New("invalid opcode")
	ErrInvalidTarget    = errors.New("branch target out of range")
	ErrUnsupportedClass = errors.New("unsupported class file")
)
