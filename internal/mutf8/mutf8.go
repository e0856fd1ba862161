// Package mutf8 encodes and decodes the modified UTF-8 used by class file
// constant pools and by execution data strings.
//
// Modified UTF-8 differs from standard UTF-8 in two ways: U+0000 is written
// as the two bytes C0 80, and characters outside the BMP are written as two
// three-byte surrogates instead of one four-byte sequence.
package mutf8

import (
	"errors"
	"unicode/utf16"
)

// ErrMalformed is returned for byte sequences that are not modified UTF-8.
var ErrMalformed = errors.New("malformed modified UTF-8")

// EncodedLen returns the number of bytes Encode would produce for s.
func EncodedLen(s string) int {
	n := 0
	for _, c := range utf16.Encode([]rune(s)) {
		switch {
		case c >= 0x01 && c <= 0x7F:
			n++
		case c <= 0x7FF:
			n += 2
		default:
			n += 3
		}
	}
	return n
}

// Encode appends the modified UTF-8 form of s to dst.
func Encode(dst []byte, s string) []byte {
	for _, c := range utf16.Encode([]rune(s)) {
		switch {
		case c >= 0x01 && c <= 0x7F:
			dst = append(dst, byte(c))
		case c <= 0x7FF:
			dst = append(dst,
				0xC0|byte(c>>6)&0x1F,
				0x80|byte(c)&0x3F)
		default:
			dst = append(dst,
				0xE0|byte(c>>12)&0x0F,
				0x80|byte(c>>6)&0x3F,
				0x80|byte(c)&0x3F)
		}
	}
	return dst
}

// Decode converts modified UTF-8 bytes to a Go string.
func Decode(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", ErrMalformed
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrMalformed
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", ErrMalformed
			}
			units = append(units,
				uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", ErrMalformed
		}
	}
	return string(utf16.Decode(units)), nil
}
