package execdata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jacoco-filter/internal/mutf8"
)

// Writer encodes exec blocks. The header is written by NewWriter.
// Flush must be called once all blocks are written.
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter creates a writer and emits the file header.
func NewWriter(w io.Writer) (*Writer, error) {
	ew := &Writer{
		w:   bufio.NewWriterSize(w, 64*1024),
		buf: make([]byte, 0, 256),
	}
	ew.buf = append(ew.buf[:0], byte(BlockHeader))
	ew.buf = binary.BigEndian.AppendUint16(ew.buf, MagicNumber)
	ew.buf = binary.BigEndian.AppendUint16(ew.buf, FormatVersion)
	if err := ew.flushBlock(); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return ew, nil
}

// WriteSessionInfo writes a session block.
func (w *Writer) WriteSessionInfo(s SessionInfo) error {
	var err error
	w.buf = append(w.buf[:0], byte(BlockSessionInfo))
	if w.buf, err = appendUTF(w.buf, s.ID); err != nil {
		return fmt.Errorf("session %q: %w", s.ID, err)
	}
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(s.Start))
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(s.Dump))
	return w.flushBlock()
}

// WriteExecutionData writes one class entry.
func (w *Writer) WriteExecutionData(d *ExecutionData) error {
	var err error
	w.buf = append(w.buf[:0], byte(BlockExecutionData))
	w.buf = binary.BigEndian.AppendUint64(w.buf, d.ID)
	if w.buf, err = appendUTF(w.buf, d.Name); err != nil {
		return fmt.Errorf("class %s: %w", d.Name, err)
	}
	w.buf = appendBooleanArray(w.buf, d.Probes)
	return w.flushBlock()
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) flushBlock() error {
	_, err := w.w.Write(w.buf)
	return err
}

func appendUTF(dst []byte, s string) ([]byte, error) {
	n := mutf8.EncodedLen(s)
	if n > 0xFFFF {
		return dst, ErrStringTooLong
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	return mutf8.Encode(dst, s), nil
}

// appendBooleanArray writes a varint length followed by the values packed
// eight per byte, least significant bit first.
func appendBooleanArray(dst []byte, values []bool) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(values)))
	var cur byte
	var n uint
	for _, v := range values {
		if v {
			cur |= 1 << n
		}
		n++
		if n == 8 {
			dst = append(dst, cur)
			cur, n = 0, 0
		}
	}
	if n > 0 {
		dst = append(dst, cur)
	}
	return dst
}
