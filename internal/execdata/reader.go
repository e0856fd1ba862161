package execdata

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jacoco-filter/internal/mutf8"
)

// Reader decodes the block stream of an exec file.
type Reader struct {
	r          *bufio.Reader
	buf        []byte
	firstBlock bool
}

// NewReader creates a new exec stream reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:          bufio.NewReaderSize(r, 64*1024),
		buf:        make([]byte, 8),
		firstBlock: true,
	}
}

// Visitor receives decoded blocks. Either callback may be nil.
type Visitor struct {
	Session       func(SessionInfo) error
	ExecutionData func(*ExecutionData) error
}

// ReadAll decodes blocks until a clean end of stream. An empty stream is
// valid and yields no blocks.
func (r *Reader) ReadAll(v Visitor) error {
	for {
		b, err := r.r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		typ := BlockType(b)
		if r.firstBlock && typ != BlockHeader {
			return ErrInvalidFile
		}
		r.firstBlock = false

		if err := r.readBlock(typ, v); err != nil {
			return err
		}
	}
}

func (r *Reader) readBlock(typ BlockType, v Visitor) error {
	switch typ {
	case BlockHeader:
		return r.readHeader()
	case BlockSessionInfo:
		s, err := r.readSessionInfo()
		if err != nil {
			return fmt.Errorf("failed to read session info: %w", err)
		}
		if v.Session != nil {
			return v.Session(s)
		}
		return nil
	case BlockExecutionData:
		d, err := r.readExecutionData()
		if err != nil {
			return fmt.Errorf("failed to read execution data: %w", err)
		}
		if v.ExecutionData != nil {
			return v.ExecutionData(d)
		}
		return nil
	default:
		return fmt.Errorf("%w %#02x", ErrUnknownBlock, uint8(typ))
	}
}

func (r *Reader) readHeader() error {
	magic, err := r.readUint16()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if magic != MagicNumber {
		return ErrInvalidFile
	}
	version, err := r.readUint16()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if version != FormatVersion {
		return fmt.Errorf("%w %#04x, expected %#04x", ErrIncompatibleVersion, version, FormatVersion)
	}
	return nil
}

func (r *Reader) readSessionInfo() (SessionInfo, error) {
	id, err := r.readUTF()
	if err != nil {
		return SessionInfo{}, err
	}
	start, err := r.readUint64()
	if err != nil {
		return SessionInfo{}, err
	}
	dump, err := r.readUint64()
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{ID: id, Start: int64(start), Dump: int64(dump)}, nil
}

func (r *Reader) readExecutionData() (*ExecutionData, error) {
	id, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	name, err := r.readUTF()
	if err != nil {
		return nil, err
	}
	probes, err := r.readBooleanArray()
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", name, err)
	}
	return &ExecutionData{ID: id, Name: name, Probes: probes}, nil
}

func (r *Reader) readUint16() (uint16, error) {
	if _, err := io.ReadFull(r.r, r.buf[:2]); err != nil {
		return 0, eofIsUnexpected(err)
	}
	return binary.BigEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) readUint64() (uint64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:8]); err != nil {
		return 0, eofIsUnexpected(err)
	}
	return binary.BigEndian.Uint64(r.buf[:8]), nil
}

func (r *Reader) readUTF() (string, error) {
	n, err := r.readUint16()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", eofIsUnexpected(err)
	}
	s, err := mutf8.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedString, err)
	}
	return s, nil
}

// readVarInt reads an unsigned LEB128 value that must fit in an int32.
func (r *Reader) readVarInt() (int, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, eofIsUnexpected(err)
	}
	if v > 1<<31-1 {
		return 0, fmt.Errorf("varint %d out of range", v)
	}
	return int(v), nil
}

func (r *Reader) readBooleanArray() ([]bool, error) {
	n, err := r.readVarInt()
	if err != nil {
		return nil, err
	}
	probes := make([]bool, n)
	var cur byte
	for i := range probes {
		if i%8 == 0 {
			cur, err = r.r.ReadByte()
			if err != nil {
				return nil, eofIsUnexpected(err)
			}
		}
		probes[i] = cur&0x01 != 0
		cur >>= 1
	}
	return probes, nil
}

// eofIsUnexpected turns a clean EOF inside a block into io.ErrUnexpectedEOF.
func eofIsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
