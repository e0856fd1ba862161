package execdata

import "errors"

var (
	// ErrInvalidFile is returned when a stream does not start with a valid header.
	ErrInvalidFile = errors.New("invalid execution data file")

	// ErrIncompatibleVersion is returned for exec versions other than 0x1007.
	ErrIncompatibleVersion = errors.New("incompatible execution data version")

	// ErrUnknownBlock is returned for an unknown block type.
	ErrUnknownBlock = errors.New("unknown block type")

	// ErrIncompatibleData is returned when two entries for one id disagree on
	// name or probe count.
	ErrIncompatibleData = errors.New("incompatible execution data")

	// ErrStringTooLong is returned when a name exceeds the u2 length prefix.
	ErrStringTooLong = errors.New("encoded string too long")

	// ErrMalformedString is returned for invalid modified UTF-8.
	ErrMalformedString = errors.New("malformed modified UTF-8")
)
