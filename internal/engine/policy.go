package engine

import (
	"fmt"
	"strings"
)

// MismatchPolicy decides what happens to a class whose current bytes have
// an id the record does not know, while the record holds the same class
// name under another id.
type MismatchPolicy string

const (
	// MismatchAdd inserts a fresh vector under the new id and leaves the
	// stale entry untouched.
	MismatchAdd MismatchPolicy = "add"
	// MismatchSkip leaves the class alone.
	MismatchSkip MismatchPolicy = "skip"
)

// ParseMismatchPolicy parses a policy name. An empty name selects
// MismatchAdd.
func ParseMismatchPolicy(s string) (MismatchPolicy, error) {
	switch MismatchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MismatchAdd:
		return MismatchAdd, nil
	case MismatchSkip:
		return MismatchSkip, nil
	}
	return "", fmt.Errorf("unknown mismatch policy %q (want add or skip)", s)
}
