package execdata

import (
	"fmt"
	"time"
)

// BlockType identifies a block in an execution data stream.
type BlockType uint8

// Block types of exec format 0x1007.
const (
	BlockHeader        BlockType = 0x01
	BlockSessionInfo   BlockType = 0x10
	BlockExecutionData BlockType = 0x11
)

const (
	// MagicNumber follows every header block.
	MagicNumber uint16 = 0xC0C0
	// FormatVersion is the only exec version read and written.
	FormatVersion uint16 = 0x1007
)

// SessionInfo describes one data collection session.
// Start and Dump are milliseconds since the Unix epoch.
type SessionInfo struct {
	ID    string `json:"id" yaml:"id"`
	Start int64  `json:"start" yaml:"start"`
	Dump  int64  `json:"dump" yaml:"dump"`
}

// NewSessionInfo creates a session from wall-clock times.
func NewSessionInfo(id string, start, dump time.Time) SessionInfo {
	return SessionInfo{ID: id, Start: start.UnixMilli(), Dump: dump.UnixMilli()}
}

// StartTime returns Start as a time.Time.
func (s SessionInfo) StartTime() time.Time {
	return time.UnixMilli(s.Start)
}

// DumpTime returns Dump as a time.Time.
func (s SessionInfo) DumpTime() time.Time {
	return time.UnixMilli(s.Dump)
}

// ExecutionData is the probe vector of a single class.
type ExecutionData struct {
	ID     uint64 `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Probes []bool `json:"probes" yaml:"probes"`
}

// NewExecutionData creates an entry with probeCount unset probes.
func NewExecutionData(id uint64, name string, probeCount int) *ExecutionData {
	return &ExecutionData{ID: id, Name: name, Probes: make([]bool, probeCount)}
}

// AssertCompatible fails when the entry cannot describe the given class.
func (d *ExecutionData) AssertCompatible(id uint64, name string, probeCount int) error {
	if d.ID != id {
		return fmt.Errorf("%w: ids %016x and %016x", ErrIncompatibleData, d.ID, id)
	}
	if d.Name != name {
		return fmt.Errorf("%w: different class names %s and %s for id %016x",
			ErrIncompatibleData, d.Name, name, id)
	}
	if len(d.Probes) != probeCount {
		return fmt.Errorf("%w: class %s with id %016x has %d probes, expected %d",
			ErrIncompatibleData, name, id, len(d.Probes), probeCount)
	}
	return nil
}

// Merge ORs other's probes into d.
func (d *ExecutionData) Merge(other *ExecutionData) error {
	if err := d.AssertCompatible(other.ID, other.Name, len(other.Probes)); err != nil {
		return err
	}
	for i, hit := range other.Probes {
		if hit {
			d.Probes[i] = true
		}
	}
	return nil
}

// HitCount returns the number of probes set.
func (d *ExecutionData) HitCount() int {
	n := 0
	for _, hit := range d.Probes {
		if hit {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (d *ExecutionData) Clone() *ExecutionData {
	probes := make([]bool, len(d.Probes))
	copy(probes, d.Probes)
	return &ExecutionData{ID: d.ID, Name: d.Name, Probes: probes}
}

// String renders the entry as "name id=... hits/probes".
func (d *ExecutionData) String() string {
	return fmt.Sprintf("%s id=%016x %d/%d", d.Name, d.ID, d.HitCount(), len(d.Probes))
}
