// Package execdata reads, merges and writes coverage execution records in
// exec format 0x1007.
//
// A record is a header block followed by session blocks and per-class
// execution data blocks. Store keeps entries in first-seen order so that
// writing the same store twice yields identical bytes.
package execdata

import (
	"io"
	"time"
)

// DefaultSessionID names sessions synthesized by the filter.
const DefaultSessionID = "method-filter"

// Store is an insertion-ordered collection of execution data keyed by class
// id, plus the sessions read with it. A Store is not safe for concurrent
// mutation.
type Store struct {
	entries  []*ExecutionData
	byID     map[uint64]int
	byName   map[string][]uint64
	sessions []SessionInfo
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[uint64]int),
		byName: make(map[string][]uint64),
	}
}

// Load decodes an exec stream into a new store. Entries sharing an id are
// merged.
func Load(r io.Reader) (*Store, error) {
	s := NewStore()
	err := NewReader(r).ReadAll(Visitor{
		Session: func(info SessionInfo) error {
			s.AddSession(info)
			return nil
		},
		ExecutionData: s.Put,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the header, every session and every entry in store order.
func Save(w io.Writer, s *Store) error {
	ew, err := NewWriter(w)
	if err != nil {
		return err
	}
	for _, info := range s.sessions {
		if err := ew.WriteSessionInfo(info); err != nil {
			return err
		}
	}
	for _, d := range s.entries {
		if err := ew.WriteExecutionData(d); err != nil {
			return err
		}
	}
	return ew.Flush()
}

// Put adds d, or merges it into the entry with the same id. The store takes
// ownership of d when it is new.
func (s *Store) Put(d *ExecutionData) error {
	if existing := s.Get(d.ID); existing != nil {
		return existing.Merge(d)
	}
	s.byID[d.ID] = len(s.entries)
	s.byName[d.Name] = append(s.byName[d.Name], d.ID)
	s.entries = append(s.entries, d)
	return nil
}

// Get returns the entry for id, or nil.
func (s *Store) Get(id uint64) *ExecutionData {
	if i, ok := s.byID[id]; ok {
		return s.entries[i]
	}
	return nil
}

// GetOrCreate returns the entry for id, creating an all-false vector of
// probeCount when absent. An existing entry must agree on name and count.
func (s *Store) GetOrCreate(id uint64, name string, probeCount int) (*ExecutionData, bool, error) {
	if existing := s.Get(id); existing != nil {
		if err := existing.AssertCompatible(id, name, probeCount); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	d := NewExecutionData(id, name, probeCount)
	if err := s.Put(d); err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// IDsByName returns the ids stored under a class name, in insertion order.
func (s *Store) IDsByName(name string) []uint64 {
	return s.byName[name]
}

// Contains reports whether an entry exists for id.
func (s *Store) Contains(id uint64) bool {
	_, ok := s.byID[id]
	return ok
}

// Entries returns the entries in insertion order. The slice must not be
// modified.
func (s *Store) Entries() []*ExecutionData {
	return s.entries
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// AddSession appends a session.
func (s *Store) AddSession(info SessionInfo) {
	s.sessions = append(s.sessions, info)
}

// Sessions returns the sessions in read order.
func (s *Store) Sessions() []SessionInfo {
	return s.sessions
}

// NormalizeSessions collapses the sessions to exactly one. Existing sessions
// merge into the first id with the earliest start and the latest dump. With
// no sessions, one named DefaultSessionID spanning start..dump is created.
func (s *Store) NormalizeSessions(start, dump time.Time) SessionInfo {
	var merged SessionInfo
	if len(s.sessions) == 0 {
		merged = NewSessionInfo(DefaultSessionID, start, dump)
	} else {
		merged = s.sessions[0]
		for _, info := range s.sessions[1:] {
			merged.Start = min(merged.Start, info.Start)
			merged.Dump = max(merged.Dump, info.Dump)
		}
	}
	s.sessions = []SessionInfo{merged}
	return merged
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := NewStore()
	c.sessions = append(c.sessions, s.sessions...)
	for _, d := range s.entries {
		_ = c.Put(d.Clone())
	}
	return c
}
