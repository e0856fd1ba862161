package execdata

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/pkg/compression"
)

// sampleBytes is a hand-assembled record: header, session "s" (1, 2) and
// class "A" with nine probes, hits at 1, 3, 4 and 8.
var sampleBytes = []byte{
	0x01, 0xC0, 0xC0, 0x10, 0x07,
	0x10, 0x00, 0x01, 's',
	0, 0, 0, 0, 0, 0, 0, 1,
	0, 0, 0, 0, 0, 0, 0, 2,
	0x11, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x00, 0x01, 'A',
	0x09, 0x1A, 0x01,
}

func sampleProbes() []bool {
	return []bool{false, true, false, true, true, false, false, false, true}
}

func TestLoad_HandAssembled(t *testing.T) {
	store, err := Load(bytes.NewReader(sampleBytes))
	require.NoError(t, err)

	require.Len(t, store.Sessions(), 1)
	assert.Equal(t, SessionInfo{ID: "s", Start: 1, Dump: 2}, store.Sessions()[0])

	require.Equal(t, 1, store.Len())
	d := store.Get(0x0102030405060708)
	require.NotNil(t, d)
	assert.Equal(t, "A", d.Name)
	assert.Equal(t, sampleProbes(), d.Probes)
	assert.Equal(t, 4, d.HitCount())
}

func TestSave_HandAssembled(t *testing.T) {
	store := NewStore()
	store.AddSession(SessionInfo{ID: "s", Start: 1, Dump: 2})
	require.NoError(t, store.Put(&ExecutionData{ID: 0x0102030405060708, Name: "A", Probes: sampleProbes()}))

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, store))
	assert.Equal(t, sampleBytes, buf.Bytes())
}

func TestLoad_Empty(t *testing.T) {
	store, err := Load(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.Sessions())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		target error
	}{
		{"missing header", []byte{0x10, 0x00, 0x00}, ErrInvalidFile},
		{"bad magic", []byte{0x01, 0xC0, 0xC1, 0x10, 0x07}, ErrInvalidFile},
		{"old version", []byte{0x01, 0xC0, 0xC0, 0x10, 0x06}, ErrIncompatibleVersion},
		{"unknown block", []byte{0x01, 0xC0, 0xC0, 0x10, 0x07, 0x22}, ErrUnknownBlock},
		{"truncated header", []byte{0x01, 0xC0}, io.ErrUnexpectedEOF},
		{"truncated session", sampleBytes[:12], io.ErrUnexpectedEOF},
		{"truncated probes", sampleBytes[:len(sampleBytes)-1], io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoad_RepeatedHeaderAndMerge(t *testing.T) {
	// Two concatenated dumps of the same class merge with OR.
	second := append([]byte{}, sampleBytes...)
	second[len(second)-2] = 0x04 // hit probe 2 instead of 1, 3, 4
	second[len(second)-1] = 0x00

	data := append(append([]byte{}, sampleBytes...), second...)
	store, err := Load(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Len(t, store.Sessions(), 2)
	require.Equal(t, 1, store.Len())
	assert.Equal(t,
		[]bool{false, true, true, true, true, false, false, false, true},
		store.Entries()[0].Probes)
}

func TestStore_PutIncompatible(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(NewExecutionData(1, "A", 3)))

	err := store.Put(NewExecutionData(1, "B", 3))
	assert.ErrorIs(t, err, ErrIncompatibleData)

	err = store.Put(NewExecutionData(1, "A", 4))
	assert.ErrorIs(t, err, ErrIncompatibleData)
}

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore()

	d, created, err := store.GetOrCreate(7, "com/acme/B", 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []bool{false, false}, d.Probes)

	again, created, err := store.GetOrCreate(7, "com/acme/B", 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, d, again)

	_, _, err = store.GetOrCreate(7, "com/acme/B", 3)
	assert.ErrorIs(t, err, ErrIncompatibleData)

	assert.Equal(t, []uint64{7}, store.IDsByName("com/acme/B"))
	assert.True(t, store.Contains(7))
	assert.False(t, store.Contains(8))
}

func TestStore_InsertionOrder(t *testing.T) {
	store := NewStore()
	for _, id := range []uint64{30, 10, 20} {
		require.NoError(t, store.Put(NewExecutionData(id, "C", 1)))
	}

	var ids []uint64
	for _, d := range store.Entries() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []uint64{30, 10, 20}, ids)
}

func TestStore_NormalizeSessions(t *testing.T) {
	start := time.UnixMilli(1000)
	dump := time.UnixMilli(5000)

	t.Run("Synthesized", func(t *testing.T) {
		store := NewStore()
		s := store.NormalizeSessions(start, dump)
		assert.Equal(t, SessionInfo{ID: DefaultSessionID, Start: 1000, Dump: 5000}, s)
		assert.Equal(t, []SessionInfo{s}, store.Sessions())
	})

	t.Run("Single", func(t *testing.T) {
		store := NewStore()
		store.AddSession(SessionInfo{ID: "ci", Start: 10, Dump: 20})
		s := store.NormalizeSessions(start, dump)
		assert.Equal(t, SessionInfo{ID: "ci", Start: 10, Dump: 20}, s)
	})

	t.Run("Merged", func(t *testing.T) {
		store := NewStore()
		store.AddSession(SessionInfo{ID: "a", Start: 50, Dump: 60})
		store.AddSession(SessionInfo{ID: "b", Start: 10, Dump: 40})
		store.AddSession(SessionInfo{ID: "c", Start: 70, Dump: 90})
		s := store.NormalizeSessions(start, dump)
		assert.Equal(t, SessionInfo{ID: "a", Start: 10, Dump: 90}, s)
		assert.Len(t, store.Sessions(), 1)
	})
}

func TestStore_Clone(t *testing.T) {
	store := NewStore()
	store.AddSession(SessionInfo{ID: "s"})
	require.NoError(t, store.Put(NewExecutionData(1, "A", 2)))

	c := store.Clone()
	c.Get(1).Probes[0] = true

	assert.False(t, store.Get(1).Probes[0])
	assert.Equal(t, store.Sessions(), c.Sessions())
}

func TestRoundTrip_LargeVector(t *testing.T) {
	probes := make([]bool, 300) // length needs a two byte varint
	for i := range probes {
		probes[i] = i%7 == 0
	}
	store := NewStore()
	require.NoError(t, store.Put(&ExecutionData{ID: 42, Name: "com/acme/Δ", Probes: probes}))

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, store))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, probes, loaded.Get(42).Probes)
	assert.Equal(t, "com/acme/Δ", loaded.Get(42).Name)
}

func TestFile_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(bytes.NewReader(sampleBytes))
	require.NoError(t, err)

	for _, typ := range []compression.Type{compression.TypeNone, compression.TypeGzip, compression.TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			comp, err := compression.New(typ, compression.LevelDefault)
			require.NoError(t, err)
			defer compression.Close(comp)

			path := filepath.Join(dir, "out-"+typ.String()+".exec")
			require.NoError(t, SaveFile(path, store, comp))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, sampleProbes(), loaded.Get(0x0102030405060708).Probes)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.NotContains(t, e.Name(), ".exec.", "temp file left behind")
			}
		})
	}
}

func TestFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.exec"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = SaveFile(filepath.Join(t.TempDir(), "no", "such", "dir.exec"), NewStore(), nil)
	assert.Error(t, err)
}

// referenceChecksum is the straightforward table-driven CRC64 with the
// reflected ISO polynomial, zero init and no final XOR.
func referenceChecksum(b []byte) uint64 {
	var table [256]uint64
	for i := range table {
		v := uint64(i)
		for j := 0; j < 8; j++ {
			if v&1 == 1 {
				v = (v >> 1) ^ 0xD800000000000000
			} else {
				v >>= 1
			}
		}
		table[i] = v
	}
	var sum uint64
	for _, c := range b {
		sum = (sum >> 8) ^ table[byte(sum)^c]
	}
	return sum
}

func TestChecksum(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("123456789"),
		bytes.Repeat([]byte{0xCA, 0xFE, 0xBA, 0xBE}, 100),
	}
	for _, in := range inputs {
		assert.Equal(t, referenceChecksum(in), Checksum(in), "input %q", in)
	}
	assert.Equal(t, uint64(0), Checksum(nil))
}

func TestClassID_Java9(t *testing.T) {
	java8 := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x00, 0x00, 52, 0x00, 0x10, 0x01}
	java9 := append([]byte{}, java8...)
	java9[7] = 53
	java11 := append([]byte{}, java8...)
	java11[7] = 55

	assert.Equal(t, Checksum(java8), ClassID(java8))
	assert.Equal(t, ClassID(java8), ClassID(java9))
	assert.NotEqual(t, ClassID(java8), ClassID(java11))
	assert.Equal(t, uint64(53), uint64(java9[7]), "input must not be modified")
}
