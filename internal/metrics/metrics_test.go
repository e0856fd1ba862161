package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveClass("updated")
	m.ObserveClass("updated")
	m.ObserveClass("not_found")
	m.AddProbesMarked(5)
	m.AddProbesMarked(-1)
	m.SetRecordEntries(12)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObservePhase("filter", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClassesTotal.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassesTotal.WithLabelValues("not_found")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ProbesMarked))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.RecordEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	m.ObserveClass("updated")
	m.AddProbesMarked(1)
	m.ObservePhase("save", time.Second)
	m.SetRecordEntries(1)
	m.ObserveCache(true)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveClass("created")
	m.AddProbesMarked(3)

	path := filepath.Join(t.TempDir(), "filter.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `jacoco_filter_classes_total{outcome="created"} 1`), text)
	assert.True(t, strings.Contains(text, "jacoco_filter_probes_marked_total 3"), text)
}
