package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Phases(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("filter", WithClock(clock))

	load := timer.Start("load")
	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, load.Stop())

	analyze := timer.Start("analyze")
	clock.Advance(50 * time.Millisecond)
	analyze.Stop()
	clock.Advance(time.Second)
	assert.Equal(t, 50*time.Millisecond, analyze.Stop(), "second stop is ignored")

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "load", phases[0].Name)
	assert.Equal(t, "analyze", phases[1].Name)
	assert.Equal(t, 50*time.Millisecond, timer.Duration("analyze"))
	assert.Equal(t, time.Duration(0), timer.Duration("missing"))
	assert.Equal(t, 1070*time.Millisecond, timer.Total())
}

func TestTimer_Log(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("filter", WithClock(clock))
	p := timer.Start("save")
	clock.Advance(time.Millisecond)
	p.Stop()

	buf := &bytes.Buffer{}
	timer.Log(NewDefaultLogger(LevelDebug, buf))

	assert.Contains(t, buf.String(), "=== filter timing ===")
	assert.Contains(t, buf.String(), "phase 1 - save: 1ms")

	timer.Log(nil)
}
