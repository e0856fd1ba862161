package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoco-filter/internal/probes"
)

func sampleProbes() *probes.ClassProbes {
	return &probes.ClassProbes{
		Name:  "com/acme/A",
		ID:    0xfeedface12345678,
		Total: 4,
		Methods: []probes.MethodProbes{
			{Name: "compute", Descriptor: "()V", AccessFlags: 1, Probes: []int{0}},
			{Name: "toString", Descriptor: "()Ljava/lang/String;", AccessFlags: 1, Probes: []int{1, 2, 3}},
		},
	}
}

func TestProbeCache_InMemory(t *testing.T) {
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, sampleProbes()))

	got, ok, err := c.Get(ctx, sampleProbes().ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleProbes(), got)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProbeCache_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, sampleProbes()))
	require.NoError(t, c.Close())

	reopened, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, sampleProbes().ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, got.Methods[1].Probes)
}

func TestProbeCache_Errors(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.Get(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Put(ctx, sampleProbes()), context.Canceled)
}
