package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ViewCache, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	c, err := New(config.RedisConfig{Addr: s.Addr()}, ttl, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func sampleView() []topology.Node {
	parent := int64(1)
	color := "blue"
	return []topology.Node{
		{Device: topology.Device{ID: 1, Name: "OLT-1", NodeType: "OLT"}},
		{
			Device:   topology.Device{ID: 2, Name: "PON-1", NodeType: "PON", PositionMode: topology.PositionPinned},
			ParentID: &parent,
			Link:     topology.Link{CableColor: &color},
		},
	}
}

func TestViewCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, gen, ok := c.GetView(ctx, 5, 0)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), gen)

	c.SetView(ctx, 5, 1, gen, sampleView())
	got, _, ok := c.GetView(ctx, 5, 1)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "PON-1", got[1].Name)
	assert.Equal(t, int64(1), *got[1].ParentID)
	assert.Equal(t, "blue", *got[1].CableColor)
	assert.Equal(t, topology.PositionPinned, got[1].PositionMode)

	_, _, ok = c.GetView(ctx, 6, 1)
	assert.False(t, ok, "views are per area")
}

func TestViewCache_InvalidateArea(t *testing.T) {
	c, s := newTestCache(t, time.Minute)
	ctx := context.Background()

	c.SetView(ctx, 5, 0, 0, sampleView())
	c.SetView(ctx, 5, 1, 0, sampleView())
	c.SetView(ctx, 6, 0, 0, sampleView())

	require.NoError(t, c.InvalidateArea(ctx, 5))

	_, gen, ok := c.GetView(ctx, 5, 0)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), gen)
	_, _, ok = c.GetView(ctx, 5, 1)
	assert.False(t, ok)
	_, _, ok = c.GetView(ctx, 6, 0)
	assert.True(t, ok)
	assert.False(t, s.Exists(indexKey(5)))
	assert.False(t, s.Exists(viewKey(5, 0, 0)))

	// Invalidating an area with nothing cached is fine.
	assert.NoError(t, c.InvalidateArea(ctx, 42))
}

func TestViewCache_ViewFromBeforeInvalidationIsNotServed(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	// A reader misses and queries the database...
	_, seen, ok := c.GetView(ctx, 5, 0)
	require.False(t, ok)

	// ...a mutation commits and invalidates meanwhile...
	require.NoError(t, c.InvalidateArea(ctx, 5))

	// ...and the reader stores its outdated result late.
	c.SetView(ctx, 5, 0, seen, sampleView())

	_, current, ok := c.GetView(ctx, 5, 0)
	assert.False(t, ok, "outdated view must not be served")
	assert.NotEqual(t, seen, current)

	c.SetView(ctx, 5, 0, current, sampleView())
	_, _, ok = c.GetView(ctx, 5, 0)
	assert.True(t, ok)
}

func TestViewCache_TTL(t *testing.T) {
	c, s := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	c.SetView(ctx, 5, 0, 0, sampleView())
	assert.Equal(t, 30*time.Second, s.TTL(viewKey(5, 0, 0)))

	s.FastForward(31 * time.Second)
	_, _, ok := c.GetView(ctx, 5, 0)
	assert.False(t, ok)
}

func TestViewCache_CorruptEntryIsAMiss(t *testing.T) {
	c, s := newTestCache(t, time.Minute)
	require.NoError(t, s.Set(viewKey(5, 0, 0), "{not json"))

	_, _, ok := c.GetView(context.Background(), 5, 0)
	assert.False(t, ok)
}

func TestViewCache_ServerDown(t *testing.T) {
	c, s := newTestCache(t, time.Minute)
	s.Close()

	ctx := context.Background()
	_, gen, ok := c.GetView(ctx, 5, 0)
	assert.False(t, ok)
	assert.Equal(t, noGeneration, gen)
	c.SetView(ctx, 5, 0, gen, sampleView())
	assert.Error(t, c.InvalidateArea(ctx, 5))
	assert.Error(t, c.HealthCheck(ctx))
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(config.RedisConfig{Addr: "127.0.0.1:1"}, time.Minute, logging.Discard())
	assert.Error(t, err)
}
