package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titinauta/journey-engine/internal/domain/journey"
)

func TestProgressCache(t *testing.T) {
	c := NewProgressCache()
	ctx := context.Background()

	got, err := c.GetOverall(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Nil(t, got)

	o := &journey.Overall{TotalModules: 1, Modules: []journey.ModuleProgress{{ModuleID: "m-1", TotalCount: 2}}}
	require.NoError(t, c.SetOverall(ctx, "c1", "v1", 0, o))
	o.Modules[0].ModuleID = "mutated"

	got, err = c.GetOverall(ctx, "c1", "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "m-1", got.Modules[0].ModuleID)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.InvalidateChild(ctx, "c1"))
	got, err = c.GetOverall(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Len())
}

func TestProgressCache_DropsFillFromBeforeInvalidation(t *testing.T) {
	c := NewProgressCache()
	ctx := context.Background()

	gen, err := c.Generation(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, c.InvalidateChild(ctx, "c1"))

	require.NoError(t, c.SetOverall(ctx, "c1", "v1", gen, &journey.Overall{TotalModules: 1}))
	got, err := c.GetOverall(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.Nil(t, got)

	gen, err = c.Generation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	require.NoError(t, c.SetOverall(ctx, "c1", "v1", gen, &journey.Overall{TotalModules: 1}))
	got, err = c.GetOverall(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
