package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/treekernel/core/trees"
)

func buildOK(tree string) (trees.NodeList, error) {
	return trees.NodeList{{Production: tree, ID: 0}}, nil
}

func TestGetOrBuildBuildsOnce(t *testing.T) {
	c := New()

	builds := 0
	build := func(tree string) (trees.NodeList, error) {
		builds++
		return buildOK(tree)
	}

	first, err := c.GetOrBuild("(A a)", build)
	require.NoError(t, err)
	second, err := c.GetOrBuild("(A a)", build)
	require.NoError(t, err)

	assert.Equal(t, 1, builds)
	assert.Equal(t, first[0].Production, second[0].Production)
	assert.Equal(t, 1, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Builds)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetMissThenHit(t *testing.T) {
	c := New()

	_, ok := c.Get("(A a)")
	assert.False(t, ok)

	_, err := c.GetOrBuild("(A a)", buildOK)
	require.NoError(t, err)

	list, ok := c.Get("(A a)")
	require.True(t, ok)
	assert.Equal(t, "(A a)", list[0].Production)
}

func TestDistinctKeysDistinctEntries(t *testing.T) {
	c := New()

	_, err := c.GetOrBuild("(A a)", buildOK)
	require.NoError(t, err)
	_, err = c.GetOrBuild("(B b)", buildOK)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(2), c.Stats().Builds)
}

func TestBuildErrorNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	attempts := 0
	build := func(string) (trees.NodeList, error) {
		attempts++
		return nil, boom
	}

	_, err := c.GetOrBuild("(bad", build)
	require.ErrorIs(t, err, boom)
	_, err = c.GetOrBuild("(bad", build)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Builds)
}

func TestStatsHitRate(t *testing.T) {
	c := New()
	_, err := c.GetOrBuild("(A a)", buildOK)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := c.Get("(A a)")
		require.True(t, ok)
	}

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-12)
}
