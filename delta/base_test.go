package delta_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/bwtree/delta"
)

func TestBaseFindPresentAndAbsent(t *testing.T) {
	base := delta.NewBase([]int64{1, 3, 5, 7}, []uint64{10, 30, 50, 70})

	v, ok := base.Find(5)
	require.True(t, ok)
	require.Equal(t, uint64(50), v)

	_, ok = base.Find(4)
	require.False(t, ok)
}

func TestBaseFindOnEmptyBase(t *testing.T) {
	base := delta.NewBase(nil, nil)
	_, ok := base.Find(1)
	require.False(t, ok)
	require.Equal(t, 0, base.Len())
}

func TestBaseLowerBound(t *testing.T) {
	base := delta.NewBase([]int64{1, 3, 5, 7}, []uint64{10, 30, 50, 70})

	require.Equal(t, 0, base.LowerBound(0))
	require.Equal(t, 0, base.LowerBound(1))
	require.Equal(t, 1, base.LowerBound(2))
	require.Equal(t, 4, base.LowerBound(8))
}

func TestBaseTagIsBase(t *testing.T) {
	base := delta.NewBase(nil, nil)
	require.Equal(t, delta.TagBase, base.Tag)
}
