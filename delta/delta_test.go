package delta_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/bwtree/delta"
)

func TestInsertRoundTrip(t *testing.T) {
	base := &delta.Base{}
	ins := delta.NewInsert(42, 100, &base.Header)

	require.Equal(t, delta.TagInsert, ins.Tag)
	require.Equal(t, int64(42), ins.Key)
	require.Equal(t, uint64(100), ins.Value)
	require.Same(t, &base.Header, ins.Next)
}

func TestDeleteRoundTrip(t *testing.T) {
	del := delta.NewDelete(7, nil)

	require.Equal(t, delta.TagDelete, del.Tag)
	require.Equal(t, int64(7), del.Key)
	require.Nil(t, del.Next)
}

func TestPopulateInsertMatchesNewInsert(t *testing.T) {
	var d delta.Insert
	delta.PopulateInsert(&d, 1, 2, nil)

	want := delta.NewInsert(1, 2, nil)
	require.Equal(t, want.Key, d.Key)
	require.Equal(t, want.Value, d.Value)
	require.Equal(t, want.Tag, d.Tag)
}

func TestAsInsertDowncast(t *testing.T) {
	ins := delta.NewInsert(1, 2, nil)
	h := &ins.Header

	got := delta.AsInsert(h)
	require.Equal(t, ins, got)
}

func TestAsDeleteDowncast(t *testing.T) {
	del := delta.NewDelete(3, nil)
	got := delta.AsDelete(&del.Header)
	require.Equal(t, del, got)
}

func TestAsSplitAsMergeDowncast(t *testing.T) {
	split := delta.NewSplit(10, 5, nil)
	gotSplit := delta.AsSplit(&split.Header)
	require.Equal(t, split, gotSplit)

	merge := delta.NewMerge(9, nil)
	gotMerge := delta.AsMerge(&merge.Header)
	require.Equal(t, merge, gotMerge)
}

func TestLenCountsWholeChainIncludingBase(t *testing.T) {
	base := delta.NewBase([]int64{1}, []uint64{1})
	d2 := delta.NewDelete(2, &base.Header)
	d1 := delta.NewInsert(1, 1, &d2.Header)

	require.Equal(t, 3, delta.Len(&d1.Header))
	require.Equal(t, 0, delta.Len(nil))
}

func TestAllIteratesNewestFirst(t *testing.T) {
	base := delta.NewBase(nil, nil)
	d2 := delta.NewDelete(2, &base.Header)
	d1 := delta.NewInsert(1, 1, &d2.Header)

	var tags []delta.Tag
	for h := range delta.All(&d1.Header) {
		tags = append(tags, h.Tag)
	}
	require.Equal(t, []delta.Tag{delta.TagInsert, delta.TagDelete, delta.TagBase}, tags)
}

func TestAllStopsOnFalseYield(t *testing.T) {
	base := delta.NewBase(nil, nil)
	d2 := delta.NewDelete(2, &base.Header)
	d1 := delta.NewInsert(1, 1, &d2.Header)

	var tags []delta.Tag
	for h := range delta.All(&d1.Header) {
		tags = append(tags, h.Tag)
		if h.Tag == delta.TagInsert {
			break
		}
	}
	require.Equal(t, []delta.Tag{delta.TagInsert}, tags)
}

func TestTagString(t *testing.T) {
	require.Equal(t, "base", delta.TagBase.String())
	require.Equal(t, "insert", delta.TagInsert.String())
	require.Equal(t, "delete", delta.TagDelete.String())
	require.Equal(t, "split", delta.TagSplit.String())
	require.Equal(t, "merge", delta.TagMerge.String())
	require.Equal(t, "unknown", delta.Tag(255).String())
}
