package consolidate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/bwtree/consolidate"
	"github.com/outofforest/bwtree/delta"
)

func TestFingerprintStableForEqualContent(t *testing.T) {
	a := delta.NewBase([]int64{1, 2, 3}, []uint64{10, 20, 30})
	b := delta.NewBase([]int64{1, 2, 3}, []uint64{10, 20, 30})

	require.Equal(t, consolidate.Fingerprint(a), consolidate.Fingerprint(b))
}

func TestFingerprintDiffersOnValueChange(t *testing.T) {
	a := delta.NewBase([]int64{1, 2}, []uint64{10, 20})
	b := delta.NewBase([]int64{1, 2}, []uint64{10, 21})

	require.NotEqual(t, consolidate.Fingerprint(a), consolidate.Fingerprint(b))
}

func TestFingerprintEmptyBase(t *testing.T) {
	a := delta.NewBase(nil, nil)
	b := delta.NewBase(nil, nil)
	require.Equal(t, consolidate.Fingerprint(a), consolidate.Fingerprint(b))
}
