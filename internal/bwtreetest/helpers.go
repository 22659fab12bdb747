// Package bwtreetest collects the fixtures and harnesses shared by the
// module's _test.go files: index construction, a random key/value
// generator for property tests, and a supervised-goroutine concurrent
// harness.
package bwtreetest

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"

	"github.com/outofforest/bwtree"
)

// NewIndex builds a bwtree.Index for a test, failing the test immediately
// on a construction error.
func NewIndex(t *testing.T, cfg bwtree.Config) *bwtree.Index {
	idx, err := bwtree.New(cfg)
	require.NoError(t, err)
	return idx
}

// RunInTest spawns idx's background maintenance loop under a supervised
// parallel.Group scoped to the test. The group is torn down via
// t.Cleanup.
func RunInTest(t *testing.T, idx *bwtree.Index) {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	group := parallel.NewGroup(ctx)
	group.Spawn("bwtree", parallel.Continue, idx.Run)

	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})
}

// RandomKeys returns n distinct int64 keys drawn from [0, spread),
// shuffled, for property tests that need an unordered insertion sequence
// over a known key universe.
func RandomKeys(rng *rand.Rand, n int, spread int64) []int64 {
	seen := make(map[int64]struct{}, n)
	keys := make([]int64, 0, n)
	for len(keys) < n {
		k := rng.Int63n(spread)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// CollectAll drains idx's full key space via Scan over [lo, hi) and
// returns the pairs sorted by key.
func CollectAll(t *testing.T, idx *bwtree.Index, lo, hi int64) []bwtree.Pair {
	pairs, err := idx.Scan(lo, hi)
	require.NoError(t, err)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}

// RunConcurrent spawns n supervised goroutines, each running fn(i), and
// waits for all of them, failing the test on the first error.
func RunConcurrent(t *testing.T, n int, fn func(i int) error) {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	defer cancel()

	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := 0; i < n; i++ {
			i := i
			spawn(workerName(i), parallel.Continue, func(ctx context.Context) error {
				return fn(i)
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		require.NoError(t, err)
	}
}

func workerName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "worker-" + string(letters[i])
	}
	return "worker"
}
