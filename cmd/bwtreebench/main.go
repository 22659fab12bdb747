// Command bwtreebench drives an Index through a fixed
// insert/consolidate/lookup workload and prints throughput summaries. It is kept as a standalone
// command rather than a Benchmark func since spec.md places the benchmark
// harness among "external collaborators", outside the core's own scope.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"

	"github.com/outofforest/bwtree"
)

const (
	numOfKeys   = 1_000_000
	numOfLookup = 1_000_000
)

func main() {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	defer cancel()

	log := logger.Get(ctx)

	idx := lo.Must(bwtree.New(bwtree.DefaultConfig()))

	group := parallel.NewGroup(ctx)
	group.Spawn("bwtree", parallel.Continue, idx.Run)
	defer func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			panic(err)
		}
	}()

	insertStart := time.Now()
	for i := int64(0); i < numOfKeys; i++ {
		if err := idx.Insert(i, uint64(i)); err != nil {
			panic(err)
		}
	}
	insertElapsed := time.Since(insertStart)
	fmt.Printf("insert: %d ops in %s (%.0f ops/s)\n",
		numOfKeys, insertElapsed, float64(numOfKeys)/insertElapsed.Seconds())

	consolidateStart := time.Now()
	if err := idx.Consolidate(); err != nil && !errors.Is(err, bwtree.ErrConsolidationSuperseded) {
		panic(err)
	}
	fmt.Printf("consolidate: %s\n", time.Since(consolidateStart))

	rng := rand.New(rand.NewSource(1)) //nolint:gosec
	lookupStart := time.Now()
	var hits int
	for i := 0; i < numOfLookup; i++ {
		key := rng.Int63n(numOfKeys)
		if _, ok, err := idx.Lookup(key); err != nil {
			panic(err)
		} else if ok {
			hits++
		}
	}
	lookupElapsed := time.Since(lookupStart)
	fmt.Printf("lookup: %d ops in %s (%.0f ops/s), hits=%d\n",
		numOfLookup, lookupElapsed, float64(numOfLookup)/lookupElapsed.Seconds(), hits)

	stats := idx.Stats()
	log.Info("final stats",
		zap.Uint64("pageTableCapacity", stats.PageTableCapacity),
		zap.Int("rootChainLength", stats.RootChainLength),
		zap.Int("pendingReclaim", stats.PendingReclaim),
		zap.Uint64("currentEpoch", stats.CurrentEpoch),
	)
}
