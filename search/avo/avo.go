// Command avo generates the AVX512 lower-bound search kernel for package
// search. It is a standalone generator command; run it with `go generate`
// in this directory to refresh ../asm.s and ../asm_stub.go.
//
// This generator is checked in as the designed source of truth for the
// hand-written assembly; the generated .s/.go stub files are build
// artifacts, not source, and are not committed here. package search
// therefore ships a pure-Go implementation (search.Vectorized) as its
// always-used kernel.
package main

//go:generate go run . -out ../asm.s -stubs ../asm_stub.go -pkg search

import (
	"fmt"

	. "github.com/mmcloughlin/avo/build" //nolint:stylecheck
	. "github.com/mmcloughlin/avo/operand" //nolint:stylecheck
)

const (
	labelScalarFinish = "scalarFinish%d"
	labelDone         = "done%d"
)

func main() {
	LowerBound8()
	Generate()
}

// LowerBound8 emits a function that narrows an 8-element-aligned window of
// a sorted int64 array against a broadcast target, counting elements less
// than the target, the AVX512 analogue of search.Vectorized's width-8
// branch.
func LowerBound8() {
	TEXT("LowerBound8", NOSPLIT, "func(array *int64, target int64) uint64")
	Doc("LowerBound8 counts the elements of an 8-element-aligned int64 window strictly less than target.")

	rTarget := Load(Param("target"), GP64())
	cmpTarget := ZMM()
	VPBROADCASTQ(rTarget, cmpTarget)

	memArray := Mem{Base: Load(Param("array"), GP64())}
	window := ZMM()
	VMOVDQU64(memArray, window)

	rKMask := K()
	VPCMPGTQ(window, cmpTarget, rKMask)

	rCount := GP64()
	KMOVQ(rKMask, rCount)
	POPCNTQ(rCount, rCount)

	Store(rCount, ReturnIndex(0))

	Label(fmt.Sprintf(labelDone, 8))
	RET()
}
