//go:build goexperiment.simd && amd64

// AVX2 kernel built on the experimental simd/archsimd package.
// Requires Go 1.26+ with GOEXPERIMENT=simd on AMD64.

package nnue

import (
	"simd/archsimd"

	"golang.org/x/sys/cpu"
)

func nativeKernel() Kernel {
	if cpu.X86.HasAVX2 {
		return avx2Kernel{}
	}
	return nil
}

type avx2Kernel struct{}

func (avx2Kernel) Name() string { return "avx2" }

func (avx2Kernel) AddRow(dst, row []int16) {
	for i := 0; i+laneWidth <= len(dst); i += laneWidth {
		d := archsimd.LoadInt16x16Slice(dst[i:])
		r := archsimd.LoadInt16x16Slice(row[i:])
		d.Add(r).StoreSlice(dst[i:])
	}
}

func (avx2Kernel) Dot(acc, weights []int16) int32 {
	zero := archsimd.Int16x16{}
	sum := archsimd.Int32x8{}
	for i := 0; i+laneWidth <= len(acc); i += laneWidth {
		a := archsimd.LoadInt16x16Slice(acc[i:]).Max(zero)
		w := archsimd.LoadInt16x16Slice(weights[i:])
		sum = sum.Add(a.DotProductPairs(w))
	}

	var lanes [8]int32
	sum.StoreSlice(lanes[:])
	return horizontalSum(lanes)
}
