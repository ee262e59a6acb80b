package nnue

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/cpu"
)

// ErrUnknownKernel is returned by KernelByName for unregistered names.
var ErrUnknownKernel = errors.New("nnue: unknown kernel")

// Kernel is a numeric back end for the two hot loops of the evaluator.
// Every implementation must be bit-identical to ScalarKernel: int16 adds
// wrap, and int32 dot products wrap.
type Kernel interface {
	Name() string

	// AddRow performs dst[i] += row[i] over len(dst) elements.
	AddRow(dst, row []int16)

	// Dot returns sum(max(0, acc[i]) * weights[i]) over len(acc) elements.
	Dot(acc, weights []int16) int32
}

// ScalarKernel is the reference implementation.
type ScalarKernel struct{}

func (ScalarKernel) Name() string { return "scalar" }

func (ScalarKernel) AddRow(dst, row []int16) {
	row = row[:len(dst)]
	for i := range dst {
		dst[i] += row[i]
	}
}

func (ScalarKernel) Dot(acc, weights []int16) int32 {
	weights = weights[:len(acc)]
	var sum int32
	for i, a := range acc {
		sum += int32(max(a, 0)) * int32(weights[i])
	}
	return sum
}

// laneWidth is the number of int16 lanes in a 256-bit register.
const laneWidth = 16

// LanesKernel processes data in 256-bit register shaped blocks without
// machine SIMD: 16 int16 lanes, pairwise multiply-add into 8 int32 lanes and
// a final horizontal sum. It mirrors the native kernel's arithmetic on every
// platform. Slice lengths must be multiples of laneWidth.
type LanesKernel struct{}

func (LanesKernel) Name() string { return "lanes" }

func (LanesKernel) AddRow(dst, row []int16) {
	for i := 0; i+laneWidth <= len(dst); i += laneWidth {
		d := (*[laneWidth]int16)(dst[i : i+laneWidth])
		r := (*[laneWidth]int16)(row[i : i+laneWidth])
		for j := range d {
			d[j] += r[j]
		}
	}
}

func (LanesKernel) Dot(acc, weights []int16) int32 {
	var sum [laneWidth / 2]int32
	for i := 0; i+laneWidth <= len(acc); i += laneWidth {
		a := (*[laneWidth]int16)(acc[i : i+laneWidth])
		w := (*[laneWidth]int16)(weights[i : i+laneWidth])
		for j := range sum {
			lo := int32(max(a[2*j], 0)) * int32(w[2*j])
			hi := int32(max(a[2*j+1], 0)) * int32(w[2*j+1])
			sum[j] += lo + hi
		}
	}
	return horizontalSum(sum)
}

// horizontalSum folds eight int32 lanes: upper half onto lower half, then
// 64-bit and 32-bit shifts.
func horizontalSum(v [8]int32) int32 {
	var q [4]int32
	for i := range q {
		q[i] = v[i] + v[i+4]
	}
	q[0] += q[2]
	q[1] += q[3]
	return q[0] + q[1]
}

// NativeKernel returns the hardware SIMD kernel, or nil when this build or
// CPU has none.
func NativeKernel() Kernel {
	return nativeKernel()
}

// AutoKernel returns the native kernel when available, else ScalarKernel.
func AutoKernel() Kernel {
	if k := nativeKernel(); k != nil {
		return k
	}
	return ScalarKernel{}
}

// Kernels lists every kernel usable in this process.
func Kernels() []Kernel {
	ks := []Kernel{ScalarKernel{}, LanesKernel{}}
	if k := nativeKernel(); k != nil {
		ks = append(ks, k)
	}
	return ks
}

// KernelByName resolves a kernel name; "" and "auto" select AutoKernel.
func KernelByName(name string) (Kernel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return AutoKernel(), nil
	}
	for _, k := range Kernels() {
		if k.Name() == name {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

// Capabilities describes the SIMD features reported by the CPU.
func Capabilities() string {
	var caps []string
	if cpu.X86.HasSSE41 {
		caps = append(caps, "sse4.1")
	}
	if cpu.X86.HasAVX2 {
		caps = append(caps, "avx2")
	}
	if cpu.X86.HasAVX512BW {
		caps = append(caps, "avx512bw")
	}
	if cpu.ARM64.HasASIMD {
		caps = append(caps, "neon")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, ",")
}
