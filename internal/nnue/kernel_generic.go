//go:build !goexperiment.simd || !amd64

package nnue

// No hardware kernel without GOEXPERIMENT=simd on amd64; LanesKernel still
// exercises the same lane arithmetic.
func nativeKernel() Kernel {
	return nil
}
