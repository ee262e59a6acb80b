package nnue

import (
	"errors"
	"sync/atomic"

	"github.com/hailam/chesseval/internal/board"
)

// ErrAlreadyInitialized is returned by Init after the first successful call.
var ErrAlreadyInitialized = errors.New("nnue: default network already initialized")

// Network binds immutable weights to a numeric kernel. It holds no
// per-position state and is safe for concurrent use.
type Network struct {
	weights *Weights
	kernel  Kernel
}

// NewNetwork creates a network. A nil kernel selects AutoKernel.
func NewNetwork(w *Weights, k Kernel) *Network {
	if k == nil {
		k = AutoKernel()
	}
	return &Network{weights: w, kernel: k}
}

// Weights returns the shared parameter set.
func (n *Network) Weights() *Weights {
	return n.weights
}

// Kernel returns the numeric back end in use.
func (n *Network) Kernel() Kernel {
	return n.kernel
}

// WithKernel returns a network sharing the same weights with another kernel.
func (n *Network) WithKernel(k Kernel) *Network {
	return NewNetwork(n.weights, k)
}

// Evaluate scores b from the side to move's point of view.
// Each call builds its own accumulator and leaves b untouched.
func (n *Network) Evaluate(b Board) int {
	var acc Accumulator
	acc.Refresh(n, b)
	return n.Forward(&acc, b.Turn())
}

// Forward runs the output layer on a refreshed accumulator and dequantizes
// the result: truncating division by InputScale, then by HiddenScale.
func (n *Network) Forward(acc *Accumulator, stm board.Color) int {
	raw := n.RawOutput(acc, stm)
	return int(raw / InputScale / HiddenScale)
}

// RawOutput returns the output neuron before dequantization.
//
// The rectifier has no upper clamp. Accumulators stay inside int16 by
// construction, so each product fits int32 and the sum wraps identically in
// every kernel.
func (n *Network) RawOutput(acc *Accumulator, stm board.Color) int32 {
	own := acc.Vector(PerspectiveOf(stm))
	other := acc.Vector(PerspectiveOf(stm.Other()))
	hw := n.weights.HiddenWeights[:]

	sum := n.weights.HiddenBias[0]
	sum += n.kernel.Dot(own[:], hw[:Hidden])
	sum += n.kernel.Dot(other[:], hw[Hidden:])
	return sum
}

var defaultNetwork atomic.Pointer[Network]

// Init installs the process-wide network used by Evaluate. It must run once,
// before any evaluation; later calls fail and leave the first network active.
func Init(w *Weights, k Kernel) error {
	if !defaultNetwork.CompareAndSwap(nil, NewNetwork(w, k)) {
		return ErrAlreadyInitialized
	}
	return nil
}

// Default returns the network installed by Init. It panics when Init has not
// run, since evaluating without weights is a startup bug.
func Default() *Network {
	n := defaultNetwork.Load()
	if n == nil {
		panic("nnue: Evaluate called before Init")
	}
	return n
}

// Evaluate scores b with the default network.
func Evaluate(b Board) int {
	return Default().Evaluate(b)
}
