// Package nnue implements a king-bucketed, quantized NNUE evaluator.
//
// The network has a single hidden layer of Hidden neurons per perspective.
// Input features are (piece, square) pairs specialised by one of Buckets
// king zones; the two perspective accumulators are concatenated (side to
// move first), rectified and reduced to one output neuron.
package nnue

import "github.com/hailam/chesseval/internal/board"

// Network architecture constants
const (
	Buckets       = 4
	InputFeatures = 64 * 12 * Buckets // 3072
	Hidden        = 768
	Output        = 1

	// Quantization scales divided out of the raw output, in this order.
	InputScale  = 32
	HiddenScale = 128
)

// Board is the position collaborator consumed by the evaluator.
// *board.Position implements it.
type Board interface {
	Turn() board.Color
	King(c board.Color) board.Square
	Occupancy() board.Bitboard
	PieceAt(sq board.Square) board.Piece
}

// Perspective selects one of the two accumulator vectors.
type Perspective uint8

const (
	WhitePerspective Perspective = iota
	BlackPerspective
)

// PerspectiveOf returns the perspective owned by color c.
func PerspectiveOf(c board.Color) Perspective {
	if c == board.Black {
		return BlackPerspective
	}
	return WhitePerspective
}

// Color returns the side whose view the perspective represents.
func (p Perspective) Color() board.Color {
	if p == BlackPerspective {
		return board.Black
	}
	return board.White
}

// Other returns the opposite perspective.
func (p Perspective) Other() Perspective {
	return p ^ 1
}

func (p Perspective) String() string {
	return p.Color().String()
}

// WhiteRelative converts a side-to-move score into White's point of view.
func WhiteRelative(score int, stm board.Color) int {
	if stm == board.Black {
		return -score
	}
	return score
}
