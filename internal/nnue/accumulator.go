package nnue

import "github.com/hailam/chesseval/internal/board"

// Accumulator stores the hidden layer pre-activations of both perspectives.
//
// Updates are add-only: there is no way to take a feature back out. When a
// piece leaves a square (move, capture, promotion) the accumulator must be
// rebuilt with Refresh.
type Accumulator struct {
	vectors [2][Hidden]int16
}

// Vector returns the vector computed from perspective p.
func (acc *Accumulator) Vector(p Perspective) *[Hidden]int16 {
	return &acc.vectors[p]
}

// Load resets both perspectives to the input bias.
func (acc *Accumulator) Load(net *Network) {
	acc.vectors[WhitePerspective] = net.weights.InputBias
	acc.vectors[BlackPerspective] = net.weights.InputBias
}

// Refresh rebuilds the accumulator from scratch for b.
func (acc *Accumulator) Refresh(net *Network, b Board) {
	acc.Load(net)

	whiteKing := b.King(board.White)
	blackKing := b.King(board.Black)

	occupied := b.Occupancy()
	for occupied != 0 {
		sq := occupied.PopLSB()
		piece := b.PieceAt(sq)
		acc.Update(net, piece.Type(), piece.Color(), sq, whiteKing, blackKing)
	}
}

// Update adds the features of one piece to both perspectives. Each
// perspective is indexed relative to its own king.
func (acc *Accumulator) Update(net *Network, pt board.PieceType, pc board.Color, sq board.Square,
	whiteKing, blackKing board.Square) {

	kings := [2]board.Square{whiteKing, blackKing}
	for _, p := range [2]Perspective{WhitePerspective, BlackPerspective} {
		f := FeatureIndex(pt, pc, sq, p, kings[p])
		net.kernel.AddRow(acc.vectors[p][:], net.weights.Row(f))
	}
}
