package nnue

import "github.com/hailam/chesseval/internal/board"

// kingBuckets partitions the board (White's view, A1 first) into four zones:
// wing files and centre files, each split into the near and far half.
var kingBuckets = [64]int{
	0, 0, 1, 1, 1, 1, 0, 0,
	0, 0, 1, 1, 1, 1, 0, 0,
	0, 0, 1, 1, 1, 1, 0, 0,
	0, 0, 1, 1, 1, 1, 0, 0,
	2, 2, 3, 3, 3, 3, 2, 2,
	2, 2, 3, 3, 3, 3, 2, 2,
	2, 2, 3, 3, 3, 3, 2, 2,
	2, 2, 3, 3, 3, 3, 2, 2,
}

// KingBucket returns the zone of a king on sq, seen from perspective p.
// Black's view is mirrored vertically so both sides share one table.
func KingBucket(sq board.Square, p Perspective) int {
	return kingBuckets[sq^board.Square(56*int(p))]
}

// FeatureIndex computes the input feature for a piece seen from perspective p
// whose own king stands on kingSq.
//
// The piece square is mirrored vertically for Black's view and horizontally
// when the perspective's king sits on files e-h, so the network only learns
// one wing orientation.
func FeatureIndex(pt board.PieceType, pc board.Color, sq board.Square, p Perspective, kingSq board.Square) int {
	bucket := KingBucket(kingSq, p)

	sq ^= board.Square(56 * int(p))
	if kingSq.File() >= 4 {
		sq ^= 7
	}

	same := 0
	if pc == p.Color() {
		same = 1
	}

	return int(sq) + int(pt)*64 + same*64*6 + bucket*64*6*2
}
