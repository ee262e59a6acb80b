package board

import "math/bits"

// Bitboard is a set of squares, bit n standing for Square(n).
type Bitboard uint64

const (
	Empty Bitboard = 0

	Rank1 Bitboard = 0x00000000000000FF
	Rank8 Bitboard = 0xFF00000000000000
)

// SquareBB returns the set holding only sq.
func SquareBB(sq Square) Bitboard {
	return 1 << sq
}

// IsSet reports whether sq is in the set.
func (b Bitboard) IsSet(sq Square) bool {
	return b&SquareBB(sq) != 0
}

// PopCount returns the number of squares in the set.
func (b Bitboard) PopCount() int {
	return bits.OnesCount64(uint64(b))
}

// LSB returns the lowest square, NoSquare for an empty set.
func (b Bitboard) LSB() Square {
	if b == 0 {
		return NoSquare
	}
	return Square(bits.TrailingZeros64(uint64(b)))
}

// PopLSB removes and returns the lowest square.
func (b *Bitboard) PopLSB() Square {
	sq := b.LSB()
	*b &= *b - 1
	return sq
}

// Mirror flips every square of the set vertically.
func (b Bitboard) Mirror() Bitboard {
	return Bitboard(bits.ReverseBytes64(uint64(b)))
}
