package board

import (
	"fmt"
	"strings"
)

// CastlingRights is a set of the four castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle  CastlingRights = 1 << iota // K
	WhiteQueenSideCastle                            // Q
	BlackKingSideCastle                             // k
	BlackQueenSideCastle                            // q
	NoCastling           CastlingRights = 0
)

// String returns the FEN castling field.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, c := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// Flip swaps the White and Black rights.
func (cr CastlingRights) Flip() CastlingRights {
	return (cr&3)<<2 | (cr>>2)&3
}

// Position is a chess position. It implements the evaluator's Board
// interface; derived fields (occupancy, king squares, hash) are kept in sync
// by Put, ParseFEN and the dragontoothmg bridge.
type Position struct {
	// Piece bitboards: [Color][PieceType]
	Pieces [2][6]Bitboard

	Occupied    [2]Bitboard
	AllOccupied Bitboard

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square // NoSquare if none
	HalfMoveClock  int
	FullMoveNumber int

	// Zobrist hash, also the evaluation cache key.
	Hash uint64

	KingSquare [2]Square
}

// NewPosition returns the starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// NewEmptyPosition returns a board without pieces, White to move.
func NewEmptyPosition() *Position {
	p := &Position{}
	p.Clear()
	return p
}

// Clear resets the position to an empty board.
func (p *Position) Clear() {
	*p = Position{
		EnPassant:      NoSquare,
		FullMoveNumber: 1,
		KingSquare:     [2]Square{NoSquare, NoSquare},
	}
	p.Hash = p.ComputeHash()
}

// Copy returns a deep copy.
func (p *Position) Copy() *Position {
	c := *p
	return &c
}

// Turn returns the side to move.
func (p *Position) Turn() Color {
	return p.SideToMove
}

// King returns the king square of c, NoSquare when c has no king.
func (p *Position) King(c Color) Square {
	return p.KingSquare[c]
}

// Occupancy returns every occupied square.
func (p *Position) Occupancy() Bitboard {
	return p.AllOccupied
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	bb := SquareBB(sq)
	if p.AllOccupied&bb == 0 {
		return NoPiece
	}

	c := White
	if p.Occupied[Black]&bb != 0 {
		c = Black
	}
	for pt := Pawn; pt <= King; pt++ {
		if p.Pieces[c][pt]&bb != 0 {
			return NewPiece(pt, c)
		}
	}
	return NoPiece
}

// Put places piece on an empty square and updates the hash.
func (p *Position) Put(piece Piece, sq Square) {
	if piece == NoPiece || !p.IsEmpty(sq) {
		return
	}
	p.setPiece(piece, sq)
	p.Hash ^= zobristPiece[piece.Color()][piece.Type()][sq]
}

// IsEmpty reports whether sq holds no piece.
func (p *Position) IsEmpty(sq Square) bool {
	return p.AllOccupied&SquareBB(sq) == 0
}

func (p *Position) setPiece(piece Piece, sq Square) {
	c, pt := piece.Color(), piece.Type()
	bb := SquareBB(sq)

	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb

	if pt == King {
		p.KingSquare[c] = sq
	}
}

// Flip returns the colour-swapped mirror: ranks mirrored, every piece and the
// side to move changing colour. Scores relative to the side to move are
// unchanged by Flip.
func (p *Position) Flip() *Position {
	f := &Position{
		SideToMove:     p.SideToMove.Other(),
		CastlingRights: p.CastlingRights.Flip(),
		EnPassant:      NoSquare,
		HalfMoveClock:  p.HalfMoveClock,
		FullMoveNumber: p.FullMoveNumber,
		KingSquare:     [2]Square{NoSquare, NoSquare},
	}
	if p.EnPassant != NoSquare {
		f.EnPassant = p.EnPassant.Mirror()
	}

	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			bb := p.Pieces[c][pt].Mirror()
			for bb != 0 {
				f.setPiece(NewPiece(pt, c.Other()), bb.PopLSB())
			}
		}
	}
	f.Hash = f.ComputeHash()
	return f
}

// Validate checks the invariants the evaluator relies on.
func (p *Position) Validate() error {
	if p.Pieces[White][King].PopCount() != 1 {
		return fmt.Errorf("white must have exactly one king")
	}
	if p.Pieces[Black][King].PopCount() != 1 {
		return fmt.Errorf("black must have exactly one king")
	}
	if (p.Pieces[White][Pawn]|p.Pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return fmt.Errorf("pawns cannot be on rank 1 or 8")
	}
	return nil
}

// String returns a diagram of the position.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.ToFEN())
	fmt.Fprintf(&sb, "Hash: %016x\n", p.Hash)
	return sb.String()
}
