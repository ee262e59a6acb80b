package board

import (
	"fmt"

	"github.com/dylhunn/dragontoothmg"
)

// Move generation and legality come from dragontoothmg; this package only
// describes positions. The bridge goes through FEN because castling and en
// passant state are private to dragontoothmg.Board.

// FromDragontooth converts a dragontoothmg board into a Position.
func FromDragontooth(db *dragontoothmg.Board) (*Position, error) {
	pos, err := ParseFEN(db.ToFen())
	if err != nil {
		return nil, fmt.Errorf("convert dragontoothmg board: %w", err)
	}
	return pos, nil
}

// ToDragontooth returns the dragontoothmg board of p.
func (p *Position) ToDragontooth() dragontoothmg.Board {
	return dragontoothmg.ParseFen(p.ToFEN())
}

// ApplyMoves plays UCI long-algebraic moves (e2e4, e7e8q) from p and returns
// the resulting position. p is not modified and must pass Validate before
// any move is generated.
func ApplyMoves(p *Position, moves []string) (*Position, error) {
	if len(moves) == 0 {
		return p.Copy(), nil
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("cannot apply moves: %w", err)
	}

	db := p.ToDragontooth()
	for _, s := range moves {
		m, ok := findLegalMove(&db, s)
		if !ok {
			return nil, fmt.Errorf("illegal move %s in %s", s, db.ToFen())
		}
		db.Apply(m)
	}
	return FromDragontooth(&db)
}

// LegalMoves lists the legal moves of p in UCI notation. A position that
// fails Validate has none.
func LegalMoves(p *Position) []string {
	if p.Validate() != nil {
		return nil
	}
	db := p.ToDragontooth()
	legal := db.GenerateLegalMoves()
	moves := make([]string, 0, len(legal))
	for i := range legal {
		moves = append(moves, legal[i].String())
	}
	return moves
}

func findLegalMove(db *dragontoothmg.Board, uci string) (dragontoothmg.Move, bool) {
	legal := db.GenerateLegalMoves()
	for i := range legal {
		if legal[i].String() == uci {
			return legal[i], true
		}
	}
	return 0, false
}
