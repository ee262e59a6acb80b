package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesseval/internal/board"
)

// Result is the outcome of one batch entry.
type Result struct {
	FEN   string
	Score int
	Err   error
}

// EvaluateBatch evaluates fens on the engine's worker count. Results keep
// the input order; a bad FEN only fails its own entry. Cancelling ctx stops
// scheduling and returns the context error with the partial results.
func (e *Engine) EvaluateBatch(ctx context.Context, fens []string) ([]Result, error) {
	results := make([]Result, len(fens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.threads)

	for i, fen := range fens {
		if gctx.Err() != nil {
			break
		}
		i, fen := i, fen
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].FEN = fen
			results[i].Score, results[i].Err = e.EvaluateFEN(fen)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// BenchResult summarises a Bench run.
type BenchResult struct {
	Positions int
	Elapsed   time.Duration
}

// PerSecond returns evaluations per second.
func (r BenchResult) PerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Positions) / r.Elapsed.Seconds()
}

// Bench evaluates the bench positions rounds times, bypassing the caches so
// the kernel itself is timed.
func (e *Engine) Bench(ctx context.Context, rounds int) (BenchResult, error) {
	positions := make([]*board.Position, 0, len(BenchFENs))
	for _, fen := range BenchFENs {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			return BenchResult{}, err
		}
		positions = append(positions, pos)
	}

	net := e.Network()
	start := time.Now()
	n := 0
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return BenchResult{Positions: n, Elapsed: time.Since(start)}, err
		}
		for _, pos := range positions {
			net.Evaluate(pos)
			n++
		}
	}
	return BenchResult{Positions: n, Elapsed: time.Since(start)}, nil
}

// BenchFENs is a small spread of opening, middlegame and endgame positions.
var BenchFENs = []string{
	board.StartFEN,
	"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 b - - 0 1",
	"4k3/8/8/8/8/8/4P3/4K3 w - - 0 1",
	"2r3k1/pp3ppp/4p3/3pP3/3P4/P1R5/1P3PPP/6K1 b - - 3 27",
}
