package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"github.com/hailam/chesseval/internal/board"
	"github.com/hailam/chesseval/internal/nnue"
	"github.com/hailam/chesseval/internal/storage"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	net := nnue.NewNetwork(nnue.RandomWeights(31), nnue.ScalarKernel{})
	eng, err := NewEngine(net, opts)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func TestNewEngineNilNetwork(t *testing.T) {
	if _, err := NewEngine(nil, DefaultOptions()); err == nil {
		t.Error("expected error for nil network")
	}
}

func TestEvaluateMatchesNetwork(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())

	for _, fen := range BenchFENs {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		want := eng.Network().Evaluate(pos)

		// Second call may be served by the cache; it must agree.
		for i := 0; i < 2; i++ {
			if got := eng.Evaluate(pos); got != want {
				t.Errorf("%s: call %d = %d, want %d", fen, i, got, want)
			}
		}
		eng.cache.Wait()
	}
}

func TestCacheHits(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())
	pos := board.NewPosition()

	first := eng.Evaluate(pos)
	eng.cache.Wait()
	if got := eng.Evaluate(pos); got != first {
		t.Fatalf("cached score %d, want %d", got, first)
	}

	st := eng.Stats()
	if st.Evaluations != 2 {
		t.Errorf("evaluations = %d, want 2", st.Evaluations)
	}
	if st.CacheHits == 0 {
		t.Errorf("no cache hit on repeated position")
	}

	eng.Clear()
	if st := eng.Stats(); st != (Stats{}) {
		t.Errorf("stats after Clear = %+v", st)
	}
}

func TestCacheDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheEntries = 0
	eng := newTestEngine(t, opts)

	pos := board.NewPosition()
	eng.Evaluate(pos)
	eng.Evaluate(pos)
	if st := eng.Stats(); st.CacheHits != 0 {
		t.Errorf("cache hits with cache disabled: %d", st.CacheHits)
	}
}

func TestPersistentStore(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer store.Close()

	opts := DefaultOptions()
	opts.CacheEntries = 0
	opts.Store = store
	eng := newTestEngine(t, opts)

	pos, _ := board.ParseFEN(BenchFENs[2])
	want := eng.Evaluate(pos)

	fp := eng.Network().Weights().Fingerprint
	rec, ok, err := store.LoadEval(fp, pos.Hash)
	if err != nil || !ok {
		t.Fatalf("evaluation not stored: ok=%v err=%v", ok, err)
	}
	if rec.Score != want || rec.FEN != pos.ToFEN() || rec.Kernel != "scalar" {
		t.Errorf("stored record %+v", rec)
	}

	if got := eng.Evaluate(pos); got != want {
		t.Errorf("store returned %d, want %d", got, want)
	}
	if st := eng.Stats(); st.StoreHits != 1 {
		t.Errorf("store hits = %d, want 1", st.StoreHits)
	}
}

func TestSetNetwork(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())
	pos := board.NewPosition()
	eng.Evaluate(pos)
	eng.cache.Wait()

	other := nnue.NewNetwork(nnue.RandomWeights(32), nnue.LanesKernel{})
	eng.SetNetwork(other)
	if got, want := eng.Evaluate(pos), other.Evaluate(pos); got != want {
		t.Errorf("stale score after SetNetwork: %d, want %d", got, want)
	}
	if eng.Network().Kernel().Name() != "lanes" {
		t.Errorf("kernel not switched")
	}
}

func TestStaleScoreAfterSetNetwork(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())
	pos := board.NewPosition()
	old := eng.Network()

	other := nnue.NewNetwork(nnue.RandomWeights(33), nnue.ScalarKernel{})
	eng.SetNetwork(other)

	// An evaluation that started on the old network finishes after the
	// switch and its Clear.
	stale := old.Evaluate(pos) + 12345
	eng.remember(cacheKey(old.Weights().Fingerprint, pos.Hash), stale)
	eng.cache.Wait()

	if got, want := eng.Evaluate(pos), other.Evaluate(pos); got != want {
		t.Errorf("score %d after network switch, want %d", got, want)
	}
}

func TestEvaluateFEN(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())

	if _, err := eng.EvaluateFEN(board.StartFEN); err != nil {
		t.Errorf("start position: %v", err)
	}
	for _, fen := range []string{
		"not a fen",
		"8/8/8/8/8/8/8/8 w - - 0 1",
		"P3k3/8/8/8/8/8/8/4K3 w - - 0 1",
	} {
		if _, err := eng.EvaluateFEN(fen); err == nil {
			t.Errorf("%q accepted", fen)
		}
	}
}

func TestEvaluateBatch(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 4
	eng := newTestEngine(t, opts)

	fens := append([]string{}, BenchFENs...)
	fens = append(fens, "bad fen")

	results, err := eng.EvaluateBatch(context.Background(), fens)
	if err != nil {
		t.Fatalf("EvaluateBatch failed: %v", err)
	}
	if len(results) != len(fens) {
		t.Fatalf("%d results for %d fens", len(results), len(fens))
	}

	for i, r := range results {
		if r.FEN != fens[i] {
			t.Errorf("result %d is for %q, want %q", i, r.FEN, fens[i])
		}
		if i == len(fens)-1 {
			if r.Err == nil {
				t.Errorf("bad fen did not fail")
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("%s: %v", r.FEN, r.Err)
			continue
		}
		pos, _ := board.ParseFEN(r.FEN)
		if want := eng.Network().Evaluate(pos); r.Score != want {
			t.Errorf("%s: batch score %d, want %d", r.FEN, r.Score, want)
		}
	}
}

func TestEvaluateBatchCancelled(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.EvaluateBatch(ctx, BenchFENs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestBench(t *testing.T) {
	eng := newTestEngine(t, DefaultOptions())

	res, err := eng.Bench(context.Background(), 3)
	if err != nil {
		t.Fatalf("Bench failed: %v", err)
	}
	if res.Positions != 3*len(BenchFENs) {
		t.Errorf("positions = %d, want %d", res.Positions, 3*len(BenchFENs))
	}
	t.Logf("%d positions in %s (%.0f/s)", res.Positions, res.Elapsed, res.PerSecond())

	if (BenchResult{}).PerSecond() != 0 {
		t.Errorf("PerSecond of empty result not zero")
	}
}

func TestLoadNetwork(t *testing.T) {
	log := logr.Discard()

	net, err := LoadNetwork(NetworkConfig{RandomSeed: 8, Kernel: "lanes"}, log)
	if err != nil {
		t.Fatalf("random network: %v", err)
	}
	if net.Kernel().Name() != "lanes" {
		t.Errorf("kernel = %s", net.Kernel().Name())
	}
	if net.Weights().Fingerprint != nnue.RandomWeights(8).Fingerprint {
		t.Errorf("random weights not seeded")
	}

	path := filepath.Join(t.TempDir(), "net.nnue")
	if err := net.Weights().SaveWeightsFile(path, true); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadNetwork(NetworkConfig{EvalFile: path}, log)
	if err != nil {
		t.Fatalf("file network: %v", err)
	}
	if loaded.Weights().Fingerprint != net.Weights().Fingerprint {
		t.Errorf("loaded fingerprint differs")
	}

	if _, err := LoadNetwork(NetworkConfig{Kernel: "bogus"}, log); !errors.Is(err, nnue.ErrUnknownKernel) {
		t.Errorf("unknown kernel: %v", err)
	}
	if _, err := LoadNetwork(NetworkConfig{EvalFile: filepath.Join(t.TempDir(), "missing")}, log); err == nil {
		t.Errorf("missing file accepted")
	}
}

func BenchmarkEngineEvaluate(b *testing.B) {
	net := nnue.NewNetwork(nnue.RandomWeights(1), nil)
	opts := DefaultOptions()
	opts.CacheEntries = 0
	eng, err := NewEngine(net, opts)
	if err != nil {
		b.Fatal(err)
	}
	defer eng.Close()

	pos := board.NewPosition()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.Evaluate(pos)
	}
}
