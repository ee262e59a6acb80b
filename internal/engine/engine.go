// Package engine serves position evaluations: it owns the loaded network,
// the in-memory and persistent evaluation caches and batch fan-out.
package engine

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-logr/logr"

	"github.com/hailam/chesseval/internal/board"
	"github.com/hailam/chesseval/internal/nnue"
	"github.com/hailam/chesseval/internal/storage"
)

// Options configures an Engine.
type Options struct {
	// CacheEntries bounds the in-memory cache; 0 disables it.
	CacheEntries int64

	// Threads used by EvaluateBatch; 0 means GOMAXPROCS.
	Threads int

	// Store, when set, persists every evaluation.
	Store *storage.Storage

	Logger logr.Logger
}

// DefaultOptions returns the settings used by the command line tools.
func DefaultOptions() Options {
	return Options{
		CacheEntries: 1 << 20,
		Threads:      runtime.GOMAXPROCS(0),
		Logger:       logr.Discard(),
	}
}

// Stats counts cache activity since the engine was created or cleared.
type Stats struct {
	Evaluations uint64
	CacheHits   uint64
	StoreHits   uint64
}

// Engine evaluates positions with a shared network. All methods are safe for
// concurrent use; every evaluation builds its own accumulator.
type Engine struct {
	mu      sync.RWMutex
	net     *nnue.Network
	cache   *ristretto.Cache[uint64, int]
	store   *storage.Storage
	threads int
	log     logr.Logger

	evals     atomic.Uint64
	cacheHits atomic.Uint64
	storeHits atomic.Uint64
}

// NewEngine creates an engine around net.
func NewEngine(net *nnue.Network, opts Options) (*Engine, error) {
	if net == nil {
		return nil, fmt.Errorf("engine: nil network")
	}

	e := &Engine{
		net:     net,
		store:   opts.Store,
		threads: opts.Threads,
		log:     opts.Logger,
	}
	if e.threads <= 0 {
		e.threads = runtime.GOMAXPROCS(0)
	}
	if e.log.GetSink() == nil {
		e.log = logr.Discard()
	}

	if opts.CacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[uint64, int]{
			NumCounters: opts.CacheEntries * 10,
			MaxCost:     opts.CacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: create cache: %w", err)
		}
		e.cache = cache
	}

	e.log.V(1).Info("engine ready", "kernel", net.Kernel().Name(),
		"threads", e.threads, "cacheEntries", opts.CacheEntries, "persistent", e.store != nil)
	return e, nil
}

// Network returns the network in use.
func (e *Engine) Network() *nnue.Network {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.net
}

// SetNetwork swaps the network. The in-memory cache is cleared when the
// weights change; a kernel change keeps it since all kernels agree.
func (e *Engine) SetNetwork(net *nnue.Network) {
	e.mu.Lock()
	old := e.net
	e.net = net
	e.mu.Unlock()

	if old.Weights().Fingerprint != net.Weights().Fingerprint {
		e.Clear()
	}
	e.log.Info("network switched", "kernel", net.Kernel().Name(),
		"fingerprint", fmt.Sprintf("%016x", net.Weights().Fingerprint))
}

// Evaluate returns the score of pos for the side to move.
func (e *Engine) Evaluate(pos *board.Position) int {
	net := e.Network()
	fp := net.Weights().Fingerprint
	e.evals.Add(1)

	key := cacheKey(fp, pos.Hash)
	if e.cache != nil {
		if score, ok := e.cache.Get(key); ok {
			e.cacheHits.Add(1)
			return score
		}
	}

	if e.store != nil {
		rec, ok, err := e.store.LoadEval(fp, pos.Hash)
		if err != nil {
			e.log.Error(err, "load stored evaluation", "hash", pos.Hash)
		} else if ok {
			e.storeHits.Add(1)
			e.remember(key, rec.Score)
			return rec.Score
		}
	}

	score := net.Evaluate(pos)
	e.remember(key, score)

	if e.store != nil {
		rec := storage.EvalRecord{Score: score, FEN: pos.ToFEN(), Kernel: net.Kernel().Name()}
		if err := e.store.SaveEval(fp, pos.Hash, rec); err != nil {
			e.log.Error(err, "save evaluation", "hash", pos.Hash)
		}
	}
	return score
}

// cacheKey mixes the network fingerprint into the position hash, so a score
// computed with one weight set is never served for another.
func cacheKey(fingerprint, hash uint64) uint64 {
	return hash ^ fingerprint
}

func (e *Engine) remember(key uint64, score int) {
	if e.cache != nil {
		e.cache.Set(key, score, 1)
	}
}

// EvaluateFEN parses fen and evaluates it.
func (e *Engine) EvaluateFEN(fen string) (int, error) {
	pos, err := board.ParseFEN(fen)
	if err != nil {
		return 0, err
	}
	if err := pos.Validate(); err != nil {
		return 0, err
	}
	return e.Evaluate(pos), nil
}

// Stats returns cache counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Evaluations: e.evals.Load(),
		CacheHits:   e.cacheHits.Load(),
		StoreHits:   e.storeHits.Load(),
	}
}

// Clear empties the in-memory cache and resets the counters.
func (e *Engine) Clear() {
	if e.cache != nil {
		e.cache.Clear()
	}
	e.evals.Store(0)
	e.cacheHits.Store(0)
	e.storeHits.Store(0)
}

// Close releases the in-memory cache. The store belongs to the caller.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
