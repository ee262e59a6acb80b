package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/hailam/chesseval/internal/board"
	"github.com/hailam/chesseval/internal/engine"
	"github.com/hailam/chesseval/internal/nnue"
	"github.com/hailam/chesseval/internal/storage"
	"github.com/hailam/chesseval/internal/uci"
)

var (
	evalFile   = flag.String("evalfile", "", "weight blob (raw or zstd); default searches the data dirs for "+storage.DefaultWeightsName)
	randomSeed = flag.Int64("random-seed", 0, "seed for random weights when no blob is found")
	kernelName = flag.String("kernel", "", "numeric kernel: auto (default), scalar, lanes or avx2")
	fen        = flag.String("fen", "", "evaluate this position and exit")
	moves      = flag.String("moves", "", "UCI moves played from -fen (or the start position) before evaluating")
	threads    = flag.Int("threads", runtime.GOMAXPROCS(0), "batch evaluation workers")
	cacheSize  = flag.Int64("cache-size", 1<<20, "in-memory cache entries, 0 disables")
	dbDir      = flag.String("db", "", "persistent evaluation store directory, \"auto\" for the data dir")
	verbosity  = flag.Int("v", 0, "log verbosity")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := envOr(*cpuprofile, "CPUPROFILE")
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		logger.Info("CPU profiling enabled", "file", profilePath)
	}

	if err := run(logger); err != nil {
		logger.Error(err, "chesseval failed")
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

func run(logger logr.Logger) error {
	cfg := engine.NetworkConfig{
		EvalFile:   envOr(*evalFile, "CHESSEVAL_EVALFILE"),
		RandomSeed: *randomSeed,
		Kernel:     envOr(*kernelName, "CHESSEVAL_KERNEL"),
	}
	if cfg.EvalFile == "" {
		if path, err := storage.FindWeights(storage.DefaultWeightsName); err == nil {
			cfg.EvalFile = path
		} else {
			logger.V(1).Info("no weight blob found", "reason", err.Error())
		}
	}

	net, err := engine.LoadNetwork(cfg, logger)
	if err != nil {
		return err
	}
	if err := nnue.Init(net.Weights(), net.Kernel()); err != nil {
		return err
	}

	opts := engine.DefaultOptions()
	opts.Threads = *threads
	opts.CacheEntries = *cacheSize
	opts.Logger = logger

	if dir := envOr(*dbDir, "CHESSEVAL_DB"); dir != "" {
		store, err := openStore(dir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		source := cfg.EvalFile
		if source == "" {
			source = fmt.Sprintf("random:%d", cfg.RandomSeed)
		}
		info, err := store.TouchNetwork(net.Weights().Fingerprint, source)
		if err != nil {
			return fmt.Errorf("record network: %w", err)
		}
		count, err := store.CountEvals(info.Fingerprint)
		if err != nil {
			logger.V(1).Info("count stored evaluations", "error", err.Error())
		}
		logger.Info("evaluation store open", "dir", dir, "stored", count, "firstSeen", info.FirstSeen)
		opts.Store = store
	}

	eng, err := engine.NewEngine(nnue.Default(), opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	if *fen != "" || *moves != "" {
		return evalOnce(eng)
	}

	return uci.New(eng, cfg, logger).Run()
}

func openStore(dir string) (*storage.Storage, error) {
	if dir == "auto" {
		return storage.NewStorage()
	}
	return storage.Open(dir)
}

// evalOnce evaluates the -fen/-moves position and prints the result.
func evalOnce(eng *engine.Engine) error {
	pos := board.NewPosition()
	if *fen != "" {
		var err error
		if pos, err = board.ParseFEN(*fen); err != nil {
			return err
		}
	}
	if *moves != "" {
		var err error
		if pos, err = board.ApplyMoves(pos, strings.Fields(*moves)); err != nil {
			return err
		}
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	score := eng.Evaluate(pos)
	fmt.Printf("info string kernel %s\n", eng.Network().Kernel().Name())
	fmt.Printf("eval %d cp (side to move)\n", score)
	fmt.Printf("eval %d cp (white)\n", nnue.WhiteRelative(score, pos.Turn()))
	return nil
}

// envOr returns value, or the environment variable key when value is empty.
func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
