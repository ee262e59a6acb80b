// Package uci runs a UCI-style text shell around the evaluator. It sets up
// positions and prints their static evaluation; there is no search.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/hailam/chesseval/internal/board"
	"github.com/hailam/chesseval/internal/engine"
	"github.com/hailam/chesseval/internal/nnue"
)

// UCI implements the shell protocol.
type UCI struct {
	engine   *engine.Engine
	position *board.Position
	netCfg   engine.NetworkConfig

	in  io.Reader
	out io.Writer
	log logr.Logger

	// CPU profiling
	profileFile *os.File
}

// New creates a shell over eng reading stdin and writing stdout. cfg is the
// configuration eng's network was loaded with; setoption edits it.
func New(eng *engine.Engine, cfg engine.NetworkConfig, log logr.Logger) *UCI {
	return &UCI{
		engine:   eng,
		position: board.NewPosition(),
		netCfg:   cfg,
		in:       os.Stdin,
		out:      os.Stdout,
		log:      log,
	}
}

// SetIO redirects the shell's input and output.
func (u *UCI) SetIO(in io.Reader, out io.Writer) {
	u.in = in
	u.out = out
}

// Position returns the current position.
func (u *UCI) Position() *board.Position {
	return u.position
}

// Run reads commands until quit or end of input.
func (u *UCI) Run() error {
	scanner := bufio.NewScanner(u.in)
	defer u.stopProfile()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "eval":
			u.handleEval()
		case "bench":
			u.handleBench(args)
		case "go":
			u.println("info string static evaluator, no search; use eval")
			u.println("bestmove 0000")
		case "stop":
		case "setoption":
			u.handleSetOption(args)
		case "d":
			u.println(u.position.String())
		case "quit":
			return nil
		default:
			u.printf("info string unknown command: %s\n", cmd)
		}
	}
	return scanner.Err()
}

func (u *UCI) println(s string) {
	fmt.Fprintln(u.out, s)
}

func (u *UCI) printf(format string, args ...any) {
	fmt.Fprintf(u.out, format, args...)
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.println("id name ChessEval")
	u.println("id author ChessEval Team")
	u.println("")
	u.println("option name EvalFile type string default <empty>")

	var kernels []string
	for _, k := range nnue.Kernels() {
		kernels = append(kernels, "var "+k.Name())
	}
	u.printf("option name Kernel type combo default auto var auto %s\n", strings.Join(kernels, " "))
	u.println("option name RandomSeed type spin default 0 min 0 max 2147483647")
	u.println("option name Clear Hash type button")
	u.println("option name CPUProfile type string default <empty>")
	u.println("uciok")
}

// handleNewGame resets the position and the evaluation cache.
func (u *UCI) handleNewGame() {
	u.engine.Clear()
	u.position = board.NewPosition()
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// On error the previous position is kept.
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		var err error
		pos, err = board.ParseFEN(strings.Join(args[1:movesAt], " "))
		if err != nil {
			u.printf("info string invalid FEN: %v\n", err)
			return
		}
	default:
		u.printf("info string invalid position command: %s\n", args[0])
		return
	}

	if movesAt+1 < len(args) {
		var err error
		pos, err = board.ApplyMoves(pos, args[movesAt+1:])
		if err != nil {
			u.printf("info string %v\n", err)
			return
		}
	}

	u.position = pos
	u.log.V(1).Info("position set", "fen", pos.ToFEN(), "hash", fmt.Sprintf("%016x", pos.Hash))
}

// handleEval prints the static evaluation of the current position.
func (u *UCI) handleEval() {
	if err := u.position.Validate(); err != nil {
		u.printf("info string cannot evaluate: %v\n", err)
		return
	}

	score := u.engine.Evaluate(u.position)
	u.printf("info string kernel %s\n", u.engine.Network().Kernel().Name())
	u.printf("eval %d cp (side to move)\n", score)
	u.printf("eval %d cp (white)\n", nnue.WhiteRelative(score, u.position.Turn()))
}

// handleBench times the kernel on the bench positions.
func (u *UCI) handleBench(args []string) {
	rounds := 1000
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			rounds = n
		}
	}

	res, err := u.engine.Bench(context.Background(), rounds)
	if err != nil {
		u.printf("info string bench failed: %v\n", err)
		return
	}

	u.printf("info string kernel %s\n", u.engine.Network().Kernel().Name())
	u.printf("Positions: %s\n", humanize.Comma(int64(res.Positions)))
	u.printf("Time: %v\n", res.Elapsed)
	u.printf("EPS: %.0f\n", res.PerSecond())
}

// handleSetOption parses "setoption name <name> [value <value>]".
func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName := false
	readingValue := false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName = true
			readingValue = false
		case "value":
			readingName = false
			readingValue = true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "evalfile":
		if value == "<empty>" {
			value = ""
		}
		cfg := u.netCfg
		cfg.EvalFile = value
		u.reloadNetwork(cfg)
	case "randomseed":
		seed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			u.printf("info string invalid seed: %s\n", value)
			return
		}
		cfg := u.netCfg
		cfg.RandomSeed = seed
		u.reloadNetwork(cfg)
	case "kernel":
		k, err := nnue.KernelByName(value)
		if err != nil {
			u.printf("info string %v\n", err)
			return
		}
		u.netCfg.Kernel = value
		u.engine.SetNetwork(u.engine.Network().WithKernel(k))
		u.printf("info string kernel %s\n", k.Name())
	case "clear hash":
		u.engine.Clear()
	case "cpuprofile":
		u.stopProfile()
		if value != "" && value != "stop" && value != "<empty>" {
			u.startProfile(value)
		}
	default:
		u.printf("info string unknown option: %s\n", name)
	}
}

// reloadNetwork loads cfg and switches the engine over. A failed load keeps
// the current network.
func (u *UCI) reloadNetwork(cfg engine.NetworkConfig) {
	net, err := engine.LoadNetwork(cfg, u.log)
	if err != nil {
		u.log.Error(err, "network not loaded")
		u.printf("info string failed to load network: %v\n", err)
		return
	}
	u.netCfg = cfg
	u.engine.SetNetwork(net)
	u.printf("info string network %016x loaded\n", net.Weights().Fingerprint)
}

func (u *UCI) startProfile(path string) {
	f, err := os.Create(path)
	if err != nil {
		u.printf("info string failed to create profile: %v\n", err)
		return
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		u.printf("info string failed to start profile: %v\n", err)
		return
	}
	u.profileFile = f
	u.printf("info string CPU profiling to %s\n", path)
}

func (u *UCI) stopProfile() {
	if u.profileFile == nil {
		return
	}
	pprof.StopCPUProfile()
	u.profileFile.Close()
	u.profileFile = nil
	u.log.Info("CPU profile saved")
}
