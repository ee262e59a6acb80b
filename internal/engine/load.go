package engine

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/hailam/chesseval/internal/nnue"
)

// NetworkConfig selects the weights and kernel of a network.
type NetworkConfig struct {
	// EvalFile is a weight blob path; empty means random weights.
	EvalFile string

	// RandomSeed seeds the weights used when EvalFile is empty.
	RandomSeed int64

	// Kernel name, see nnue.KernelByName.
	Kernel string
}

// LoadNetwork builds a network from cfg. Any load error is fatal for the
// caller: no partially loaded weights are ever returned.
func LoadNetwork(cfg NetworkConfig, log logr.Logger) (*nnue.Network, error) {
	kernel, err := nnue.KernelByName(cfg.Kernel)
	if err != nil {
		return nil, err
	}

	var w *nnue.Weights
	if cfg.EvalFile == "" {
		w = nnue.RandomWeights(cfg.RandomSeed)
		log.Info("using random weights", "seed", cfg.RandomSeed)
	} else {
		w, err = nnue.LoadWeightsFile(cfg.EvalFile)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", cfg.EvalFile, err)
		}

		size := int64(nnue.BlobSize)
		if fi, err := os.Stat(cfg.EvalFile); err == nil {
			size = fi.Size()
		}
		log.Info("weights loaded", "file", cfg.EvalFile, "size", humanize.Bytes(uint64(size)))
	}

	log.V(1).Info("network", "fingerprint", fmt.Sprintf("%016x", w.Fingerprint),
		"kernel", kernel.Name(), "cpu", nnue.Capabilities(),
		"biasScore", w.HiddenBias[0]/nnue.InputScale/nnue.HiddenScale)

	return nnue.NewNetwork(w, kernel), nil
}
