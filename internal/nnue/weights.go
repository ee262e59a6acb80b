package nnue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// BlobSize is the exact byte length of an uncompressed weight blob:
// input weights, input bias, hidden weights (int16) then hidden bias (int32).
const BlobSize = InputFeatures*Hidden*2 + Hidden*2 + Hidden*2*2 + Output*4

// zstdMagic opens every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	// ErrBlobSize is returned when a blob does not have exactly BlobSize bytes.
	ErrBlobSize = errors.New("nnue: weight blob size mismatch")
)

// Weights holds the quantized network parameters.
// A loaded Weights value is never modified and may be shared freely.
type Weights struct {
	// Row-major: feature f owns InputWeights[f*Hidden : (f+1)*Hidden].
	InputWeights [InputFeatures * Hidden]int16
	InputBias    [Hidden]int16

	// First half applies to the side to move, second half to the opponent.
	HiddenWeights [2 * Hidden]int16
	HiddenBias    [Output]int32

	// Fingerprint is the xxhash64 of the decoded blob.
	Fingerprint uint64
}

// Row returns the Hidden-length input weight row of feature f.
func (w *Weights) Row(f int) []int16 {
	return w.InputWeights[f*Hidden : (f+1)*Hidden]
}

// LoadWeightsFile loads weights from a (possibly zstd compressed) blob on disk.
func LoadWeightsFile(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	return LoadWeights(f)
}

// LoadWeights reads a whole blob from r and decodes it.
func LoadWeights(r io.Reader) (*Weights, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	return ParseWeights(blob)
}

// ParseWeights decodes blob into a new Weights value. Zstd-compressed blobs
// are decompressed first. Either the whole layout matches or nothing is
// returned.
func ParseWeights(blob []byte) (*Weights, error) {
	if bytes.HasPrefix(blob, zstdMagic) {
		raw, err := decompress(blob)
		if err != nil {
			return nil, err
		}
		blob = raw
	}

	if len(blob) != BlobSize {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrBlobSize, len(blob), BlobSize)
	}

	w := new(Weights)
	off := 0
	off = readInt16s(blob, off, w.InputWeights[:])
	off = readInt16s(blob, off, w.InputBias[:])
	off = readInt16s(blob, off, w.HiddenWeights[:])
	for i := range w.HiddenBias {
		w.HiddenBias[i] = int32(binary.LittleEndian.Uint32(blob[off:]))
		off += 4
	}

	// Cannot happen once the length check passed; kept to catch layout edits.
	if off != BlobSize {
		return nil, fmt.Errorf("%w: decoded %d bytes, expected %d", ErrBlobSize, off, BlobSize)
	}

	w.Fingerprint = xxhash.Sum64(blob)
	return w, nil
}

func readInt16s(blob []byte, off int, dst []int16) int {
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(blob[off:]))
		off += 2
	}
	return off
}

func decompress(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, make([]byte, 0, BlobSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress weights: %w", err)
	}
	return raw, nil
}

// Bytes encodes the weights in blob layout.
func (w *Weights) Bytes() []byte {
	blob := make([]byte, 0, BlobSize)
	for _, v := range w.InputWeights {
		blob = binary.LittleEndian.AppendUint16(blob, uint16(v))
	}
	for _, v := range w.InputBias {
		blob = binary.LittleEndian.AppendUint16(blob, uint16(v))
	}
	for _, v := range w.HiddenWeights {
		blob = binary.LittleEndian.AppendUint16(blob, uint16(v))
	}
	for _, v := range w.HiddenBias {
		blob = binary.LittleEndian.AppendUint32(blob, uint32(v))
	}
	return blob
}

// WriteTo writes the uncompressed blob to dst.
func (w *Weights) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("failed to write weights: %w", err)
	}
	return int64(n), nil
}

// WriteCompressedTo writes the blob wrapped in a single zstd frame.
func (w *Weights) WriteCompressedTo(dst io.Writer) error {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := enc.Write(w.Bytes()); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress weights: %w", err)
	}
	return enc.Close()
}

// SaveWeightsFile writes the weights to path, compressed when compress is set.
func (w *Weights) SaveWeightsFile(path string, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	defer f.Close()

	if compress {
		if err := w.WriteCompressedTo(f); err != nil {
			return err
		}
	} else if _, err := w.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}

// RandomWeights returns small deterministic weights for tests and smoke runs.
// Magnitudes keep every accumulator well inside int16 for legal positions.
func RandomWeights(seed int64) *Weights {
	// Simple LCG for reproducibility
	state := uint64(seed)
	next := func() int16 {
		state = state*6364136223846793005 + 1442695040888963407
		return int16((state>>48)&0xFF) - 128
	}

	w := new(Weights)
	for i := range w.InputWeights {
		w.InputWeights[i] = next() >> 3 // -16 to 15
	}
	for i := range w.InputBias {
		w.InputBias[i] = next() >> 1
	}
	for i := range w.HiddenWeights {
		w.HiddenWeights[i] = next()
	}
	w.HiddenBias[0] = int32(next()) * InputScale

	w.Fingerprint = xxhash.Sum64(w.Bytes())
	return w
}
