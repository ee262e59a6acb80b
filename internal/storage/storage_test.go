package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStorage(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory storage: %v", err)
	}
	defer s.Close()

	const fp, otherFP = 0xABCDEF, 0x123456

	t.Run("MissingEval", func(t *testing.T) {
		_, ok, err := s.LoadEval(fp, 42)
		if err != nil {
			t.Fatalf("LoadEval failed: %v", err)
		}
		if ok {
			t.Errorf("Expected no record for unknown hash")
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		rec := EvalRecord{Score: -37, FEN: "8/8/8/8/8/8/8/K6k w - - 0 1", Kernel: "scalar"}
		if err := s.SaveEval(fp, 42, rec); err != nil {
			t.Fatalf("SaveEval failed: %v", err)
		}

		got, ok, err := s.LoadEval(fp, 42)
		if err != nil || !ok {
			t.Fatalf("LoadEval: ok=%v err=%v", ok, err)
		}
		if got.Score != rec.Score || got.FEN != rec.FEN || got.Kernel != rec.Kernel {
			t.Errorf("Got %+v, want %+v", got, rec)
		}
		if got.At.IsZero() {
			t.Errorf("Expected timestamp to be set")
		}
	})

	t.Run("NamespacedByNetwork", func(t *testing.T) {
		if _, ok, _ := s.LoadEval(otherFP, 42); ok {
			t.Errorf("Record leaked across network fingerprints")
		}
	})

	t.Run("CountAndDrop", func(t *testing.T) {
		for h := uint64(100); h < 105; h++ {
			if err := s.SaveEval(otherFP, h, EvalRecord{Score: int(h)}); err != nil {
				t.Fatalf("SaveEval failed: %v", err)
			}
		}
		n, err := s.CountEvals(otherFP)
		if err != nil {
			t.Fatalf("CountEvals failed: %v", err)
		}
		if n != 5 {
			t.Errorf("Expected 5 evals, got %d", n)
		}

		if err := s.DropEvals(otherFP); err != nil {
			t.Fatalf("DropEvals failed: %v", err)
		}
		if n, _ := s.CountEvals(otherFP); n != 0 {
			t.Errorf("Expected 0 evals after drop, got %d", n)
		}
		if n, _ := s.CountEvals(fp); n != 1 {
			t.Errorf("Drop removed another network's evals: %d left", n)
		}
	})

	t.Run("TouchNetwork", func(t *testing.T) {
		first, err := s.TouchNetwork(fp, "a.nnue")
		if err != nil {
			t.Fatalf("TouchNetwork failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
		second, err := s.TouchNetwork(fp, "")
		if err != nil {
			t.Fatalf("TouchNetwork failed: %v", err)
		}
		if !second.FirstSeen.Equal(first.FirstSeen) {
			t.Errorf("FirstSeen changed: %v -> %v", first.FirstSeen, second.FirstSeen)
		}
		if !second.LastSeen.After(first.LastSeen) {
			t.Errorf("LastSeen not advanced")
		}
		if second.Source != "a.nnue" {
			t.Errorf("Expected source to be kept, got %q", second.Source)
		}
	})
}

func TestStorageOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveEval(1, 2, EvalRecord{Score: 5}); err != nil {
		t.Fatalf("SaveEval failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	rec, ok, err := s.LoadEval(1, 2)
	if err != nil || !ok || rec.Score != 5 {
		t.Errorf("Persisted record lost: %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestDataPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	dataDir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir failed: %v", err)
	}
	if dataDir == "" {
		t.Error("GetDataDir returned empty path")
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Data directory was not created: %s", dataDir)
	}

	t.Logf("Data directory: %s", dataDir)
}

func TestFindWeights(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	if _, err := FindWeights("definitely-missing.nnue"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	dir, err := GetNNUEDir()
	if err != nil {
		t.Fatalf("GetNNUEDir failed: %v", err)
	}
	want := filepath.Join(dir, "net.nnue")
	if err := os.WriteFile(want, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindWeights("net.nnue")
	if err != nil {
		t.Fatalf("FindWeights failed: %v", err)
	}
	if got != want {
		t.Errorf("FindWeights = %s, want %s", got, want)
	}
}
