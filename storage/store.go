// Package storage persists computed observables under a folder tree keyed
// by configuration labels, and provides the lazy cells the facade uses to
// compute everything at most once per process. Disk formats are best
// effort: a missing or unreadable file silently falls back to recomputing.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Format selects how array observables are persisted.
type Format int

const (
	// Formatted writes plain text, one matrix row per line.
	Formatted Format = iota
	// Numpy writes .npy files readable by any numpy-compatible tool.
	Numpy
	// Memory keeps results in process memory only; nothing touches disk.
	Memory
	// HDF5 is accepted for compatibility and resolves to Numpy.
	HDF5
)

// ParseFormat maps a configuration string onto a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "formatted":
		return Formatted, nil
	case "numpy", "":
		return Numpy, nil
	case "memory":
		return Memory, nil
	case "hdf5":
		return HDF5, nil
	}
	return 0, fmt.Errorf("storage: unknown format %q (want formatted, numpy, memory or hdf5)", name)
}

func (f Format) String() string {
	switch f {
	case Formatted:
		return "formatted"
	case Numpy:
		return "numpy"
	case Memory:
		return "memory"
	case HDF5:
		return "hdf5"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Store reads and writes observables below Folder/label/name.
type Store struct {
	Folder string
	Format Format

	log *zap.Logger
}

// New builds a store. The HDF5 format has no pure Go writer, so it degrades
// to Numpy with a warning rather than failing the run.
func New(folder string, format Format, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if format == HDF5 {
		logger.Warn("hdf5 storage is not available, falling back to numpy",
			zap.String("folder", folder))
		format = Numpy
	}
	return &Store{Folder: folder, Format: format, log: logger}
}

func (s *Store) path(label, name string) string {
	ext := ".npy"
	if s.Format == Formatted {
		ext = ".dat"
	}
	return filepath.Join(s.Folder, label, name+ext)
}

// SaveDense persists a matrix under label/name. Memory stores skip the
// write. The file appears atomically: data lands in a temporary sibling
// first and is renamed into place.
func (s *Store) SaveDense(label, name string, m *mat.Dense) error {
	if s.Format == Memory {
		return nil
	}
	path := s.path(label, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", tmp, err)
	}
	if s.Format == Formatted {
		err = writeText(f, m)
	} else {
		err = writeNpy(f, m)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: commit %s: %w", path, err)
	}
	return nil
}

// LoadDense retrieves a matrix saved under label/name. Memory stores always
// miss. A missing file returns an error wrapping fs.ErrNotExist so callers
// can distinguish a cache miss from a corrupt entry.
func (s *Store) LoadDense(label, name string) (*mat.Dense, error) {
	if s.Format == Memory {
		return nil, os.ErrNotExist
	}
	path := s.path(label, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m *mat.Dense
	if s.Format == Formatted {
		m, err = readText(f)
	} else {
		m, err = readNpy(f)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return m, nil
}
