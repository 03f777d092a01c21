package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func awkwardMatrix() *mat.Dense {
	return mat.NewDense(2, 3, []float64{
		1.0 / 3.0, -2.718281828459045e-17, 0,
		6.350779926105674, 1e300, -0.1,
	})
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"":          Numpy,
		"numpy":     Numpy,
		"formatted": Formatted,
		"memory":    Memory,
		"hdf5":      HDF5,
	} {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseFormat("parquet")
	assert.ErrorContains(t, err, "unknown format")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, format := range []Format{Formatted, Numpy} {
		t.Run(format.String(), func(t *testing.T) {
			s := New(t.TempDir(), format, zap.NewNop())
			want := awkwardMatrix()
			require.NoError(t, s.SaveDense("300/quantum", "frequency", want))

			got, err := s.LoadDense("300/quantum", "frequency")
			require.NoError(t, err)
			r, c := got.Dims()
			assert.Equal(t, 2, r)
			assert.Equal(t, 3, c)
			assert.Equal(t, want.RawMatrix().Data, got.RawMatrix().Data)
		})
	}
}

func TestSaveLeavesNoTemporaries(t *testing.T) {
	folder := t.TempDir()
	s := New(folder, Formatted, zap.NewNop())
	require.NoError(t, s.SaveDense("", "heat_capacity", awkwardMatrix()))

	stale, err := filepath.Glob(filepath.Join(folder, "*", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, stale)
	stale, err = filepath.Glob(filepath.Join(folder, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestLoadMissIsNotExist(t *testing.T) {
	s := New(t.TempDir(), Numpy, zap.NewNop())
	_, err := s.LoadDense("300/quantum", "bandwidth")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadCorruptIsNotAMiss(t *testing.T) {
	for _, format := range []Format{Formatted, Numpy} {
		t.Run(format.String(), func(t *testing.T) {
			s := New(t.TempDir(), format, zap.NewNop())
			path := s.path("", "velocity")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte("not a matrix"), 0o644))

			_, err := s.LoadDense("", "velocity")
			require.Error(t, err)
			assert.False(t, errors.Is(err, fs.ErrNotExist))
		})
	}
}

func TestMemoryFormatSkipsDisk(t *testing.T) {
	folder := t.TempDir()
	s := New(folder, Memory, zap.NewNop())
	require.NoError(t, s.SaveDense("300/quantum", "population", awkwardMatrix()))

	entries, err := os.ReadDir(folder)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.LoadDense("300/quantum", "population")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestHDF5FallsBackToNumpy(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := New(t.TempDir(), HDF5, zap.New(core))

	assert.Equal(t, Numpy, s.Format)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "falling back to numpy")

	require.NoError(t, s.SaveDense("", "frequency", awkwardMatrix()))
	_, err := s.LoadDense("", "frequency")
	assert.NoError(t, err)
}

func TestCellComputesOnce(t *testing.T) {
	var cell Cell[int]
	calls := 0
	compute := func() int {
		calls++
		return 41 + calls
	}
	assert.Equal(t, 42, cell.Get(compute))
	assert.Equal(t, 42, cell.Get(compute))
	assert.Equal(t, 1, calls)
}

func TestArrayCellComputesOnceAndPersists(t *testing.T) {
	folder := t.TempDir()
	s := New(folder, Numpy, zap.NewNop())
	calls := 0
	compute := func() *mat.Dense {
		calls++
		return awkwardMatrix()
	}

	cell := NewArrayCell(s, "300/quantum", "frequency")
	first := cell.Get(compute)
	second := cell.Get(compute)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	// A fresh cell on the same store finds the persisted copy.
	reload := NewArrayCell(s, "300/quantum", "frequency").Get(compute)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.RawMatrix().Data, reload.RawMatrix().Data)
}

func TestArrayCellRecomputesCorruptEntry(t *testing.T) {
	folder := t.TempDir()
	core, logs := observer.New(zap.WarnLevel)
	s := New(folder, Formatted, zap.New(core))
	path := s.path("", "bandwidth")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("2 2\n1 2 3"), 0o644))

	calls := 0
	got := NewArrayCell(s, "", "bandwidth").Get(func() *mat.Dense {
		calls++
		return awkwardMatrix()
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, awkwardMatrix().RawMatrix().Data, got.RawMatrix().Data)
	require.GreaterOrEqual(t, logs.Len(), 1)
	assert.Contains(t, logs.All()[0].Message, "recomputing")

	// The rewrite replaced the corrupt file.
	reload, err := s.LoadDense("", "bandwidth")
	require.NoError(t, err)
	assert.Equal(t, got.RawMatrix().Data, reload.RawMatrix().Data)
}

func TestArrayCellMemoryStoreStaysInProcess(t *testing.T) {
	folder := t.TempDir()
	s := New(folder, Memory, zap.NewNop())
	calls := 0
	cell := NewArrayCell(s, "300/classic", "phase_space")
	cell.Get(func() *mat.Dense { calls++; return awkwardMatrix() })
	cell.Get(func() *mat.Dense { calls++; return awkwardMatrix() })
	assert.Equal(t, 1, calls)

	entries, err := os.ReadDir(folder)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArrayCellConcurrentAccess(t *testing.T) {
	s := New(t.TempDir(), Memory, zap.NewNop())
	cell := NewArrayCell(s, "", "frequency")
	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cell.Get(func() *mat.Dense {
				mu.Lock()
				calls++
				mu.Unlock()
				return awkwardMatrix()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}
