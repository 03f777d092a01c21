package storage

import (
	"errors"
	"io/fs"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Cell caches one computed value for the life of the process.
type Cell[T any] struct {
	once sync.Once
	v    T
}

// Get returns the cached value, invoking compute on first use only.
func (c *Cell[T]) Get(compute func() T) T {
	c.once.Do(func() { c.v = compute() })
	return c.v
}

// ArrayCell is a Cell for matrix observables that additionally consults the
// store before computing and persists the result after. Load or save
// problems never fail the access: they are logged and the value is
// recomputed or kept in memory only.
type ArrayCell struct {
	store *Store
	label string
	name  string

	once sync.Once
	v    *mat.Dense
}

// NewArrayCell binds a cell to its location in the store.
func NewArrayCell(store *Store, label, name string) *ArrayCell {
	return &ArrayCell{store: store, label: label, name: name}
}

// Get returns the observable, loading it from disk when a previous run
// saved it and computing (then saving) it otherwise.
func (c *ArrayCell) Get(compute func() *mat.Dense) *mat.Dense {
	c.once.Do(func() {
		m, err := c.store.LoadDense(c.label, c.name)
		if err == nil {
			c.store.log.Debug("observable loaded",
				zap.String("label", c.label), zap.String("name", c.name))
			c.v = m
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			c.store.log.Warn("stored observable unreadable, recomputing",
				zap.String("label", c.label), zap.String("name", c.name), zap.Error(err))
		}
		c.v = compute()
		if err := c.store.SaveDense(c.label, c.name, c.v); err != nil {
			c.store.log.Warn("observable not persisted",
				zap.String("label", c.label), zap.String("name", c.name), zap.Error(err))
		}
	})
	return c.v
}
