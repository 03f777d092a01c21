package anharmonic

import "fmt"

// Backend selects how the per-mode scattering projections are scheduled.
// Both backends run the same arithmetic in the same order within a mode,
// so their results are bit-identical; Batched only distributes whole modes
// across a worker pool.
type Backend int

const (
	// Dense runs every mode serially on the calling goroutine.
	Dense Backend = iota
	// Batched fans modes out over a bounded worker pool, one scratch
	// workspace per worker.
	Batched
)

// ParseBackend maps a configuration string onto a Backend.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "dense", "":
		return Dense, nil
	case "batched":
		return Batched, nil
	}
	return 0, fmt.Errorf("anharmonic: unknown backend %q (want dense or batched)", name)
}

func (b Backend) String() string {
	switch b {
	case Dense:
		return "dense"
	case Batched:
		return "batched"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}
