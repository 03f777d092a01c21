package phonons

import (
	"fmt"

	"github.com/Akou-stack/kaldo/ifc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultFolder receives persisted observables when the configuration
// does not name a folder.
const DefaultFolder = "ald-output"

// Config is the full configuration surface of a Phonons instance. The
// yaml-tagged fields round-trip through ConfigFromYAML; force constants
// and the logger are wired in code.
type Config struct {
	// Temperature of the simulation in K.
	Temperature float64 `yaml:"temperature"`
	// IsClassic selects equipartition statistics instead of Bose-Einstein.
	IsClassic bool `yaml:"is_classic"`
	// KPts is the reciprocal mesh shape. (1,1,1) marks an amorphous run.
	KPts [3]int `yaml:"kpts"`
	// MinFrequency and MaxFrequency bound the physical window in THz.
	// Modes at or below MinFrequency are masked; MaxFrequency 0 means
	// unbounded above.
	MinFrequency float64 `yaml:"min_frequency"`
	MaxFrequency float64 `yaml:"max_frequency"`
	// ThirdBandwidth fixes the energy conservation smearing width in THz.
	// 0 selects adaptive smearing from the local velocity and mesh spacing.
	ThirdBandwidth float64 `yaml:"third_bandwidth"`
	// BroadeningShape is gauss, lorentz or triangle. Empty means gauss.
	BroadeningShape string `yaml:"broadening_shape"`
	// Backend is dense or batched. Empty means batched.
	Backend string `yaml:"backend"`
	// Workers sizes the batched worker pool. 0 uses every CPU.
	Workers int `yaml:"workers"`
	// Storage is formatted, numpy, memory or hdf5. Empty means numpy.
	Storage string `yaml:"storage"`
	// Folder roots the on-disk observable tree.
	Folder string `yaml:"folder"`
	// GridType is the mesh unraveling convention, C or F.
	GridType string `yaml:"grid_type"`

	ForceConstants *ifc.ForceConstants `yaml:"-"`
	Logger         *zap.Logger         `yaml:"-"`
}

// ConfigFromYAML decodes the yaml-facing subset of Config. The force
// constants and logger still have to be attached before calling New.
func ConfigFromYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("phonons: parse configuration: %w", err)
	}
	return cfg, nil
}
