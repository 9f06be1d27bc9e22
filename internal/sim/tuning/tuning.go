package tuning

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"factorycraft.ai/internal/sim/catalogs"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz" validate:"gte=1,lte=1000"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" validate:"gte=0"`

	// Building footprint; positions are top-left corners.
	BuildingWidth   float64 `yaml:"building_width" validate:"gt=0"`
	BuildingHeight  float64 `yaml:"building_height" validate:"gt=0"`
	SpatialCellSize float64 `yaml:"spatial_cell_size" validate:"gt=0"`

	// Global fallback stock. If nil, defaults are applied; if non-nil but empty, the game starts with nothing.
	StorageCapacity   int            `yaml:"storage_capacity" validate:"gte=0"`
	StartingResources map[string]int `yaml:"starting_resources" validate:"dive,keys,resource_kind,endkeys,gte=0"`

	Optimization Optimization `yaml:"optimization"`
}

// Optimization toggles change timing only, never simulation results.
type Optimization struct {
	ConnectionChangeDetection bool `yaml:"connection_change_detection"`
	SupplierCache             bool `yaml:"supplier_cache"`
	BatchUpdates              bool `yaml:"batch_updates"`
	ParallelProcessing        bool `yaml:"parallel_processing"`
	MaxConcurrency            int  `yaml:"max_concurrency" validate:"gte=1,lte=256"`
	MemoryOptimization        bool `yaml:"memory_optimization"`
	CacheInvalidationInterval int  `yaml:"cache_invalidation_interval" validate:"gte=1"`
}

func Defaults() Tuning {
	t := Tuning{
		TickRateHz:         5,
		SnapshotEveryTicks: 600,
		BuildingWidth:      40,
		BuildingHeight:     40,
		SpatialCellSize:    50,
		StorageCapacity:    catalogs.DefaultStorageCapacity,
		Optimization:       DefaultOptimization(),
	}
	t.applyDefaults()
	return t
}

func DefaultOptimization() Optimization {
	return Optimization{
		ConnectionChangeDetection: true,
		SupplierCache:             true,
		BatchUpdates:              true,
		ParallelProcessing:        true,
		MaxConcurrency:            4,
		MemoryOptimization:        true,
		CacheInvalidationInterval: 1000,
	}
}

func (t *Tuning) applyDefaults() {
	if t.StartingResources == nil {
		t.StartingResources = map[string]int{
			"stone":      100,
			"iron-ore":   100,
			"copper-ore": 100,
		}
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	t.StartingResources = nil
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// StartingStock converts StartingResources to typed kinds, skipping unknown names.
func (t Tuning) StartingStock() map[catalogs.ResourceKind]int {
	out := make(map[catalogs.ResourceKind]int, len(t.StartingResources))
	for name, n := range t.StartingResources {
		if k, ok := catalogs.ParseKind(name); ok && n > 0 {
			out[k] = n
		}
	}
	return out
}

// ConfigError reports the first invalid tuning field.
type ConfigError struct {
	Field string
	Rule  string
	Value any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%v (rule %s)", e.Field, e.Value, e.Rule)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("resource_kind", func(fl validator.FieldLevel) bool {
			_, ok := catalogs.ParseKind(fl.Field().String())
			return ok
		})
		validate = v
	})
	return validate
}

func (t Tuning) Validate() error {
	err := validatorInstance().Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigError{Field: fe.Namespace(), Rule: fe.Tag(), Value: fe.Value()}
	}
	return err
}
