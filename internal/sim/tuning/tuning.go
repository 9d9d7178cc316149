package tuning

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID string `yaml:"world_id" validate:"required"`

	// TickRateHz is the host tick loop frequency; routing masters gate
	// themselves on game time, not wall time.
	TickRateHz         int `yaml:"tick_rate_hz" validate:"min=1,max=1000"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" validate:"min=0"`
	ObserverBuffer     int `yaml:"observer_buffer" validate:"min=1"`
	EditQueue          int `yaml:"edit_queue" validate:"min=1"`

	TickLog bool `yaml:"tick_log"`
}

var validate = validator.New()

func Defaults() Tuning {
	return Tuning{
		WorldID:            "world_1",
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		ObserverBuffer:     8,
		EditQueue:          256,
		TickLog:            true,
	}
}

// Load overlays path onto Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	return nil
}
