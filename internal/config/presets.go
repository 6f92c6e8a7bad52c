package config

import (
	"fmt"
	"time"

	"github.com/tianwei1989/EstimationPy/internal/model"
)

// Resolution is a named choice of communication grid.
type Resolution struct {
	Step      time.Duration
	Intervals int
}

// Presets are the resolutions selectable by name on the command line.
// "data" clears both settings so the grid follows the input samples.
var Presets = map[string]Resolution{
	"data":    {},
	"coarse":  {Intervals: 50},
	"default": {Intervals: model.DefaultIntervals},
	"fine":    {Intervals: 5000},
	"second":  {Step: time.Second},
}

func GetPreset(name string) (Resolution, bool) {
	r, ok := Presets[name]
	return r, ok
}

func ListPresets() []string {
	return sortedKeys(Presets)
}

// ApplyPreset replaces the time grid settings with a preset.
func (c *Config) ApplyPreset(name string) error {
	r, ok := GetPreset(name)
	if !ok {
		return fmt.Errorf("config: unknown preset %q (available: %v)", name, ListPresets())
	}
	c.Step = r.Step
	c.Intervals = r.Intervals
	return nil
}
