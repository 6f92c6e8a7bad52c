package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tianwei1989/EstimationPy/internal/model"
	"github.com/tianwei1989/EstimationPy/internal/series"
)

const DefaultResultsDir = "results"

var ErrInvalid = errors.New("config: invalid configuration")

// Config describes one simulation run: the model description, how its
// inputs and measured outputs are fed, value overrides and the time grid.
type Config struct {
	Model        string             `yaml:"model"`
	StartTime    string             `yaml:"start_time,omitempty"`
	FinalTime    string             `yaml:"final_time,omitempty"`
	Step         time.Duration      `yaml:"step,omitempty"`
	Intervals    int                `yaml:"intervals,omitempty"`
	StrictInputs bool               `yaml:"strict_inputs,omitempty"`
	Parameters   map[string]float64 `yaml:"parameters,omitempty"`
	InitialState []float64          `yaml:"initial_state,omitempty"`
	Inputs       map[string]Binding `yaml:"inputs,omitempty"`
	Measured     map[string]Binding `yaml:"measured_outputs,omitempty"`
	ResultsDir   string             `yaml:"results_dir"`
}

// Binding feeds one variable either from a CSV column or from regularly
// spaced inline values.
type Binding struct {
	CSV    string `yaml:"csv,omitempty"`
	Column string `yaml:"column,omitempty"`

	Start  string        `yaml:"start,omitempty"`
	Step   time.Duration `yaml:"step,omitempty"`
	Values []float64     `yaml:"values,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		ResultsDir: DefaultResultsDir,
	}
}

// Load reads a configuration file. Relative model and CSV paths are taken
// relative to the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Model = abs(c.Model)
	for name, b := range c.Inputs {
		b.CSV = abs(b.CSV)
		c.Inputs[name] = b
	}
	for name, b := range c.Measured {
		b.CSV = abs(b.CSV)
		c.Measured[name] = b
	}
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalid)
	}
	if c.Step < 0 {
		return fmt.Errorf("%w: negative step %s", ErrInvalid, c.Step)
	}
	if c.Intervals < 0 {
		return fmt.Errorf("%w: negative intervals %d", ErrInvalid, c.Intervals)
	}
	opts, err := c.Options()
	if err != nil {
		return err
	}
	if !opts.StartTime.IsZero() && !opts.FinalTime.IsZero() && opts.FinalTime.Before(opts.StartTime) {
		return fmt.Errorf("%w: final_time before start_time", ErrInvalid)
	}
	for name, b := range c.Inputs {
		if err := b.validate(); err != nil {
			return fmt.Errorf("%w: input %s: %v", ErrInvalid, name, err)
		}
	}
	for name, b := range c.Measured {
		if err := b.validate(); err != nil {
			return fmt.Errorf("%w: measured output %s: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

func (b Binding) validate() error {
	switch {
	case b.CSV != "" && len(b.Values) > 0:
		return errors.New("csv and values are mutually exclusive")
	case b.CSV != "":
		return nil
	case len(b.Values) == 0:
		return errors.New("either csv or values is required")
	case b.Step <= 0:
		return errors.New("inline values need a positive step")
	}
	_, err := series.ParseTimestamp(b.Start)
	return err
}

// Options converts the time settings into simulation options.
func (c *Config) Options() (model.SimulateOptions, error) {
	opts := model.SimulateOptions{StepSize: c.Step, Intervals: c.Intervals}
	var err error
	if c.StartTime != "" {
		if opts.StartTime, err = series.ParseTimestamp(c.StartTime); err != nil {
			return opts, fmt.Errorf("%w: start_time: %v", ErrInvalid, err)
		}
	}
	if c.FinalTime != "" {
		if opts.FinalTime, err = series.ParseTimestamp(c.FinalTime); err != nil {
			return opts, fmt.Errorf("%w: final_time: %v", ErrInvalid, err)
		}
	}
	return opts, nil
}

// Open loads the model, applies the configuration and initializes the
// simulator, leaving it ready to run.
func (c *Config) Open() (*model.Model, error) {
	m, err := model.Open(c.Model, model.WithStrictInputs(c.StrictInputs))
	if err != nil {
		return nil, err
	}
	if err := c.Apply(m); err != nil {
		return nil, err
	}
	if err := m.InitializeSimulator(); err != nil {
		return nil, err
	}
	return m, nil
}

// Apply writes parameter values, the initial state and data bindings to a
// loaded model.
func (c *Config) Apply(m *model.Model) error {
	for _, name := range sortedKeys(c.Parameters) {
		v, ok := m.GetVariableObject(name)
		if !ok {
			return fmt.Errorf("config: unknown variable %q", name)
		}
		if err := m.SetReal(v, c.Parameters[name]); err != nil {
			return err
		}
	}
	if c.InitialState != nil {
		if err := m.SetState(c.InitialState); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(c.Inputs) {
		in, ok := m.GetInputByName(name)
		if !ok {
			return fmt.Errorf("config: unknown input %q", name)
		}
		if err := c.Inputs[name].bind(in.GetCsvReader, in.SetDataSeries); err != nil {
			return fmt.Errorf("config: input %s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(c.Measured) {
		out, ok := m.GetOutputByName(name)
		if !ok {
			return fmt.Errorf("config: unknown output %q", name)
		}
		if err := c.Measured[name].bind(out.GetCsvReader, out.SetMeasuredDataSeries); err != nil {
			return fmt.Errorf("config: measured output %s: %w", name, err)
		}
	}
	return nil
}

func (b Binding) bind(reader func() *series.CSVReader, set func(series.Series) error) error {
	if b.CSV == "" {
		start, err := series.ParseTimestamp(b.Start)
		if err != nil {
			return err
		}
		return set(series.Regular(start, b.Step, b.Values))
	}

	r := reader()
	if err := r.OpenCSV(b.CSV); err != nil {
		return err
	}
	if b.Column != "" {
		return r.SetSelectedColumn(b.Column)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
