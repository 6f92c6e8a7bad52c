// Package metrics scores a simulated trajectory against measured data.
package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/tianwei1989/EstimationPy/internal/series"
)

// Metric accumulates one score over (simulated, measured) pairs.
type Metric interface {
	Name() string
	Observe(simulated, measured float64, t time.Time)
	Value() float64
	Reset()
}

// RMSE is the root mean square error.
type RMSE struct {
	sum     float64
	samples int
}

func NewRMSE() *RMSE { return &RMSE{} }

func (m *RMSE) Name() string { return "rmse" }

func (m *RMSE) Observe(simulated, measured float64, t time.Time) {
	d := simulated - measured
	m.sum += d * d
	m.samples++
}

func (m *RMSE) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sum / float64(m.samples))
}

func (m *RMSE) Reset() {
	m.sum = 0
	m.samples = 0
}

// MaxError is the largest absolute error seen.
type MaxError struct {
	max float64
}

func NewMaxError() *MaxError { return &MaxError{} }

func (m *MaxError) Name() string { return "max_error" }

func (m *MaxError) Observe(simulated, measured float64, t time.Time) {
	m.max = math.Max(m.max, math.Abs(simulated-measured))
}

func (m *MaxError) Value() float64 { return m.max }

func (m *MaxError) Reset() { m.max = 0 }

// Coverage is the fraction of samples whose absolute error stays within
// the tolerance.
type Coverage struct {
	tolerance  float64
	violations int
	samples    int
}

func NewCoverage(tolerance float64) *Coverage {
	return &Coverage{tolerance: tolerance}
}

func (m *Coverage) Name() string { return "coverage" }

func (m *Coverage) Observe(simulated, measured float64, t time.Time) {
	m.samples++
	if math.Abs(simulated-measured) > m.tolerance {
		m.violations++
	}
}

func (m *Coverage) Value() float64 {
	if m.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(m.violations)/float64(m.samples)
}

func (m *Coverage) Reset() {
	m.violations = 0
	m.samples = 0
}

// Defaults returns the metrics reported for every measured output.
func Defaults() []Metric {
	return []Metric{NewRMSE(), NewMaxError()}
}

// Compare feeds every grid point of a trajectory, paired with the measured
// data sampled at the same time, to the metrics and returns their values by
// name. The metrics are reset first.
func Compare(times []time.Time, simulated []float64, measured series.Series, ms ...Metric) (map[string]float64, error) {
	if len(times) != len(simulated) {
		return nil, fmt.Errorf("metrics: %d time points but %d values", len(times), len(simulated))
	}
	if len(measured) == 0 {
		return nil, series.ErrEmpty
	}
	for _, m := range ms {
		m.Reset()
	}
	for i, t := range times {
		want := measured.ValueAt(t)
		for _, m := range ms {
			m.Observe(simulated[i], want, t)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out, nil
}
