// Package series holds the timestamped scalar data bound to model inputs and
// measured outputs.
//
// A [Series] is an ordered run of [Sample] values. It is read either from a
// column of a delimited file through a [CSVReader] or wrapped from memory, and
// a [Source] tracks which of the two an input is currently bound to.
//
// Sampling between recorded points interpolates linearly; outside the
// recorded extent the nearest endpoint is held.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrFileNotFound     = errors.New("series: file not found")
	ErrParse            = errors.New("series: cannot parse file")
	ErrColumnNotFound   = errors.New("series: column not found")
	ErrNoColumnSelected = errors.New("series: no column selected")
	ErrEmpty            = errors.New("series: no samples")
	ErrUnordered        = errors.New("series: timestamps are not in non-decreasing order")
	ErrUnbound          = errors.New("series: source is not bound")
)

type Sample struct {
	Time  time.Time
	Value float64
}

// Series is ordered by non-decreasing Time. Once bound it is treated as
// immutable and may be shared between models.
type Series []Sample

// New pairs times with values and validates the result.
func New(times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("series: %d timestamps but %d values", len(times), len(values))
	}
	s := make(Series, len(times))
	for i := range times {
		s[i] = Sample{Time: times[i], Value: values[i]}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Regular builds a series with one sample every step starting at start.
func Regular(start time.Time, step time.Duration, values []float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Sample{Time: start.Add(time.Duration(i) * step), Value: v}
	}
	return s
}

// Constant returns n samples of value v spaced step apart.
func Constant(start time.Time, step time.Duration, n int, v float64) Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return Regular(start, step, values)
}

func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmpty
	}
	for i := 1; i < len(s); i++ {
		if s[i].Time.Before(s[i-1].Time) {
			return fmt.Errorf("%w: sample %d (%s) precedes sample %d (%s)",
				ErrUnordered, i, s[i].Time.Format(time.RFC3339Nano), i-1, s[i-1].Time.Format(time.RFC3339Nano))
		}
	}
	return nil
}

func (s Series) Len() int { return len(s) }

// Extent returns the first and last timestamps. Both are zero for an empty series.
func (s Series) Extent() (time.Time, time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Time, s[len(s)-1].Time
}

func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s))
	for i, smp := range s {
		out[i] = smp.Time
	}
	return out
}

func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Value
	}
	return out
}

// ValueAt samples the series at t: exact timestamps return their value,
// points in between are linearly interpolated and points outside the extent
// hold the nearest endpoint. With repeated timestamps the last sample wins.
func (s Series) ValueAt(t time.Time) float64 {
	if len(s) == 0 {
		return 0
	}
	// first sample strictly after t
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	switch {
	case i == 0:
		return s[0].Value
	case i == len(s):
		return s[len(s)-1].Value
	}
	lo, hi := s[i-1], s[i]
	if lo.Time.Equal(t) {
		return lo.Value
	}
	span := hi.Time.Sub(lo.Time)
	frac := float64(t.Sub(lo.Time)) / float64(span)
	return lo.Value + frac*(hi.Value-lo.Value)
}

// Window returns the samples whose timestamps fall in [from, to].
func (s Series) Window(from, to time.Time) Series {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(from) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Time.After(to) })
	if lo >= hi {
		return Series{}
	}
	return s[lo:hi]
}
