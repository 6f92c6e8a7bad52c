package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tianwei1989/EstimationPy/internal/series"
)

const (
	metadataFile     = "metadata.json"
	trajectoriesFile = "trajectories.csv"
)

// Store keeps one directory per simulation run under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	Description string             `json:"description"`
	Timestamp   time.Time          `json:"timestamp"`
	StartTime   time.Time          `json:"start_time"`
	FinalTime   time.Time          `json:"final_time"`
	Steps       int                `json:"steps"`
	Outputs     []string           `json:"outputs"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Run is what gets saved: the trajectories of one simulation and what
// produced them. Outputs fixes the column order; when empty the result
// names are used in sorted order.
type Run struct {
	Model       string
	Description string
	Parameters  map[string]float64
	Metrics     map[string]float64
	Outputs     []string
	Times       []time.Time
	Results     map[string][]float64
}

// Save writes a run and returns its id.
func (s *Store) Save(run Run) (string, error) {
	if len(run.Times) == 0 {
		return "", fmt.Errorf("storage: run has no time points")
	}
	names := run.Outputs
	if len(names) == 0 {
		for name := range run.Results {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		if len(run.Results[name]) != len(run.Times) {
			return "", fmt.Errorf("storage: output %s has %d values for %d time points",
				name, len(run.Results[name]), len(run.Times))
		}
	}

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s_%s", now.Format("20060102T150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Model:       run.Model,
		Description: run.Description,
		Timestamp:   now,
		StartTime:   run.Times[0],
		FinalTime:   run.Times[len(run.Times)-1],
		Steps:       len(run.Times) - 1,
		Outputs:     names,
		Parameters:  run.Parameters,
		Metrics:     run.Metrics,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}

	if err := writeTrajectories(filepath.Join(runDir, trajectoriesFile), run.Times, names, run.Results); err != nil {
		return "", err
	}
	return runID, nil
}

// writeTrajectories lays the run out the way input data files are read, so
// a stored run can feed another model.
func writeTrajectories(path string, times []time.Time, names []string, results map[string][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, names...)); err != nil {
		return err
	}
	for i, t := range times {
		row := make([]string, 0, len(names)+1)
		row = append(row, t.UTC().Format(time.RFC3339Nano))
		for _, name := range names {
			row = append(row, strconv.FormatFloat(results[name][i], 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return nil, fmt.Errorf("storage: invalid run id %q", runID)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTrajectories reads back the time grid and every output column of a run.
func (s *Store) LoadTrajectories(runID string) ([]time.Time, map[string][]float64, error) {
	if _, err := s.Load(runID); err != nil {
		return nil, nil, err
	}

	r := series.NewCSVReader()
	if err := r.OpenCSV(filepath.Join(s.baseDir, runID, trajectoriesFile)); err != nil {
		return nil, nil, err
	}

	var times []time.Time
	results := make(map[string][]float64)
	for _, name := range r.GetColumnNames() {
		if err := r.SetSelectedColumn(name); err != nil {
			return nil, nil, err
		}
		data, err := r.GetDataSeries()
		if err != nil {
			return nil, nil, err
		}
		if times == nil {
			times = data.Times()
		}
		results[name] = data.Values()
	}
	return times, results, nil
}
