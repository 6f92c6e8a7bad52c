package storage

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

type ExportData struct {
	RunMetadata
	Times   []time.Time          `json:"times"`
	Results map[string][]float64 `json:"results"`
}

// Export writes a stored run, metadata and trajectories, as one JSON document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	times, results, err := s.LoadTrajectories(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{RunMetadata: *meta, Times: times, Results: results})
}
