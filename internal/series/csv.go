package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common "date time" layouts, all
// read as UTC when no zone is given, or a plain number of seconds since the
// Unix epoch.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
}

// CSVReader reads one column of a delimited file. The first column holds
// timestamps, every other column is a candidate value column named by the
// header row. The file is only scanned in full when the series is first
// requested.
type CSVReader struct {
	path     string
	columns  []string
	selected string
	cached   Series
}

func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// OpenCSV binds the reader to path and reads its header. Opening a new file
// drops any previous column selection. A file with a single value column has
// that column selected automatically.
func (r *CSVReader) OpenCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("series: open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("%w: %s: reading header: %v", ErrParse, path, err)
	}
	if len(header) < 2 {
		return fmt.Errorf("%w: %s: need a timestamp column and at least one value column", ErrParse, path)
	}

	columns := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		columns = append(columns, strings.TrimSpace(h))
	}

	r.path = path
	r.columns = columns
	r.selected = ""
	r.cached = nil
	if len(columns) == 1 {
		r.selected = columns[0]
	}
	return nil
}

func (r *CSVReader) Path() string { return r.path }

func (r *CSVReader) IsOpen() bool { return r.path != "" }

// GetColumnNames lists the value columns of the open file.
func (r *CSVReader) GetColumnNames() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

func (r *CSVReader) SetSelectedColumn(name string) error {
	if !r.IsOpen() {
		return fmt.Errorf("%w: no file opened", ErrUnbound)
	}
	for _, c := range r.columns {
		if c == name {
			r.selected = name
			r.cached = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %q in %s (have %s)", ErrColumnNotFound, name, r.path, strings.Join(r.columns, ", "))
}

func (r *CSVReader) GetSelectedColumn() string { return r.selected }

// IsBound reports whether a file is open and a column selected.
func (r *CSVReader) IsBound() bool { return r.IsOpen() && r.selected != "" }

// GetDataSeries reads the selected column. The result is cached until the
// file or the column changes.
func (r *CSVReader) GetDataSeries() (Series, error) {
	if r.cached != nil {
		return r.cached, nil
	}
	if !r.IsOpen() {
		return nil, fmt.Errorf("%w: no file opened", ErrUnbound)
	}
	if r.selected == "" {
		return nil, fmt.Errorf("%w: %s has columns %s", ErrNoColumnSelected, r.path, strings.Join(r.columns, ", "))
	}

	s, err := r.readColumn()
	if err != nil {
		return nil, err
	}
	r.cached = s
	return s, nil
}

func (r *CSVReader) readColumn() (Series, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, r.path)
		}
		return nil, fmt.Errorf("series: open %s: %w", r.path, err)
	}
	defer f.Close()

	col := 1
	for i, c := range r.columns {
		if c == r.selected {
			col = i + 1
			break
		}
	}

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %v", ErrParse, r.path, err)
	}

	var s Series
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, r.path, err)
		}
		line, _ := reader.FieldPos(0)

		ts, err := ParseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrParse, r.path, line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d column %q: %v", ErrParse, r.path, line, r.selected, err)
		}
		s = append(s, Sample{Time: ts, Value: v})
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, r.path, err)
	}
	return s, nil
}
