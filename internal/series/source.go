package series

import "fmt"

// Source is the binding of one variable to its data. It is either file
// backed, through a CSVReader, or holds an in-memory Series; whichever was
// bound last wins.
type Source struct {
	csv  *CSVReader
	data Series
}

func NewSource() *Source {
	return &Source{}
}

// GetCsvReader returns the file reader, creating it on first use. The reader
// only takes over the binding once a file has been opened with it.
func (s *Source) GetCsvReader() *CSVReader {
	if s.csv == nil {
		s.csv = NewCSVReader()
	}
	return s.csv
}

// SetDataSeries binds an in-memory series, replacing any file binding.
func (s *Source) SetDataSeries(data Series) error {
	if err := data.Validate(); err != nil {
		return err
	}
	s.data = data
	s.csv = nil
	return nil
}

// IsBound reports whether the source has data to read, though reading it
// may still fail (for example an opened file without a selected column).
func (s *Source) IsBound() bool {
	return (s.csv != nil && s.csv.IsOpen()) || s.data != nil
}

// Series resolves the bound data.
func (s *Source) Series() (Series, error) {
	if s.csv != nil && s.csv.IsOpen() {
		return s.csv.GetDataSeries()
	}
	if s.data != nil {
		return s.data, nil
	}
	return nil, ErrUnbound
}

func (s *Source) String() string {
	switch {
	case s.csv != nil && s.csv.IsOpen():
		return fmt.Sprintf("csv:%s[%s]", s.csv.Path(), s.csv.GetSelectedColumn())
	case s.data != nil:
		return fmt.Sprintf("series[%d samples]", len(s.data))
	default:
		return "unbound"
	}
}
