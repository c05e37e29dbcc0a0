package autoprocess

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/timgluz/autoprocess/timeseries"
)

// File is the YAML document that declares time series and the definitions
// between them.
type File struct {
	Timeseries  []timeseries.Timeseries `yaml:"timeseries"`
	Definitions []Definition            `yaml:"definitions"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes and validates a definitions document. Definitions
// without an id get one derived from their name.
func ParseFile(data []byte) (*File, error) {
	var file File

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse definitions file: %w", err)
	}

	seen := make(map[string]bool)
	for i := range file.Definitions {
		d := &file.Definitions[i]
		if d.ID == "" {
			d.ID = NewDefinitionID(d.Name)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionExists, d.ID)
		}
		seen[d.ID] = true

		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	for i := range file.Timeseries {
		ts := &file.Timeseries[i]
		if ts.ID == "" {
			ts.ID = timeseries.NewTimeseriesID(ts.StationID, ts.Name)
		}
	}
	return &file, nil
}
