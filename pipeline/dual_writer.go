package pipeline

import (
	"errors"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/models"
)

// DualWriter writes the run report as CSV and JSONL side by side.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates both underlying writers.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create CSV writer")
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, eris.Wrap(err, "failed to create JSON writer")
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// WriteOutcomes writes outcomes to both files.
func (dw *DualWriter) WriteOutcomes(outcomes []models.Outcome) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.WriteOutcomes(outcomes); err != nil {
		return eris.Wrap(err, "CSV write failed")
	}
	if err := dw.jsonWriter.WriteOutcomes(outcomes); err != nil {
		return eris.Wrap(err, "JSON write failed")
	}
	return nil
}

// WriteMissing writes missing mappings to both files.
func (dw *DualWriter) WriteMissing(missing []models.MissingMapping) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.WriteMissing(missing); err != nil {
		return eris.Wrap(err, "CSV write failed")
	}
	if err := dw.jsonWriter.WriteMissing(missing); err != nil {
		return eris.Wrap(err, "JSON write failed")
	}
	return nil
}

// Close closes both writers
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, eris.Wrap(err, "CSV close failed"))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, eris.Wrap(err, "JSON close failed"))
	}
	return errors.Join(errs...)
}

// Validate validates both output files
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, eris.Wrap(err, "CSV validation failed"))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, eris.Wrap(err, "JSON validation failed"))
	}
	return errors.Join(errs...)
}
