package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/models"
)

// ReportWriter persists the per-key outcomes and missing mappings of a run.
type ReportWriter interface {
	WriteOutcomes(outcomes []models.Outcome) error
	WriteMissing(missing []models.MissingMapping) error
	Close() error
	Validate() error
}

// Row kinds in report files.
const (
	rowOutcome = "outcome"
	rowMissing = "missing_mapping"
)

// NewReportWriter opens a writer for format csv, json or dual. For dual the
// extension of filename is replaced by .csv and .jsonl.
func NewReportWriter(filename, format string) (ReportWriter, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return NewCSVWriter(filename)
	case "json", "jsonl":
		return NewJSONWriter(filename)
	case "dual":
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(base+".csv", base+".jsonl")
	default:
		return nil, eris.Errorf("unknown report format %q", format)
	}
}

// CSVWriter writes report rows to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrap(err, "create csv file")
	}

	writer := csv.NewWriter(f)
	header := []string{"kind", "key", "vin", "status", "model", "reason"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, eris.Wrap(err, "write csv header")
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, eris.Wrap(err, "flush csv header")
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// WriteOutcomes appends one row per outcome.
func (cw *CSVWriter) WriteOutcomes(outcomes []models.Outcome) error {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{rowOutcome, o.Key, o.VIN, string(o.Status), "", o.Reason})
	}
	return cw.write(rows)
}

// WriteMissing appends one row per missing mapping.
func (cw *CSVWriter) WriteMissing(missing []models.MissingMapping) error {
	rows := make([][]string, 0, len(missing))
	for _, m := range missing {
		rows = append(rows, []string{rowMissing, "", m.VIN, "", m.Model, ""})
	}
	return cw.write(rows)
}

func (cw *CSVWriter) write(rows [][]string) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, row := range rows {
		if err := cw.writer.Write(row); err != nil {
			return eris.Wrap(err, "write csv record")
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return eris.Wrap(err, "flush csv records")
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return eris.Wrap(err, "flush csv writer")
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return eris.Wrap(err, "stat csv file")
	}
	if info.Size() <= 0 {
		return eris.New("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON rows.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

type jsonRow struct {
	Kind string `json:"kind"`
	models.Outcome
	Model string `json:"model,omitempty"`
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrap(err, "create json file")
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// WriteOutcomes appends outcomes in JSONL format.
func (jw *JSONWriter) WriteOutcomes(outcomes []models.Outcome) error {
	rows := make([]jsonRow, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, jsonRow{Kind: rowOutcome, Outcome: o})
	}
	return jw.write(rows)
}

// WriteMissing appends missing mappings in JSONL format.
func (jw *JSONWriter) WriteMissing(missing []models.MissingMapping) error {
	rows := make([]jsonRow, 0, len(missing))
	for _, m := range missing {
		rows = append(rows, jsonRow{Kind: rowMissing, Outcome: models.Outcome{VIN: m.VIN}, Model: m.Model})
	}
	return jw.write(rows)
}

func (jw *JSONWriter) write(rows []jsonRow) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return eris.Wrap(err, "encode json record")
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return eris.Wrap(err, "flush json writer")
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return eris.Wrap(err, "flush json writer")
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return eris.Wrap(err, "stat json file")
	}
	if info.Size() <= 0 {
		return eris.New("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create directory %q", dir)
	}
	return nil
}
