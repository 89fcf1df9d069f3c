package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"transcription-icd-coder/internal/models"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Sink writes the full result table.
type Sink interface {
	Write(rows []models.OutputRow) error
	Path() string
}

// NewSink returns a sink for format. FormatAuto picks Parquet for a
// .parquet path and CSV otherwise.
func NewSink(path, format string) (Sink, error) {
	switch ResolveFormat(path, format) {
	case FormatCSV:
		return &CSVSink{path: path}, nil
	case FormatParquet:
		return &ParquetSink{path: path}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// ResolveFormat applies the auto rule to format.
func ResolveFormat(path, format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != FormatAuto {
		return format
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// CSVSink writes rows as comma separated values with a header line.
// Null values are written as empty cells.
type CSVSink struct {
	path string
}

func (s *CSVSink) Path() string { return s.path }

// Write creates the file and writes the header and one line per row.
func (s *CSVSink) Write(rows []models.OutputRow) error {
	file, err := create(s.path)
	if err != nil {
		return &SinkWriteError{Path: s.path, Err: err}
	}

	w := csv.NewWriter(file)
	if err := w.Write(models.OutputColumns); err != nil {
		file.Close()
		return &SinkWriteError{Path: s.path, Err: err}
	}
	for _, row := range rows {
		if err := w.Write(csvRecord(row)); err != nil {
			file.Close()
			return &SinkWriteError{Path: s.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return &SinkWriteError{Path: s.path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &SinkWriteError{Path: s.path, Err: err}
	}
	return nil
}

func csvRecord(row models.OutputRow) []string {
	age := ""
	if row.Age != nil {
		age = strconv.Itoa(*row.Age)
	}
	return []string{
		age,
		row.MedicalSpecialty,
		deref(row.RecommendedTreatment),
		deref(row.ICDCode),
		deref(row.ICDDescription),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// create opens path for writing, creating parent directories.
func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	return os.Create(path)
}
