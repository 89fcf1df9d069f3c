// Package tabular reads transcription tables and writes coded result tables.
package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"transcription-icd-coder/internal/models"
)

// Required input columns, matched case-insensitively.
const (
	ColumnTranscription    = "transcription"
	ColumnMedicalSpecialty = "medical_specialty"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("required column missing")

// CSVSource streams transcription records from a delimited file.
type CSVSource struct {
	path     string
	file     io.Closer
	reader   *csv.Reader
	transIdx int
	specIdx  int
	rowNum   int
}

// NewCSVSource opens path and reads its header.
func NewCSVSource(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &SourceLoadError{Path: path, Err: err}
	}

	src, err := newSource(path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	src.file = file
	return src, nil
}

// NewCSVSourceReader reads records from r. name is used in errors.
func NewCSVSourceReader(name string, r io.Reader) (*CSVSource, error) {
	return newSource(name, r)
}

func newSource(path string, r io.Reader) (*CSVSource, error) {
	bufReader := bufio.NewReaderSize(r, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	reader := csv.NewReader(bufReader)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file")
		}
		return nil, &SourceLoadError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := colIdx[key]; !seen {
			colIdx[key] = i
		}
	}

	transIdx, ok := colIdx[ColumnTranscription]
	if !ok {
		return nil, &SourceLoadError{Path: path, Err: fmt.Errorf("%w: %s", ErrMissingColumn, ColumnTranscription)}
	}
	specIdx, ok := colIdx[ColumnMedicalSpecialty]
	if !ok {
		return nil, &SourceLoadError{Path: path, Err: fmt.Errorf("%w: %s", ErrMissingColumn, ColumnMedicalSpecialty)}
	}

	return &CSVSource{
		path:     path,
		reader:   reader,
		transIdx: transIdx,
		specIdx:  specIdx,
		rowNum:   1,
	}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (s *CSVSource) Next() (models.TranscriptionRecord, error) {
	row, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.TranscriptionRecord{}, io.EOF
		}
		return models.TranscriptionRecord{}, &SourceLoadError{Path: s.path, Err: fmt.Errorf("line %d: %w", s.rowNum+1, err)}
	}
	s.rowNum++

	return models.TranscriptionRecord{
		Transcription:    field(row, s.transIdx),
		MedicalSpecialty: field(row, s.specIdx),
	}, nil
}

// ReadAll returns every remaining record in file order.
func (s *CSVSource) ReadAll() ([]models.TranscriptionRecord, error) {
	var records []models.TranscriptionRecord
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Load reads every record from the CSV file at path.
func Load(path string) ([]models.TranscriptionRecord, error) {
	src, err := NewCSVSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return src.ReadAll()
}

// field returns row[i], or "" for short rows.
func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
