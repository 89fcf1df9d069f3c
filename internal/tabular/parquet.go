package tabular

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"transcription-icd-coder/internal/models"
)

// ParquetSink writes rows to a Snappy compressed Parquet file with
// optional columns for nullable fields.
type ParquetSink struct {
	path string
}

func (s *ParquetSink) Path() string { return s.path }

// Write creates the file and writes all rows in a single row group.
func (s *ParquetSink) Write(rows []models.OutputRow) error {
	file, err := create(s.path)
	if err != nil {
		return &SinkWriteError{Path: s.path, Err: err}
	}

	writer := parquet.NewGenericWriter[models.OutputRow](file,
		parquet.Compression(&parquet.Snappy),
	)

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			file.Close()
			return &SinkWriteError{Path: s.path, Err: fmt.Errorf("failed to write parquet records: %w", err)}
		}
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return &SinkWriteError{Path: s.path, Err: fmt.Errorf("failed to close parquet writer: %w", err)}
	}
	if err := file.Close(); err != nil {
		return &SinkWriteError{Path: s.path, Err: err}
	}
	return nil
}
