package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/genlab/seqmeta/internal/domain"
)

// rowWriter writes one export file row by row. Close finalizes the file at
// the path the writer was opened with.
type rowWriter interface {
	WriteRow(values []string) error
	Close() error
}

func (s *Service) newRowWriter(format domain.ExportFormat, path string) (rowWriter, error) {
	switch format {
	case domain.ExportFormatXLSX:
		return newXLSXWriter(path)
	default:
		return newCSVWriter(path)
	}
}

type csvRowWriter struct {
	file     *os.File
	buffered *bufio.Writer
	csv      *csv.Writer
	closed   bool
}

func newCSVWriter(path string) (*csvRowWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	buffered := bufio.NewWriterSize(file, 1<<20) // 1 MiB buffer for streaming writes
	return &csvRowWriter{
		file:     file,
		buffered: buffered,
		csv:      csv.NewWriter(buffered),
	}, nil
}

func (w *csvRowWriter) WriteRow(values []string) error {
	return w.csv.Write(values)
}

func (w *csvRowWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := w.buffered.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush buffered rows: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync export file: %w", err)
	}
	return w.file.Close()
}

type xlsxRowWriter struct {
	path   string
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	closed bool
}

func newXLSXWriter(path string) (*xlsxRowWriter, error) {
	file := excelize.NewFile()
	stream, err := file.NewStreamWriter("Sheet1")
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open xlsx stream writer: %w", err)
	}
	return &xlsxRowWriter{path: path, file: file, stream: stream, row: 1}, nil
}

func (w *xlsxRowWriter) WriteRow(values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	ref, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return fmt.Errorf("cell reference: %w", err)
	}
	if err := w.stream.SetRow(ref, cells); err != nil {
		return fmt.Errorf("write xlsx row: %w", err)
	}
	w.row++
	return nil
}

func (w *xlsxRowWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.stream.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if err := w.file.SaveAs(w.path); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return w.file.Close()
}
