package observe

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVSink appends telemetry rows to a CSV file. The file is opened in
// append mode so restarts extend an existing log; the header row is
// written only when the file is new or empty. Safe for concurrent use.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// OpenCSV opens (or creates) the CSV file at path and ensures the header
// row is present.
func OpenCSV(path string, header []string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("observe: open csv %q: %w", path, err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("observe: stat csv %q: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.Append(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes one record and flushes it to disk, so rows survive a
// crash mid-stream.
func (s *CSVSink) Append(record []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("observe: write csv row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("observe: flush csv: %w", err)
	}
	return nil
}

// Close flushes pending rows and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("observe: flush csv: %w", err)
	}
	return s.f.Close()
}
