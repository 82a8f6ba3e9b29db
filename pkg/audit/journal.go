// Package audit persists finished scan reports: an append-only JSONL
// journal plus a decision-history store that is either derived from the
// journal or backed by PostgreSQL. Persistence consumes reports, it never
// mutates them, and a persistence failure never changes a scan outcome.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gatescan/gatescan/pkg/report"
)

// Journal appends one JSON line per finished report. Appends are
// serialized with a mutex and flushed before returning, so a line is
// either fully present or absent.
type Journal struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewJournal opens (or creates) the journal at path, creating parent
// directories as needed. Journal files are owner-only: they carry input
// digests and decision traces.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Append writes one report as a JSONL line.
func (j *Journal) Append(rep *report.Report) error {
	if rep == nil {
		return nil
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.writer != nil {
		_ = j.writer.Flush()
	}
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
