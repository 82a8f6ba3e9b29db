package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/gatescan/gatescan/pkg/report"
)

// DefaultHistoryLimit is used when a caller does not ask for a specific
// number of entries.
const DefaultHistoryLimit = 10

const maxHistoryLimit = 1000

// journal lines stay small (reports carry digests, not input text), but
// a pathological reason list should not break the scanner.
const maxJournalLine = 1 << 20

// Entry is one row of decision history.
type Entry struct {
	ID          int64     `json:"id"`
	InputSHA256 string    `json:"input_hash"`
	Decision    string    `json:"decision"`
	Score       float64   `json:"score"`
	Reasons     string    `json:"reasons"`
	CreatedAt   time.Time `json:"created_at"`
}

// History stores and retrieves decision entries, most recent first.
type History interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// ClampLimit bounds a history limit to [1, 1000].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// EntryFromReport flattens a report into a history row. Fail-safe error
// reports have no input digest; they are recorded under the hash "error"
// so the history still shows that a scan failed.
func EntryFromReport(rep *report.Report) Entry {
	e := Entry{
		InputSHA256: "error",
		Decision:    string(rep.Decision),
		Score:       rep.Score,
		Reasons:     strings.Join(rep.Explanation.Reasons, "; "),
	}
	if rep.Input != nil && rep.Input.SHA256 != "" {
		e.InputSHA256 = rep.Input.SHA256
	}
	if e.Decision == "" {
		e.Decision = "block"
	}
	if ts, err := time.Parse(time.RFC3339Nano, rep.Timestamp); err == nil {
		e.CreatedAt = ts
	} else {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

// JournalHistory derives history from the JSONL journal itself: the
// journal append is the write path, so Save is a no-op. It needs no
// external services, making it the default backend.
type JournalHistory struct {
	path string
}

// NewJournalHistory returns a history view over the journal at path.
func NewJournalHistory(path string) *JournalHistory {
	return &JournalHistory{path: path}
}

// Save is a no-op: the entry's report is already in the journal.
func (h *JournalHistory) Save(context.Context, Entry) error { return nil }

// Recent replays the journal and returns the last limit entries, most
// recent first. Lines that do not parse as reports are skipped, so a
// partially corrupted journal still yields history. A missing journal
// means no scans yet, not an error.
func (h *JournalHistory) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	var id int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rep report.Report
		if err := json.Unmarshal([]byte(line), &rep); err != nil {
			continue
		}
		if rep.Timestamp == "" && rep.Decision == "" {
			continue
		}
		id++
		e := EntryFromReport(&rep)
		e.ID = id
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	// newest last on disk, newest first to the caller
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Close is a no-op; the journal file is owned by the Journal appender.
func (h *JournalHistory) Close() error { return nil }
