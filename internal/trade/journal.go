package trade

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"options-scalping-bot/internal/logging"
)

// JournalEntry is one line in the day-keyed trade journal. Entries are
// append-only; the analyze tool replays them through the learning engine.
type JournalEntry struct {
	Event     string    `json:"event"` // "open", "partial_exit", "close"
	Trade     Trade     `json:"trade"`
	ExitQty   int       `json:"exit_qty,omitempty"`
	ExitPrice float64   `json:"exit_price,omitempty"`
	PnL       float64   `json:"pnl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal appends trade events to logs/<dir>/trades_YYYYMMDD.jsonl.
type Journal struct {
	dir string
	log *logging.Logger

	mu   sync.Mutex
	day  string
	file *os.File
	w    *bufio.Writer
}

// NewJournal creates a journal writer rooted at dir.
func NewJournal(dir string, log *logging.Logger) *Journal {
	return &Journal{dir: dir, log: log.WithComponent("journal")}
}

// Append writes one entry. A journal failure is logged, never fatal; the
// live trade path does not stop for bookkeeping.
func (j *Journal) Append(entry JournalEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotate(entry.Timestamp); err != nil {
		j.log.WithError(err).Error("journal rotate failed")
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		j.log.WithError(err).Error("journal marshal failed")
		return
	}
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		j.log.WithError(err).Error("journal write failed")
		return
	}
	if err := j.w.Flush(); err != nil {
		j.log.WithError(err).Error("journal flush failed")
	}
}

func (j *Journal) rotate(at time.Time) error {
	day := at.Format("20060102")
	if day == j.day && j.file != nil {
		return nil
	}

	if j.file != nil {
		j.w.Flush()
		j.file.Close()
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	path := filepath.Join(j.dir, "trades_"+day+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", path, err)
	}

	j.day = day
	j.file = file
	j.w = bufio.NewWriter(file)
	return nil
}

// Close flushes and closes the current journal file.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		j.w.Flush()
		j.file.Close()
		j.file = nil
	}
}

// ReadJournal parses one journal file, skipping malformed lines.
func ReadJournal(path string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal %s: %w", path, err)
	}
	return entries, nil
}

// JournalFiles lists the journal files under dir, oldest first.
func JournalFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "trades_*.jsonl"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
