package trade

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, testLogger())
	defer j.Close()

	day := time.Date(2026, 8, 25, 10, 15, 0, 0, time.UTC)
	tr := Trade{
		ID:         "abc-123",
		Symbol:     "NIFTY25AUG25000CE",
		Underlying: "NIFTY",
		EntryPrice: 101,
		Quantity:   225,
		Status:     StatusOpen,
		EntryTime:  day,
	}

	j.Append(JournalEntry{Event: "open", Trade: tr, Timestamp: day})

	tr.Status = StatusClosed
	tr.ExitPrice = 108
	tr.ExitReason = "PROFIT_TARGET"
	tr.RealizedPnL = 1575
	j.Append(JournalEntry{
		Event:     "close",
		Trade:     tr,
		ExitQty:   225,
		ExitPrice: 108,
		PnL:       1575,
		Timestamp: day.Add(10 * time.Minute),
	})

	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("list journals: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("journal files = %v, want one", files)
	}
	if filepath.Base(files[0]) != "trades_20260825.jsonl" {
		t.Errorf("journal name = %s", filepath.Base(files[0]))
	}

	entries, err := ReadJournal(files[0])
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Event != "open" || entries[0].Trade.Symbol != "NIFTY25AUG25000CE" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Event != "close" || entries[1].PnL != 1575 {
		t.Errorf("second entry = %+v", entries[1])
	}
	if entries[1].Trade.ExitReason != "PROFIT_TARGET" {
		t.Errorf("exit reason = %q", entries[1].Trade.ExitReason)
	}
}

func TestJournalRotatesAcrossDays(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, testLogger())
	defer j.Close()

	day1 := time.Date(2026, 8, 25, 15, 25, 0, 0, time.UTC)
	day2 := day1.Add(20 * time.Hour)

	j.Append(JournalEntry{Event: "open", Trade: Trade{ID: "a"}, Timestamp: day1})
	j.Append(JournalEntry{Event: "open", Trade: Trade{ID: "b"}, Timestamp: day2})

	files, err := JournalFiles(dir)
	if err != nil {
		t.Fatalf("list journals: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("journal files = %v, want two day files", files)
	}
}

func TestReadJournalSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades_20260825.jsonl")

	content := `{"event":"open","trade":{"id":"ok-1"},"timestamp":"2026-08-25T10:00:00Z"}
this is not json
{"event":"close","trade":{"id":"ok-2"},"pnl":-300,"timestamp":"2026-08-25T11:00:00Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (malformed line skipped)", len(entries))
	}
	if entries[0].Trade.ID != "ok-1" || entries[1].Trade.ID != "ok-2" {
		t.Errorf("entries = %+v", entries)
	}
}
