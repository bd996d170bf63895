package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTemp(t)

	recs := []Record{
		{Tool: "manage_content", Operation: "create", Entity: "book", Success: true, Duration: 120 * time.Millisecond},
		{Tool: "manage_content", Operation: "delete", Entity: "page", Success: false, Message: "upstream: HTTP 404"},
		{Tool: "search", Operation: "search", Success: true},
	}
	for _, r := range recs {
		if err := j.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Tool != "search" || got[2].Tool != "manage_content" {
		t.Errorf("order = %q .. %q", got[0].Tool, got[2].Tool)
	}
	if got[1].Success || got[1].Message != "upstream: HTTP 404" {
		t.Errorf("failure record = %+v", got[1])
	}
	if got[2].Duration != 120*time.Millisecond {
		t.Errorf("duration = %v", got[2].Duration)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTemp(t)
	for i := 0; i < 5; i++ {
		if err := j.Append(Record{Tool: "list_content", Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := j.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want 2", len(got))
	}
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal
	if err := j.Append(Record{Tool: "search"}); err != nil {
		t.Errorf("nil append: %v", err)
	}
	got, err := j.Recent(10)
	if err != nil || got != nil {
		t.Errorf("nil recent = %v, %v", got, err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("nil close: %v", err)
	}
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j1.Append(Record{Tool: "search", Success: true}); err != nil {
		t.Fatal(err)
	}
	j1.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	got, err := j2.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("records after reopen = %d, want 1", len(got))
	}
}
