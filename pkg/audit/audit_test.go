package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	code := 0
	if err := l.Record(Entry{Server: "web1", Command: "ls", Allowed: true, ExitCode: &code}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(Entry{Server: "web1", Command: "rm -rf /", Allowed: false}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Time.IsZero() {
		t.Error("timestamp was not filled in")
	}
	if entries[0].ExitCode == nil || *entries[0].ExitCode != 0 {
		t.Errorf("entries[0].ExitCode = %v, want 0", entries[0].ExitCode)
	}
	if entries[1].Allowed {
		t.Error("entries[1].Allowed = true, want false")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("audit file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestNilLoggerIsNoOp(t *testing.T) {
	var l *Logger
	if err := l.Record(Entry{Server: "web1", Command: "ls"}); err != nil {
		t.Errorf("nil Record = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
}
