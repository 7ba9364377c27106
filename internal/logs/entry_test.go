package logs

import (
	"strings"
	"testing"
)

func TestParseEntryAndFormat(t *testing.T) {
	line := `{"ts":"2026-01-02T03:04:05Z","level":"warn","msg":"frame skipped","job_id":"job-1","stage":"score-frames","frame":"frame_00003.jpg","score":0.5,"reason":"too dark"}`
	entry, ok := ParseEntry(line)
	if !ok {
		t.Fatal("expected JSON line to parse")
	}
	if entry.Level != "warn" || entry.Stage != "score-frames" || entry.Message != "frame skipped" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, leaked := entry.Fields["job_id"]; leaked {
		t.Fatalf("job_id should not be repeated as a field: %+v", entry.Fields)
	}
	formatted := entry.Format()
	for _, want := range []string{"WARN", "[score-frames] frame skipped", "frame=frame_00003.jpg", `reason="too dark"`, "score=0.5"} {
		if !strings.Contains(formatted, want) {
			t.Fatalf("expected %q in %q", want, formatted)
		}
	}
}

func TestParseEntryRejectsPlainText(t *testing.T) {
	if _, ok := ParseEntry("plain text line"); ok {
		t.Fatal("expected plain text to be rejected")
	}
	if _, ok := ParseEntry("{broken"); ok {
		t.Fatal("expected invalid JSON to be rejected")
	}
}

func TestFilterMatch(t *testing.T) {
	info := Entry{Level: "info", Stage: "extract-frames"}
	errEntry := Entry{Level: "error", Stage: "upload-images"}

	if !(Filter{}).Match(info) {
		t.Fatal("empty filter should match")
	}
	if (Filter{MinLevel: "warn"}).Match(info) {
		t.Fatal("info should not pass a warn filter")
	}
	if !(Filter{MinLevel: "WARN"}).Match(errEntry) {
		t.Fatal("error should pass a warn filter")
	}
	if (Filter{Stage: "extract-frames"}).Match(errEntry) {
		t.Fatal("stage filter should exclude other stages")
	}
	if !ValidLevel(" debug ") || ValidLevel("verbose") {
		t.Fatal("unexpected ValidLevel result")
	}
}
