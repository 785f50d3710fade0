package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/logicossoftware/go-kfx/internal/logging"
)

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "resolver")
	logger.Debug("hidden")
	logger.Warn("section skipped", logging.String(logging.FieldFragmentID, "c3"), logging.String("reason", "missing storyline"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record written at info level: %q", out)
	}
	want := `WARN  resolver: section skipped  fragment_id=c3 reason="missing storyline"` + "\n"
	if out != want {
		t.Fatalf("\nwant %q\ngot  %q", want, out)
	}
}

func TestJSONLoggerUsesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Error("render failed", logging.Error(errors.New("boom")), logging.String(logging.FieldOutput, "epub"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["level"] != "error" || rec["msg"] != "render failed" || rec["output"] != "epub" || rec["error"] != "boom" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Fatalf("missing ts in %v", rec)
	}
}

func TestAutoFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "auto", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON for non-terminal writer, got %q", buf.String())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidLevel(t *testing.T) {
	for _, l := range []string{"", "DEBUG", "info", "warn", "error"} {
		if !logging.ValidLevel(l) {
			t.Fatalf("%q should be valid", l)
		}
	}
	if logging.ValidLevel("loud") {
		t.Fatal("loud should be invalid")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "x")
	logger.Error("nothing happens")
	if logger.Enabled(t.Context(), 100) {
		t.Fatal("nop logger should be disabled")
	}
}
