package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestGetLoggerWithName(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")
	t.Cleanup(func() {
		SetOutput(bytesDiscard{})
		SetLevel("warn")
	})

	logger := GetLoggerWithName("decomp").With(ComponentKey, "cpals")
	logger.Info("iteration finished", IterationKey, 3, FitKey, 0.95)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatalf("no log output")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if fields["logger"] != "decomp" {
		t.Errorf("missing logger name: %v", fields)
	}
	if fields[ComponentKey] != "cpals" {
		t.Errorf("missing component field: %v", fields)
	}
	if fields[IterationKey] != float64(3) {
		t.Errorf("missing iteration field: %v", fields)
	}
	if fields["message"] != "iteration finished" {
		t.Errorf("missing message: %v", fields)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("warn")
	t.Cleanup(func() {
		SetOutput(bytesDiscard{})
	})

	logger := GetLoggerWithName("tensorio")
	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	logger.Error("should appear", PathKey, "/tmp/x.tns")
	if buf.Len() == 0 {
		t.Errorf("error not logged at warn level")
	}
}

func TestSetLevelUnknownNameIgnored(t *testing.T) {
	SetLevel("not-a-level")
	// No panic and later calls still work.
	logger := GetLoggerWithName("x")
	logger.Debug("quiet")
}

// bytesDiscard is an io.Writer that drops everything, used to restore state
// after tests.
type bytesDiscard struct{}

func (bytesDiscard) Write(p []byte) (int, error) { return len(p), nil }
