package simlog_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/davidbarsky/simulation/internal/simlog"
)

func TestRecordsStampedWithHooks(t *testing.T) {
	now := time.Date(2019, 11, 9, 8, 15, 0, 0, time.UTC)

	var buf bytes.Buffer
	logger := simlog.New(&buf, slog.LevelInfo, simlog.Hooks{
		Clock:  func() time.Time { return now },
		TaskID: func() int { return 3 },
	})
	logger.Info("hello", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if record["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", record["msg"])
	}
	if record["task"] != float64(3) {
		t.Errorf("expected task 3, got %v", record["task"])
	}
	got, err := time.Parse(time.RFC3339Nano, record["time"].(string))
	if err != nil {
		t.Fatalf("parsing time: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("expected virtual time %v, got %v", now, got)
	}
}

func TestNoTaskOmitsAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := simlog.New(&buf, slog.LevelInfo, simlog.Hooks{
		TaskID: func() int { return 0 },
	})
	logger.Info("setup")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := record["task"]; ok {
		t.Error("expected no task attr outside a task")
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := simlog.New(&buf, slog.LevelInfo, simlog.Hooks{})
	logger.Debug("invisible")
	if buf.Len() != 0 {
		t.Errorf("expected debug record to be dropped, got %q", buf.String())
	}
}
