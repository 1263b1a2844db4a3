package audit

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fenceline/fenceline/types"
)

func TestLog_RecordAndReplay(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}

	events := []types.FenceEvent{
		{
			Action:       types.ActionReboot,
			TargetNode:   "compute-01",
			Filesystems:  []string{"gfs2-scratch", "gfs2-home"},
			Status:       types.StatusRequested,
			Details:      "fence action reboot requested",
			RecorderNode: "rabbit-01",
		},
		{
			Action:       types.ActionReboot,
			TargetNode:   "compute-01",
			Filesystems:  []string{"gfs2-scratch", "gfs2-home"},
			Status:       types.StatusCompleted,
			Details:      "fence action reboot completed",
			RecorderNode: "rabbit-01",
		},
	}

	for _, e := range events {
		if err := l.Record(e); err != nil {
			t.Fatalf("Failed to record event: %v", err)
		}
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close audit log: %v", err)
	}

	reader, err := NewReader(filepath.Join(dir, JSONLogName))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	for i, want := range events {
		got, err := reader.Next()
		if err != nil {
			t.Fatalf("Failed to read event %d: %v", i, err)
		}
		if got.Status != want.Status {
			t.Errorf("Event %d: status = %v, want %v", i, got.Status, want.Status)
		}
		if got.TargetNode != want.TargetNode {
			t.Errorf("Event %d: target = %v, want %v", i, got.TargetNode, want.TargetNode)
		}
		if got.Timestamp.IsZero() {
			t.Errorf("Event %d: timestamp not set", i)
		}
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestLog_ReadableForm(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}

	event := types.FenceEvent{
		Action:       types.ActionOff,
		TargetNode:   "compute-02",
		Filesystems:  []string{types.FilesystemsNoneDetected},
		Status:       types.StatusTimedOut,
		Details:      "no response within 2s",
		RecorderNode: "rabbit-01",
	}
	if err := l.Record(event); err != nil {
		t.Fatalf("Failed to record event: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close audit log: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ReadableLogName))
	if err != nil {
		t.Fatalf("Failed to read readable log: %v", err)
	}

	line := strings.TrimSpace(string(data))
	for _, field := range []string{
		"ACTION=off",
		"TARGET=compute-02",
		`FILESYSTEMS=["none-detected"]`,
		"STATUS=timed_out",
		"DETAILS=no response within 2s",
	} {
		if !strings.Contains(line, field) {
			t.Errorf("Readable line missing %q: %s", field, line)
		}
	}
	if !strings.HasPrefix(line, "[") {
		t.Errorf("Readable line should start with timestamp: %s", line)
	}
}

func TestLog_DebugChainsToOperationalForm(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}

	l.Debug().Str("target", "compute-01").Msg("probing fence tooling")

	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close audit log: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DebugLogName))
	if err != nil {
		t.Fatalf("Failed to read debug log: %v", err)
	}
	for _, want := range []string{"probing fence tooling", "compute-01"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Debug log missing %q: %s", want, data)
		}
	}
}

func TestLog_RecordInvalidEvent(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	defer l.Close()

	err = l.Record(types.FenceEvent{Action: types.ActionReboot, Status: "bogus"})
	if err == nil {
		t.Error("Record() with invalid event should fail")
	}
}

func TestReplay_Since(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}

	old := types.FenceEvent{
		Timestamp:    time.Now().UTC().Add(-time.Hour),
		Action:       types.ActionReboot,
		TargetNode:   "compute-01",
		Status:       types.StatusRequested,
		RecorderNode: "rabbit-01",
	}
	recent := types.FenceEvent{
		Timestamp:    time.Now().UTC(),
		Action:       types.ActionReboot,
		TargetNode:   "compute-01",
		Status:       types.StatusCompleted,
		RecorderNode: "rabbit-01",
	}
	for _, e := range []types.FenceEvent{old, recent} {
		if err := l.Record(e); err != nil {
			t.Fatalf("Failed to record event: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close audit log: %v", err)
	}

	var replayed []string
	err = Replay(dir, time.Now().Add(-time.Minute), func(e *types.FenceEvent) error {
		replayed = append(replayed, e.Status)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(replayed) != 1 || replayed[0] != types.StatusCompleted {
		t.Errorf("Replay returned %v, want only completed event", replayed)
	}
}

func TestReplay_ToleratesTornTrailingLine(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open audit log: %v", err)
	}
	if err := l.Record(types.FenceEvent{
		Action:       types.ActionOn,
		TargetNode:   "compute-03",
		Status:       types.StatusCompleted,
		RecorderNode: "rabbit-01",
	}); err != nil {
		t.Fatalf("Failed to record event: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close audit log: %v", err)
	}

	// Simulate a crash mid-append.
	path := filepath.Join(dir, JSONLogName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	if _, err := f.WriteString(`{"timestamp":"2026-01-0`); err != nil {
		t.Fatalf("Failed to write torn line: %v", err)
	}
	_ = f.Close()

	count := 0
	err = Replay(dir, time.Time{}, func(*types.FenceEvent) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay should tolerate torn trailing line: %v", err)
	}
	if count != 1 {
		t.Errorf("Replay count = %d, want 1", count)
	}
}

func TestReplay_MissingLogIsEmpty(t *testing.T) {
	err := Replay(t.TempDir(), time.Time{}, func(*types.FenceEvent) error {
		t.Error("handler should not be called")
		return nil
	})
	if err != nil {
		t.Fatalf("Replay on missing log failed: %v", err)
	}
}
