package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSweeperValidatesCron(t *testing.T) {
	room := NewRoom(NewState(4, time.Hour), NewMetrics())
	metrics := NewMetrics()

	if _, err := NewSweeper(room, t.TempDir(), time.Hour, "not a cron", metrics); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if _, err := NewSweeper(room, t.TempDir(), time.Hour, "", metrics); err != nil {
		t.Errorf("empty expression should fall back to the default, got %v", err)
	}
	if _, err := NewSweeper(room, t.TempDir(), time.Hour, "*/5 * * * *", metrics); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
}

func TestSweeperRunOnce(t *testing.T) {
	uploadDir := t.TempDir()
	now := time.Now()

	state := NewState(4, time.Hour)
	state.AppendMessage(Message{ID: "stale", Timestamp: now.Add(-2 * time.Hour)})
	state.AppendMessage(Message{ID: "fresh", Timestamp: now})
	room := NewRoom(state, NewMetrics())
	go room.Run()
	t.Cleanup(room.Close)

	stalePath := filepath.Join(uploadDir, "stale.bin")
	freshPath := filepath.Join(uploadDir, "fresh.bin")
	for _, path := range []string{stalePath, freshPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := now.Add(-2 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatal(err)
	}

	sweeper, err := NewSweeper(room, uploadDir, time.Hour, "", NewMetrics())
	if err != nil {
		t.Fatal(err)
	}

	messages, files := sweeper.RunOnce(now)
	if messages != 1 {
		t.Errorf("expected 1 pruned message, got %d", messages)
	}
	if files != 1 {
		t.Errorf("expected 1 pruned file, got %d", files)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("stale file should have been removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh file should survive the sweep: %v", err)
	}
	if snap := room.Snapshot(); snap.Messages != 1 {
		t.Errorf("expected 1 message retained, got %d", snap.Messages)
	}
}

func TestSweeperMissingUploadDir(t *testing.T) {
	room := NewRoom(NewState(4, time.Hour), NewMetrics())
	go room.Run()
	t.Cleanup(room.Close)

	sweeper, err := NewSweeper(room, filepath.Join(t.TempDir(), "absent"), time.Hour, "", NewMetrics())
	if err != nil {
		t.Fatal(err)
	}

	// A missing directory is not an error, just nothing to remove.
	if _, files := sweeper.RunOnce(time.Now()); files != 0 {
		t.Errorf("expected 0 pruned files, got %d", files)
	}
}
