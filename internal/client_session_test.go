package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionSaveLoadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	session := NewSession("Alice")
	if session.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	if err := SaveSession(path, session); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SessionID != session.SessionID || loaded.DisplayName != "Alice" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}

	// No stray tmp file after the atomic save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("tmp file left behind")
	}

	if err := DeleteSession(path); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSession(path); err == nil {
		t.Error("expected load to fail after delete")
	}
	// Deleting twice is fine.
	if err := DeleteSession(path); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestLoadSessionRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"sessionId":"","displayName":"Alice"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSession(path); err == nil {
		t.Error("expected error for session without an id")
	}

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSession(path); err == nil {
		t.Error("expected error for malformed session file")
	}
}

func TestDefaultSessionPathOverride(t *testing.T) {
	t.Setenv("QUADCHAT_SESSION_PATH", "/tmp/custom-session.json")
	if got := DefaultSessionPath(); got != "/tmp/custom-session.json" {
		t.Errorf("env override ignored, got %s", got)
	}
}
