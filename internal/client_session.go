package internal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// Session is the durable client identity: a client-minted id plus the
// display name that went with it. The server never verifies the pair;
// rejoin is convenience, not authentication.
type Session struct {
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
}

// NewSession mints a session for a freshly accepted join.
func NewSession(displayName string) Session {
	return Session{SessionID: uuid.NewString(), DisplayName: displayName}
}

// DefaultSessionPath returns a per-user data path for the session file.
func DefaultSessionPath() string {
	if env := os.Getenv("QUADCHAT_SESSION_PATH"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "quadchat", "session.json")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Quadchat", "session.json")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Quadchat", "session.json")
		}
		return filepath.Join(home, ".local", "share", "quadchat", "session.json")
	}
	return filepath.Join(".", ".quadchat", "session.json")
}

// LoadSession reads a stored session. A missing file is an error like any
// other; callers fall back to the name prompt either way.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.SessionID == "" || session.DisplayName == "" {
		return nil, errors.New("session file incomplete")
	}
	return &session, nil
}

// SaveSession writes the session atomically (tmp file + rename).
func SaveSession(path string, session Session) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DeleteSession removes the stored session, tolerating an absent file.
func DeleteSession(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
