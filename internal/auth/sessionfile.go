package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SessionFile persists a session token between CLI invocations.
type SessionFile struct {
	Path string
}

// Save writes token with owner-only permissions.
func (f SessionFile) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load returns the saved token and whether one exists.
func (f SessionFile) Load() (string, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read session file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	return token, token != "", nil
}

// Clear removes the saved token. Clearing an absent file is not an error.
func (f SessionFile) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
