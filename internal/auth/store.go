// internal/auth/store.go
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/pagebound/scrape/pkg/models"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "scrape"
	// FallbackDir is the directory for file-based session storage (when keyring fails)
	FallbackDir = ".scrape/sessions"
)

// SessionData represents a stored authentication session
type SessionData struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Cookies   []models.Cookie   `json:"cookies"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Store persists named auth sessions in the OS keyring, falling back to
// files under the user's home directory when no keyring is available
// (Codespaces, CI, plain servers).
type Store struct {
	fileBased *bool
}

// NewStore creates a session store.
func NewStore() *Store {
	return &Store{}
}

// useFileBasedStorage checks if we should use file-based storage
func (st *Store) useFileBasedStorage() bool {
	// Cache the result to avoid repeated tests
	if st.fileBased != nil {
		return *st.fileBased
	}

	// Check environment hints
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		result := true
		st.fileBased = &result
		return true
	}

	// Try to use keyring, but if it fails, use file-based storage
	testKey := "_test_keyring_access_"
	err := keyring.Set(KeyringService, testKey, "test")
	result := (err != nil)
	st.fileBased = &result

	if !result {
		keyring.Delete(KeyringService, testKey)
	}

	return result
}

// getSessionDir returns the session storage directory
func getSessionDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, FallbackDir)
	return dir, os.MkdirAll(dir, 0700)
}

// getSessionPath returns the file path for a session
func getSessionPath(name string) (string, error) {
	dir, err := getSessionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// Save stores a session securely in the OS keyring or a file.
func (st *Store) Save(session *SessionData) error {
	if session.Name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if st.useFileBasedStorage() {
		path, err := getSessionPath(session.Name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to save session file: %w", err)
		}
		return nil
	}

	// Store in keyring (encrypted by OS)
	if err := keyring.Set(KeyringService, session.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}

	return st.updateManifest(session.Name, true)
}

// Load retrieves a session from the OS keyring or file.
func (st *Store) Load(name string) (*SessionData, error) {
	if name == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	var data string

	if st.useFileBasedStorage() {
		path, err := getSessionPath(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get session path: %w", err)
		}
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load session file: %w", err)
		}
		data = string(fileData)
	} else {
		var err error
		data, err = keyring.Get(KeyringService, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load from keyring: %w", err)
		}
	}

	var session SessionData
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}

	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session %q expired at %s", name, session.ExpiresAt.Format(time.RFC3339))
	}

	return &session, nil
}

// Cookies resolves a named session into the cookies applied before
// navigation. This is the surface the orchestrator consumes.
func (st *Store) Cookies(name string) ([]models.Cookie, error) {
	session, err := st.Load(name)
	if err != nil {
		return nil, err
	}
	return session.Cookies, nil
}

// Delete removes a session from the OS keyring or file.
func (st *Store) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if st.useFileBasedStorage() {
		path, err := getSessionPath(name)
		if err != nil {
			return fmt.Errorf("failed to get session path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return st.updateManifest(name, false)
}

// List returns the names of all stored sessions.
func (st *Store) List() ([]string, error) {
	if st.useFileBasedStorage() {
		dir, err := getSessionDir()
		if err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, err
		}

		var sessions []string
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
				sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".json"))
			}
		}
		return sessions, nil
	}

	// Keyring has no listing API, so a manifest entry tracks the names.
	manifestData, err := keyring.Get(KeyringService, "_manifest")
	if err != nil {
		return []string{}, nil
	}

	var sessions []string
	if err := json.Unmarshal([]byte(manifestData), &sessions); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}

	return sessions, nil
}

// updateManifest adds or removes a session name from the keyring manifest
func (st *Store) updateManifest(name string, add bool) error {
	sessions, _ := st.List()

	if add {
		found := false
		for _, s := range sessions {
			if s == name {
				found = true
				break
			}
		}
		if !found {
			sessions = append(sessions, name)
		}
	} else {
		kept := sessions[:0]
		for _, s := range sessions {
			if s != name {
				kept = append(kept, s)
			}
		}
		sessions = kept
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}

	return keyring.Set(KeyringService, "_manifest", string(data))
}
