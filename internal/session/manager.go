// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeranaias/glmchat-tui/internal/util"
)

// FileName is the default name of the session id file.
const FileName = "session_id"

// maxIDLength bounds ids read from disk.
const maxIDLength = 256

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the persisted session id. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	path      string
	sessionID string
}

// NewManager creates a manager backed by the file at path. An empty path
// keeps the id in memory only.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the backing file path.
func (m *Manager) Path() string {
	return m.path
}

// SessionID returns the current id without touching disk.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Load returns the stored id, creating and persisting one if none exists or
// the file holds garbage. If only saving the new id fails, the id is returned
// together with the error.
func (m *Manager) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID != "" {
		return m.sessionID, nil
	}

	if m.path != "" {
		data, err := os.ReadFile(m.path)
		switch {
		case err == nil:
			if id := strings.TrimSpace(string(data)); ValidID(id) {
				m.sessionID = id
				return id, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("failed to read session file: %w", err)
		}
	}

	return m.replaceLocked(NewID())
}

// Replace generates, persists and returns a new id. The new id is adopted
// even when saving fails; the error is still returned.
func (m *Manager) Replace() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(NewID())
}

// Set persists an id confirmed by the backend. Unchanged ids are not rewritten.
func (m *Manager) Set(id string) error {
	id = strings.TrimSpace(id)
	if !ValidID(id) {
		return fmt.Errorf("invalid session id %q", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.sessionID {
		return nil
	}
	_, err := m.replaceLocked(id)
	return err
}

func (m *Manager) replaceLocked(id string) (string, error) {
	m.sessionID = id
	if m.path != "" {
		// RELIABILITY: atomic write so a crash never leaves a half-written id
		if err := util.AtomicWriteFile(m.path, []byte(id+"\n"), 0600); err != nil {
			return id, fmt.Errorf("failed to save session id: %w", err)
		}
	}
	return id, nil
}

// =============================================================================
// IDS
// =============================================================================

// NewID returns a fresh id of the form session_<unix millis>_<random>.
func NewID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), random)
}

// ValidID reports whether id can be used as a session id.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
