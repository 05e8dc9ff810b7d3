// Package workspace manages per-job scratch directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Manager creates uniquely-named scratch directories under a shared root and
// removes them best-effort. Jobs never share a directory, so no locking is
// needed beyond what the filesystem provides.
type Manager struct {
	root   string
	prefix string
	logger *zap.Logger
}

// New builds a Manager rooted at the given scratch directory.
func New(root, prefix string, logger *zap.Logger) *Manager {
	return &Manager{root: root, prefix: prefix, logger: logger}
}

// Create makes a fresh directory for the job. The name embeds the job id for
// operator legibility, but uniqueness comes from the filesystem: even two
// jobs holding the same id resolve to distinct paths.
func (m *Manager) Create(jobID string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("create scratch root %s: %w", m.root, err)
	}
	pattern := m.prefix + "_" + unsafePathChars.ReplaceAllString(jobID, "") + "_"
	dir, err := os.MkdirTemp(m.root, pattern)
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	m.logger.Debug("workspace created", zap.String("job_id", jobID), zap.String("path", dir))
	return dir, nil
}

// Destroy removes the directory and everything in it. Failures are logged,
// never propagated: cleanup must not disturb the response path, and a future
// id collision is already ruled out by Create.
func (m *Manager) Destroy(path string) {
	if !m.owns(path) {
		m.logger.Warn("refusing to destroy path outside scratch root", zap.String("path", path))
		return
	}
	if err := os.RemoveAll(path); err != nil {
		m.logger.Warn("workspace cleanup failed", zap.String("path", path), zap.Error(err))
		return
	}
	m.logger.Debug("workspace destroyed", zap.String("path", path))
}

// owns reports whether path is a direct child of the scratch root carrying
// the manager's prefix.
func (m *Manager) owns(path string) bool {
	if path == "" {
		return false
	}
	dir, base := filepath.Split(filepath.Clean(path))
	return filepath.Clean(dir) == filepath.Clean(m.root) && strings.HasPrefix(base, m.prefix+"_")
}
