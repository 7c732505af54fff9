// Package backup snapshots the store file and prunes old snapshots.
//
// The copy mechanism is SQLite's VACUUM INTO, which produces a complete,
// internally consistent point-in-time copy without blocking concurrent
// store operations. A raw file copy of an open WAL database would not be
// consistent.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/promptvault/promptvault/internal/observability"
)

// DefaultMaxKeep is the default retention count.
const DefaultMaxKeep = 10

const (
	snapshotPrefix = "prompts-"
	snapshotSuffix = ".db"
	timeLayout     = "20060102-150405"
)

// Manager produces snapshots of one database into a dedicated directory.
type Manager struct {
	db      *sql.DB
	dir     string
	maxKeep int
	logger  *observability.Logger

	// OnSuccess runs after each completed backup, before retention
	// cleanup. Used to bump the day's analytics counter.
	OnSuccess func(ctx context.Context)

	// now is swapped in tests to control snapshot names.
	now func() time.Time
}

// NewManager creates a backup manager. maxKeep <= 0 means DefaultMaxKeep.
func NewManager(db *sql.DB, dir string, maxKeep int, logger *observability.Logger) *Manager {
	if maxKeep <= 0 {
		maxKeep = DefaultMaxKeep
	}
	if logger == nil {
		logger = observability.NewLogger("backup", nil)
	}
	return &Manager{
		db:      db,
		dir:     dir,
		maxKeep: maxKeep,
		logger:  logger,
		now:     time.Now,
	}
}

// Backup writes a timestamp-named snapshot and returns its path. After a
// successful snapshot, retention cleanup removes every snapshot beyond the
// maxKeep most recent; cleanup failures are logged and skipped.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup dir %q: %w", m.dir, err)
	}

	name := snapshotPrefix + m.now().UTC().Format(timeLayout) + snapshotSuffix
	dst := filepath.Join(m.dir, name)
	tmp := dst + ".tmp"
	defer os.Remove(tmp)

	// VACUUM INTO creates a consistent snapshot.
	if _, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`VACUUM INTO '%s'`, escapeSQLString(tmp))); err != nil {
		return "", fmt.Errorf("vacuum into %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}

	m.logger.Info("backup written", "path", dst)
	if m.OnSuccess != nil {
		m.OnSuccess(ctx)
	}
	m.prune()
	return dst, nil
}

// prune deletes every snapshot beyond the maxKeep most recently created.
func (m *Manager) prune() {
	snapshots, err := m.listSnapshots()
	if err != nil {
		m.logger.Warn("retention scan failed", "error", err.Error())
		return
	}
	if len(snapshots) <= m.maxKeep {
		return
	}
	for _, path := range snapshots[m.maxKeep:] {
		if err := os.Remove(path); err != nil {
			// Already removed or unreadable; never fatal.
			m.logger.Warn("retention delete failed",
				"path", path, "error", err.Error())
			continue
		}
		m.logger.Info("old backup removed", "path", path)
	}
}

// listSnapshots returns snapshot paths sorted by creation time descending.
// The timestamp in the name is authoritative, so sorting does not depend
// on filesystem mtimes surviving a restore.
func (m *Manager) listSnapshots() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) ||
			!strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(m.dir, name))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Snapshots returns existing snapshot paths, newest first.
func (m *Manager) Snapshots() ([]string, error) {
	return m.listSnapshots()
}

// escapeSQLString escapes single quotes for use in SQL string literals.
func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
