package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

// schema owns five relations plus the FTS5 index. The index is kept in
// lock-step with the prompts table through the AFTER INSERT/DELETE/UPDATE
// triggers, so a row and its index entry can never diverge. Correctness
// never depends on the btree indexes; they keep filtered listing sub-linear.
const schema = `
CREATE TABLE IF NOT EXISTS prompts (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '',
	folder      TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL DEFAULT 0 CHECK (rating BETWEEN 0 AND 5),
	usage_count INTEGER NOT NULL DEFAULT 0,
	notes       TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT 'manual',
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prompts_category   ON prompts(category);
CREATE INDEX IF NOT EXISTS idx_prompts_folder     ON prompts(folder);
CREATE INDEX IF NOT EXISTS idx_prompts_rating     ON prompts(rating);
CREATE INDEX IF NOT EXISTS idx_prompts_created_at ON prompts(created_at);
CREATE INDEX IF NOT EXISTS idx_prompts_updated_at ON prompts(updated_at);

CREATE TABLE IF NOT EXISTS categories (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS folders (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_analytics (
	day             TEXT PRIMARY KEY,
	prompts_created INTEGER NOT NULL DEFAULT 0,
	prompts_used    INTEGER NOT NULL DEFAULT 0,
	backup_count    INTEGER NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS prompts_fts USING fts5(
	text, notes, tags, content='prompts', content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS prompts_ai AFTER INSERT ON prompts BEGIN
	INSERT INTO prompts_fts(rowid, text, notes, tags)
	VALUES (new.rowid, new.text, new.notes, new.tags);
END;
CREATE TRIGGER IF NOT EXISTS prompts_ad AFTER DELETE ON prompts BEGIN
	INSERT INTO prompts_fts(prompts_fts, rowid, text, notes, tags)
	VALUES ('delete', old.rowid, old.text, old.notes, old.tags);
END;
CREATE TRIGGER IF NOT EXISTS prompts_au AFTER UPDATE ON prompts BEGIN
	INSERT INTO prompts_fts(prompts_fts, rowid, text, notes, tags)
	VALUES ('delete', old.rowid, old.text, old.notes, old.tags);
	INSERT INTO prompts_fts(rowid, text, notes, tags)
	VALUES (new.rowid, new.text, new.notes, new.tags);
END;`

const promptColumns = `id, text, category, tags, folder, rating, usage_count,
	notes, source, confidence, created_at, updated_at`

// openDB opens the backing file with the pragmas every connection needs.
// WAL keeps readers unblocked during write transactions.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertRow writes one prompt. The caller has already assigned id and
// timestamps and validated the row.
func insertRow(ctx context.Context, e execer, p Prompt) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO prompts (`+promptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Text, p.Category, joinTags(p.Tags), p.Folder, p.Rating,
		p.UsageCount, p.Notes, p.Metadata.Source, p.Metadata.Confidence,
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert prompt %q: %w", p.ID, err)
	}
	return nil
}

// FindByID returns one prompt, or nil if the id is unknown.
func (v *Vault) FindByID(ctx context.Context, id string) (*Prompt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.findByID(ctx, id)
}

func (v *Vault) findByID(ctx context.Context, id string) (*Prompt, error) {
	row := v.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", id, err)
	}
	return p, nil
}

// ListAll returns every prompt ordered by creation time descending.
func (v *Vault) ListAll(ctx context.Context) ([]Prompt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.listAll(ctx)
}

func (v *Vault) listAll(ctx context.Context) ([]Prompt, error) {
	return v.queryPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompts ORDER BY created_at DESC`)
}

// FindByCategory returns prompts in one category.
func (v *Vault) FindByCategory(ctx context.Context, category string) ([]Prompt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.queryPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE category = ? ORDER BY created_at DESC`,
		category)
}

// FindByFolder returns prompts in one folder.
func (v *Vault) FindByFolder(ctx context.Context, folder string) ([]Prompt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.queryPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE folder = ? ORDER BY created_at DESC`,
		folder)
}

// FindByMinRating returns prompts rated at or above min.
func (v *Vault) FindByMinRating(ctx context.Context, min int) ([]Prompt, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.queryPrompts(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE rating >= ? ORDER BY rating DESC, created_at DESC`,
		min)
}

// Count returns the number of stored prompts.
func (v *Vault) Count(ctx context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var n int
	err := v.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompts").Scan(&n)
	return n, err
}

// replaceAll substitutes the entire prompt set in one transaction. On any
// failure the prior state is restored untouched.
func (v *Vault) replaceAll(ctx context.Context, prompts []Prompt) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM prompts"); err != nil {
		return fmt.Errorf("clear prompts: %w", err)
	}
	for _, p := range prompts {
		if err := insertRow(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// deleteOne removes a prompt and returns the removed row, nil if unknown.
func (v *Vault) deleteOne(ctx context.Context, id string) (*Prompt, error) {
	p, err := v.findByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if _, err := v.db.ExecContext(ctx, "DELETE FROM prompts WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("delete %q: %w", id, err)
	}
	return p, nil
}

// searchIndex runs an FTS5 query that has already been sanitized.
func (v *Vault) searchIndex(ctx context.Context, ftsQuery string) ([]Prompt, error) {
	return v.queryPrompts(ctx, `
		SELECT p.id, p.text, p.category, p.tags, p.folder, p.rating,
			p.usage_count, p.notes, p.source, p.confidence,
			p.created_at, p.updated_at
		FROM prompts_fts f
		JOIN prompts p ON p.rowid = f.rowid
		WHERE prompts_fts MATCH ?
		ORDER BY rank`,
		ftsQuery)
}

// sanitizeQuery reduces free text to alphanumeric tokens joined by OR, so
// FTS5 syntax errors can never surface to the caller. Each token is
// emitted as a quoted FTS5 string literal: a bare AND/OR/NOT token would
// otherwise be parsed as an operator and produce a malformed expression.
// Returns "" when nothing survives.
func sanitizeQuery(query string) string {
	var tokens []string
	for _, field := range strings.Fields(query) {
		var b strings.Builder
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			// Alphanumeric-only, so no quote escaping is needed.
			tokens = append(tokens, `"`+b.String()+`"`)
		}
	}
	return strings.Join(tokens, " OR ")
}

// EnsureCategory records a category name in the open category set.
func (v *Vault) EnsureCategory(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureName(ctx, "categories", name)
}

// EnsureFolder records a folder name in the user-defined folder list.
func (v *Vault) EnsureFolder(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureName(ctx, "folders", name)
}

func (v *Vault) ensureName(ctx context.Context, table, name string) error {
	_, err := v.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+table+" (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("ensure %s %q: %w", table, name, err)
	}
	return nil
}

// RemoveFolder drops a folder name from the user-defined list. Prompts
// referencing it are left alone; a dangling folder reference is tolerated.
func (v *Vault) RemoveFolder(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.db.ExecContext(ctx, "DELETE FROM folders WHERE name = ?", name)
	return err
}

// ListCategories returns the persisted category names sorted.
func (v *Vault) ListCategories(ctx context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.queryNames(ctx, "SELECT name FROM categories ORDER BY name")
}

// ListFolders returns the persisted folder names sorted.
func (v *Vault) ListFolders(ctx context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.queryNames(ctx, "SELECT name FROM folders ORDER BY name")
}

func (v *Vault) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetSetting stores one setting value as a raw string.
func (v *Vault) SetSetting(ctx context.Context, key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetSetting returns one setting's raw string value, "" if absent.
func (v *Vault) GetSetting(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var value string
	err := v.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (v *Vault) allSettings(ctx context.Context) (map[string]string, error) {
	rows, err := v.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, val string
		if err := rows.Scan(&k, &val); err != nil {
			return nil, err
		}
		settings[k] = val
	}
	return settings, rows.Err()
}

// analytics column names, closed set so bumpAnalytics can never be driven
// by external input.
const (
	statCreated = "prompts_created"
	statUsed    = "prompts_used"
	statBackups = "backup_count"
)

// bumpAnalytics accumulates into today's analytics row. Same-day rows
// accumulate; past days are never rewritten.
func (v *Vault) bumpAnalytics(ctx context.Context, column string) error {
	day := time.Now().UTC().Format("2006-01-02")
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO daily_analytics (day, `+column+`) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET `+column+` = `+column+` + 1`,
		day)
	if err != nil {
		return fmt.Errorf("bump %s: %w", column, err)
	}
	return nil
}

// AnalyticsFor returns one day's aggregate, zero-valued if absent.
func (v *Vault) AnalyticsFor(ctx context.Context, day string) (DailyStats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stats := DailyStats{Day: day}
	err := v.db.QueryRowContext(ctx, `
		SELECT prompts_created, prompts_used, backup_count
		FROM daily_analytics WHERE day = ?`, day,
	).Scan(&stats.PromptsCreated, &stats.PromptsUsed, &stats.BackupCount)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	return stats, err
}

func (v *Vault) queryPrompts(ctx context.Context, query string, args ...any) ([]Prompt, error) {
	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPrompt(s scanner) (*Prompt, error) {
	var p Prompt
	var tags, createdAt, updatedAt string
	if err := s.Scan(&p.ID, &p.Text, &p.Category, &tags, &p.Folder,
		&p.Rating, &p.UsageCount, &p.Notes,
		&p.Metadata.Source, &p.Metadata.Confidence,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Tags = splitTags(tags)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	return strings.Split(tags, ",")
}
