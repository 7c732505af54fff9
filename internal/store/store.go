package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/promptvault/promptvault/internal/backup"
	"github.com/promptvault/promptvault/internal/dedupe"
	"github.com/promptvault/promptvault/internal/ident"
	"github.com/promptvault/promptvault/internal/observability"
)

// Options configures a Vault. Zero values pick sensible defaults.
type Options struct {
	// Path is the backing file. ":memory:" for an in-memory store.
	Path string

	// BackupDir defaults to a "backups" directory beside the store file.
	BackupDir string

	// MaxBackups is the retention count, default backup.DefaultMaxKeep.
	MaxBackups int

	// DuplicateThreshold is the Jaccard cutoff, default 0.9.
	DuplicateThreshold float64

	// MinDuplicateTokens exempts shorter texts from similarity matching,
	// default 5.
	MinDuplicateTokens int

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Vault is the SQLite-backed Store implementation. It composes the
// duplicate detector, id generator, full-text index, backup manager, and
// metrics collector behind one lifecycle.
type Vault struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	closed  bool
	detect  *dedupe.Detector
	idgen   ident.Generator
	backups *backup.Manager
	metrics *observability.Metrics
	logger  *observability.Logger
}

var _ Store = (*Vault)(nil)

// Open opens (or creates) a vault at opts.Path and ensures the schema
// exists.
func Open(opts Options) (*Vault, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: empty store path", ErrInit)
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger("store", nil)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}

	db, err := openDB(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}

	detect := dedupe.NewDetector()
	if opts.DuplicateThreshold > 0 {
		detect.Threshold = opts.DuplicateThreshold
	}
	if opts.MinDuplicateTokens > 0 {
		detect.MinTokens = opts.MinDuplicateTokens
	}

	backupDir := opts.BackupDir
	if backupDir == "" && opts.Path != ":memory:" {
		backupDir = filepath.Join(filepath.Dir(opts.Path), "backups")
	}

	v := &Vault{
		db:      db,
		path:    opts.Path,
		detect:  detect,
		metrics: metrics,
		logger:  logger,
	}
	v.backups = backup.NewManager(db, backupDir, opts.MaxBackups, logger)
	v.backups.OnSuccess = func(ctx context.Context) {
		if err := v.bumpAnalytics(ctx, statBackups); err != nil {
			logger.Warn("backup analytics bump failed", "error", err.Error())
		}
	}

	if err := v.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return v, nil
}

// Init creates the schema if absent. Safe to call any number of times.
func (v *Vault) Init(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrInit, err)
	}
	return nil
}

// Insert adds a new prompt through the duplicate-checked path. force skips
// detection and marks the prompt's provenance as an override.
func (v *Vault) Insert(ctx context.Context, p Prompt, force bool) (*Prompt, error) {
	var stored *Prompt
	err := v.metrics.Timed(observability.OpInsert, func() error {
		var err error
		stored, err = v.insert(ctx, p, force)
		return err
	})
	return stored, err
}

func (v *Vault) insert(ctx context.Context, p Prompt, force bool) (*Prompt, error) {
	if err := validatePrompt(&p); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if force {
		p.Metadata.Source = "override"
	} else {
		existing, err := v.listAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: duplicate scan: %v", ErrPersist, err)
		}
		corpus := make([]string, len(existing))
		for i, e := range existing {
			corpus[i] = e.Text
		}
		if matches := v.detect.Matches(p.Text, corpus); len(matches) > 0 {
			dup := &DuplicateError{Matches: make([]Prompt, len(matches))}
			for i, m := range matches {
				dup.Matches[i] = existing[m.Index]
			}
			return nil, dup
		}
	}

	p.ID = v.idgen.New(func(id string) bool {
		existing, err := v.findByID(ctx, id)
		return err == nil && existing != nil
	})
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Metadata.Source == "" {
		p.Metadata.Source = "manual"
	}

	if err := insertRow(ctx, v.db, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if p.Category != "" {
		if err := v.ensureName(ctx, "categories", p.Category); err != nil {
			v.logger.Warn("category record failed", "error", err.Error())
		}
	}
	if p.Folder != "" {
		if err := v.ensureName(ctx, "folders", p.Folder); err != nil {
			v.logger.Warn("folder record failed", "error", err.Error())
		}
	}
	if err := v.bumpAnalytics(ctx, statCreated); err != nil {
		v.logger.Warn("analytics bump failed", "error", err.Error())
	}
	return &p, nil
}

// Update applies a partial patch, stamping updatedAt. Unknown ids return
// (nil, nil). Invalid patched values are rejected before any write.
func (v *Vault) Update(ctx context.Context, id string, patch Patch) (*Prompt, error) {
	var updated *Prompt
	err := v.metrics.Timed(observability.OpUpdate, func() error {
		var err error
		updated, err = v.update(ctx, id, patch)
		return err
	})
	return updated, err
}

func (v *Vault) update(ctx context.Context, id string, patch Patch) (*Prompt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.findByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if p == nil {
		return nil, nil
	}

	applyPatch(p, patch)
	if err := validatePrompt(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = v.db.ExecContext(ctx, `
		UPDATE prompts SET text = ?, category = ?, tags = ?, folder = ?,
			rating = ?, usage_count = ?, notes = ?, source = ?,
			confidence = ?, updated_at = ?
		WHERE id = ?`,
		p.Text, p.Category, joinTags(p.Tags), p.Folder, p.Rating,
		p.UsageCount, p.Notes, p.Metadata.Source, p.Metadata.Confidence,
		p.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("%w: update %q: %v", ErrPersist, id, err)
	}
	return p, nil
}

// Delete removes one prompt, returning the removed row, nil if unknown.
func (v *Vault) Delete(ctx context.Context, id string) (*Prompt, error) {
	var deleted *Prompt
	err := v.metrics.Timed(observability.OpDelete, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()
		var err error
		deleted, err = v.deleteOne(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		return nil
	})
	return deleted, err
}

// DeleteMany removes a batch in one transaction, returning the rows that
// were actually deleted.
func (v *Vault) DeleteMany(ctx context.Context, ids []string) ([]Prompt, error) {
	var deleted []Prompt
	err := v.metrics.Timed(observability.OpDelete, func() error {
		v.mu.Lock()
		defer v.mu.Unlock()

		tx, err := v.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		defer tx.Rollback()

		for _, id := range ids {
			row := tx.QueryRowContext(ctx,
				`SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
			p, err := scanPrompt(row)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPersist, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM prompts WHERE id = ?", id); err != nil {
				return fmt.Errorf("%w: %v", ErrPersist, err)
			}
			deleted = append(deleted, *p)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// RecordUsage bumps a prompt's usage counter and the day's prompts_used.
func (v *Vault) RecordUsage(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	res, err := v.db.ExecContext(ctx, `
		UPDATE prompts SET usage_count = usage_count + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("%w: usage %q: %v", ErrPersist, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.bumpAnalytics(ctx, statUsed)
}

// Save transactionally replaces the entire prompt set. Either all rows are
// replaced or none are.
func (v *Vault) Save(ctx context.Context, prompts []Prompt) error {
	return v.metrics.Timed(observability.OpSave, func() error {
		stamped := make([]Prompt, len(prompts))
		now := time.Now().UTC()
		for i, p := range prompts {
			if err := validatePrompt(&p); err != nil {
				return err
			}
			if p.ID == "" {
				p.ID = v.idgen.New(nil)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			p.UpdatedAt = now
			if p.Metadata.Source == "" {
				p.Metadata.Source = "manual"
			}
			stamped[i] = p
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.replaceAll(ctx, stamped); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		return nil
	})
}

// Load returns the full denormalized view. On read failure the returned
// snapshot is still usable (empty defaults) alongside the ErrLoad-wrapped
// error, so the application always has a store to work with.
func (v *Vault) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Prompts:       []Prompt{},
		Categories:    []string{},
		Folders:       []string{},
		CustomFolders: []string{},
		Settings:      map[string]any{},
		Metadata:      SnapshotMeta{LoadedAt: time.Now().UTC()},
	}
	err := v.metrics.Timed(observability.OpLoad, func() error {
		v.mu.RLock()
		defer v.mu.RUnlock()

		prompts, err := v.listAll(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoad, err)
		}
		categories, err := v.queryNames(ctx, "SELECT name FROM categories ORDER BY name")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoad, err)
		}
		customFolders, err := v.queryNames(ctx, "SELECT name FROM folders ORDER BY name")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoad, err)
		}
		raw, err := v.allSettings(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoad, err)
		}

		if prompts != nil {
			snap.Prompts = prompts
		}
		if categories != nil {
			snap.Categories = categories
		}
		if customFolders != nil {
			snap.CustomFolders = customFolders
		}
		snap.Folders = referencedFolders(prompts)
		snap.Settings = decodeSettings(raw)
		snap.Metadata.PromptCount = len(prompts)
		return nil
	})
	return snap, err
}

// Search performs ranked full-text search over text, notes, and tags.
// Empty and fully-sanitized queries return an empty result, never an error.
func (v *Vault) Search(ctx context.Context, query string) ([]Prompt, error) {
	var results []Prompt
	err := v.metrics.Timed(observability.OpSearch, func() error {
		ftsQuery := sanitizeQuery(query)
		if ftsQuery == "" {
			return nil
		}
		v.mu.RLock()
		defer v.mu.RUnlock()
		var err error
		results, err = v.searchIndex(ctx, ftsQuery)
		return err
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []Prompt{}
	}
	return results, nil
}

// Backup writes a consistent snapshot and returns its path.
func (v *Vault) Backup(ctx context.Context) (string, error) {
	var path string
	err := v.metrics.Timed(observability.OpBackup, func() error {
		p, err := v.backups.Backup(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackup, err)
		}
		path = p
		return nil
	})
	return path, err
}

// Backups exposes the retention manager for out-of-band scheduling.
func (v *Vault) Backups() *backup.Manager {
	return v.backups
}

// FileSize returns the store file's current size in bytes.
func (v *Vault) FileSize() int64 {
	return v.metrics.FileSize(v.path)
}

// OpStats returns aggregate duration statistics per operation.
func (v *Vault) OpStats() map[observability.Op]observability.Stats {
	return v.metrics.AllStats()
}

// Close releases the underlying file handle. Idempotent.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.db.Close()
}

// validatePrompt rejects malformed prompts before anything is persisted.
// Tags are normalized to lowercase with empty entries dropped.
func validatePrompt(p *Prompt) error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrValidation)
	}
	if p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("%w: rating %d out of range 0-5", ErrValidation, p.Rating)
	}
	if p.UsageCount < 0 {
		return fmt.Errorf("%w: negative usage count", ErrValidation)
	}
	if p.Metadata.Confidence < 0 || p.Metadata.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range 0-1", ErrValidation, p.Metadata.Confidence)
	}
	var tags []string
	for _, t := range p.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}
	p.Tags = tags
	return nil
}

func applyPatch(p *Prompt, patch Patch) {
	if patch.Text != nil {
		p.Text = *patch.Text
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	if patch.Folder != nil {
		p.Folder = *patch.Folder
	}
	if patch.Rating != nil {
		p.Rating = *patch.Rating
	}
	if patch.UsageCount != nil {
		p.UsageCount = *patch.UsageCount
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	if patch.Source != nil {
		p.Metadata.Source = *patch.Source
	}
	if patch.Confidence != nil {
		p.Metadata.Confidence = *patch.Confidence
	}
}

// referencedFolders returns the distinct folder names prompts point at.
func referencedFolders(prompts []Prompt) []string {
	seen := make(map[string]bool)
	for _, p := range prompts {
		if p.Folder != "" {
			seen[p.Folder] = true
		}
	}
	folders := make([]string, 0, len(seen))
	for f := range seen {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders
}

// decodeSettings tries each value as JSON, falling back to the raw string.
func decodeSettings(raw map[string]string) map[string]any {
	settings := make(map[string]any, len(raw))
	for k, val := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(val), &decoded); err == nil {
			settings[k] = decoded
		} else {
			settings[k] = val
		}
	}
	return settings
}
