// Package store provides the persistent prompt store: an embedded SQLite
// database with a full-text index kept in lock-step with every mutation,
// duplicate-checked inserts, and transactional bulk replace.
//
// The Store interface is the primary abstraction. Vault is the default
// implementation using pure-Go SQLite (modernc.org/sqlite).
package store

import (
	"context"
	"time"
)

// Provenance records where a prompt came from and how confident the
// producing layer was. Source is "manual" for user-entered prompts,
// "override" for forced duplicate-override inserts, or the name of an
// automated producer.
type Provenance struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Prompt is one stored text entry with metadata. The JSON shape is the
// wire shape exchanged with the HTTP layer.
type Prompt struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Category   string     `json:"category"`
	Tags       []string   `json:"tags"`
	Folder     string     `json:"folder"`
	Rating     int        `json:"rating"` // 0 means unrated.
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	UsageCount int        `json:"usage_count"`
	Notes      string     `json:"notes"`
	Metadata   Provenance `json:"metadata"`
}

// Patch is a partial update to a prompt. Nil fields are left unchanged.
type Patch struct {
	Text       *string   `json:"text,omitempty"`
	Category   *string   `json:"category,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Folder     *string   `json:"folder,omitempty"`
	Rating     *int      `json:"rating,omitempty"`
	UsageCount *int      `json:"usage_count,omitempty"` // Manual reset only.
	Notes      *string   `json:"notes,omitempty"`
	Source     *string   `json:"source,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Snapshot is the full denormalized view returned by Load.
type Snapshot struct {
	Prompts       []Prompt       `json:"prompts"`
	Categories    []string       `json:"categories"`
	Folders       []string       `json:"folders"`       // Distinct folders referenced by prompts.
	CustomFolders []string       `json:"customFolders"` // User-defined folder list.
	Settings      map[string]any `json:"settings"`
	Metadata      SnapshotMeta   `json:"metadata"`
}

// SnapshotMeta describes when and from what the snapshot was built.
type SnapshotMeta struct {
	PromptCount int       `json:"prompt_count"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// DailyStats is one day's append-only analytics row.
type DailyStats struct {
	Day            string `json:"day"` // YYYY-MM-DD
	PromptsCreated int    `json:"prompts_created"`
	PromptsUsed    int    `json:"prompts_used"`
	BackupCount    int    `json:"backup_count"`
}

// Store is the prompt store interface. Vault is the one implementation;
// the interface exists so the facade is substitutable without reflection.
type Store interface {
	// Init creates the schema if absent. Idempotent.
	Init(ctx context.Context) error

	// Insert adds a new prompt after duplicate detection. When force is
	// true detection is skipped and the prompt's provenance is marked as
	// an override. Returns the stored prompt with server-assigned id and
	// timestamps.
	Insert(ctx context.Context, p Prompt, force bool) (*Prompt, error)

	// Update applies a partial patch. Returns nil if the id is unknown.
	Update(ctx context.Context, id string, patch Patch) (*Prompt, error)

	// Delete removes one prompt. Returns the deleted prompt, nil if unknown.
	Delete(ctx context.Context, id string) (*Prompt, error)

	// DeleteMany removes a batch, returning those actually deleted.
	DeleteMany(ctx context.Context, ids []string) ([]Prompt, error)

	// RecordUsage bumps a prompt's usage counter and the day's analytics.
	RecordUsage(ctx context.Context, id string) error

	// Save transactionally replaces the entire prompt set.
	Save(ctx context.Context, prompts []Prompt) error

	// Load returns the full denormalized view. On read failure it returns
	// an empty usable snapshot alongside the error.
	Load(ctx context.Context) (*Snapshot, error)

	// Search performs ranked full-text search over text, notes, and tags.
	// Empty or fully-sanitized queries return an empty slice, never an error.
	Search(ctx context.Context, query string) ([]Prompt, error)

	// Backup writes a consistent point-in-time snapshot file and returns
	// its path.
	Backup(ctx context.Context) (string, error)

	// Close releases the underlying file handle. Idempotent.
	Close() error
}
