// Package sqlitestore implements storage.Store on SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"pastekeep/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path. WAL mode and a busy
// timeout keep concurrent readers and the single writer from tripping
// over each other.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    content BLOB NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    visibility TEXT NOT NULL DEFAULT 'public',
    password_hash TEXT,
    expires_at DATETIME,
    burn_after_read INTEGER NOT NULL DEFAULT 0,
    burn_views INTEGER,
    views INTEGER NOT NULL DEFAULT 0,
    owner_id TEXT,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pastes_public ON pastes (visibility, is_deleted, created_at);
CREATE INDEX IF NOT EXISTS idx_pastes_owner ON pastes (owner_id) WHERE owner_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    slug TEXT NOT NULL,
    color TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS paste_tags (
    paste_id INTEGER NOT NULL REFERENCES pastes(id),
    tag_id INTEGER NOT NULL REFERENCES tags(id),
    PRIMARY KEY (paste_id, tag_id)
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Insert stores a new paste together with its tags in a single
// transaction. A slug collision surfaces as storage.ErrDuplicateSlug via
// the UNIQUE constraint; there is deliberately no existence probe first.
func (s *Store) Insert(ctx context.Context, paste *storage.Paste, tags []storage.Tag) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO pastes (slug, content, title, description, language, visibility,
                    password_hash, expires_at, burn_after_read, burn_views,
                    views, owner_id, is_deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?);
`
	res, err := tx.ExecContext(ctx, q,
		paste.Slug,
		[]byte(paste.Content),
		paste.Title,
		paste.Description,
		paste.Language,
		string(paste.Visibility),
		nullString(paste.PasswordHash),
		nullableTime(paste.ExpiresAt),
		boolInt(paste.BurnAfterRead),
		nullInt(paste.BurnViews),
		nullString(paste.OwnerID),
		paste.CreatedAt.UTC(),
		paste.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateSlug
		}
		return fmt.Errorf("insert paste: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert paste id: %w", err)
	}
	paste.ID = id

	for _, tag := range tags {
		var tagID int64
		const upsert = `
INSERT INTO tags (name, slug, color) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET name = excluded.name
RETURNING id;
`
		if err := tx.QueryRowContext(ctx, upsert, tag.Name, tag.Slug, tag.Color).Scan(&tagID); err != nil {
			return fmt.Errorf("upsert tag %q: %w", tag.Name, err)
		}
		const assoc = `INSERT OR IGNORE INTO paste_tags (paste_id, tag_id) VALUES (?, ?);`
		if _, err := tx.ExecContext(ctx, assoc, id, tagID); err != nil {
			return fmt.Errorf("associate tag %q: %w", tag.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateSlug
		}
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

const pasteColumns = `id, slug, content, title, description, language, visibility,
       password_hash, expires_at, burn_after_read, burn_views, views,
       owner_id, is_deleted, created_at, updated_at`

// GetBySlug fetches a live paste by slug. Soft-deleted rows report
// storage.ErrNotFound.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*storage.Paste, error) {
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE slug = ? AND is_deleted = 0;`
	return s.scanPaste(s.db.QueryRowContext(ctx, q, slug))
}

// GetByID fetches a live paste by its internal id.
func (s *Store) GetByID(ctx context.Context, id int64) (*storage.Paste, error) {
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE id = ? AND is_deleted = 0;`
	return s.scanPaste(s.db.QueryRowContext(ctx, q, id))
}

// RecordView increments the view counter and burns the paste in the same
// statement when the burn threshold is crossed. SQLite serializes row
// updates, so of any number of concurrent viewers at the boundary exactly
// one observes the deleted flag flip. A row that is already gone (burned
// or deleted) reports storage.ErrNotFound.
func (s *Store) RecordView(ctx context.Context, id int64, now time.Time) (storage.ViewResult, error) {
	const q = `
UPDATE pastes
SET views = views + 1,
    is_deleted = CASE
        WHEN burn_after_read = 1 AND views + 1 >= COALESCE(burn_views, 1) THEN 1
        ELSE is_deleted
    END,
    updated_at = ?
WHERE id = ? AND is_deleted = 0
RETURNING views, is_deleted;
`
	var (
		views   int64
		deleted int
	)
	err := s.db.QueryRowContext(ctx, q, now.UTC(), id).Scan(&views, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ViewResult{}, storage.ErrNotFound
		}
		return storage.ViewResult{}, fmt.Errorf("record view: %w", err)
	}
	// The WHERE clause admits only live rows, so a deleted result means
	// the flip happened in this very statement.
	return storage.ViewResult{Views: views, Burned: deleted == 1}, nil
}

// SoftDelete marks a paste deleted. The row is never physically removed.
func (s *Store) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	const q = `UPDATE pastes SET is_deleted = 1, updated_at = ? WHERE id = ? AND is_deleted = 0;`
	res, err := s.db.ExecContext(ctx, q, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete paste: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSettings writes the patched fields as absolute values, so applying
// the same patch twice leaves the row unchanged the second time.
func (s *Store) UpdateSettings(ctx context.Context, id int64, patch storage.SettingsPatch, now time.Time) error {
	set := []string{"updated_at = ?"}
	args := []any{now.UTC()}
	if patch.Visibility != nil {
		set = append(set, "visibility = ?")
		args = append(args, string(*patch.Visibility))
	}
	if patch.PasswordHash != nil {
		set = append(set, "password_hash = ?")
		args = append(args, nullString(*patch.PasswordHash))
	}
	if patch.SetExpiry {
		set = append(set, "expires_at = ?")
		args = append(args, nullableTime(patch.ExpiresAt))
	}
	q := "UPDATE pastes SET " + strings.Join(set, ", ") + " WHERE id = ? AND is_deleted = 0;"
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SlugTaken reports whether any row, deleted or not, holds the slug.
func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	const q = `SELECT 1 FROM pastes WHERE slug = ? LIMIT 1;`
	var one int
	err := s.db.QueryRowContext(ctx, q, slug).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return true, nil
}

// ListPublic returns live, unexpired public pastes, newest first. Expiry
// is filtered at query time; no sweeper reclaims expired rows.
func (s *Store) ListPublic(ctx context.Context, now time.Time, limit, offset int) ([]storage.Paste, error) {
	q := `SELECT ` + pasteColumns + `
FROM pastes
WHERE visibility = 'public' AND is_deleted = 0
  AND (expires_at IS NULL OR expires_at > ?)
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`
	rows, err := s.db.QueryContext(ctx, q, now.UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list public pastes: %w", err)
	}
	defer rows.Close()

	var out []storage.Paste
	for rows.Next() {
		p, err := scanPasteRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list public pastes: %w", err)
	}
	return out, nil
}

// CountByOwner aggregates an owner's live pastes and views.
func (s *Store) CountByOwner(ctx context.Context, ownerID string) (storage.OwnerStats, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(views), 0) FROM pastes WHERE owner_id = ? AND is_deleted = 0;`
	var stats storage.OwnerStats
	if err := s.db.QueryRowContext(ctx, q, ownerID).Scan(&stats.Pastes, &stats.Views); err != nil {
		return storage.OwnerStats{}, fmt.Errorf("count by owner: %w", err)
	}
	return stats, nil
}

// TagsFor returns the tags associated with a paste.
func (s *Store) TagsFor(ctx context.Context, pasteID int64) ([]storage.Tag, error) {
	const q = `
SELECT t.id, t.name, t.slug, t.color
FROM tags t
JOIN paste_tags pt ON pt.tag_id = t.id
WHERE pt.paste_id = ?
ORDER BY t.name;`
	rows, err := s.db.QueryContext(ctx, q, pasteID)
	if err != nil {
		return nil, fmt.Errorf("tags for paste: %w", err)
	}
	defer rows.Close()

	var out []storage.Tag
	for rows.Next() {
		var t storage.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tags for paste: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanPaste(row *sql.Row) (*storage.Paste, error) {
	p, err := scanPasteRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPasteRow(row rowScanner) (*storage.Paste, error) {
	var (
		p         storage.Paste
		content   []byte
		vis       string
		password  sql.NullString
		expiresAt sql.NullTime
		burn      int
		burnViews sql.NullInt64
		owner     sql.NullString
		deleted   int
	)
	err := row.Scan(&p.ID, &p.Slug, &content, &p.Title, &p.Description, &p.Language,
		&vis, &password, &expiresAt, &burn, &burnViews, &p.Views, &owner, &deleted,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan paste: %w", err)
	}
	p.Content = string(content)
	p.Visibility = storage.Visibility(vis)
	p.PasswordHash = password.String
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		p.ExpiresAt = &t
	}
	p.BurnAfterRead = burn == 1
	if burnViews.Valid {
		p.BurnViews = int(burnViews.Int64)
	}
	p.OwnerID = owner.String
	p.IsDeleted = deleted == 1
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
