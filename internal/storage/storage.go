package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a paste does not exist or is soft-deleted.
var ErrNotFound = errors.New("paste not found")

// ErrDuplicateSlug is returned when an insert collides with an existing slug.
// Slug uniqueness is global, including soft-deleted rows.
var ErrDuplicateSlug = errors.New("slug already taken")

// Visibility controls who can discover and read a paste.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// Paste represents a stored paste entry.
type Paste struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	Language      string     `json:"language,omitempty"`
	Visibility    Visibility `json:"visibility"`
	PasswordHash  string     `json:"-"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	BurnAfterRead bool       `json:"burn_after_read"`
	BurnViews     int        `json:"burn_views,omitempty"`
	Views         int64      `json:"views"`
	OwnerID       string     `json:"owner_id,omitempty"`
	IsDeleted     bool       `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired reports whether the paste's expiry has passed at now.
func (p *Paste) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// BurnThreshold returns the view count at which the paste burns.
func (p *Paste) BurnThreshold() int {
	if p.BurnViews < 1 {
		return 1
	}
	return p.BurnViews
}

// Tag labels a paste. Tags are created lazily on first use and shared
// across pastes by name.
type Tag struct {
	ID    int64  `json:"-"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

// ViewResult is the outcome of recording a single view.
type ViewResult struct {
	Views  int64
	Burned bool
}

// OwnerStats aggregates a single owner's live pastes.
type OwnerStats struct {
	Pastes int64 `json:"pastes"`
	Views  int64 `json:"views"`
}

// SettingsPatch carries absolute values for the mutable access-control
// fields. Nil fields are left untouched.
type SettingsPatch struct {
	Visibility *Visibility
	// PasswordHash replaces the stored hash; an empty string removes the
	// password entirely.
	PasswordHash *string
	// SetExpiry indicates ExpiresAt should be written; a nil ExpiresAt
	// with SetExpiry clears the expiry.
	SetExpiry bool
	ExpiresAt *time.Time
}

// Store defines the storage backend contract.
//
// Insert must rely on the backend's own uniqueness constraint for the slug
// and report collisions as ErrDuplicateSlug; callers react by retrying with
// a fresh slug, never by probing first. RecordView must be a single atomic
// operation so that concurrent viewers of a burn-after-read paste are
// totally ordered with respect to the burn decision.
type Store interface {
	Insert(ctx context.Context, paste *Paste, tags []Tag) error
	GetBySlug(ctx context.Context, slug string) (*Paste, error)
	GetByID(ctx context.Context, id int64) (*Paste, error)
	RecordView(ctx context.Context, id int64, now time.Time) (ViewResult, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
	UpdateSettings(ctx context.Context, id int64, patch SettingsPatch, now time.Time) error
	SlugTaken(ctx context.Context, slug string) (bool, error)
	ListPublic(ctx context.Context, now time.Time, limit, offset int) ([]Paste, error)
	CountByOwner(ctx context.Context, ownerID string) (OwnerStats, error)
	TagsFor(ctx context.Context, pasteID int64) ([]Tag, error)
	Close() error
}
