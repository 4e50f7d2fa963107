// Package service implements the paste lifecycle operations: create,
// read (with burn accounting), delete, settings updates, and the cached
// listing queries. It owns the control flow ordering: rate limit first,
// then validation, then a single store mutation, then cache invalidation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pastekeep/internal/access"
	"pastekeep/internal/cache"
	"pastekeep/internal/metrics"
	"pastekeep/internal/ratelimit"
	"pastekeep/internal/security"
	"pastekeep/internal/slug"
	"pastekeep/internal/storage"
)

// Random slug collisions are vanishingly rare at 8 characters; the bound
// is a safety valve, not an expected path.
const maxSlugAttempts = 10

// ExpireChoices is the fixed menu of expiry durations. Zero means never.
var ExpireChoices = map[string]time.Duration{
	"10m":   10 * time.Minute,
	"1h":    time.Hour,
	"1d":    24 * time.Hour,
	"7d":    7 * 24 * time.Hour,
	"30d":   30 * 24 * time.Hour,
	"never": 0,
}

// Config captures the service's injected dependencies. Only Store is
// mandatory; a nil cache or limiter disables that layer.
type Config struct {
	Store    storage.Store
	Slugs    *slug.Generator
	Cache    *cache.Cache
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
	MaxBytes int
	CacheTTL time.Duration
	Now      func() time.Time
}

// Service exposes the paste operations consumed by the HTTP layer.
type Service struct {
	store    storage.Store
	slugs    *slug.Generator
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	maxBytes int
	cacheTTL time.Duration
	now      func() time.Time
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Slugs == nil {
		cfg.Slugs = slug.New(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1_048_576
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		slugs:    cfg.Slugs,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
		maxBytes: cfg.MaxBytes,
		cacheTTL: cfg.CacheTTL,
		now:      cfg.Now,
	}, nil
}

// CreateInput is the request to create a paste.
type CreateInput struct {
	Content       string
	Title         string
	Description   string
	Language      string
	Visibility    storage.Visibility
	Password      string
	BurnAfterRead bool
	BurnViews     int
	CustomSlug    string
	ExpiresIn     string
	Tags          []string
	OwnerID       string
	// ClientIP buckets anonymous actors for rate limiting.
	ClientIP string
}

// CreatePaste allocates a slug and stores the paste. The slug allocation
// and the row insert are one atomic operation; on a random-slug collision
// the insert is retried with a fresh slug, on a custom-slug collision it
// fails with ErrDuplicateSlug immediately.
func (s *Service) CreatePaste(ctx context.Context, in CreateInput) (string, error) {
	if d := s.checkLimit(in.OwnerID, in.ClientIP, ratelimit.ActionCreate); !d.Allowed {
		return "", &RateLimitError{RetryAfter: d.RetryAfter}
	}

	if in.Visibility == "" {
		in.Visibility = storage.VisibilityPublic
	}
	expire, err := s.validateCreate(&in)
	if err != nil {
		return "", err
	}

	hashed, err := security.HashPassword(in.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	paste := &storage.Paste{
		Content:       in.Content,
		Title:         in.Title,
		Description:   in.Description,
		Language:      in.Language,
		Visibility:    in.Visibility,
		PasswordHash:  hashed,
		BurnAfterRead: in.BurnAfterRead,
		BurnViews:     in.BurnViews,
		OwnerID:       in.OwnerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if expire > 0 {
		at := now.Add(expire)
		paste.ExpiresAt = &at
	}
	tags := buildTags(in.Tags)

	if in.CustomSlug != "" {
		paste.Slug = in.CustomSlug
		if err := s.store.Insert(ctx, paste, tags); err != nil {
			if errors.Is(err, storage.ErrDuplicateSlug) {
				return "", ErrDuplicateSlug
			}
			return "", fmt.Errorf("create paste: %w", err)
		}
	} else if err := s.insertWithRandomSlug(ctx, paste, tags); err != nil {
		return "", err
	}

	metrics.PastesCreated.Inc()
	s.invalidateFor(paste)
	return paste.Slug, nil
}

func (s *Service) insertWithRandomSlug(ctx context.Context, paste *storage.Paste, tags []storage.Tag) error {
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		code, err := s.slugs.Generate(ctx)
		if err != nil {
			return fmt.Errorf("generate slug: %w", err)
		}
		paste.Slug = code
		err = s.store.Insert(ctx, paste, tags)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrDuplicateSlug) {
			return fmt.Errorf("create paste: %w", err)
		}
		s.logger.Warn("slug collision, retrying", "attempt", attempt)
	}
	return fmt.Errorf("no unique slug after %d attempts", maxSlugAttempts)
}

func (s *Service) validateCreate(in *CreateInput) (time.Duration, error) {
	if in.Content == "" {
		return 0, invalid("content", "must not be empty")
	}
	if len(in.Content) > s.maxBytes {
		return 0, invalid("content", fmt.Sprintf("exceeds %d byte limit", s.maxBytes))
	}
	if !in.Visibility.Valid() {
		return 0, invalid("visibility", "unknown level")
	}
	if in.Visibility == storage.VisibilityPrivate && in.OwnerID == "" {
		return 0, invalid("visibility", "anonymous users cannot create private pastes")
	}
	if in.BurnViews < 0 {
		return 0, invalid("burn_views", "must be at least 1")
	}
	if !in.BurnAfterRead && in.BurnViews > 0 {
		return 0, invalid("burn_views", "requires burn_after_read")
	}
	if in.BurnAfterRead && in.BurnViews == 0 {
		in.BurnViews = 1
	}
	if in.CustomSlug != "" && !slug.ValidCustom(in.CustomSlug) {
		return 0, invalid("custom_slug", "must be 3-50 characters from [a-z0-9_-]")
	}
	if in.ExpiresIn == "" {
		in.ExpiresIn = "never"
	}
	expire, ok := ExpireChoices[in.ExpiresIn]
	if !ok {
		return 0, invalid("expires_in", "unknown choice")
	}
	if len(in.Tags) > maxTagsPerPaste {
		return 0, invalid("tags", fmt.Sprintf("at most %d tags", maxTagsPerPaste))
	}
	for _, name := range in.Tags {
		if name == "" || len(name) > maxTagNameLen {
			return 0, invalid("tags", fmt.Sprintf("names must be 1-%d characters", maxTagNameLen))
		}
	}
	return expire, nil
}

// View is the successful result of a read.
type View struct {
	Paste  *storage.Paste
	Tags   []storage.Tag
	Views  int64
	Burned bool
}

// GetPaste resolves the access gate for slug and, when granted to a
// non-owner, records the view atomically. The response carries the
// post-transition view count; if the transition cannot be recorded the
// whole read fails rather than returning unaccounted content.
func (s *Service) GetPaste(ctx context.Context, slugStr, password, requesterID string) (*View, error) {
	paste, err := s.store.GetBySlug(ctx, slugStr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			paste = nil
		} else {
			return nil, fmt.Errorf("fetch paste: %w", err)
		}
	}

	outcome := access.Resolve(paste, s.now(), access.Request{Password: password, RequesterID: requesterID})
	switch outcome {
	case access.NotFound:
		return nil, ErrNotFound
	case access.Expired:
		return nil, ErrExpired
	case access.PasswordRequired:
		return nil, ErrPasswordRequired
	case access.PasswordInvalid:
		return nil, ErrPasswordInvalid
	}

	view := &View{Paste: paste, Views: paste.Views}
	if !isOwner(paste, requesterID) {
		res, err := s.store.RecordView(ctx, paste.ID, s.now())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// A concurrent viewer burned it between fetch and
				// transition; to this caller it no longer exists.
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("record view: %w", err)
		}
		view.Views = res.Views
		view.Burned = res.Burned
		metrics.PasteViews.Inc()
		if res.Burned {
			metrics.PastesBurned.Inc()
			s.invalidateFor(paste)
		}
	}

	tags, err := s.store.TagsFor(ctx, paste.ID)
	if err != nil {
		// Tag decoration is best effort.
		s.logger.Warn("loading tags failed", "slug", slugStr, "error", err)
	} else {
		view.Tags = tags
	}
	return view, nil
}

// CheckSlugAvailability reports whether candidate could be used as a
// custom slug right now. Uniqueness is global including deleted rows, and
// the answer is advisory: creation still races through the store
// constraint.
func (s *Service) CheckSlugAvailability(ctx context.Context, candidate string) (bool, error) {
	if !slug.ValidCustom(candidate) {
		return false, nil
	}
	taken, err := s.store.SlugTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return !taken, nil
}

func (s *Service) checkLimit(requesterID, clientIP string, action ratelimit.Action) ratelimit.Decision {
	if s.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	actor := requesterID
	if actor == "" {
		actor = "ip:" + clientIP
	}
	d := s.limiter.Check(actor, action)
	if !d.Allowed {
		metrics.RequestsThrottled.Inc()
	}
	return d
}

// invalidateFor drops the cached views a mutation of p could stale.
func (s *Service) invalidateFor(p *storage.Paste) {
	if s.cache == nil {
		return
	}
	if p.Visibility == storage.VisibilityPublic {
		s.cache.InvalidateTag(tagPublicListings)
	}
	if p.OwnerID != "" {
		s.cache.InvalidateTag(tagOwner(p.OwnerID))
	}
}

func isOwner(p *storage.Paste, requesterID string) bool {
	return p.OwnerID != "" && p.OwnerID == requesterID
}
