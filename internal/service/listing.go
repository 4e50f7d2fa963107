package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pastekeep/internal/storage"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Cache tags. Entries register under the tags they depend on and
// mutations invalidate tags, so adding a cached view does not require
// touching every mutation site.
const tagPublicListings = "pastes:public"

func tagOwner(ownerID string) string {
	return "owner:" + ownerID
}

// Summary is a listing row; content is withheld until the paste is
// actually opened through the access gate.
type Summary struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title,omitempty"`
	Language    string     `json:"language,omitempty"`
	Views       int64      `json:"views"`
	HasPassword bool       `json:"has_password"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ListPublic returns a page of recent public pastes through the cache.
// Pages may lag mutations by up to the TTL when invalidation itself
// fails; that staleness is accepted.
func (s *Service) ListPublic(ctx context.Context, page, perPage int) ([]Summary, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	fetch := func(ctx context.Context) ([]Summary, error) {
		pastes, err := s.store.ListPublic(ctx, s.now(), perPage, (page-1)*perPage)
		if err != nil {
			return nil, fmt.Errorf("list public: %w", err)
		}
		out := make([]Summary, 0, len(pastes))
		for i := range pastes {
			out = append(out, summarize(&pastes[i]))
		}
		return out, nil
	}

	if s.cache == nil {
		return fetch(ctx)
	}
	key := fmt.Sprintf("public:page:%d:%d", page, perPage)
	raw, err := s.cache.GetOrFill(ctx, key, []string{tagPublicListings}, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}
	var items []Summary
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cached listing: %w", err)
	}
	return items, nil
}

// OwnerStats returns the aggregate counts for an owner's live pastes
// through the cache.
func (s *Service) OwnerStats(ctx context.Context, ownerID string) (storage.OwnerStats, error) {
	if ownerID == "" {
		return storage.OwnerStats{}, invalid("owner", "required")
	}
	if s.cache == nil {
		return s.store.CountByOwner(ctx, ownerID)
	}
	raw, err := s.cache.GetOrFill(ctx, "owner:stats:"+ownerID, []string{tagOwner(ownerID)}, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		stats, err := s.store.CountByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("owner stats: %w", err)
		}
		return json.Marshal(stats)
	})
	if err != nil {
		return storage.OwnerStats{}, err
	}
	var stats storage.OwnerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return storage.OwnerStats{}, fmt.Errorf("decode cached stats: %w", err)
	}
	return stats, nil
}

func summarize(p *storage.Paste) Summary {
	return Summary{
		Slug:        p.Slug,
		Title:       p.Title,
		Language:    p.Language,
		Views:       p.Views,
		HasPassword: p.PasswordHash != "",
		CreatedAt:   p.CreatedAt,
		ExpiresAt:   p.ExpiresAt,
	}
}
