package service

import (
	"context"
	"errors"
	"fmt"

	"pastekeep/internal/ratelimit"
	"pastekeep/internal/security"
	"pastekeep/internal/storage"
)

// DeletePaste soft-deletes a paste on behalf of its owner.
func (s *Service) DeletePaste(ctx context.Context, id int64, requesterID, clientIP string) error {
	if d := s.checkLimit(requesterID, clientIP, ratelimit.ActionDelete); !d.Allowed {
		return &RateLimitError{RetryAfter: d.RetryAfter}
	}
	paste, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("fetch paste: %w", err)
	}
	if !isOwner(paste, requesterID) {
		return ErrUnauthorized
	}
	if err := s.store.SoftDelete(ctx, id, s.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete paste: %w", err)
	}
	s.invalidateFor(paste)
	return nil
}

// SettingsInput patches a paste's access-control settings. Nil fields are
// left unchanged. Values are written absolutely, so replaying the same
// input is a no-op.
type SettingsInput struct {
	Visibility *storage.Visibility
	// Password sets a new password; RemovePassword clears it. Setting
	// both is rejected.
	Password       *string
	RemovePassword bool
	// ExpiresIn is a choice from ExpireChoices; "never" clears the expiry.
	ExpiresIn *string
}

// UpdatePasteSettings applies in to the paste, owner only.
func (s *Service) UpdatePasteSettings(ctx context.Context, id int64, requesterID, clientIP string, in SettingsInput) error {
	if d := s.checkLimit(requesterID, clientIP, ratelimit.ActionUpdate); !d.Allowed {
		return &RateLimitError{RetryAfter: d.RetryAfter}
	}
	paste, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("fetch paste: %w", err)
	}
	if !isOwner(paste, requesterID) {
		return ErrUnauthorized
	}

	patch, err := s.buildPatch(in)
	if err != nil {
		return err
	}
	if err := s.store.UpdateSettings(ctx, id, patch, s.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update settings: %w", err)
	}

	// A visibility flip in either direction can change the public
	// listings, so look at both the old and the new value.
	s.invalidateFor(paste)
	if patch.Visibility != nil && *patch.Visibility != paste.Visibility {
		changed := *paste
		changed.Visibility = *patch.Visibility
		s.invalidateFor(&changed)
	}
	return nil
}

func (s *Service) buildPatch(in SettingsInput) (storage.SettingsPatch, error) {
	var patch storage.SettingsPatch
	if in.Visibility != nil {
		if !in.Visibility.Valid() {
			return patch, invalid("visibility", "unknown level")
		}
		patch.Visibility = in.Visibility
	}
	if in.Password != nil && in.RemovePassword {
		return patch, invalid("password", "cannot set and remove at once")
	}
	if in.RemovePassword {
		empty := ""
		patch.PasswordHash = &empty
	} else if in.Password != nil {
		if *in.Password == "" {
			return patch, invalid("password", "must not be empty")
		}
		hashed, err := security.HashPassword(*in.Password)
		if err != nil {
			return patch, fmt.Errorf("hash password: %w", err)
		}
		patch.PasswordHash = &hashed
	}
	if in.ExpiresIn != nil {
		expire, ok := ExpireChoices[*in.ExpiresIn]
		if !ok {
			return patch, invalid("expires_in", "unknown choice")
		}
		patch.SetExpiry = true
		if expire > 0 {
			at := s.now().UTC().Add(expire)
			patch.ExpiresAt = &at
		}
	}
	return patch, nil
}
