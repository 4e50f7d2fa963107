package access

import (
	"testing"
	"time"

	"pastekeep/internal/security"
	"pastekeep/internal/storage"
)

func gatedPaste(t *testing.T, mutate func(*storage.Paste)) *storage.Paste {
	t.Helper()
	p := &storage.Paste{
		Slug:       "p1",
		Content:    "body",
		Visibility: storage.VisibilityPublic,
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func TestResolveOutcomes(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	hash, err := security.HashPassword("sekret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cases := []struct {
		name   string
		paste  *storage.Paste
		req    Request
		expect Outcome
	}{
		{
			name:   "missing paste",
			paste:  nil,
			expect: NotFound,
		},
		{
			name:   "deleted paste",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.IsDeleted = true }),
			expect: NotFound,
		},
		{
			name:   "public paste",
			paste:  gatedPaste(t, nil),
			expect: Granted,
		},
		{
			name:   "unlisted paste needs no credentials",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.Visibility = storage.VisibilityUnlisted }),
			expect: Granted,
		},
		{
			name:   "expired paste",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.ExpiresAt = &past }),
			expect: Expired,
		},
		{
			name: "expiry outranks a correct password",
			paste: gatedPaste(t, func(p *storage.Paste) {
				p.ExpiresAt = &past
				p.PasswordHash = hash
			}),
			req:    Request{Password: "sekret"},
			expect: Expired,
		},
		{
			name:   "unexpired future expiry",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.ExpiresAt = &future }),
			expect: Granted,
		},
		{
			name: "private paste hidden from anonymous",
			paste: gatedPaste(t, func(p *storage.Paste) {
				p.Visibility = storage.VisibilityPrivate
				p.OwnerID = "alice"
			}),
			expect: NotFound,
		},
		{
			name: "private paste hidden from other users",
			paste: gatedPaste(t, func(p *storage.Paste) {
				p.Visibility = storage.VisibilityPrivate
				p.OwnerID = "alice"
			}),
			req:    Request{RequesterID: "bob"},
			expect: NotFound,
		},
		{
			name: "private paste visible to owner",
			paste: gatedPaste(t, func(p *storage.Paste) {
				p.Visibility = storage.VisibilityPrivate
				p.OwnerID = "alice"
			}),
			req:    Request{RequesterID: "alice"},
			expect: Granted,
		},
		{
			name:   "password gate without password",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.PasswordHash = hash }),
			expect: PasswordRequired,
		},
		{
			name:   "password gate with wrong password",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.PasswordHash = hash }),
			req:    Request{Password: "nope"},
			expect: PasswordInvalid,
		},
		{
			name:   "password gate with correct password",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.PasswordHash = hash }),
			req:    Request{Password: "sekret"},
			expect: Granted,
		},
		{
			name:   "malformed stored hash reads as invalid",
			paste:  gatedPaste(t, func(p *storage.Paste) { p.PasswordHash = "garbage" }),
			req:    Request{Password: "sekret"},
			expect: PasswordInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.paste, now, tc.req); got != tc.expect {
				t.Fatalf("expected %v, got %v", tc.expect, got)
			}
		})
	}
}

func TestPrivateIndistinguishableFromMissing(t *testing.T) {
	now := time.Now().UTC()
	private := gatedPaste(t, func(p *storage.Paste) {
		p.Visibility = storage.VisibilityPrivate
		p.OwnerID = "alice"
	})
	req := Request{RequesterID: "mallory"}

	if got, want := Resolve(private, now, req), Resolve(nil, now, req); got != want {
		t.Fatalf("existing private paste resolved %v, missing paste %v", got, want)
	}
}
