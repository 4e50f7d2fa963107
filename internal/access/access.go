// Package access decides whether a read request may see a paste. The
// decision is pure: no counters move and nothing is deleted here. Callers
// record the view only after a Granted outcome.
package access

import (
	"time"

	"pastekeep/internal/security"
	"pastekeep/internal/storage"
)

// Outcome is the gate's verdict for a single read request.
type Outcome int

const (
	// Granted means the content may be returned.
	Granted Outcome = iota
	// NotFound covers missing, soft-deleted, and foreign private pastes.
	// Private pastes are indistinguishable from nonexistent ones to
	// non-owners so their existence never leaks.
	NotFound
	// Expired means the paste's expiry has passed. Checked before the
	// visibility and password gates.
	Expired
	// PasswordRequired means the paste is password-gated and no password
	// was supplied.
	PasswordRequired
	// PasswordInvalid means the supplied password did not match.
	PasswordInvalid
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case NotFound:
		return "not found"
	case Expired:
		return "expired"
	case PasswordRequired:
		return "password required"
	case PasswordInvalid:
		return "password invalid"
	}
	return "unknown"
}

// Request carries the credentials accompanying a read.
type Request struct {
	// Password is the plain-text password supplied with the request, if any.
	Password string
	// RequesterID is the authenticated user id, empty for anonymous.
	RequesterID string
}

// Resolve runs the gate over a fetched paste row. A nil paste stands for
// "no live row with that slug".
func Resolve(p *storage.Paste, now time.Time, req Request) Outcome {
	if p == nil || p.IsDeleted {
		return NotFound
	}
	if p.Expired(now) {
		return Expired
	}
	if p.Visibility == storage.VisibilityPrivate && !isOwner(p, req.RequesterID) {
		return NotFound
	}
	if p.PasswordHash != "" {
		if req.Password == "" {
			return PasswordRequired
		}
		ok, err := security.VerifyPassword(p.PasswordHash, req.Password)
		if err != nil || !ok {
			return PasswordInvalid
		}
	}
	return Granted
}

func isOwner(p *storage.Paste, requesterID string) bool {
	return p.OwnerID != "" && p.OwnerID == requesterID
}
