// Package slug produces and validates the short public identifiers that
// map to pastes.
package slug

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Lowercase plus digits only; generated slugs stay readable in URLs and
// are case-insensitive to type.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const (
	defaultLength = 8
	minCustomLen  = 3
	maxCustomLen  = 50
)

// Generator produces unique, URL-safe identifiers. Uniqueness is not
// guaranteed here; the store's constraint is the arbiter and callers retry
// on collision.
type Generator struct {
	length int
}

// New returns a Generator with the provided length. If length <= 0, a sane
// default is used.
func New(length int) *Generator {
	if length <= 0 {
		length = defaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new random slug.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return gonanoid.Generate(alphabet, g.length)
}

// ValidCustom reports whether a user-chosen slug is acceptable: 3-50
// characters from [a-z0-9_-].
func ValidCustom(s string) bool {
	if len(s) < minCustomLen || len(s) > maxCustomLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
