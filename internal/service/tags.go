package service

import (
	"hash/fnv"
	"strings"

	"pastekeep/internal/storage"
)

const (
	maxTagsPerPaste = 10
	maxTagNameLen   = 50
)

// Display colors assigned deterministically from the tag name, so a tag
// renders the same everywhere without storing per-user preferences.
var tagPalette = []string{
	"#e45649", "#d18616", "#b08800", "#50a14f",
	"#0184bc", "#4078f2", "#a626a4", "#986801",
}

func buildTags(names []string) []storage.Tag {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]storage.Tag, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, storage.Tag{
			Name:  name,
			Slug:  tagSlug(name),
			Color: tagColor(name),
		})
	}
	return out
}

func tagColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return tagPalette[h.Sum32()%uint32(len(tagPalette))]
}

func tagSlug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
