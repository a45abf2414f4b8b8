package hotspot

import (
	"crypto/md5" //nolint:gosec // non-cryptographic slug fallback
	"encoding/hex"
	"regexp"
	"strings"
)

var nonSlugRunes = regexp.MustCompile(`[^0-9A-Za-z]+`)

// Slugify derives a filesystem-safe identifier from a topic title. The
// derivation is pure: equal titles always produce equal slugs, regardless
// of which acquisition path supplied them. Titles with no ASCII
// alphanumerics fall back to a digest-based slug so the result is never
// empty.
func Slugify(title string) string {
	slug := nonSlugRunes.ReplaceAllString(title, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug != "" {
		return slug
	}
	sum := md5.Sum([]byte(title)) //nolint:gosec
	return "topic-" + hex.EncodeToString(sum[:])[:8]
}

// CanonicalHashtag normalizes hashtag-style titles to the bracketed
// `#title#` form. Plain titles are returned unchanged.
func CanonicalHashtag(title string) string {
	trimmed := strings.TrimSpace(title)
	if !strings.HasPrefix(trimmed, "#") {
		return trimmed
	}
	core := strings.Trim(trimmed, "#")
	if core == "" {
		return trimmed
	}
	return "#" + core + "#"
}
