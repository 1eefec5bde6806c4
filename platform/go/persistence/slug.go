package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern required for public identifiers.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

// SlugifyName derives a URL-safe slug from a display name.
// Runs of non-alphanumeric characters collapse into single hyphens.
func SlugifyName(name string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	slug := nonSlugChars.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")

	return NormalizeSlug(slug)
}
