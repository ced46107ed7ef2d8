// Package validate checks caller-supplied identifiers at the API boundary.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Slug trims whitespace, lowercases, then validates a list slug.
// Rules: 1-64 chars, lowercase alphanumeric and hyphens only, no
// leading/trailing hyphens, no consecutive hyphens.
// Returns the cleaned slug and an error if invalid.
func Slug(value string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(value))
	if slug == "" {
		return "", fmt.Errorf("slug must not be empty")
	}
	if len(slug) > 64 {
		return "", fmt.Errorf("slug must be at most 64 characters")
	}
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("slug must contain only letters, numbers, and hyphens")
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return "", fmt.Errorf("slug must not start or end with a hyphen")
	}
	if strings.Contains(slug, "--") {
		return "", fmt.Errorf("slug must not contain consecutive hyphens")
	}
	return slug, nil
}
