package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textSanitizer strips markup from free-text fields before they are stored.
type textSanitizer struct {
	policy *bluemonday.Policy
}

func newTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean returns the plain-text form of raw with surrounding space trimmed.
func (s *textSanitizer) Clean(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	// StrictPolicy escapes entities; stored text is unescaped plain text.
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// CleanOptional cleans raw and maps an empty result to nil.
func (s *textSanitizer) CleanOptional(raw *string) *string {
	if raw == nil {
		return nil
	}
	cleaned := s.Clean(*raw)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
