package uptree

import (
	"fmt"
	"regexp"
)

// IgnoreManager decides which directory entries are excluded from
// listings. Hidden (dot-prefixed) entries are skipped by default;
// additional regular expressions are matched against slash-separated
// paths relative to the cache root.
type IgnoreManager struct {
	includeHidden bool
	patterns      []*regexp.Regexp
}

// NewIgnoreManager creates an ignore manager with no patterns that
// skips hidden entries
func NewIgnoreManager() *IgnoreManager {
	return &IgnoreManager{
		patterns: make([]*regexp.Regexp, 0),
	}
}

// AddPattern compiles and adds a new ignore pattern
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}

	im.patterns = append(im.patterns, pattern)
	return nil
}

// ShouldIgnore checks if an entry should be excluded from listings
func (im *IgnoreManager) ShouldIgnore(name, relativePath string) bool {
	if !im.includeHidden && len(name) > 0 && name[0] == '.' {
		return true
	}

	for _, pattern := range im.patterns {
		if pattern.MatchString(relativePath) {
			return true
		}
	}

	return false
}

// HasPatterns returns true if there are any ignore patterns loaded
func (im *IgnoreManager) HasPatterns() bool {
	return len(im.patterns) > 0
}

// Patterns returns all loaded patterns
func (im *IgnoreManager) Patterns() []*regexp.Regexp {
	return im.patterns
}
