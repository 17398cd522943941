// Package exclude implements the glob-based path exclusion policy a scan's
// options may configure (spec.md §4.2 "excludes (glob list)").
package exclude

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher holds a scan's compiled exclusion patterns. It is built once per
// scan and shared read-only across every worker goroutine walking that
// scan's roots.
type Matcher struct {
	patterns []string
}

// New validates and compiles patterns into a Matcher. An invalid pattern
// (one doublestar can't parse) is reported immediately so a scan fails at
// creation time rather than silently never excluding anything. Empty and
// whitespace-only patterns are dropped.
func New(patterns []string) (*Matcher, error) {
	compiled := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		normalized := normalize(p)
		if !doublestar.ValidatePattern(normalized) {
			return nil, fmt.Errorf("exclude: invalid pattern %q", p)
		}
		compiled = append(compiled, normalized)
	}
	return &Matcher{patterns: compiled}, nil
}

// Match reports whether path matches any of the matcher's patterns, after
// normalizing path to forward slashes so a pattern like "**/node_modules/**"
// excludes the same subtree whether the walk is running on Windows or POSIX
// (spec.md §7 "Glob portability").
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	normalized := normalize(path)
	base := filepath.Base(normalized)
	for _, pattern := range m.patterns {
		if matched, _ := doublestar.Match(pattern, normalized); matched {
			return true
		}
		// Bare basename globs like "*.log" are matched against the final
		// path component too, so users don't have to write "**/*.log".
		if !strings.Contains(pattern, "/") {
			if matched, _ := doublestar.Match(pattern, base); matched {
				return true
			}
		}
	}
	return false
}

// normalize rewrites backslashes to forward slashes so patterns behave the
// same regardless of which platform produced the path.
func normalize(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}
