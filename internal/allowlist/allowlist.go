package allowlist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/normalize"
)

// Pattern is one compiled allowlist entry.
type Pattern struct {
	ID string

	re       *regexp.Regexp
	exclude  *regexp.Regexp
	keywords bool
}

// Match reports whether raw has the pattern's shape. The exclusion is checked
// on both the raw and the decoded text so encoded markup is refused too.
func (p Pattern) Match(raw string) bool {
	if p.exclude != nil && (p.exclude.MatchString(raw) || p.exclude.MatchString(normalize.Text(raw))) {
		return false
	}
	return p.re.MatchString(raw)
}

// Filter recognizes input shapes that are safe regardless of signatures.
// It is read-only after Build.
type Filter struct {
	patterns []Pattern
}

func Build(entries []config.AllowlistEntry) (*Filter, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("allowlist is empty")
	}

	patterns := make([]Pattern, 0, len(entries))
	for _, entry := range entries {
		pattern, err := compile(entry)
		if err != nil {
			return nil, fmt.Errorf("allowlist %s: %w", entry.ID, err)
		}
		patterns = append(patterns, pattern)
	}
	return &Filter{patterns: patterns}, nil
}

func compile(entry config.AllowlistEntry) (Pattern, error) {
	if entry.ID == "" {
		return Pattern{}, fmt.Errorf("id is required")
	}

	pattern := Pattern{ID: entry.ID}
	switch {
	case entry.Pattern != "" && len(entry.Keywords) > 0:
		return Pattern{}, fmt.Errorf("pattern and keywords are mutually exclusive")
	case entry.Pattern != "":
		re, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return Pattern{}, err
		}
		pattern.re = re
	case len(entry.Keywords) > 0:
		re, err := keywordRegexp(entry.Keywords)
		if err != nil {
			return Pattern{}, err
		}
		pattern.re = re
		pattern.keywords = true
	default:
		return Pattern{}, fmt.Errorf("pattern or keywords is required")
	}

	if entry.Exclude != "" {
		exclude, err := regexp.Compile(entry.Exclude)
		if err != nil {
			return Pattern{}, fmt.Errorf("exclude: %w", err)
		}
		pattern.exclude = exclude
	}
	return pattern, nil
}

// keywordRegexp matches any keyword as a whole word, ignoring case.
func keywordRegexp(keywords []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(keyword))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("keywords are empty")
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// KnownSafe reports the id of the first pattern accepting raw.
func (f *Filter) KnownSafe(raw string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, pattern := range f.patterns {
		if pattern.Match(raw) {
			return pattern.ID, true
		}
	}
	return "", false
}

func (f *Filter) Patterns() []Pattern {
	if f == nil {
		return nil
	}
	return f.patterns
}
