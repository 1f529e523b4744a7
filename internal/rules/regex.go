package rules

import (
	"regexp"
	"strings"
)

// RegexMatcher reports the leftmost match of one compiled pattern.
type RegexMatcher struct {
	re *regexp.Regexp
}

// NewRegexMatcher compiles pattern, adding the (?i) flag unless
// caseSensitive is set or the pattern already carries it.
func NewRegexMatcher(pattern string, caseSensitive bool) (*RegexMatcher, error) {
	if !caseSensitive && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMatcher{re: re}, nil
}

func (m *RegexMatcher) Match(input string) (bool, string) {
	loc := m.re.FindStringIndex(input)
	if loc == nil {
		return false, ""
	}
	return true, snippet(input[loc[0]:loc[1]])
}

func (m *RegexMatcher) String() string {
	return m.re.String()
}
