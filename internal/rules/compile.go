package rules

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klyr/xssguard/internal/config"
)

// BuildEngine compiles a signature table. Relative patternsFile entries are
// resolved against baseDir.
func BuildEngine(table []config.Rule, baseDir string) (*Engine, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("signature table is empty")
	}

	compiled := make([]Rule, 0, len(table))
	for _, raw := range table {
		rule, err := compileRule(raw, baseDir)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", raw.ID, err)
		}
		compiled = append(compiled, rule)
	}

	return NewEngine(compiled), nil
}

func compileRule(raw config.Rule, baseDir string) (Rule, error) {
	stage := Stage(raw.Stage)
	switch stage {
	case StageRaw, StageNormalized:
	default:
		return Rule{}, fmt.Errorf("unknown stage %q", raw.Stage)
	}
	if raw.Category == "" {
		return Rule{}, fmt.Errorf("category is required")
	}

	var (
		matcher Matcher
		err     error
	)
	switch MatchType(raw.Match.Type) {
	case MatchRegex:
		if raw.Match.Pattern == "" {
			return Rule{}, fmt.Errorf("regex pattern is required")
		}
		matcher, err = NewRegexMatcher(raw.Match.Pattern, raw.CaseSensitive)
	case MatchAho:
		patterns := append([]string(nil), raw.Match.Patterns...)
		if raw.Match.PatternsFile != "" {
			fromFile, readErr := readPatterns(resolvePath(baseDir, raw.Match.PatternsFile))
			if readErr != nil {
				return Rule{}, readErr
			}
			patterns = append(patterns, fromFile...)
		}
		if len(patterns) == 0 {
			return Rule{}, fmt.Errorf("patterns or patternsFile is required")
		}
		if raw.CaseSensitive {
			matcher, err = NewAhoMatcher(patterns)
		} else {
			matcher, err = NewFoldingAhoMatcher(patterns)
		}
	default:
		return Rule{}, fmt.Errorf("unknown match type %q", raw.Match.Type)
	}
	if err != nil {
		return Rule{}, err
	}

	return Rule{
		ID:            raw.ID,
		Category:      Category(raw.Category),
		Stage:         stage,
		CaseSensitive: raw.CaseSensitive,
		Matcher:       matcher,
	}, nil
}

func readPatterns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
