package rules

import (
	"errors"
	"strings"
)

// AhoMatcher finds any of a fixed set of literal byte patterns in one pass.
type AhoMatcher struct {
	nodes []ahoNode
	fold  bool
}

type ahoNode struct {
	next map[byte]int
	fail int
	// depth of the longest pattern ending here, 0 if none
	hit int
}

func NewAhoMatcher(patterns []string) (*AhoMatcher, error) {
	return buildAho(patterns, false)
}

// NewFoldingAhoMatcher matches ASCII letters case-insensitively.
func NewFoldingAhoMatcher(patterns []string) (*AhoMatcher, error) {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return buildAho(lowered, true)
}

func buildAho(patterns []string, fold bool) (*AhoMatcher, error) {
	if len(patterns) == 0 {
		return nil, errors.New("patterns are required")
	}

	nodes := []ahoNode{{next: map[byte]int{}}}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		current := 0
		for i := 0; i < len(pattern); i++ {
			b := pattern[i]
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		if len(pattern) > nodes[current].hit {
			nodes[current].hit = len(pattern)
		}
	}
	if len(nodes) == 1 {
		return nil, errors.New("no non-empty patterns")
	}

	queue := make([]int, 0, len(nodes))
	for _, next := range nodes[0].next {
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for fail != 0 {
				if _, ok := nodes[fail].next[b]; ok {
					break
				}
				fail = nodes[fail].fail
			}
			if target, ok := nodes[fail].next[b]; ok && target != next {
				nodes[next].fail = target
			} else {
				nodes[next].fail = 0
			}
			if inherited := nodes[nodes[next].fail].hit; inherited > nodes[next].hit {
				nodes[next].hit = inherited
			}
			queue = append(queue, next)
		}
	}

	return &AhoMatcher{nodes: nodes, fold: fold}, nil
}

// Match reports the first position where a pattern ends. Evidence is the
// matched slice of the original input.
func (m *AhoMatcher) Match(input string) (bool, string) {
	state := 0
	for i := 0; i < len(input); i++ {
		b := input[i]
		if m.fold && 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		for state != 0 {
			if _, ok := m.nodes[state].next[b]; ok {
				break
			}
			state = m.nodes[state].fail
		}
		if next, ok := m.nodes[state].next[b]; ok {
			state = next
		}

		if n := m.nodes[state].hit; n > 0 {
			return true, snippet(input[i+1-n : i+1])
		}
	}

	return false, ""
}
