package allowlist

import (
	"strings"
	"testing"

	"github.com/klyr/xssguard/internal/config"
)

func defaultFilter(t *testing.T) *Filter {
	t.Helper()
	filter, err := Build(config.DefaultAllowlist())
	if err != nil {
		t.Fatalf("build default allowlist: %v", err)
	}
	return filter
}

func TestKnownSafeDefaults(t *testing.T) {
	filter := defaultFilter(t)

	cases := []struct {
		input string
		want  string
	}{
		{"", "blank"},
		{"   ", "blank"},
		{"Jean-Luc", "hyphenated-name"},
		{"2002-03-07", "iso-date"},
		{"John Doe", "plain-words"},
		{"the quick brown fox", "plain-words"},
		{"Mary-Kate Olsen", "plain-words"},
		{"Peters & Sons, Ltd.", "domain-keywords"},
		{"cross-group review #4", "domain-keywords"},
		{"Object Oriented Design 101", "domain-keywords"},
	}

	for _, tt := range cases {
		id, ok := filter.KnownSafe(tt.input)
		if !ok || id != tt.want {
			t.Fatalf("KnownSafe(%q) expected %s, got (%q,%v)", tt.input, tt.want, id, ok)
		}
	}
}

func TestKnownSafeRejects(t *testing.T) {
	filter := defaultFilter(t)

	rejected := []string{
		"<script>alert(1)</script>",
		"user@example.com",
		"2002-3-7",
		"2002-03-07T10:00",
		"javascript:alert(1)",
		"matrix<svg onload=alert(1)>",
		"vision'onfocus=x",
		"visionary thinking 2",
		"Johnsons 42",
		"vision %3Cscript%3Ealert%281%29%3C/script%3E",
		"matrix &lt;img src=x onerror=alert&#40;1&#41;&gt;",
		"vision javascript:alert&#40;1&#41;",
		"peters javascript:void",
	}

	for _, input := range rejected {
		if id, ok := filter.KnownSafe(input); ok {
			t.Fatalf("KnownSafe(%q) unexpectedly accepted by %s", input, id)
		}
	}
}

func TestBuildRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]config.AllowlistEntry{
		"empty":       nil,
		"missing-id":  {{Pattern: "^x$"}},
		"both":        {{ID: "x", Pattern: "^x$", Keywords: []string{"x"}}},
		"neither":     {{ID: "x"}},
		"bad-regex":   {{ID: "x", Pattern: "^(x$"}},
		"bad-exclude": {{ID: "x", Keywords: []string{"x"}, Exclude: "["}},
		"blank-kw":    {{ID: "x", Keywords: []string{" "}}},
	}

	for name, entries := range cases {
		if _, err := Build(entries); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestAuditDefaultsClean(t *testing.T) {
	if problems := Audit(defaultFilter(t)); len(problems) != 0 {
		t.Fatalf("expected no audit problems, got %v", problems)
	}
}

func TestAuditFlagsBroadPatterns(t *testing.T) {
	filter, err := Build([]config.AllowlistEntry{
		{ID: "unanchored", Pattern: "[a-z]+"},
		{ID: "anything", Pattern: "^.*$"},
		{ID: "keywords", Keywords: []string{"alert"}},
		{ID: "angle-only", Keywords: []string{"vision"}, Exclude: "[<>]"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	problems := Audit(filter)
	joined := strings.Join(problems, "\n")
	for _, want := range []string{
		"allowlist unanchored: pattern must be anchored",
		"allowlist unanchored: accepts payload",
		"allowlist anything: accepts payload",
		"allowlist keywords: accepts payload",
		`allowlist angle-only: accepts payload "vision javascript:alert&#40;1&#41;"`,
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected problem %q in:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "allowlist anything: pattern must be anchored") {
		t.Fatalf("anchored pattern flagged:\n%s", joined)
	}
}
