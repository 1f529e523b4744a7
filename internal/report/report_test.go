package report

import (
	"strings"
	"testing"
	"time"

	"github.com/klyr/xssguard/internal/logging"
)

func TestSummarize(t *testing.T) {
	decisions := []logging.Decision{
		{Timestamp: time.Unix(0, 0), Action: "allow", DurationMS: 10},
		{Timestamp: time.Unix(1, 0), Action: "block", DurationMS: 30, RateLimited: true, ClientIP: "1.1.1.1"},
		{Timestamp: time.Unix(2, 0), Action: "block", DurationMS: 20, Findings: []logging.FieldVerdict{
			{Field: "form.bio", Decider: "signature:tag", Category: "tag", RuleID: "tag-open"},
			{Field: "query.q", Decider: "statistical"},
		}},
		{Timestamp: time.Unix(3, 0), Action: "shadow", DurationMS: 15, Findings: []logging.FieldVerdict{
			{Field: "form.bio", Decider: "signature:event-handler", Category: "event-handler", RuleID: "event-handler"},
		}},
		{Timestamp: time.Unix(4, 0), Action: "unavailable", Unavailable: true, DurationMS: 40},
	}

	summary := Summarize(decisions)
	if summary.Total != 5 {
		t.Fatalf("expected total 5, got %d", summary.Total)
	}
	if summary.Allowed != 1 || summary.Blocked != 2 || summary.Shadowed != 1 || summary.Unavailable != 1 {
		t.Fatalf("unexpected action counts %+v", summary)
	}
	if summary.RateLimited != 1 || len(summary.TopRateLimit) != 1 || summary.TopRateLimit[0].Key != "1.1.1.1" {
		t.Fatalf("unexpected rate limit counts %+v", summary.TopRateLimit)
	}
	if len(summary.TopRules) != 2 || summary.TopRules[0].Key != "event-handler" {
		t.Fatalf("unexpected top rules %+v", summary.TopRules)
	}
	if len(summary.TopFields) != 2 || summary.TopFields[0].Key != "form.bio" || summary.TopFields[0].Count != 2 {
		t.Fatalf("unexpected top fields %+v", summary.TopFields)
	}
	if summary.Findings != 3 {
		t.Fatalf("expected 3 findings, got %d", summary.Findings)
	}
	if len(summary.Deciders) != 3 {
		t.Fatalf("expected 3 deciders, got %+v", summary.Deciders)
	}
	if !summary.Start.Equal(time.Unix(0, 0)) || !summary.End.Equal(time.Unix(4, 0)) {
		t.Fatalf("unexpected window %s - %s", summary.Start, summary.End)
	}
	if summary.Latency.P50 != 20 || summary.Latency.P95 != 40 || summary.Latency.P99 != 40 {
		t.Fatalf("unexpected latency %+v", summary.Latency)
	}
}

func TestReaderReadFrom(t *testing.T) {
	input := strings.Join([]string{
		`{"ts":"2024-01-01T00:00:00Z","action":"allow"}`,
		``,
		`{"ts":"2024-02-01T00:00:00Z","action":"block","findings":[{"field":"query.q","decider":"statistical"}]}`,
	}, "\n")

	reader := &Reader{Since: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	decisions, err := reader.ReadFrom(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Action != "block" || len(decisions[0].Findings) != 1 {
		t.Fatalf("unexpected decisions %+v", decisions)
	}

	if _, err := (&Reader{}).ReadFrom(strings.NewReader("{not json")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}

func TestRenderers(t *testing.T) {
	summary := Summary{
		Total:         2,
		Blocked:       1,
		Unavailable:   1,
		Findings:      2,
		Deciders:      []CountItem{{Key: "signature:tag", Count: 1}, {Key: "statistical", Count: 1}},
		TopCategories: []CountItem{{Key: "tag", Count: 1}},
	}

	text := RenderText(summary)
	for _, want := range []string{"Unavailable: 1", "Findings: 2", "Deciders:", "50.0%"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Top fields") || strings.Contains(text, "Rate-limited clients") {
		t.Fatalf("expected empty groups to be omitted:\n%s", text)
	}

	md := RenderMarkdown(summary)
	if !strings.HasPrefix(md, "# xssguard Report") {
		t.Fatalf("unexpected markdown title:\n%s", md)
	}
	for _, want := range []string{"## Findings (2)", "### Top categories", "| `tag` | 1 | 50.0% |", "### Top fields\n\n_none_"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown report missing %q:\n%s", want, md)
		}
	}
	if _, err := RenderJSON(summary); err != nil {
		t.Fatalf("expected json render ok: %v", err)
	}
}

func TestRenderEmptySummary(t *testing.T) {
	text := RenderText(Summarize(nil))
	if strings.Contains(text, "Window:") || !strings.Contains(text, "Findings: 0") {
		t.Fatalf("unexpected empty report:\n%s", text)
	}
}
