package report

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/klyr/xssguard/internal/logging"
)

// Summary aggregates a decision log. Unavailable counts requests where at
// least one field could not be classified, whatever the resulting action.
// Findings counts malicious field verdicts across all requests.
type Summary struct {
	Total         int            `json:"total"`
	Allowed       int            `json:"allowed"`
	Blocked       int            `json:"blocked"`
	Shadowed      int            `json:"shadowed"`
	Unavailable   int            `json:"unavailable"`
	RateLimited   int            `json:"rate_limited"`
	Findings      int            `json:"findings"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	TopRules      []CountItem    `json:"top_rules"`
	TopCategories []CountItem    `json:"top_categories"`
	TopFields     []CountItem    `json:"top_fields"`
	Deciders      []CountItem    `json:"deciders"`
	TopRateLimit  []CountItem    `json:"top_rate_limits"`
	Latency       LatencySummary `json:"latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.Decision, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return r.ReadFrom(file)
}

// ReadFrom parses JSONL decisions from src, skipping blank lines.
func (r *Reader) ReadFrom(src io.Reader) ([]logging.Decision, error) {
	var decisions []logging.Decision
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var d logging.Decision
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("decision log line %d: %w", line, err)
		}
		if !r.Since.IsZero() && d.Timestamp.Before(r.Since) {
			continue
		}
		decisions = append(decisions, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func Summarize(decisions []logging.Decision) Summary {
	var summary Summary
	if len(decisions) == 0 {
		return summary
	}

	summary.Start = decisions[0].Timestamp
	summary.End = decisions[0].Timestamp

	rules := counter{}
	categories := counter{}
	fields := counter{}
	deciders := counter{}
	clients := counter{}
	latencies := make([]int64, 0, len(decisions))

	for _, d := range decisions {
		summary.Total++
		if d.Timestamp.Before(summary.Start) {
			summary.Start = d.Timestamp
		}
		if d.Timestamp.After(summary.End) {
			summary.End = d.Timestamp
		}

		switch d.Action {
		case "allow":
			summary.Allowed++
		case "block":
			summary.Blocked++
		case "shadow":
			summary.Shadowed++
		}
		if d.Unavailable {
			summary.Unavailable++
		}
		if d.RateLimited {
			summary.RateLimited++
			clients.add(d.ClientIP)
		}

		for _, finding := range d.Findings {
			summary.Findings++
			rules.add(finding.RuleID)
			categories.add(finding.Category)
			fields.add(finding.Field)
			deciders.add(finding.Decider)
		}
		latencies = append(latencies, d.DurationMS)
	}

	summary.Deciders = deciders.top(0)
	summary.TopCategories = categories.top(5)
	summary.TopRules = rules.top(5)
	summary.TopFields = fields.top(5)
	summary.TopRateLimit = clients.top(5)
	summary.Latency = latencySummary(latencies)
	return summary
}

// counter tallies non-empty keys.
type counter map[string]int

func (c counter) add(key string) {
	if key != "" {
		c[key]++
	}
}

// top returns the n most frequent keys, ties broken by key. n <= 0 keeps all.
func (c counter) top(n int) []CountItem {
	if len(c) == 0 {
		return nil
	}
	items := make([]CountItem, 0, len(c))
	for key, count := range c {
		items = append(items, CountItem{Key: key, Count: count})
	}
	slices.SortFunc(items, func(a, b CountItem) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return strings.Compare(a.Key, b.Key)
	})
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func latencySummary(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return LatencySummary{
		P50: nearestRank(sorted, 0.50),
		P95: nearestRank(sorted, 0.95),
		P99: nearestRank(sorted, 0.99),
	}
}

// nearestRank returns the smallest value with at least p of the sample at or
// below it.
func nearestRank(sorted []int64, p float64) float64 {
	rank := int(math.Ceil(p * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return float64(sorted[rank-1])
}

// group is one ranked breakdown of the findings.
type group struct {
	title string
	label string
	items []CountItem
}

func findingGroups(summary Summary) []group {
	return []group{
		{title: "Deciders", label: "Decider", items: summary.Deciders},
		{title: "Top categories", label: "Category", items: summary.TopCategories},
		{title: "Top signatures", label: "Signature", items: summary.TopRules},
		{title: "Top fields", label: "Field", items: summary.TopFields},
	}
}

func share(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requests: %d (allow %d, block %d, shadow %d)\n", summary.Total, summary.Allowed, summary.Blocked, summary.Shadowed)
	fmt.Fprintf(&b, "Unavailable: %d\n", summary.Unavailable)
	fmt.Fprintf(&b, "Rate limited: %d\n", summary.RateLimited)
	if !summary.Start.IsZero() {
		fmt.Fprintf(&b, "Window: %s to %s\n", summary.Start.UTC().Format(time.RFC3339), summary.End.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	fmt.Fprintf(&b, "\nFindings: %d\n", summary.Findings)
	for _, g := range findingGroups(summary) {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s:\n", g.title)
		for _, item := range g.items {
			fmt.Fprintf(&b, "    %-24s %5d  %5.1f%%\n", item.Key, item.Count, share(item.Count, summary.Findings))
		}
	}

	if len(summary.TopRateLimit) > 0 {
		b.WriteString("\nRate-limited clients:\n")
		for _, item := range summary.TopRateLimit {
			fmt.Fprintf(&b, "  %-24s %5d\n", item.Key, item.Count)
		}
	}
	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# xssguard Report\n\n")
	b.WriteString("| Requests | Allowed | Blocked | Shadowed | Unavailable | Rate limited |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n",
		summary.Total, summary.Allowed, summary.Blocked, summary.Shadowed, summary.Unavailable, summary.RateLimited)
	fmt.Fprintf(&b, "Latency p50/p95/p99: %.0f/%.0f/%.0f ms\n\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	fmt.Fprintf(&b, "## Findings (%d)\n\n", summary.Findings)
	for _, g := range findingGroups(summary) {
		fmt.Fprintf(&b, "### %s\n\n", g.title)
		if len(g.items) == 0 {
			b.WriteString("_none_\n\n")
			continue
		}
		fmt.Fprintf(&b, "| %s | Count | Share |\n|---|---:|---:|\n", g.label)
		for _, item := range g.items {
			fmt.Fprintf(&b, "| `%s` | %d | %.1f%% |\n", item.Key, item.Count, share(item.Count, summary.Findings))
		}
		b.WriteString("\n")
	}

	if len(summary.TopRateLimit) > 0 {
		b.WriteString("## Rate-limited clients\n\n| Client | Count |\n|---|---:|\n")
		for _, item := range summary.TopRateLimit {
			fmt.Fprintf(&b, "| %s | %d |\n", item.Key, item.Count)
		}
	}
	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

// WriteOutput writes content to path, or to w when path is empty.
func WriteOutput(w io.Writer, path string, content []byte) error {
	if path == "" {
		_, err := w.Write(content)
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
