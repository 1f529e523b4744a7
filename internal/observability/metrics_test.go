package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/logging"
	"github.com/klyr/xssguard/internal/rules"
	"github.com/klyr/xssguard/internal/scoring"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	decision := logging.Decision{
		RouteID:     "route-1",
		Policy:      "default",
		Action:      "block",
		Reason:      "ratelimit",
		StatusCode:  429,
		DurationMS:  12,
		RateLimited: true,
	}
	metrics.Observe(decision, "ip")
	metrics.Observe(logging.Decision{RouteID: "route-1", Policy: "default", Action: "block", StatusCode: 503, Unavailable: true}, "")
	metrics.ObserveVerdict(detect.Verdict{Label: scoring.Malicious, Stage: detect.StageSignature, Category: rules.CategoryTag})
	metrics.ObserveVerdict(detect.Verdict{Label: scoring.Safe, Stage: detect.StageAllowlist})
	metrics.ObserveUnavailable("api")

	if got := counterSum(t, reg, "xssguard_requests_total"); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := counterSum(t, reg, "xssguard_blocks_total"); got != 2 {
		t.Fatalf("expected 2 blocks, got %v", got)
	}
	if got := counterSum(t, reg, "xssguard_verdicts_total"); got != 2 {
		t.Fatalf("expected 2 verdicts, got %v", got)
	}
	if got := counterSum(t, reg, "xssguard_unavailable_total"); got != 2 {
		t.Fatalf("expected 2 unavailable, got %v", got)
	}
	if got := counterSum(t, reg, "xssguard_ratelimit_hits_total"); got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %v", got)
	}
}

func TestInstrumentScorer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	calls := 0
	inner := scoring.Func(func(_ context.Context, text string) (scoring.Label, error) {
		calls++
		if text == "fail" {
			return "", errors.New("offline")
		}
		return scoring.Safe, nil
	})
	scorer := InstrumentScorer(inner, metrics)

	if label, err := scorer.Score(context.Background(), "ok"); err != nil || label != scoring.Safe {
		t.Fatalf("unexpected result %s %v", label, err)
	}
	if _, err := scorer.Score(context.Background(), "fail"); err == nil {
		t.Fatalf("expected error to pass through")
	}
	if calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", calls)
	}
	if err := scoring.Close(scorer); err != nil {
		t.Fatalf("Close: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var samples uint64
	for _, family := range families {
		if family.GetName() != "xssguard_scorer_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
	}
	if samples != 2 {
		t.Fatalf("expected 2 scorer samples, got %d", samples)
	}

	if InstrumentScorer(inner, nil) == nil {
		t.Fatalf("expected passthrough without metrics")
	}
}

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
