package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/logging"
	"github.com/klyr/xssguard/internal/scoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	blocksTotal        *prometheus.CounterVec
	verdictsTotal      *prometheus.CounterVec
	unavailableTotal   *prometheus.CounterVec
	ratelimitHitsTotal *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	scorerDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xssguard_requests_total", Help: "Total guarded requests"},
			[]string{"route", "policy", "action", "code"},
		),
		blocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xssguard_blocks_total", Help: "Total blocked requests"},
			[]string{"route", "policy", "reason"},
		),
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xssguard_verdicts_total", Help: "Total classifier verdicts"},
			[]string{"stage", "category", "label"},
		),
		unavailableTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xssguard_unavailable_total", Help: "Total classifications that could not reach a verdict"},
			[]string{"source"},
		),
		ratelimitHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "xssguard_ratelimit_hits_total", Help: "Total rate limit hits"},
			[]string{"route", "policy", "key"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xssguard_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "policy"},
		),
		scorerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xssguard_scorer_duration_seconds",
				Help:    "Statistical scorer latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"outcome"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.blocksTotal,
		m.verdictsTotal,
		m.unavailableTotal,
		m.ratelimitHitsTotal,
		m.requestDuration,
		m.scorerDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observe records one guarded request from its decision log entry.
func (m *Metrics) Observe(decision logging.Decision, ratelimitKey string) {
	if m == nil {
		return
	}

	route := decision.RouteID
	policy := decision.Policy

	m.requestsTotal.WithLabelValues(route, policy, decision.Action, intToString(decision.StatusCode)).Inc()
	m.requestDuration.WithLabelValues(route, policy).Observe((time.Duration(decision.DurationMS) * time.Millisecond).Seconds())

	if decision.Action == "block" {
		reason := decision.Reason
		if reason == "" {
			reason = "verdict"
		}
		m.blocksTotal.WithLabelValues(route, policy, reason).Inc()
	}

	if decision.Unavailable {
		m.unavailableTotal.WithLabelValues(route).Inc()
	}

	if decision.RateLimited {
		m.ratelimitHitsTotal.WithLabelValues(route, policy, ratelimitKey).Inc()
	}
}

func (m *Metrics) ObserveVerdict(v detect.Verdict) {
	if m == nil {
		return
	}
	category := string(v.Category)
	if category == "" {
		category = "none"
	}
	m.verdictsTotal.WithLabelValues(string(v.Stage), category, string(v.Label)).Inc()
}

// ObserveUnavailable counts a failed classification outside the gateway,
// e.g. source "api".
func (m *Metrics) ObserveUnavailable(source string) {
	if m == nil {
		return
	}
	m.unavailableTotal.WithLabelValues(source).Inc()
}

// InstrumentScorer wraps s so every Score call is timed by outcome.
func InstrumentScorer(s scoring.Scorer, m *Metrics) scoring.Scorer {
	if m == nil {
		return s
	}
	return &timedScorer{inner: s, hist: m.scorerDuration}
}

type timedScorer struct {
	inner scoring.Scorer
	hist  *prometheus.HistogramVec
}

func (t *timedScorer) Score(ctx context.Context, text string) (scoring.Label, error) {
	start := time.Now()
	label, err := t.inner.Score(ctx, text)
	outcome := string(label)
	if err != nil {
		outcome = "error"
	}
	t.hist.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return label, err
}

func (t *timedScorer) Close() error {
	return scoring.Close(t.inner)
}

func intToString(code int) string {
	if code == 0 {
		return "0"
	}
	return strconv.Itoa(code)
}
