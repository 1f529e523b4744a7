package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/logging"
	"github.com/klyr/xssguard/internal/observability"
	"github.com/klyr/xssguard/internal/policy"
	"github.com/klyr/xssguard/internal/ratelimit"
)

const defaultWorkers = 8

// Classifier is the part of detect.Classifier the gateway needs.
type Classifier interface {
	Classify(ctx context.Context, raw string) (detect.Verdict, error)
}

type Gateway struct {
	router    *Router
	upstreams map[string]*url.URL
	policies  map[string]config.Policy
	proxies   map[string]*httputil.ReverseProxy

	classifier  Classifier
	workers     int
	logger      *slog.Logger
	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	limiter     *ratelimit.Limiter
}

func New(cfg *config.Config, classifier Classifier) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	upstreams := make(map[string]*url.URL, len(cfg.Upstreams))
	for _, upstream := range cfg.Upstreams {
		parsed, err := url.Parse(upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %s: %w", upstream.Name, err)
		}
		upstreams[upstream.Name] = parsed
	}

	maxTimeout := maxPolicyTimeout(cfg)
	transport := newTransport(maxTimeout)

	proxies := make(map[string]*httputil.ReverseProxy, len(upstreams))
	for name, target := range upstreams {
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			var maxErr *http.MaxBytesError
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			case errors.As(err, &maxErr):
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			default:
				http.Error(w, "upstream error", http.StatusBadGateway)
			}
		}
		proxies[name] = proxy
	}

	policies := make(map[string]config.Policy, len(cfg.Policies))
	for name, policyCfg := range cfg.Policies {
		policies[name] = policyCfg
	}

	workers := cfg.Classifier.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Gateway{
		router:     router,
		upstreams:  upstreams,
		policies:   policies,
		proxies:    proxies,
		classifier: classifier,
		workers:    workers,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		limiter:    ratelimit.NewLimiter(),
	}, nil
}

func (g *Gateway) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

// Limiter exposes the per-client buckets so the server can prune them.
func (g *Gateway) Limiter() *ratelimit.Limiter {
	return g.limiter
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, policyCfg, proxy, ok := g.resolveRoute(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	decision := logging.Decision{
		Timestamp: time.Now().UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
		RouteID:   route.ID,
		Policy:    route.Policy,
		Mode:      policyCfg.Mode,
	}

	if exceedsHeaderLimit(r.Header, policyCfg.Limits.MaxHeaderBytes) {
		g.reject(w, decision, start, http.StatusRequestHeaderFieldsTooLarge, "limits", "request headers too large", "")
		return
	}

	if policyCfg.Limits.MaxBodyBytes > 0 {
		if r.ContentLength > policyCfg.Limits.MaxBodyBytes {
			g.reject(w, decision, start, http.StatusRequestEntityTooLarge, "limits", "request body too large", "")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, policyCfg.Limits.MaxBodyBytes)
	}

	ctx, cancel := requestContext(r.Context(), policyCfg.Limits.Timeout)
	defer cancel()

	body, bodyErr := readBodyIfNeeded(r, policyCfg)
	if bodyErr != nil {
		g.reject(w, decision, start, http.StatusRequestEntityTooLarge, "limits", "request body too large", "")
		return
	}

	ratelimitLabel := ""
	if policyCfg.RateLimit.Enabled {
		ratelimitLabel = policyCfg.RateLimit.Key
		key := ratelimit.Key(policyCfg.RateLimit.Key, decision.ClientIP, r.URL.Path)
		if !g.limiter.Allow(key, policyCfg.RateLimit.RPS, policyCfg.RateLimit.Burst, time.Now()) {
			decision.RateLimited = true
			g.reject(w, decision, start, rateLimitStatus(policyCfg.RateLimit.StatusCode), "ratelimit", "rate limit exceeded", ratelimitLabel)
			return
		}
	}

	fields := extractFields(r, body, policyCfg.Fields)
	outcome := g.classify(ctx, fields)
	decision.Fields = outcome.Fields
	decision.Findings = mapFindings(outcome.Findings)
	decision.Unavailable = outcome.Unavailable

	action, shouldBlock := policy.DecideAction(policyCfg.Mode, outcome)
	decision.Action = string(action)
	if shouldBlock {
		if action == policy.ActionUnavailable {
			decision.Reason = "unavailable"
			decision.StatusCode = unavailableStatus(policyCfg)
			g.logger.Error("classification unavailable", "request_id", decision.RequestID, "route", route.ID, "fields", outcome.Fields)
			g.writeDecision(decision, start, 0, ratelimitLabel)
			http.Error(w, "classification unavailable", decision.StatusCode)
			return
		}
		decision.Reason = "verdict"
		decision.StatusCode = blockStatus(policyCfg)
		g.logger.Warn("blocked request", "request_id", decision.RequestID, "route", route.ID, "findings", len(decision.Findings))
		g.writeDecision(decision, start, 0, ratelimitLabel)
		http.Error(w, policyCfg.Actions.BlockBody, decision.StatusCode)
		return
	}
	if action == policy.ActionShadow {
		g.logger.Info("shadow match", "request_id", decision.RequestID, "route", route.ID, "findings", len(decision.Findings), "unavailable", outcome.Unavailable)
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	req := r.WithContext(ctx)
	upstreamStart := time.Now()
	proxy.ServeHTTP(rec, req)
	decision.StatusCode = rec.status
	g.writeDecision(decision, start, time.Since(upstreamStart).Milliseconds(), ratelimitLabel)
}

// classify runs every field through the classifier on a bounded pool. Each
// field keeps its own result so one failing field does not hide a malicious
// one.
func (g *Gateway) classify(ctx context.Context, fields []field) policy.Outcome {
	outcome := policy.Outcome{Fields: len(fields)}
	if len(fields) == 0 {
		return outcome
	}

	verdicts := make([]detect.Verdict, len(fields))
	errs := make([]error, len(fields))

	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i, f := range fields {
		eg.Go(func() error {
			verdicts[i], errs[i] = g.classifier.Classify(ctx, f.Value)
			return nil
		})
	}
	_ = eg.Wait()

	for i, f := range fields {
		if errs[i] != nil {
			outcome.Unavailable = true
			g.logger.Debug("field classification failed", "field", f.Name, "err", errs[i])
			continue
		}
		g.metrics.ObserveVerdict(verdicts[i])
		if verdicts[i].Malicious() {
			outcome.Findings = append(outcome.Findings, policy.Finding{Field: f.Name, Verdict: verdicts[i]})
		}
	}
	return outcome
}

func (g *Gateway) reject(w http.ResponseWriter, decision logging.Decision, start time.Time, status int, reason, message, ratelimitLabel string) {
	decision.Action = string(policy.ActionBlock)
	decision.Reason = reason
	decision.StatusCode = status
	g.writeDecision(decision, start, 0, ratelimitLabel)
	http.Error(w, message, status)
}

func (g *Gateway) resolveRoute(r *http.Request) (Route, config.Policy, *httputil.ReverseProxy, bool) {
	route, ok := g.router.Match(r)
	if !ok {
		return Route{}, config.Policy{}, nil, false
	}

	policyCfg, ok := g.policies[route.Policy]
	if !ok {
		return Route{}, config.Policy{}, nil, false
	}
	proxy, ok := g.proxies[route.Upstream]
	if !ok {
		return Route{}, config.Policy{}, nil, false
	}

	return route, policyCfg, proxy, true
}

func (g *Gateway) writeDecision(decision logging.Decision, start time.Time, upstreamMS int64, ratelimitKey string) {
	decision.DurationMS = time.Since(start).Milliseconds()
	decision.UpstreamMS = upstreamMS
	if g.decisionLog != nil {
		if err := g.decisionLog.Write(decision); err != nil {
			g.logger.Error("decision log write failed", "err", err)
		}
	}
	g.metrics.Observe(decision, ratelimitKey)
}

func mapFindings(findings []policy.Finding) []logging.FieldVerdict {
	if len(findings) == 0 {
		return nil
	}
	out := make([]logging.FieldVerdict, len(findings))
	for i, f := range findings {
		evidence := redactSecrets(f.Verdict.Evidence)
		if isSensitiveField(f.Field) {
			evidence = "<redacted>"
		}
		out[i] = logging.FieldVerdict{
			Field:    f.Field,
			Decider:  f.Verdict.Decider(),
			Category: string(f.Verdict.Category),
			RuleID:   f.Verdict.RuleID,
			Evidence: evidence,
		}
	}
	return out
}

func isSensitiveField(name string) bool {
	name = strings.ToLower(name)
	switch name {
	case "header.authorization", "header.cookie", "header.set-cookie":
		return true
	}
	return strings.Contains(name, "password") || strings.Contains(name, "passwd") || strings.Contains(name, "secret") || strings.Contains(name, "token")
}

var (
	secretKVPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|api[_-]?key|secret)\s*=\s*([^\s&]+)`) // key=value
	secretBearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]+=*`)
)

func redactSecrets(input string) string {
	if input == "" {
		return input
	}
	redacted := secretKVPattern.ReplaceAllString(input, `$1=<redacted>`)
	redacted = secretBearerPattern.ReplaceAllString(redacted, "bearer <redacted>")
	return redacted
}

func readBodyIfNeeded(r *http.Request, policyCfg config.Policy) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if !policyCfg.Fields.Form && !policyCfg.Fields.JSON {
		return nil, nil
	}
	if r.ContentLength == 0 {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if policyCfg.Limits.MaxBodyBytes > 0 && int64(len(body)) > policyCfg.Limits.MaxBodyBytes {
		return nil, errors.New("body exceeds limit")
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	return body, nil
}

func requestContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func rateLimitStatus(code int) int {
	if code <= 0 {
		return http.StatusTooManyRequests
	}
	return code
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func blockStatus(policyCfg config.Policy) int {
	if policyCfg.Actions.BlockStatusCode > 0 {
		return policyCfg.Actions.BlockStatusCode
	}
	return http.StatusForbidden
}

func unavailableStatus(policyCfg config.Policy) int {
	if policyCfg.Actions.UnavailableStatusCode > 0 {
		return policyCfg.Actions.UnavailableStatusCode
	}
	return http.StatusServiceUnavailable
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func exceedsHeaderLimit(headers http.Header, maxBytes int64) bool {
	if maxBytes <= 0 {
		return false
	}

	var total int64
	for name, values := range headers {
		for _, value := range values {
			total += int64(len(name) + len(value) + 2)
			if total > maxBytes {
				return true
			}
		}
	}

	return total > maxBytes
}

func maxPolicyTimeout(cfg *config.Config) time.Duration {
	var max time.Duration
	for _, policyCfg := range cfg.Policies {
		if policyCfg.Limits.Timeout > max {
			max = policyCfg.Limits.Timeout
		}
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return max
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
