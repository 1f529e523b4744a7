package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klyr/xssguard/internal/allowlist"
	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/normalize"
	"github.com/klyr/xssguard/internal/rules"
	"github.com/klyr/xssguard/internal/scoring"
)

var (
	// ErrConfiguration means the classifier could not be built.
	ErrConfiguration = errors.New("classifier configuration")
	// ErrUnavailable means a verdict could not be reached for one input.
	ErrUnavailable = errors.New("classification unavailable")
)

const defaultWorkers = 8

type Options struct {
	Normalize     normalize.Options
	ScorerTimeout time.Duration
	Workers       int
}

// Classifier runs the detection pipeline. It holds only read-only state and
// is safe for concurrent use.
type Classifier struct {
	allowlist *allowlist.Filter
	engine    *rules.Engine
	scorer    scoring.Scorer
	opts      Options
}

func New(filter *allowlist.Filter, engine *rules.Engine, scorer scoring.Scorer, opts Options) (*Classifier, error) {
	switch {
	case filter == nil:
		return nil, fmt.Errorf("%w: allowlist is required", ErrConfiguration)
	case engine == nil || engine.Len() == 0:
		return nil, fmt.Errorf("%w: signature table is required", ErrConfiguration)
	case scorer == nil:
		return nil, fmt.Errorf("%w: scorer is required", ErrConfiguration)
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Classifier{allowlist: filter, engine: engine, scorer: scorer, opts: opts}, nil
}

type BuildOption func(*buildOptions)

type buildOptions struct {
	scorer scoring.Scorer
	wrap   []func(scoring.Scorer) scoring.Scorer
}

// WithScorer skips the model loader and uses scorer instead.
func WithScorer(scorer scoring.Scorer) BuildOption {
	return func(o *buildOptions) { o.scorer = scorer }
}

// WrapScorer decorates the loaded scorer, e.g. with metrics.
func WrapScorer(wrap func(scoring.Scorer) scoring.Scorer) BuildOption {
	return func(o *buildOptions) { o.wrap = append(o.wrap, wrap) }
}

// Build compiles the classifier section of cfg. Every failure wraps
// ErrConfiguration.
func Build(cfg *config.Config, options ...BuildOption) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfiguration)
	}
	var bo buildOptions
	for _, opt := range options {
		opt(&bo)
	}

	cl := cfg.Classifier
	engine, err := rules.BuildEngine(cl.Signatures, cfg.BaseDir())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	filter, err := allowlist.Build(cl.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if problems := allowlist.Audit(filter); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}

	scorer := bo.scorer
	if scorer == nil {
		scorer, err = scoring.Load(cl.Scorer, cfg.BaseDir())
		if err != nil {
			return nil, fmt.Errorf("%w: load scorer: %w", ErrConfiguration, err)
		}
	}
	for _, wrap := range bo.wrap {
		scorer = wrap(scorer)
	}

	return New(filter, engine, scorer, Options{
		Normalize:     normalize.Options{FoldCompatibility: cl.Normalize.FoldCompatibility},
		ScorerTimeout: cl.Scorer.Timeout,
		Workers:       cl.Workers,
	})
}

// Classify decides whether raw is safe. The first stage to reach a decision
// wins: allowlist, raw escape signatures, normalized content signatures, and
// finally the scorer.
func (c *Classifier) Classify(ctx context.Context, raw string) (Verdict, error) {
	if id, ok := c.allowlist.KnownSafe(raw); ok {
		return Verdict{Label: scoring.Safe, Stage: StageAllowlist, RuleID: id}, nil
	}

	if match, ok := c.engine.Match(raw, rules.StageRaw); ok {
		return signatureVerdict(match), nil
	}

	normalized := normalize.Apply(raw, c.opts.Normalize).Normalized
	if match, ok := c.engine.Match(normalized, rules.StageNormalized); ok {
		return signatureVerdict(match), nil
	}

	label, err := c.score(ctx, normalized)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Label: label, Stage: StageStatistical}, nil
}

func (c *Classifier) ClassifyValue(ctx context.Context, v any) (Verdict, error) {
	return c.Classify(ctx, normalize.Coerce(v))
}

func (c *Classifier) IsMalicious(ctx context.Context, raw string) (bool, error) {
	verdict, err := c.Classify(ctx, raw)
	if err != nil {
		return false, err
	}
	return verdict.Malicious(), nil
}

func (c *Classifier) IsSafe(ctx context.Context, raw string) (bool, error) {
	verdict, err := c.Classify(ctx, raw)
	if err != nil {
		return false, err
	}
	return !verdict.Malicious(), nil
}

// ClassifyAll classifies inputs on at most workers goroutines and returns
// verdicts in input order. The first error cancels the rest of the batch.
func (c *Classifier) ClassifyAll(ctx context.Context, inputs []string, workers int) ([]Verdict, error) {
	if workers <= 0 {
		workers = c.opts.Workers
	}
	verdicts := make([]Verdict, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, input := range inputs {
		g.Go(func() error {
			verdict, err := c.Classify(gctx, input)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			verdicts[i] = verdict
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// Close releases the scorer.
func (c *Classifier) Close() error {
	return scoring.Close(c.scorer)
}

func (c *Classifier) score(ctx context.Context, text string) (scoring.Label, error) {
	if c.opts.ScorerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ScorerTimeout)
		defer cancel()
	}

	type result struct {
		label scoring.Label
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("scorer panic: %v", r)}
			}
		}()
		label, err := c.scorer.Score(ctx, text)
		done <- result{label: label, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, r.err)
		}
		if !r.label.Valid() {
			return "", fmt.Errorf("%w: scorer returned label %q", ErrUnavailable, r.label)
		}
		return r.label, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}
