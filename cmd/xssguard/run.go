package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/klyr/xssguard/internal/api"
	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/gateway"
	"github.com/klyr/xssguard/internal/logging"
	"github.com/klyr/xssguard/internal/observability"
	"github.com/klyr/xssguard/internal/ratelimit"
)

const (
	limiterPruneInterval = time.Minute
	limiterIdle          = 10 * time.Minute
)

func newRunCmd() *cobra.Command {
	var configPath string
	var modeOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the guard gateway and classify API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, modeOverride)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Override policy mode for all policies (enforce|shadow)")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Logging, os.Stderr)

	var (
		reg     *prometheus.Registry
		metrics *observability.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
	}

	classifier, err := buildClassifier(cfg, metrics)
	if err != nil {
		return err
	}
	defer func() { _ = classifier.Close() }()

	gw, err := gateway.New(cfg, classifier)
	if err != nil {
		return err
	}
	gw.SetLogger(logger)
	gw.SetMetrics(metrics)

	if cfg.Logging.DecisionLog != "" {
		decisionLog, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetDecisionLogger(decisionLog)
	}

	service := api.New(classifier, logger, api.Options{Workers: cfg.Classifier.Workers, Metrics: metrics})

	r := chi.NewRouter()
	r.Mount(cfg.Server.APIPrefix, service.Handler())
	r.Handle("/*", gw)

	metricsSrv := startMetricsServer(cfg, reg, metrics, logger)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			serverErr <- srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
			return
		}
		serverErr <- srv.ListenAndServe()
	}()

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneLimiter(signalCtx, gw.Limiter(), logger)

	logger.Info("xssguard listening", "addr", cfg.Server.Listen, "api", cfg.Server.APIPrefix, "routes", len(cfg.Routes))

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, reg *prometheus.Registry, metrics *observability.Metrics, logger *slog.Logger) *http.Server {
	if metrics == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	return srv
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, logger *slog.Logger) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := limiter.Prune(now, limiterIdle); removed > 0 {
				logger.Debug("pruned rate limit buckets", "removed", removed)
			}
		}
	}
}

func applyOverrides(cfg *config.Config, modeOverride string) {
	if modeOverride == "" {
		return
	}
	for name, policyCfg := range cfg.Policies {
		policyCfg.Mode = modeOverride
		cfg.Policies[name] = policyCfg
	}
}
