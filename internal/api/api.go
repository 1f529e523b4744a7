package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/observability"
)

const (
	defaultMaxBodyBytes = 1 << 20
	maxBatch            = 1000
)

// Classifier is the part of detect.Classifier served over HTTP.
type Classifier interface {
	Classify(ctx context.Context, raw string) (detect.Verdict, error)
	ClassifyAll(ctx context.Context, inputs []string, workers int) ([]detect.Verdict, error)
}

// Service exposes the classifier as a small JSON API.
type Service struct {
	classifier   Classifier
	logger       *slog.Logger
	metrics      *observability.Metrics
	workers      int
	maxBodyBytes int64
}

type Options struct {
	Workers      int
	MaxBodyBytes int64
	Metrics      *observability.Metrics
}

func New(classifier Classifier, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Service{
		classifier:   classifier,
		logger:       logger,
		metrics:      opts.Metrics,
		workers:      opts.Workers,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// RegisterHTTP registers the API endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Post("/classify", s.handleClassify)
	r.Post("/classify/batch", s.handleBatch)
}

// Handler returns a router serving the API at its root.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterHTTP(r)
	return r
}

type classifyRequest struct {
	Text *string `json:"text"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type verdictResponse struct {
	detect.Verdict
	Decider string `json:"decider"`
}

type batchResponse struct {
	Verdicts []verdictResponse `json:"verdicts"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	verdict, err := s.classifier.Classify(r.Context(), *req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.ObserveVerdict(verdict)
	writeJSON(w, http.StatusOK, toResponse(verdict))
}

func (s *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Texts) > maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many texts")
		return
	}

	verdicts, err := s.classifier.ClassifyAll(r.Context(), req.Texts, s.workers)
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := batchResponse{Verdicts: make([]verdictResponse, len(verdicts))}
	for i, verdict := range verdicts {
		s.metrics.ObserveVerdict(verdict)
		resp.Verdicts[i] = toResponse(verdict)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Service) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, detect.ErrUnavailable) {
		s.metrics.ObserveUnavailable("api")
		s.logger.Error("classification unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "classification unavailable")
		return
	}
	s.logger.Error("classification failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func toResponse(v detect.Verdict) verdictResponse {
	return verdictResponse{Verdict: v, Decider: v.Decider()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
