// Package api exposes the HTTP interface for the conversion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/config"
	"github.com/primowork/WavForce/internal/convert"
	"github.com/primowork/WavForce/internal/metrics"
	"github.com/primowork/WavForce/internal/tool"
)

// Converter runs one conversion job end to end.
type Converter interface {
	Convert(ctx context.Context, req convert.Request) (*convert.Result, error)
}

// HealthProber reports whether the external tools are runnable.
type HealthProber interface {
	Probe(ctx context.Context) (tool.Versions, error)
}

// Server wires HTTP handlers to the conversion pipeline.
type Server struct {
	router    chi.Router
	converter Converter
	prober    HealthProber
	clock     convert.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	converter Converter,
	prober HealthProber,
	clock convert.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		converter: converter,
		prober:    prober,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/", s.info)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/api/convert", s.convert)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "WavForce is operational",
		"endpoints": map[string]string{
			"convert": "POST /api/convert",
			"health":  "GET /health",
		},
		"limits": map[string]any{
			"maxDurationMinutes": s.cfg.Convert.MaxDurationSeconds / 60,
			"maxFileSizeMB":      s.cfg.Convert.MaxDownloadMB,
		},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	versions, err := s.prober.Probe(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"services":  versions,
		"timestamp": s.clock.Now().Format(time.RFC3339),
	})
}

type convertRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := s.converter.Convert(r.Context(), convert.Request{
		URL:      req.URL,
		Filename: req.Filename,
	})
	if err != nil {
		var cerr *convert.Error
		if errors.As(err, &cerr) {
			writeError(w, cerr.HTTPStatus(), cerr.Message)
			return
		}
		s.logger.Error("conversion failed with unclassified error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Conversion failed. Please check the URL and try again.")
		return
	}

	s.stream(w, res)
}

// stream sends the converted file and then releases the job workspace. The
// workspace is released exactly once whether or not the client stays
// connected for the whole body.
func (s *Server) stream(w http.ResponseWriter, res *convert.Result) {
	finalize := func() {
		if delay := s.cfg.Convert.CleanupDelay(); delay > 0 {
			time.AfterFunc(delay, res.Finalize)
			return
		}
		res.Finalize()
	}

	f, err := os.Open(res.Path)
	if err != nil {
		finalize()
		s.logger.Error("converted file unopenable", zap.String("path", res.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error processing converted file")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", convert.SanitizeFilename(res.Filename)))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	_ = f.Close()
	finalize()
	metrics.ObserveStreamedBytes(n)
	if err != nil {
		// Client disconnects mid-body are expected; nothing to send back.
		s.logger.Warn("response stream interrupted",
			zap.Int64("bytes_sent", n), zap.Int64("bytes_total", res.Size), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
