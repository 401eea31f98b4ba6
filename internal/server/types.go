package server

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// classifierPool defines the methods needed by the server from a classifier pool.
type classifierPool interface {
	ClassifyTopK(ctx context.Context, img image.Image, orientation, k int) ([]classifier.Recognition, error)
	Labels() []string
	Geometry() classifier.Geometry
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pool        classifierPool
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	modelsDir   string
	version     string
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	ModelsDir       string
	Version         string
	RateLimit       RateLimitConfig
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Labels  int    `json:"labels"`
	Input   string `json:"input,omitempty"`
}

type ModelsResponse struct {
	Models []models.ModelInfo `json:"models"`
	Count  int                `json:"count"`
}

// ClassifyResponse is returned by POST /classify and carried in completed
// WebSocket responses.
type ClassifyResponse struct {
	Success      bool                     `json:"success"`
	RequestID    string                   `json:"request_id,omitempty"`
	Results      []classifier.Recognition `json:"results,omitempty"`
	Orientation  int                      `json:"orientation"`
	Width        int                      `json:"width,omitempty"`
	Height       int                      `json:"height,omitempty"`
	ProcessingMs int64                    `json:"processing_ms"`
	Error        string                   `json:"error,omitempty"`
}

// NewServer creates a server around an already loaded classifier pool. The
// server takes ownership of the pool and closes it in Close.
func NewServer(config Config, pool classifierPool) (*Server, error) {
	if pool == nil {
		return nil, errors.New("classifier pool is required")
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}

	s := &Server{
		pool:        pool,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		modelsDir:   config.ModelsDir,
		version:     config.Version,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/classify", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.classifyHandler))))
	// The upgrade needs the raw ResponseWriter, so no CORS wrapper here.
	mux.HandleFunc("/ws/classify", s.requestIDMiddleware(s.rateLimitMiddleware(s.classifyWebSocketHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

// PruneIdleClients drops rate limiter state of clients not seen for idle,
// checking every interval until ctx is done. It returns at once when rate
// limiting is disabled.
func (s *Server) PruneIdleClients(ctx context.Context, interval, idle time.Duration) {
	if s.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(idle); n > 0 {
				slog.Debug("Pruned idle rate limit clients", "removed", n)
			}
		}
	}
}

func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}
