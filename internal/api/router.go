package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/parkercarrus/cluster-trading-strategy/internal/api/handlers"
	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// Handlers groups the endpoint handlers
type Handlers struct {
	Backtest *handlers.BacktestHandler
	Stream   *handlers.StreamHandler
	Baseline *handlers.BaselineHandler
}

// RouterOptions configures the cross-cutting middleware
type RouterOptions struct {
	Metrics     *observability.Metrics // nil → no /metrics and no request metrics
	Limiter     *RateLimiter           // nil → unlimited
	CORSOrigins []string
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Baseline artifacts (scheduler output)
	api.HandleFunc("/uploadLedger", h.Baseline.UploadLedger).Methods("GET")
	api.HandleFunc("/uploadTransactions", h.Baseline.UploadTransactions).Methods("GET")
	api.HandleFunc("/uploadMetrics", h.Baseline.UploadMetrics).Methods("GET")

	// Expensive endpoints: rate limited
	limit := func(fn http.HandlerFunc) http.Handler {
		if opts.Limiter == nil {
			return fn
		}
		return opts.Limiter.Middleware(opts.Metrics)(fn)
	}
	api.Handle("/backtest", limit(h.Backtest.GetBacktest)).Methods("GET")
	api.Handle("/backtest/", limit(h.Backtest.GetBacktest)).Methods("GET")
	r.Handle("/ws/backtest", limit(h.Stream.Stream)).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log, opts.Metrics))
	r.Use(recoveryMiddleware(log))
	r.Use(corsMiddleware(opts.CORSOrigins))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "cluster-trading-api",
	})
}

// statusRecorder captures the response code; Hijack is kept for websockets
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			if metrics != nil {
				metrics.RecordRequest(route, rec.status, time.Since(start))
			}

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware allows the dashboard origins
func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && (allowed[origin] || allowed["*"]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "*")
				w.Header().Add("Vary", "Origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}
