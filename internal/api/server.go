// Package api exposes the BookWise REST surface over net/http.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/accounts"
	"github.com/dharsanguruparan/BookWise/internal/analytics"
	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/catalog"
	"github.com/dharsanguruparan/BookWise/internal/circulation"
	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/metrics"
	"github.com/dharsanguruparan/BookWise/internal/ratelimit"
	"github.com/dharsanguruparan/BookWise/internal/receipt"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

const maxBodyBytes = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Circulation *circulation.Service
	Catalog     *catalog.Service
	Accounts    *accounts.Service
	Analytics   *analytics.Service
	Receipts    *receipt.Materializer
	Limiter     ratelimit.Limiter
	Metrics     *metrics.Metrics
	// Ping reports whether the database is reachable.
	Ping func(ctx context.Context) error
}

// Server exposes HTTP endpoints for the library.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics.Handler())
	}
	mux.HandleFunc("/borrow", s.handleBorrowCollection)
	mux.HandleFunc("/borrow/", s.handleBorrowRoute)
	mux.HandleFunc("/receipts/", s.handleReceipt)
	mux.HandleFunc("/books", s.handleBooks)
	mux.HandleFunc("/books/", s.handleBookRoute)
	mux.HandleFunc("/users", s.handleUsers)
	mux.HandleFunc("/users/", s.handleUserRoute)
	mux.HandleFunc("/analytics/", s.admin(s.handleAnalytics))
	return s.corsMiddleware(s.loggingMiddleware(s.rateLimitMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitPath returns the non-empty segments after prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Int("status", status), zap.Error(err))
	}
}

// respondError maps err onto a status. Internal causes are logged and
// replaced with a generic message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.respondJSON(w, status, errorBody{Error: apperr.PublicMessage(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation(key + " must be a number")
	}
	return n, nil
}

func queryPage(r *http.Request) (repository.Page, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return repository.Page{}, err
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return repository.Page{}, err
	}
	return repository.Page{Page: page, Limit: limit}, nil
}

// isAdmin reports whether the request carries the configured admin token.
// Without a configured token every caller is treated as an administrator.
func (s *Server) isAdmin(r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		return true
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminToken)) == 1
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			s.respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
			return
		}
		next(w, r)
	}
}

// policyFor picks the rate-limit policy of a request. Nil means the route
// is not limited.
func policyFor(r *http.Request) *ratelimit.Policy {
	path := r.URL.Path
	switch {
	case path == "/healthz" || path == "/metrics":
		return nil
	case path == "/borrow" && r.Method == http.MethodPost,
		strings.HasPrefix(path, "/borrow/") && strings.HasSuffix(path, "/return"):
		return &ratelimit.Borrow
	case path == "/users" && r.Method == http.MethodPost:
		return &ratelimit.Auth
	case (path == "/books" || path == "/books/featured") && r.Method == http.MethodGet:
		return &ratelimit.Search
	default:
		return &ratelimit.API
	}
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := policyFor(r)
		if policy == nil || s.deps.Limiter == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		res, err := s.deps.Limiter.Allow(r.Context(), ratelimit.ClientIP(r), *policy)
		if err != nil {
			s.logger.Warn("rate limiter failed open", zap.String("policy", policy.Name), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		res.SetHeaders(w.Header())
		if !res.Allowed {
			s.deps.Metrics.RateLimited(policy.Name)
			s.respondError(w, r, apperr.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		s.deps.Metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status), elapsed)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

// routeLabel keeps metric cardinality bounded by dropping path ids.
func routeLabel(path string) string {
	parts := splitPath(path, "/")
	switch len(parts) {
	case 0:
		return "/"
	case 1:
		return "/" + parts[0]
	case 2:
		if parts[0] == "analytics" {
			return "/analytics/" + parts[1]
		}
		if parts[0] == "books" && parts[1] == "featured" {
			return "/books/featured"
		}
		return "/" + parts[0] + "/{id}"
	default:
		return "/" + parts[0] + "/{id}/" + parts[2]
	}
}
