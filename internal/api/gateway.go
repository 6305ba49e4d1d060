package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/internal/health"
	"github.com/prompt-general/answerhub/internal/ratelimit"
	"github.com/prompt-general/answerhub/pkg/models"
)

// Answerer resolves questions against the knowledge base
type Answerer interface {
	Answer(ctx context.Context, collection, question string) (*models.QuestionResponse, error)
}

// EntryStore is the slice of the knowledge store the API needs
type EntryStore interface {
	CreateEntry(ctx context.Context, entry *models.Entry) error
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error)
	CollectionStats(ctx context.Context) (*models.CollectionStats, error)
}

// Maintenance starts and observes embedding maintenance jobs
type Maintenance interface {
	Run(collection string) (*models.EmbeddingJob, error)
	JobStatus(jobID string) (*models.EmbeddingJob, error)
}

// RateLimiter reports provider-side rate limit window usage
type RateLimiter interface {
	Status() ratelimit.Status
}

// Gateway is the HTTP surface of the answering service
type Gateway struct {
	server      *http.Server
	router      *mux.Router
	answerer    Answerer
	entries     EntryStore
	maintenance Maintenance
	limiter     RateLimiter
	checker     *health.Checker
	config      config.APIConfig
	metrics     *GatewayMetrics
}

// GatewayMetrics tracks request counters per path, method and status
type GatewayMetrics struct {
	mu               sync.RWMutex
	RequestsTotal    int64            `json:"requests_total"`
	RequestsFailed   int64            `json:"requests_failed"`
	RequestsByPath   map[string]int64 `json:"requests_by_path"`
	RequestsByMethod map[string]int64 `json:"requests_by_method"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastRequest      time.Time        `json:"last_request"`
}

// NewGateway creates the HTTP gateway
func NewGateway(cfg config.APIConfig, answerer Answerer, entries EntryStore, maintenance Maintenance, limiter RateLimiter, checker *health.Checker) *Gateway {
	router := mux.NewRouter()

	g := &Gateway{
		router:      router,
		answerer:    answerer,
		entries:     entries,
		maintenance: maintenance,
		limiter:     limiter,
		checker:     checker,
		config:      cfg,
		metrics: &GatewayMetrics{
			RequestsByPath:   make(map[string]int64),
			RequestsByMethod: make(map[string]int64),
			RequestsByStatus: make(map[int]int64),
		},
	}

	g.setupRoutes()
	g.setupMiddleware()

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return g
}

func (g *Gateway) setupRoutes() {
	api := g.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/questions", g.handleAskQuestion).Methods("POST")

	entries := api.PathPrefix("/entries").Subrouter()
	entries.HandleFunc("", g.handleCreateEntry).Methods("POST")
	entries.HandleFunc("", g.handleListEntries).Methods("GET")
	entries.HandleFunc("/{id}", g.handleGetEntry).Methods("GET")

	api.HandleFunc("/collections/{collection}/embeddings", g.handleStartMaintenance).Methods("POST")
	api.HandleFunc("/jobs/{id}", g.handleJobStatus).Methods("GET")
	api.HandleFunc("/embeddings/stats", g.handleStats).Methods("GET")
	api.HandleFunc("/rate-limits", g.handleRateLimits).Methods("GET")

	api.HandleFunc("/health", g.handleHealth).Methods("GET")
	api.HandleFunc("/metrics", g.handleMetrics).Methods("GET")
}

func (g *Gateway) setupMiddleware() {
	if g.config.EnableCORS {
		c := cors.New(cors.Options{
			AllowedOrigins:   g.config.AllowedOrigins,
			AllowedMethods:   g.config.AllowedMethods,
			AllowedHeaders:   g.config.AllowedHeaders,
			AllowCredentials: true,
		})
		g.router.Use(c.Handler)
	}

	g.router.Use(g.metricsMiddleware)
}

// Start starts the HTTP server
func (g *Gateway) Start() error {
	log.Printf("Starting API gateway on %s", g.server.Addr)
	return g.server.ListenAndServe()
}

// Stop shuts the server down gracefully
func (g *Gateway) Stop(ctx context.Context) error {
	log.Printf("Stopping API gateway")
	return g.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests
func (g *Gateway) Router() http.Handler {
	return g.router
}

// Response envelope

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type APIMeta struct {
	Total   int  `json:"total,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
	HasMore bool `json:"has_more,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	writeJSONResponse(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func writeSuccessResponse(w http.ResponseWriter, data interface{}, meta *APIMeta) {
	writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func parseRequestBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// Middleware

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		g.updateMetrics(r, wrapped.statusCode)
	})
}

func (g *Gateway) updateMetrics(r *http.Request, statusCode int) {
	g.metrics.mu.Lock()
	defer g.metrics.mu.Unlock()

	g.metrics.RequestsTotal++
	g.metrics.RequestsByPath[r.URL.Path]++
	g.metrics.RequestsByMethod[r.Method]++
	g.metrics.RequestsByStatus[statusCode]++
	if statusCode >= http.StatusInternalServerError {
		g.metrics.RequestsFailed++
	}
	g.metrics.LastRequest = time.Now()
}
