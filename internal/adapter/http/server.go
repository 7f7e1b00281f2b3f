package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fixora/auditreport/internal/infra/auth"
	"github.com/fixora/auditreport/internal/infra/logger"
	"github.com/fixora/auditreport/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	addr   string
	logger logger.Logger
	server *http.Server
}

// ServerConfig represents server configuration
type ServerConfig struct {
	// Host is the listen address; empty listens on every interface
	Host             string
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	AllowedOrigins   []string
	AllowCredentials bool
	Version          string
}

// Dependencies are the optional collaborators of the router.
// A nil Verifier forwards tokens unverified and a nil Limiter disables rate limiting.
type Dependencies struct {
	Verifier auth.TokenVerifier
	Limiter  ports.RateLimiter
	Logger   logger.Logger
}

// NewRouter builds the API router
func NewRouter(config ServerConfig, reportService ReportService, deps Dependencies) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	router := mux.NewRouter()
	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(log))
	router.Use(recoveryMiddleware(log))
	router.Use(corsMiddleware(config.AllowedOrigins, config.AllowCredentials))
	if deps.Limiter != nil {
		router.Use(NewRateLimitMiddleware(deps.Limiter, log).RateLimit)
	}

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccessResponse(w, http.StatusOK, "ok", map[string]interface{}{
			"version": config.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	if deps.Verifier != nil {
		api.Use(NewAuthMiddleware(deps.Verifier, log).RequireAuth)
	} else {
		api.Use(ForwardToken)
	}
	// mux only runs middleware on matched routes; let preflight requests match
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	NewReportHandler(reportService).RegisterRoutes(api)

	return router
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, reportService ReportService, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	addr := net.JoinHostPort(config.Host, config.Port)

	return &Server{
		addr:   addr,
		logger: log,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(config, reportService, deps),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
