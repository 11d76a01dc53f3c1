package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"bil/internal/log"
	"bil/internal/metrics"
	"bil/internal/middleware/ratelimit"
	"bil/internal/middleware/security"
	"bil/internal/middleware/trace"
	"bil/internal/services"
)

// Options configures the HTTP surface.
type Options struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Metrics            *metrics.Metrics
	Logger             *log.Logger
}

// Server serves the ledger REST API.
type Server struct {
	http.Server
	svc *services.LedgerService

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	metrics          *metrics.Metrics
	logger           *log.Logger
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		svc:              svc,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		metrics:          opts.Metrics,
		logger:           logger,
		started:          time.Now(),
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	router.Use(
		trace.NewMiddleware(s.securityDetector.ExtractClientIP, opts.Metrics, logger).Middleware,
		log.Middleware(logger),
		log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) }),
		s.detectSuspicious,
		s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited),
	)
	s.routes(router)

	cors := security.NewCORS(opts.CORSAllowedOrigins)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           headers.Middleware(cors.Middleware(router)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)

	p := r.PathPrefix("/projects/{id:[0-9]+}").Subrouter()
	p.HandleFunc("", s.handleGetProject).Methods(http.MethodGet)
	p.HandleFunc("", s.handleRenameProject).Methods(http.MethodPut)
	p.HandleFunc("", s.handleDeleteProject).Methods(http.MethodDelete)
	p.HandleFunc("/restore", s.handleRestoreProject).Methods(http.MethodPost)

	p.HandleFunc("/paygroups", s.handleListPaygroups).Methods(http.MethodGet)
	p.HandleFunc("/paygroups", s.handleAddPaygroup).Methods(http.MethodPost)
	p.HandleFunc("/paygroups/{gid:[0-9]+}", s.handleRenamePaygroup).Methods(http.MethodPut)
	p.HandleFunc("/paygroups/{gid:[0-9]+}", s.handleDeletePaygroup).Methods(http.MethodDelete)

	pay := p.PathPrefix("/paygroups/{gid:[0-9]+}/payments").Subrouter()
	pay.HandleFunc("", s.handleAddPayment).Methods(http.MethodPost)
	pay.HandleFunc("/{pid:[0-9]+}", s.handleUpdatePayment).Methods(http.MethodPut)
	pay.HandleFunc("/{pid:[0-9]+}", s.handleDeletePayment).Methods(http.MethodDelete)
	pay.HandleFunc("/{pid:[0-9]+}/files", s.handleUploadAttachment).Methods(http.MethodPost)
	pay.HandleFunc("/{pid:[0-9]+}/files", s.handleGetAttachment).Methods(http.MethodGet)
	pay.HandleFunc("/{pid:[0-9]+}/files", s.handleDeleteAttachment).Methods(http.MethodDelete)
}

func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
