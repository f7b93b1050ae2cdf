// Package web implements the http server for the task list application
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"tasklist/app/metrics"
	"tasklist/app/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Store defines per-request storage operations used by handlers
type Store interface {
	ListTasks(ctx context.Context) ([]store.Task, error)
	CreateTask(ctx context.Context, name string) (store.Task, error)
	Close() error
}

// ConnectFunc opens a fresh store connection for a single request.
// The caller releases it, there is no reuse across requests.
type ConnectFunc func(ctx context.Context) (Store, error)

// Notifier delivers task creation events
type Notifier interface {
	TaskCreated(ctx context.Context, id int64, name string)
}

// Server represents the web server
type Server struct {
	connect   ConnectFunc
	notifier  Notifier // optional, nil disables notifications
	metrics   *metrics.Collector
	templates *template.Template
	version   string
}

// Config holds server configuration
type Config struct {
	Connect  ConnectFunc
	Notifier Notifier // optional
	Version  string
}

// addLimiter caps form submissions to protect the backing database
var addLimiter = tollbooth.NewLimiter(10, nil)

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Connect == nil {
		return nil, fmt.Errorf("web server initialization failed: Connect is required")
	}

	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}

	return &Server{
		connect:   cfg.Connect,
		notifier:  cfg.Notifier,
		metrics:   metrics.New(),
		templates: templates,
		version:   cfg.Version,
	}, nil
}

// Run starts the web server and blocks until the context is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("tasklist", "tasklist", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	router.With(s.metrics.Middleware("index")).HandleFunc("GET /{$}", s.handleIndex)
	router.With(s.metrics.Middleware("add"), tollbooth.HTTPMiddleware(addLimiter)).HandleFunc("POST /add", s.handleAdd)
	router.With(s.metrics.Middleware("health")).HandleFunc("GET /health", s.handleHealth)
	router.HandleFunc("GET /metrics", s.metrics.Handler)

	return router
}

// render renders a template into a buffer first so a failed render never
// produces a half-written page
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	buf := new(bytes.Buffer)
	if err := s.templates.ExecuteTemplate(buf, name, data); err != nil {
		log.Printf("[WARN] failed to execute template %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}
