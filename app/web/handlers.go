package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"

	"tasklist/app/store"
)

// TemplateData holds data for the index page
type TemplateData struct {
	Tasks       []store.Task
	CurrentYear int
	Version     string
}

// handleIndex renders the task list page. Connection and query failures
// degrade to a plain-text "Database Error" body with a distinct status code.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := s.connect(ctx)
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	defer s.closeConn(conn)

	tasks, err := conn.ListTasks(ctx)
	if err != nil {
		s.writeDBError(w, err)
		return
	}

	data := TemplateData{
		Tasks:       tasks,
		CurrentYear: time.Now().Year(),
		Version:     s.version,
	}
	s.render(w, "index.html", data)
}

// handleAdd accepts a form submission and redirects back to the index page.
// The task field must be present; its value is stored as-is, validation is
// delegated to the storage layer.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !r.PostForm.Has("task") {
		http.Error(w, "task field required", http.StatusBadRequest)
		return
	}
	name := r.PostForm.Get("task")

	ctx := r.Context()
	conn, err := s.connect(ctx)
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	defer s.closeConn(conn)

	task, err := conn.CreateTask(ctx, name)
	if err != nil {
		s.writeDBError(w, err)
		return
	}
	log.Printf("[INFO] task %d created: %q", task.ID, task.Name)

	if s.notifier != nil {
		// detached from the request lifetime, delivery must not delay the redirect
		go s.notifier.TaskCreated(context.WithoutCancel(ctx), task.ID, task.Name)
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleHealth reports liveness unconditionally, it does not probe the database
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, rest.JSON{"status": "healthy"})
}

// writeDBError writes a plain-text database error, 502 for connection
// failures and 500 for query failures
func (s *Server) writeDBError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrConnection) {
		status = http.StatusBadGateway
	}
	log.Printf("[WARN] request failed: %v", err)
	http.Error(w, fmt.Sprintf("Database Error: %v", err), status)
}

// closeConn releases a per-request connection, logging release failures
func (s *Server) closeConn(conn Store) {
	if err := conn.Close(); err != nil {
		log.Printf("[WARN] failed to close connection: %v", err)
	}
}
