// Package http serves the rendered map documents, run history and the
// health, readiness and metrics endpoints.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/scheduler"
)

// Maps resolves catalog pipelines to their rendered documents.
type Maps interface {
	Catalog() *config.Catalog
	ArtifactPath(p config.Pipeline) string
	Running(name string) bool
}

// RunHistory lists recent runs.
type RunHistory interface {
	Recent(ctx context.Context, pipeline string, limit int) ([]domain.Run, error)
}

// Schedule lists upcoming scheduled runs.
type Schedule interface {
	Upcoming() []scheduler.Upcoming
}

// Options wires a Server. History and Schedule are optional.
type Options struct {
	Addr     string
	Ready    sharedobs.ReadinessChecker
	Maps     Maps
	History  RunHistory
	Schedule Schedule
	Logger   *slog.Logger
}

// Server exposes the map routes plus /healthz, /readyz, /metrics and /runs.
type Server struct {
	httpServer *http.Server
	maps       Maps
	history    RunHistory
	schedule   Schedule
	logger     *slog.Logger
}

// NewServer creates the HTTP server. Responses are gzip-compressed when the
// client accepts it.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      gzhttp.GzipHandler(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		maps:     opts.Maps,
		history:  opts.History,
		schedule: opts.Schedule,
		logger:   opts.Logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(opts.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /schedule", s.handleSchedule)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	for _, p := range opts.Maps.Catalog().Pipelines {
		mux.HandleFunc("GET "+p.Route+"{$}", s.handleMap(p))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleMap serves the last rendered document of p, however old. A pipeline
// that never produced a document is a server error.
func (s *Server) handleMap(p config.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := s.maps.ArtifactPath(p)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Error("map requested before it was generated", "pipeline", p.Name, "path", path)
				http.Error(w, "map "+p.Name+" has not been generated yet", http.StatusInternalServerError)
				return
			}
			s.logger.Error("open map document", "pipeline", p.Name, "error", err)
			http.Error(w, "map unavailable", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "map unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		sharedobs.WriteJSON(w, http.StatusOK, []domain.Run{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	pipeline := r.URL.Query().Get("pipeline")
	if pipeline != "" {
		if _, ok := s.maps.Catalog().Pipeline(pipeline); !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "unknown pipeline " + pipeline})
			return
		}
	}

	runs, err := s.history.Recent(r.Context(), pipeline, limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "run history unavailable"})
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	upcoming := []scheduler.Upcoming{}
	if s.schedule != nil {
		upcoming = s.schedule.Upcoming()
	}
	sharedobs.WriteJSON(w, http.StatusOK, upcoming)
}

type indexRow struct {
	Name      string
	Title     string
	Route     string
	Kind      string
	Schedule  string
	Generated time.Time
	Available bool
	Running   bool
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>mapviz</title>
<style>body { font: 14px sans-serif; margin: 2em; } td, th { padding: 4px 12px; text-align: left; }</style>
</head>
<body>
<h1>Maps</h1>
<table>
<tr><th>Map</th><th>Kind</th><th>Schedule</th><th>Last rendered</th></tr>
{{range .}}<tr>
<td>{{if .Available}}<a href="{{.Route}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</td>
<td>{{.Kind}}</td>
<td>{{if .Schedule}}{{.Schedule}}{{else}}at startup{{end}}</td>
<td>{{if .Available}}{{.Generated.UTC.Format "2006-01-02 15:04 UTC"}}{{else}}never{{end}}{{if .Running}} (running){{end}}</td>
</tr>
{{end}}</table>
<p><a href="/runs">Run history</a> · <a href="/schedule">Schedule</a></p>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	pipelines := s.maps.Catalog().Pipelines
	rows := make([]indexRow, 0, len(pipelines))
	for _, p := range pipelines {
		row := indexRow{
			Name:     p.Name,
			Title:    p.Title,
			Route:    p.Route,
			Kind:     p.Kind,
			Schedule: p.Schedule,
			Running:  s.maps.Running(p.Name),
		}
		if info, err := os.Stat(s.maps.ArtifactPath(p)); err == nil {
			row.Available = true
			row.Generated = info.ModTime()
		}
		if row.Title == "" {
			row.Title = p.Name
		}
		rows = append(rows, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, rows); err != nil {
		s.logger.Error("render index", "error", err)
	}
}
