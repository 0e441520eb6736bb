// Package server exposes the analytics over HTTP: summary cards, aggregate
// views, customer segments and the SQL task catalog.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"DeliveryAnalytics/src/config"
	"DeliveryAnalytics/src/processor"
	"DeliveryAnalytics/src/storage"
)

// Server wires the pipeline and the optional order database into a REST
// surface. All read endpoints accept the same filter query parameters:
// from, to (2006-01-02), city, status and repeatable cuisine.
type Server struct {
	cfg      *config.Config
	dcfg     *config.DataConfig
	logger   *storage.Logger
	pipeline *processor.Pipeline
	db       *storage.OrderDatabase // nil when the database is disabled

	httpServer *http.Server
}

func New(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger, p *processor.Pipeline, db *storage.OrderDatabase) *Server {
	s := &Server{
		cfg:      cfg,
		dcfg:     dcfg,
		logger:   logger,
		pipeline: p,
		db:       db,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/views", s.handleViewList).Methods(http.MethodGet)
	r.HandleFunc("/views/{name}", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/segments", s.handleSegments).Methods(http.MethodGet)
	r.HandleFunc("/report/missing", s.handleMissingReport).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.handleTaskList).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{name}", s.handleTask).Methods(http.MethodGet)
	r.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown or a listen error.
func (s *Server) Start() error {
	s.logger.Info(fmt.Sprintf("http server listening on %s", s.cfg.HTTPAddr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"rows":       s.pipeline.Snapshot().Nrow(),
		"last_run":   s.pipeline.LastRun(),
		"source_md5": s.pipeline.SourceKey(),
		"database":   s.db != nil,
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	df := filter.Apply(s.pipeline.Snapshot())
	writeJSON(w, http.StatusOK, processor.Summarize(df))
}

func (s *Server) handleViewList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"views": processor.ViewNames()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	name := mux.Vars(r)["name"]
	df := filter.Apply(s.pipeline.Snapshot())
	view, err := processor.ComputeView(df, name, s.dcfg.MinRestaurantOrders)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	df := filter.Apply(s.pipeline.Snapshot())
	profiles := processor.ComputeRFM(df, time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customers": profiles,
		"segments":  processor.SegmentBreakdown(profiles),
	})
}

func (s *Server) handleMissingReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"columns": s.pipeline.Report()})
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":     storage.TaskNames(),
		"available": s.db != nil,
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("database is disabled"))
		return
	}

	name := mux.Vars(r)["name"]
	rows, err := s.db.RunTask(name)
	if err != nil {
		if strings.Contains(err.Error(), "unknown task") {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.logger.Error(fmt.Sprintf("task %s failed: %v", name, err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": name, "rows": rows})
}

// handleExport writes an xlsx workbook and serves it: the full feature table
// by default, or a single aggregate view when ?view=name is given.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := "orders"
	path := filepath.Join(os.TempDir(), fmt.Sprintf("orders-export-%d.xlsx", time.Now().UnixNano()))

	var err error
	if viewName := r.URL.Query().Get("view"); viewName != "" {
		view, viewErr := processor.ComputeView(s.pipeline.Snapshot(), viewName, s.dcfg.MinRestaurantOrders)
		if viewErr != nil {
			writeError(w, http.StatusNotFound, viewErr)
			return
		}
		name = viewName
		err = processor.ExportViewExcel(view, path)
	} else {
		err = s.pipeline.ExportExcel(path)
	}
	if err != nil {
		s.logger.Error("excel export failed: " + err.Error())
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(path)

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	http.ServeFile(w, r, path)
}

// handleLogs streams log entries as they happen, one line per entry, until
// the client goes away.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.logger.Subscribe()
	defer s.logger.Unsubscribe(ch)
	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintln(w, entry)
			flusher.Flush()
		}
	}
}

// parseFilter reads the shared query parameters.
func parseFilter(r *http.Request) (processor.Filter, error) {
	q := r.URL.Query()
	f := processor.Filter{
		City:   q.Get("city"),
		Status: q.Get("status"),
	}
	f.Cuisines = append(f.Cuisines, q["cuisine"]...)

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("bad from date %q", v)
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("bad to date %q", v)
		}
		f.To = t
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
