// Package api provides the REST query surface over the telemetry
// store: trace discovery, metric series, log search and the service
// dependency graph.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/otelstore/internal/retention"
	"github.com/fidde/otelstore/internal/storage"
	"github.com/fidde/otelstore/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the REST API server.
type Server struct {
	store   storage.Storage
	sweeper *retention.Sweeper
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new API server. sweeper may be nil when retention
// is disabled; the admin endpoint then reports it unavailable.
func NewServer(addr string, store storage.Storage, sweeper *retention.Sweeper) *Server {
	s := &Server{
		store:   store,
		sweeper: sweeper,
		router:  chi.NewRouter(),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Trace endpoints
		r.Get("/traces", s.listTraces)
		r.Get("/traces/{id}", s.getTrace)
		r.Get("/servicemap", s.serviceMap)

		// Metric endpoints
		r.Get("/metrics", s.listMetrics)
		r.Get("/metrics/{name}/series", s.metricSeries)
		r.Get("/metrics/{name}/labels", s.metricLabels)

		// Log endpoints
		r.Get("/logs", s.searchLogs)
		r.Get("/logs/stats", s.logSeverityStats)

		// Service discovery
		r.Get("/services", s.listServices)

		// Admin endpoints
		r.Post("/admin/retention", s.runRetention)
		r.Post("/admin/clear", s.clearAllData)
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// parseWindow reads optional start/end query parameters, both
// nanoseconds since epoch.
func parseWindow(r *http.Request) (models.TimeWindow, error) {
	var window models.TimeWindow
	if v := r.URL.Query().Get("start"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return window, errors.New("invalid start parameter")
		}
		window.StartUnixNano = n
	}
	if v := r.URL.Query().Get("end"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return window, errors.New("invalid end parameter")
		}
		window.EndUnixNano = n
	}
	return window, nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultLimit
}

// listTraces returns trace summaries in a time window, newest first.
// GET /api/v1/traces?start=N&end=N&limit=N
func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := s.store.FindTraces(r.Context(), window, parseLimit(r, 20))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []models.TraceSummary{}
	}
	s.respondJSON(w, http.StatusOK, summaries)
}

// getTrace returns all spans of one trace.
// GET /api/v1/traces/{id}?start=N&end=N
func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	traceID := strings.ToLower(chi.URLParam(r, "id"))
	if len(traceID) != models.TraceIDHex {
		s.respondError(w, http.StatusBadRequest, "trace id must be 32 hex characters")
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	spans, err := s.store.GetTrace(r.Context(), traceID, window)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(spans) == 0 {
		s.respondError(w, http.StatusNotFound, "trace not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"trace_id": traceID,
		"spans":    spans,
	})
}

// serviceMap returns the service dependency graph.
// GET /api/v1/servicemap?start=N&end=N
func (s *Server) serviceMap(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	deps, err := s.store.ServiceMap(r.Context(), window)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if deps == nil {
		deps = []models.ServiceDependency{}
	}
	s.respondJSON(w, http.StatusOK, deps)
}

// listMetrics returns the metric catalogue.
// GET /api/v1/metrics
func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListMetrics(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []storage.MetricInfo{}
	}
	s.respondJSON(w, http.StatusOK, infos)
}

// metricSeries returns a metric's reconstructed time series. Label
// filters are query parameters of the form label.<key>=<value>.
// GET /api/v1/metrics/{name}/series?start=N&end=N&label.host=a
func (s *Server) metricSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var labels map[string]string
	for key, values := range r.URL.Query() {
		if k, ok := strings.CutPrefix(key, "label."); ok && len(values) > 0 {
			if labels == nil {
				labels = make(map[string]string)
			}
			labels[k] = values[0]
		}
	}

	series, err := s.store.MetricSeries(r.Context(), name, window, labels)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "metric not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if series.Points == nil {
		series.Points = []storage.SeriesPoint{}
	}
	s.respondJSON(w, http.StatusOK, series)
}

// metricLabels returns a metric's label keys and observed values.
// GET /api/v1/metrics/{name}/labels
func (s *Server) metricLabels(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	labels, err := s.store.MetricLabels(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "metric not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, labels)
}

// searchLogs returns log records matching the query filters.
// GET /api/v1/logs?start=N&end=N&min_severity=N&service=X&trace_id=X&body=X&limit=N
func (s *Server) searchLogs(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := models.LogQuery{
		StartTimeUnixNano: window.StartUnixNano,
		EndTimeUnixNano:   window.EndUnixNano,
		Service:           r.URL.Query().Get("service"),
		TraceID:           strings.ToLower(r.URL.Query().Get("trace_id")),
		BodyContains:      r.URL.Query().Get("body"),
		Limit:             parseLimit(r, 100),
	}
	if v := r.URL.Query().Get("min_severity"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < models.SeverityMin || n > models.SeverityMax {
			s.respondError(w, http.StatusBadRequest, "invalid min_severity parameter")
			return
		}
		q.MinSeverity = int32(n)
	}

	logs, err := s.store.SearchLogs(r.Context(), q)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []models.StoredLog{}
	}
	s.respondJSON(w, http.StatusOK, logs)
}

// logSeverityStats returns the daily severity histogram.
// GET /api/v1/logs/stats
func (s *Server) logSeverityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.LogSeverityStats(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []models.SeverityStat{}
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// listServices returns the known service names.
// GET /api/v1/services
func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if services == nil {
		services = []string{}
	}
	s.respondJSON(w, http.StatusOK, services)
}

// runRetention triggers one retention sweep.
// POST /api/v1/admin/retention
func (s *Server) runRetention(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		s.respondError(w, http.StatusServiceUnavailable, "retention is not configured")
		return
	}
	result, err := s.sweeper.SweepOnce(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// clearAllData clears all data from the storage.
// POST /api/v1/admin/clear
func (s *Server) clearAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to clear data")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "All data cleared successfully",
	})
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
