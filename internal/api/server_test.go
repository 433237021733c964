package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fidde/otelstore/internal/config"
	"github.com/fidde/otelstore/internal/retention"
	"github.com/fidde/otelstore/internal/storage"
	"github.com/fidde/otelstore/internal/storage/sqlite"
	"github.com/fidde/otelstore/pkg/models"
)

func setupTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sweeper := retention.NewSweeper(store, config.RetentionConfig{
		TraceMaxAge: 24 * time.Hour,
	})
	return NewServer("127.0.0.1:0", store, sweeper), store
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func seedTrace(t *testing.T, store *sqlite.Store, traceID string, service string, start, end int64) {
	t.Helper()
	unit := models.SpanUnit{
		Resource: &models.Resource{Attributes: models.Attributes{
			models.ServiceNameKey: models.StringValue(service),
		}},
		Scope: &models.Scope{Name: "test-lib"},
		Span: &models.Span{
			TraceID: traceID, SpanID: fmt.Sprintf("%016x", start),
			Name: "op", Kind: models.SpanKindServer,
			StartTimeUnixNano: start, EndTimeUnixNano: end,
		},
	}
	if _, err := store.WriteTraces(context.Background(), []models.SpanUnit{unit}); err != nil {
		t.Fatalf("seeding trace: %v", err)
	}
}

func TestListTraces(t *testing.T) {
	server, store := setupTestServer(t)
	traceID := fmt.Sprintf("%032x", 1)
	seedTrace(t, store, traceID, "checkout", 100, 200)

	w := doRequest(t, server, http.MethodGet, "/api/v1/traces?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var summaries []models.TraceSummary
	decodeBody(t, w, &summaries)
	if len(summaries) != 1 || summaries[0].TraceID != traceID {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestListTracesWindowExcludes(t *testing.T) {
	server, store := setupTestServer(t)
	seedTrace(t, store, fmt.Sprintf("%032x", 1), "checkout", 100, 200)

	w := doRequest(t, server, http.MethodGet, "/api/v1/traces?start=201&end=300")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var summaries []models.TraceSummary
	decodeBody(t, w, &summaries)
	if len(summaries) != 0 {
		t.Errorf("summaries = %+v, want empty", summaries)
	}
}

func TestGetTrace(t *testing.T) {
	server, store := setupTestServer(t)
	traceID := fmt.Sprintf("%032x", 2)
	seedTrace(t, store, traceID, "checkout", 100, 200)

	w := doRequest(t, server, http.MethodGet, "/api/v1/traces/"+traceID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		TraceID string              `json:"trace_id"`
		Spans   []models.StoredSpan `json:"spans"`
	}
	decodeBody(t, w, &resp)
	if resp.TraceID != traceID || len(resp.Spans) != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Spans[0].Resource.ServiceName() != "checkout" {
		t.Errorf("resource = %+v", resp.Spans[0].Resource)
	}
}

func TestGetTraceNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/traces/"+fmt.Sprintf("%032x", 99))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetTraceBadID(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/traces/short")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestServiceMapEndpoint(t *testing.T) {
	server, store := setupTestServer(t)
	ctx := context.Background()

	traceID := fmt.Sprintf("%032x", 3)
	parent := models.SpanUnit{
		Resource: &models.Resource{Attributes: models.Attributes{
			models.ServiceNameKey: models.StringValue("frontend"),
		}},
		Span: &models.Span{
			TraceID: traceID, SpanID: fmt.Sprintf("%016x", 1),
			Name: "root", StartTimeUnixNano: 0, EndTimeUnixNano: 100,
		},
	}
	child := models.SpanUnit{
		Resource: &models.Resource{Attributes: models.Attributes{
			models.ServiceNameKey: models.StringValue("checkout"),
		}},
		Span: &models.Span{
			TraceID: traceID, SpanID: fmt.Sprintf("%016x", 2),
			ParentSpanID: fmt.Sprintf("%016x", 1),
			Name:         "child", Kind: models.SpanKindClient,
			StartTimeUnixNano: 0, EndTimeUnixNano: 50,
		},
	}
	if _, err := store.WriteTraces(ctx, []models.SpanUnit{parent, child}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	w := doRequest(t, server, http.MethodGet, "/api/v1/servicemap")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var deps []models.ServiceDependency
	decodeBody(t, w, &deps)
	if len(deps) != 1 || deps[0].ParentService != "frontend" || deps[0].ChildService != "checkout" {
		t.Errorf("deps = %+v", deps)
	}
}

func seedGauge(t *testing.T, store *sqlite.Store) {
	t.Helper()
	v := 0.5
	unit := models.MetricUnit{
		Resource: &models.Resource{Attributes: models.Attributes{
			models.ServiceNameKey: models.StringValue("checkout"),
		}},
		Metric: &models.Metric{
			Name: "cpu.load",
			Unit: "1",
			Data: models.Gauge{Points: []models.NumberDataPoint{{
				TimeUnixNano: 100,
				ValueDouble:  &v,
				Attributes:   models.Attributes{"host": models.StringValue("a")},
			}}},
		},
	}
	if _, err := store.WriteMetrics(context.Background(), []models.MetricUnit{unit}); err != nil {
		t.Fatalf("seeding metric: %v", err)
	}
}

func TestMetricEndpoints(t *testing.T) {
	server, store := setupTestServer(t)
	seedGauge(t, store)

	w := doRequest(t, server, http.MethodGet, "/api/v1/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var infos []storage.MetricInfo
	decodeBody(t, w, &infos)
	if len(infos) != 1 || infos[0].Name != "cpu.load" {
		t.Errorf("catalogue = %+v", infos)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/metrics/cpu.load/series?label.host=a")
	if w.Code != http.StatusOK {
		t.Fatalf("series status = %d, body %s", w.Code, w.Body.String())
	}
	var series storage.MetricSeries
	decodeBody(t, w, &series)
	if series.Type != models.MetricTypeGauge || len(series.Points) != 1 {
		t.Errorf("series = %+v", series)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/metrics/cpu.load/series?label.host=other")
	decodeBody(t, w, &series)
	if len(series.Points) != 0 {
		t.Errorf("label filter leaked points: %+v", series.Points)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/metrics/cpu.load/labels")
	if w.Code != http.StatusOK {
		t.Fatalf("labels status = %d", w.Code)
	}
	var labels map[string][]string
	decodeBody(t, w, &labels)
	if len(labels["host"]) != 1 || labels["host"][0] != "a" {
		t.Errorf("labels = %+v", labels)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/metrics/missing/series")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing metric status = %d, want 404", w.Code)
	}
}

func TestLogEndpoints(t *testing.T) {
	server, store := setupTestServer(t)
	ctx := context.Background()

	units := []models.LogUnit{
		{
			Resource: &models.Resource{Attributes: models.Attributes{
				models.ServiceNameKey: models.StringValue("checkout"),
			}},
			Record: &models.LogRecord{
				TimeUnixNano: 100, SeverityNumber: 17, SeverityText: "ERROR",
				Body: "payment declined", BodyType: "str",
			},
		},
		{
			Resource: &models.Resource{Attributes: models.Attributes{
				models.ServiceNameKey: models.StringValue("frontend"),
			}},
			Record: &models.LogRecord{
				TimeUnixNano: 200, SeverityNumber: 9, SeverityText: "INFO",
				Body: "render ok", BodyType: "str",
			},
		},
	}
	if _, err := store.WriteLogs(ctx, units); err != nil {
		t.Fatalf("seeding logs: %v", err)
	}

	w := doRequest(t, server, http.MethodGet, "/api/v1/logs?min_severity=13")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var logs []models.StoredLog
	decodeBody(t, w, &logs)
	if len(logs) != 1 || logs[0].Record.Body != "payment declined" {
		t.Errorf("logs = %+v", logs)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/logs?min_severity=99")
	if w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range severity status = %d, want 400", w.Code)
	}

	w = doRequest(t, server, http.MethodGet, "/api/v1/logs/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats []models.SeverityStat
	decodeBody(t, w, &stats)
	if len(stats) != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestListServicesEndpoint(t *testing.T) {
	server, store := setupTestServer(t)
	seedTrace(t, store, fmt.Sprintf("%032x", 1), "checkout", 100, 200)

	w := doRequest(t, server, http.MethodGet, "/api/v1/services")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var services []string
	decodeBody(t, w, &services)
	if len(services) != 1 || services[0] != "checkout" {
		t.Errorf("services = %v", services)
	}
}

func TestAdminClear(t *testing.T) {
	server, store := setupTestServer(t)
	seedTrace(t, store, fmt.Sprintf("%032x", 1), "checkout", 100, 200)

	w := doRequest(t, server, http.MethodPost, "/api/v1/admin/clear")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	summaries, err := store.FindTraces(context.Background(), models.TimeWindow{}, 10)
	if err != nil {
		t.Fatalf("finding traces: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("traces survived clear: %+v", summaries)
	}
}

func TestAdminRetention(t *testing.T) {
	server, store := setupTestServer(t)
	old := time.Now().Add(-48 * time.Hour).UnixNano()
	seedTrace(t, store, fmt.Sprintf("%032x", 1), "stale", old, old+1000)

	w := doRequest(t, server, http.MethodPost, "/api/v1/admin/retention")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result retention.SweepResult
	decodeBody(t, w, &result)
	if result.SpansDeleted != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestAdminRetentionUnconfigured(t *testing.T) {
	store, err := sqlite.New(sqlite.Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	server := NewServer("127.0.0.1:0", store, nil)

	w := doRequest(t, server, http.MethodPost, "/api/v1/admin/retention")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("health = %+v", resp)
	}
}
