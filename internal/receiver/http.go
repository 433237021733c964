package receiver

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/fidde/otelstore/internal/mapper"
	"github.com/fidde/otelstore/internal/storage"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// HTTPReceiver handles OTLP/HTTP export requests.
type HTTPReceiver struct {
	store   storage.Storage
	server  *http.Server
	verbose bool
}

// NewHTTPReceiver creates a new HTTP receiver.
func NewHTTPReceiver(addr string, store storage.Storage, verbose bool) *HTTPReceiver {
	r := &HTTPReceiver{store: store, verbose: verbose}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/traces", r.handleTraces)
	mux.HandleFunc("/v1/metrics", r.handleMetrics)
	mux.HandleFunc("/v1/logs", r.handleLogs)
	mux.HandleFunc("/health", r.handleHealth)

	r.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return r
}

// Start starts the HTTP server.
func (r *HTTPReceiver) Start() error {
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *HTTPReceiver) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// readBody reads the request body, transparently decompressing gzip.
func readBody(req *http.Request) ([]byte, error) {
	reader := io.Reader(req.Body)
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decompressing body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	defer req.Body.Close()
	return io.ReadAll(reader)
}

// parseExport decodes an OTLP export request: protobuf first (the OTLP
// default), protojson as the fallback.
func parseExport(body []byte, msg proto.Message) error {
	if err := proto.Unmarshal(body, msg); err != nil {
		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if jsonErr := unmarshaler.Unmarshal(body, msg); jsonErr != nil {
			return fmt.Errorf("protobuf error: %v, json error: %v", err, jsonErr)
		}
	}
	return nil
}

func (r *HTTPReceiver) handleTraces(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq coltracepb.ExportTraceServiceRequest
	if err := parseExport(body, &exportReq); err != nil {
		log.Printf("Failed to parse traces request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	data, err := mapper.Traces(&exportReq)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to map traces: %v", err), http.StatusBadRequest)
		return
	}

	persisted, err := r.store.WriteTraces(req.Context(), data.Units())
	if err != nil {
		log.Printf("Span storage error: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store spans: %v", err), http.StatusInternalServerError)
		return
	}

	rejected := data.Rejected + (data.Spans - persisted)
	if r.verbose {
		log.Printf("http trace export: %d spans persisted, %d rejected", persisted, rejected)
	}

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: int64(rejected),
			ErrorMessage:  rejectionMessage(rejected),
		}
	}
	writeResponse(w, resp)
}

func (r *HTTPReceiver) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq colmetricspb.ExportMetricsServiceRequest
	if err := parseExport(body, &exportReq); err != nil {
		log.Printf("Failed to parse metrics request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	data, err := mapper.Metrics(&exportReq)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to map metrics: %v", err), http.StatusBadRequest)
		return
	}

	persisted, err := r.store.WriteMetrics(req.Context(), data.Units)
	if err != nil {
		log.Printf("Metric storage error: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store metrics: %v", err), http.StatusInternalServerError)
		return
	}

	rejected := data.Rejected + (data.Points - persisted)
	if r.verbose {
		log.Printf("http metrics export: %d points persisted, %d rejected", persisted, rejected)
	}

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: int64(rejected),
			ErrorMessage:       rejectionMessage(rejected),
		}
	}
	writeResponse(w, resp)
}

func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq collogspb.ExportLogsServiceRequest
	if err := parseExport(body, &exportReq); err != nil {
		log.Printf("Failed to parse logs request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	data, err := mapper.Logs(&exportReq)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to map logs: %v", err), http.StatusBadRequest)
		return
	}

	persisted, err := r.store.WriteLogs(req.Context(), data.Units)
	if err != nil {
		log.Printf("Log storage error: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store logs: %v", err), http.StatusInternalServerError)
		return
	}

	rejected := data.Rejected + (data.Records - persisted)
	if r.verbose {
		log.Printf("http logs export: %d records persisted, %d rejected", persisted, rejected)
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(rejected),
			ErrorMessage:       rejectionMessage(rejected),
		}
	}
	writeResponse(w, resp)
}

// handleHealth handles health check requests.
func (r *HTTPReceiver) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// writeResponse writes a protobuf response.
// OTLP always uses protobuf for responses.
func writeResponse(w http.ResponseWriter, resp proto.Message) {
	respBytes, err := proto.Marshal(resp)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(respBytes)
}
