// Package receiver implements the OTLP gRPC and HTTP ingestion
// endpoints: wire requests are mapped to the normalized model and
// handed to storage, with partial-success accounting on the way out.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/fidde/otelstore/internal/mapper"
	"github.com/fidde/otelstore/internal/storage"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCReceiver handles OTLP gRPC export requests.
type GRPCReceiver struct {
	colmetricspb.UnimplementedMetricsServiceServer
	store    storage.Storage
	server   *grpc.Server
	listener net.Listener
	addr     string
	verbose  bool
}

// NewGRPCReceiver creates a new gRPC receiver.
func NewGRPCReceiver(addr string, store storage.Storage, verbose bool) *GRPCReceiver {
	return &GRPCReceiver{
		store:   store,
		addr:    addr,
		verbose: verbose,
	}
}

// Start starts the gRPC server and blocks serving it.
func (r *GRPCReceiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.listener = lis

	r.server = grpc.NewServer()

	// Register OTLP services with wrapper types to avoid method name conflicts
	colmetricspb.RegisterMetricsServiceServer(r.server, r)
	coltracepb.RegisterTraceServiceServer(r.server, &traceService{
		UnimplementedTraceServiceServer: coltracepb.UnimplementedTraceServiceServer{},
		GRPCReceiver:                    r,
	})
	collogspb.RegisterLogsServiceServer(r.server, &logsService{
		UnimplementedLogsServiceServer: collogspb.UnimplementedLogsServiceServer{},
		GRPCReceiver:                   r,
	})

	// Register reflection service for debugging with grpcurl
	reflection.Register(r.server)

	log.Printf("gRPC server listening on %s", r.addr)
	return r.server.Serve(lis)
}

// Shutdown gracefully shuts down the gRPC server.
func (r *GRPCReceiver) Shutdown(ctx context.Context) error {
	if r.server != nil {
		r.server.GracefulStop()
	}
	return nil
}

// storeErr maps a storage failure to a gRPC status. Cancellation
// surfaces as Canceled so clients can tell their own timeout from a
// store fault.
func storeErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Errorf(codes.Internal, "storage failure: %v", err)
}

func rejectionMessage(rejected int) string {
	if rejected == 0 {
		return ""
	}
	return fmt.Sprintf("%d malformed or duplicate items were not persisted", rejected)
}

// MetricsService implementation

// Export implements the MetricsService Export RPC.
func (r *GRPCReceiver) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	data, err := mapper.Metrics(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	persisted, err := r.store.WriteMetrics(ctx, data.Units)
	if err != nil {
		return nil, storeErr(ctx, err)
	}

	rejected := data.Rejected + (data.Points - persisted)
	if r.verbose {
		log.Printf("metrics export: %d points persisted, %d rejected", persisted, rejected)
	}

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: int64(rejected),
			ErrorMessage:       rejectionMessage(rejected),
		}
	}
	return resp, nil
}

// TraceService implementation - uses separate type to avoid method name conflicts
type traceService struct {
	coltracepb.UnimplementedTraceServiceServer
	*GRPCReceiver
}

// Export implements the TraceService Export RPC.
func (s *traceService) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	data, err := mapper.Traces(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	persisted, err := s.store.WriteTraces(ctx, data.Units())
	if err != nil {
		return nil, storeErr(ctx, err)
	}

	rejected := data.Rejected + (data.Spans - persisted)
	if s.verbose {
		log.Printf("trace export: %d spans persisted, %d rejected", persisted, rejected)
	}

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: int64(rejected),
			ErrorMessage:  rejectionMessage(rejected),
		}
	}
	return resp, nil
}

// LogsService implementation - uses separate type to avoid method name conflicts
type logsService struct {
	collogspb.UnimplementedLogsServiceServer
	*GRPCReceiver
}

// Export implements the LogsService Export RPC.
func (s *logsService) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	data, err := mapper.Logs(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	persisted, err := s.store.WriteLogs(ctx, data.Units)
	if err != nil {
		return nil, storeErr(ctx, err)
	}

	rejected := data.Rejected + (data.Records - persisted)
	if s.verbose {
		log.Printf("logs export: %d records persisted, %d rejected", persisted, rejected)
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(rejected),
			ErrorMessage:       rejectionMessage(rejected),
		}
	}
	return resp, nil
}
