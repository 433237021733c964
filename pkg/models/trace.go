package models

import (
	"encoding/hex"
	"fmt"
)

// Fixed identifier widths from the W3C trace context: 16-byte trace
// ids and 8-byte span ids, persisted as lower-case hex.
const (
	TraceIDBytes = 16
	SpanIDBytes  = 8
	TraceIDHex   = 2 * TraceIDBytes
	SpanIDHex    = 2 * SpanIDBytes
)

// SpanKind is the OTLP span kind enum.
type SpanKind int32

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

// String returns the kind name persisted in the spans table.
func (k SpanKind) String() string {
	switch k {
	case SpanKindInternal:
		return "INTERNAL"
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	case SpanKindProducer:
		return "PRODUCER"
	case SpanKindConsumer:
		return "CONSUMER"
	default:
		return "UNSPECIFIED"
	}
}

// StatusCode is the OTLP span status enum.
type StatusCode int32

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// String returns the status name persisted in the spans table.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// EncodeTraceID hex-encodes a wire trace id, rejecting any identifier
// that is not exactly 16 bytes.
func EncodeTraceID(id []byte) (string, error) {
	if len(id) != TraceIDBytes {
		return "", fmt.Errorf("trace id must be %d bytes, got %d", TraceIDBytes, len(id))
	}
	return hex.EncodeToString(id), nil
}

// EncodeSpanID hex-encodes a wire span id, rejecting any identifier
// that is not exactly 8 bytes.
func EncodeSpanID(id []byte) (string, error) {
	if len(id) != SpanIDBytes {
		return "", fmt.Errorf("span id must be %d bytes, got %d", SpanIDBytes, len(id))
	}
	return hex.EncodeToString(id), nil
}

// Span is one normalized span. (TraceID, SpanID) is unique in the
// store; ParentSpanID is empty for root spans.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Kind         SpanKind
	TraceState   string

	// Nanoseconds since epoch. Start <= End is assumed, not enforced.
	StartTimeUnixNano int64
	EndTimeUnixNano   int64

	StatusCode    StatusCode
	StatusMessage string

	Attributes             Attributes
	DroppedAttributesCount uint32
	DroppedEventsCount     uint32
	DroppedLinksCount      uint32

	Events []SpanEvent
	Links  []SpanLink
}

// DurationNano returns the span duration in nanoseconds.
func (s *Span) DurationNano() int64 {
	return s.EndTimeUnixNano - s.StartTimeUnixNano
}

// SpanEvent is a timestamped annotation owned by exactly one span.
type SpanEvent struct {
	Name                   string
	TimeUnixNano           int64
	Attributes             Attributes
	DroppedAttributesCount uint32
}

// SpanLink references another span, owned by exactly one span.
type SpanLink struct {
	TraceID                string
	SpanID                 string
	TraceState             string
	Attributes             Attributes
	DroppedAttributesCount uint32
}

// SpanUnit pairs a span with its owning resource and scope
// descriptions, ready for identity resolution.
type SpanUnit struct {
	Resource *Resource
	Scope    *Scope
	Span     *Span
}

// Trace groups the span units of one export request that share a trace
// id. A request carrying spans for many traces yields many Trace
// values, never a merged one.
type Trace struct {
	TraceID string
	Spans   []SpanUnit
}

// TraceSummary is one row of trace discovery: per-trace aggregates over
// a time window.
type TraceSummary struct {
	TraceID           string `json:"trace_id"`
	SpanCount         int64  `json:"span_count"`
	StartTimeUnixNano int64  `json:"start_time_unix_nano"`
	EndTimeUnixNano   int64  `json:"end_time_unix_nano"`
	DurationNano      int64  `json:"duration_nano"`
	HasError          bool   `json:"has_error"`
}

// StoredSpan is a span read back from the store together with its
// resolved resource and scope.
type StoredSpan struct {
	Span     *Span     `json:"span"`
	Resource *Resource `json:"resource"`
	Scope    *Scope    `json:"scope"`
}

// ServiceDependency is one edge of the service dependency graph:
// cross-service parent/child calls grouped by span kind.
type ServiceDependency struct {
	ParentService string  `json:"parent_service"`
	ChildService  string  `json:"child_service"`
	SpanKind      string  `json:"span_kind"`
	CallCount     int64   `json:"call_count"`
	MinDurationMs float64 `json:"min_duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
	ErrorCount    int64   `json:"error_count"`
	ErrorRate     float64 `json:"error_rate"`
}
