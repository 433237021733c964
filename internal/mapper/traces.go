package mapper

import (
	"fmt"
	"log"

	"github.com/fidde/otelstore/pkg/models"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// TraceData is the normalized form of one trace export request: span
// units grouped into one logical trace per distinct trace id observed.
type TraceData struct {
	Traces []*models.Trace

	// Spans is the number of accepted span units; Rejected counts spans
	// dropped for malformed identifiers or missing required fields.
	Spans    int
	Rejected int
}

// Units flattens the grouped traces back into span units for storage.
func (d *TraceData) Units() []models.SpanUnit {
	units := make([]models.SpanUnit, 0, d.Spans)
	for _, tr := range d.Traces {
		units = append(units, tr.Spans...)
	}
	return units
}

// Traces maps a trace export request. A per-span failure drops that
// span and continues; a request carrying spans of many traces yields
// many independent traces, never a merged one.
func Traces(req *coltracepb.ExportTraceServiceRequest) (*TraceData, error) {
	if req == nil {
		return nil, fmt.Errorf("trace export request cannot be nil")
	}

	data := &TraceData{}
	byTraceID := make(map[string]*models.Trace)

	for _, rs := range req.ResourceSpans {
		res := resource(rs.GetResource(), rs.GetSchemaUrl())

		for _, ss := range rs.ScopeSpans {
			sc := scope(ss.GetScope(), ss.GetSchemaUrl())

			for _, span := range ss.Spans {
				mapped, err := mapSpan(span)
				if err != nil {
					log.Printf("dropping span %q: %v", span.GetName(), err)
					data.Rejected++
					continue
				}

				trace, ok := byTraceID[mapped.TraceID]
				if !ok {
					trace = &models.Trace{TraceID: mapped.TraceID}
					byTraceID[mapped.TraceID] = trace
					data.Traces = append(data.Traces, trace)
				}
				trace.Spans = append(trace.Spans, models.SpanUnit{
					Resource: res,
					Scope:    sc,
					Span:     mapped,
				})
				data.Spans++
			}
		}
	}

	return data, nil
}

func mapSpan(span *tracepb.Span) (*models.Span, error) {
	if span == nil {
		return nil, fmt.Errorf("span is nil")
	}
	if span.Name == "" {
		return nil, fmt.Errorf("span name is required")
	}

	traceID, err := models.EncodeTraceID(span.TraceId)
	if err != nil {
		return nil, err
	}
	spanID, err := models.EncodeSpanID(span.SpanId)
	if err != nil {
		return nil, err
	}

	// Parent id is optional; when present it must be well-formed.
	var parentID string
	if len(span.ParentSpanId) > 0 {
		parentID, err = models.EncodeSpanID(span.ParentSpanId)
		if err != nil {
			return nil, fmt.Errorf("parent %w", err)
		}
	}

	mapped := &models.Span{
		TraceID:                traceID,
		SpanID:                 spanID,
		ParentSpanID:           parentID,
		Name:                   span.Name,
		Kind:                   models.SpanKind(span.Kind),
		TraceState:             span.TraceState,
		StartTimeUnixNano:      int64(span.StartTimeUnixNano),
		EndTimeUnixNano:        int64(span.EndTimeUnixNano),
		Attributes:             attributes(span.Attributes),
		DroppedAttributesCount: span.DroppedAttributesCount,
		DroppedEventsCount:     span.DroppedEventsCount,
		DroppedLinksCount:      span.DroppedLinksCount,
	}

	if st := span.Status; st != nil {
		mapped.StatusCode = models.StatusCode(st.Code)
		mapped.StatusMessage = st.Message
	}

	for _, event := range span.Events {
		mapped.Events = append(mapped.Events, models.SpanEvent{
			Name:                   event.GetName(),
			TimeUnixNano:           int64(event.GetTimeUnixNano()),
			Attributes:             attributes(event.GetAttributes()),
			DroppedAttributesCount: event.GetDroppedAttributesCount(),
		})
	}

	for _, link := range span.Links {
		linkTraceID, err := models.EncodeTraceID(link.GetTraceId())
		if err != nil {
			log.Printf("dropping link on span %s: %v", spanID, err)
			continue
		}
		linkSpanID, err := models.EncodeSpanID(link.GetSpanId())
		if err != nil {
			log.Printf("dropping link on span %s: %v", spanID, err)
			continue
		}
		mapped.Links = append(mapped.Links, models.SpanLink{
			TraceID:                linkTraceID,
			SpanID:                 linkSpanID,
			TraceState:             link.GetTraceState(),
			Attributes:             attributes(link.GetAttributes()),
			DroppedAttributesCount: link.GetDroppedAttributesCount(),
		})
	}

	return mapped, nil
}
