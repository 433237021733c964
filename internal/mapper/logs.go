package mapper

import (
	"fmt"
	"log"

	"github.com/fidde/otelstore/pkg/models"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
)

// LogsData is the normalized form of one logs export request.
type LogsData struct {
	Units []models.LogUnit

	// Records counts accepted log records; Rejected counts records
	// dropped for malformed correlation identifiers.
	Records  int
	Rejected int
}

// Logs maps a logs export request. The elementary unit is the log
// record; a record with a malformed trace/span correlation is dropped
// and counted, the rest of the request proceeds.
func Logs(req *collogspb.ExportLogsServiceRequest) (*LogsData, error) {
	if req == nil {
		return nil, fmt.Errorf("logs export request cannot be nil")
	}

	data := &LogsData{}

	for _, rl := range req.ResourceLogs {
		res := resource(rl.GetResource(), rl.GetSchemaUrl())

		for _, sl := range rl.ScopeLogs {
			sc := scope(sl.GetScope(), sl.GetSchemaUrl())

			for _, record := range sl.LogRecords {
				mapped, err := mapLogRecord(record)
				if err != nil {
					log.Printf("dropping log record: %v", err)
					data.Rejected++
					continue
				}
				data.Units = append(data.Units, models.LogUnit{
					Resource: res,
					Scope:    sc,
					Record:   mapped,
				})
				data.Records++
			}
		}
	}

	return data, nil
}

func mapLogRecord(record *logspb.LogRecord) (*models.LogRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("log record is nil")
	}

	mapped := &models.LogRecord{
		TimeUnixNano:           int64(record.TimeUnixNano),
		ObservedTimeUnixNano:   int64(record.ObservedTimeUnixNano),
		SeverityNumber:         int32(record.SeverityNumber),
		SeverityText:           record.SeverityText,
		Attributes:             attributes(record.Attributes),
		DroppedAttributesCount: record.DroppedAttributesCount,
		Flags:                  record.Flags,
	}

	mapped.Body, mapped.BodyType = logBody(record.Body)

	// Correlation is optional, but when present both ids must be valid.
	if len(record.TraceId) > 0 || len(record.SpanId) > 0 {
		traceID, err := models.EncodeTraceID(record.TraceId)
		if err != nil {
			return nil, err
		}
		spanID, err := models.EncodeSpanID(record.SpanId)
		if err != nil {
			return nil, err
		}
		mapped.TraceID, mapped.SpanID = traceID, spanID
	}

	return mapped, nil
}

// logBody renders a typed log body as text plus its type tag. Scalar
// bodies render directly; composite bodies render as their JSON
// document so the structure survives.
func logBody(body *commonpb.AnyValue) (string, string) {
	if body == nil || body.Value == nil {
		return "", ""
	}

	v := anyValue(body)
	var tag string
	switch v.Kind {
	case models.KindString:
		tag = "str"
	case models.KindBool:
		tag = "bool"
	case models.KindInt:
		tag = "int"
	case models.KindDouble:
		tag = "dbl"
	case models.KindBytes:
		tag = "bytes"
	case models.KindList:
		tag = "list"
	case models.KindMap:
		tag = "map"
	}
	return v.AsString(), tag
}
