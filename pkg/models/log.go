package models

// Severity bounds of the OTLP severity number scale (TRACE=1..FATAL4=24).
const (
	SeverityMin = 1
	SeverityMax = 24
)

// LogRecord is one normalized log record. Body is stored as text plus
// its original type tag so typed bodies round-trip.
type LogRecord struct {
	TimeUnixNano         int64
	ObservedTimeUnixNano int64
	SeverityNumber       int32
	SeverityText         string

	// Body rendered as text with BodyType naming the original variant
	// (str, bool, int, dbl, bytes, list, map). Empty BodyType means no
	// body was set.
	Body     string
	BodyType string

	Attributes             Attributes
	DroppedAttributesCount uint32
	Flags                  uint32

	// Optional span correlation; both empty when uncorrelated.
	TraceID string
	SpanID  string
}

// LogUnit pairs a log record with its owning resource and scope.
type LogUnit struct {
	Resource *Resource
	Scope    *Scope
	Record   *LogRecord
}

// StoredLog is a log record read back with its resolved identities.
type StoredLog struct {
	Record   *LogRecord `json:"record"`
	Resource *Resource  `json:"resource"`
	Scope    *Scope     `json:"scope"`
}

// LogQuery filters a log search. Zero values mean "no constraint".
type LogQuery struct {
	StartTimeUnixNano int64
	EndTimeUnixNano   int64
	MinSeverity       int32
	Service           string
	TraceID           string
	BodyContains      string
	Limit             int
}

// SeverityStat is one row of the daily severity histogram.
type SeverityStat struct {
	Day            string `json:"day"`
	SeverityNumber int32  `json:"severity_number"`
	SeverityText   string `json:"severity_text"`
	Count          int64  `json:"count"`
}
