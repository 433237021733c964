// Package mapper converts OTLP wire payloads into the normalized entity
// model. It touches no storage: identity resolution and persistence
// happen downstream.
package mapper

import (
	"github.com/fidde/otelstore/pkg/models"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

// attributes converts a wire attribute list to the internal set.
// Duplicate keys keep the last occurrence, matching OTLP map semantics.
func attributes(kvs []*commonpb.KeyValue) models.Attributes {
	attrs := make(models.Attributes, len(kvs))
	for _, kv := range kvs {
		if kv == nil {
			continue
		}
		attrs[kv.Key] = anyValue(kv.Value)
	}
	return attrs
}

// anyValue converts a wire AnyValue union to the internal value union.
// Nested arrays and maps are preserved structurally, and the
// double/integer variants are never coerced into each other.
func anyValue(v *commonpb.AnyValue) models.Value {
	if v == nil {
		return models.StringValue("")
	}

	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return models.StringValue(val.StringValue)
	case *commonpb.AnyValue_BoolValue:
		return models.BoolValue(val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return models.IntValue(val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return models.DoubleValue(val.DoubleValue)
	case *commonpb.AnyValue_BytesValue:
		return models.BytesValue(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]models.Value, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, anyValue(item))
		}
		return models.ListValue(items...)
	case *commonpb.AnyValue_KvlistValue:
		m := make(map[string]models.Value, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			if kv == nil {
				continue
			}
			m[kv.Key] = anyValue(kv.Value)
		}
		return models.MapValue(m)
	default:
		return models.StringValue("")
	}
}

// resource maps a wire resource description, substituting the sentinel
// when the payload omits it.
func resource(res *resourcepb.Resource, schemaURL string) *models.Resource {
	if res == nil {
		return models.UnknownResource()
	}
	return &models.Resource{
		SchemaURL:  schemaURL,
		Attributes: attributes(res.Attributes),
	}
}

// scope maps a wire instrumentation scope, substituting the sentinel
// when the payload omits it.
func scope(sc *commonpb.InstrumentationScope, schemaURL string) *models.Scope {
	if sc == nil {
		return models.UnknownScope()
	}
	return &models.Scope{
		Name:       sc.Name,
		Version:    sc.Version,
		SchemaURL:  schemaURL,
		Attributes: attributes(sc.Attributes),
	}
}
