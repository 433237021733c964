package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ServiceNameKey is the well-known resource attribute identifying the
// service that produced a piece of telemetry.
const ServiceNameKey = "service.name"

// UnknownName is the sentinel substituted when the wire payload omits a
// resource or scope description.
const UnknownName = "unknown"

// Resource describes the entity (service, host, process) that produced
// telemetry. Resources are deduplicated by content hash and never
// updated once written.
type Resource struct {
	SchemaURL  string
	Attributes Attributes
}

// Scope describes the instrumentation library that generated telemetry.
// Same dedup lifecycle as Resource.
type Scope struct {
	Name       string
	Version    string
	SchemaURL  string
	Attributes Attributes
}

// UnknownResource returns the sentinel resource used when an export
// request carries telemetry without a resource description.
func UnknownResource() *Resource {
	return &Resource{Attributes: Attributes{ServiceNameKey: StringValue(UnknownName)}}
}

// UnknownScope returns the sentinel scope for telemetry without scope
// information.
func UnknownScope() *Scope {
	return &Scope{Name: UnknownName, Attributes: Attributes{}}
}

// ServiceName extracts the well-known service name attribute, or "" if
// the resource does not carry one as a string.
func (r *Resource) ServiceName() string {
	if r == nil {
		return ""
	}
	if v, ok := r.Attributes[ServiceNameKey]; ok && v.Kind == KindString {
		return v.Str
	}
	return ""
}

// Hash computes the resource's content identity: SHA-256 over the
// canonical serialization of (schema URL, attribute set), hex-encoded
// lower-case. Two attribute-for-attribute identical descriptions hash
// identically; this is the sole deduplication key.
func (r *Resource) Hash() (string, error) {
	doc, err := EncodeAttributes(r.Attributes)
	if err != nil {
		return "", fmt.Errorf("canonicalizing resource: %w", err)
	}
	return contentHash("resource", r.SchemaURL, "", "", doc), nil
}

// Hash computes the scope's content identity over
// (name, version, schema URL, attribute set).
func (s *Scope) Hash() (string, error) {
	doc, err := EncodeAttributes(s.Attributes)
	if err != nil {
		return "", fmt.Errorf("canonicalizing scope: %w", err)
	}
	return contentHash("scope", s.SchemaURL, s.Name, s.Version, doc), nil
}

// contentHash is the shared canonical hash. Fields are length-prefixed
// so no two distinct field tuples can collide by concatenation.
func contentHash(kind, schemaURL, name, version, attrDoc string) string {
	h := sha256.New()
	for _, field := range []string{kind, schemaURL, name, version, attrDoc} {
		fmt.Fprintf(h, "%d:", len(field))
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
