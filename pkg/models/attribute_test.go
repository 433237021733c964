package models

import (
	"encoding/json"
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	attrs := Attributes{
		"str":   StringValue("hello"),
		"bool":  BoolValue(true),
		"int":   IntValue(9007199254740993), // above 2^53, must not lose precision
		"neg":   IntValue(-42),
		"dbl":   DoubleValue(3.5),
		"bytes": BytesValue([]byte{0x00, 0xff, 0x10}),
		"list": ListValue(
			StringValue("a"),
			IntValue(1),
			ListValue(BoolValue(false)),
		),
		"map": MapValue(map[string]Value{
			"nested": DoubleValue(1.25),
			"deeper": MapValue(map[string]Value{"x": StringValue("y")}),
		}),
	}

	doc, err := EncodeAttributes(attrs)
	if err != nil {
		t.Fatalf("EncodeAttributes failed: %v", err)
	}

	decoded, err := DecodeAttributes(doc)
	if err != nil {
		t.Fatalf("DecodeAttributes failed: %v", err)
	}

	if len(decoded) != len(attrs) {
		t.Fatalf("expected %d attributes, got %d", len(attrs), len(decoded))
	}

	if got := decoded["int"].Int; got != 9007199254740993 {
		t.Errorf("int precision lost: got %d", got)
	}
	if got := decoded["str"].Str; got != "hello" {
		t.Errorf("expected str hello, got %q", got)
	}
	if decoded["bytes"].Bytes[1] != 0xff {
		t.Errorf("bytes not round-tripped: %v", decoded["bytes"].Bytes)
	}
	if got := decoded["list"].List; len(got) != 3 || got[2].List[0].Kind != KindBool {
		t.Errorf("nested list structure not preserved: %+v", got)
	}
	nested := decoded["map"].Map
	if nested["deeper"].Map["x"].Str != "y" {
		t.Errorf("nested map structure not preserved: %+v", nested)
	}
}

func TestValueNumericVariantsDistinct(t *testing.T) {
	// An integer 2 and a double 2.0 must stay distinguishable after a
	// round trip: the mapper never coerces between variants.
	iDoc, err := json.Marshal(IntValue(2))
	if err != nil {
		t.Fatal(err)
	}
	dDoc, err := json.Marshal(DoubleValue(2.0))
	if err != nil {
		t.Fatal(err)
	}
	if string(iDoc) == string(dDoc) {
		t.Fatalf("int and double encode identically: %s", iDoc)
	}

	var back Value
	if err := json.Unmarshal(iDoc, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind != KindInt || back.Int != 2 {
		t.Errorf("expected int 2 back, got kind=%d", back.Kind)
	}
}

func TestEncodeAttributesDeterministic(t *testing.T) {
	a := Attributes{"b": IntValue(2), "a": StringValue("x"), "c": BoolValue(true)}
	first, err := EncodeAttributes(a)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		doc, err := EncodeAttributes(Attributes{"c": BoolValue(true), "a": StringValue("x"), "b": IntValue(2)})
		if err != nil {
			t.Fatal(err)
		}
		if doc != first {
			t.Fatalf("encoding not deterministic: %s vs %s", doc, first)
		}
	}
}

func TestDecodeAttributesEmpty(t *testing.T) {
	attrs, err := DecodeAttributes("")
	if err != nil {
		t.Fatalf("empty document should decode: %v", err)
	}
	if len(attrs) != 0 {
		t.Errorf("expected empty set, got %d entries", len(attrs))
	}
}

func TestValueAsString(t *testing.T) {
	if got := IntValue(7).AsString(); got != "7" {
		t.Errorf("expected 7, got %q", got)
	}
	if got := DoubleValue(1.5).AsString(); got != "1.5" {
		t.Errorf("expected 1.5, got %q", got)
	}
	if got := BoolValue(true).AsString(); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
}
