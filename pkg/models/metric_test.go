package models

import (
	"math"
	"testing"
)

func TestExpBucketLowerScaleZero(t *testing.T) {
	// Scale 0 means base 2: boundaries are exact powers of two.
	cases := map[int32]float64{
		-2: 0.25,
		-1: 0.5,
		0:  1,
		1:  2,
		10: 1024,
	}
	for index, want := range cases {
		if got := ExpBucketLower(0, index); got != want {
			t.Errorf("ExpBucketLower(0, %d) = %v, want %v", index, got, want)
		}
	}
}

func TestExpBucketLowerClosedForm(t *testing.T) {
	// The boundary must match 2^(index * 2^-scale) bit for bit.
	for _, scale := range []int32{-3, -1, 0, 1, 3, 5} {
		for index := int32(-50); index <= 50; index++ {
			want := math.Pow(2, float64(index)*math.Pow(2, -float64(scale)))
			got := ExpBucketLower(scale, index)
			if got != want && !(math.IsInf(got, 1) && math.IsInf(want, 1)) {
				t.Fatalf("scale=%d index=%d: got %v, want %v", scale, index, got, want)
			}
		}
	}
}

func TestExpBucketLowerMonotonic(t *testing.T) {
	for _, scale := range []int32{-2, 0, 2, 4} {
		prev := ExpBucketLower(scale, -100)
		for index := int32(-99); index <= 100; index++ {
			cur := ExpBucketLower(scale, index)
			if cur <= prev {
				t.Fatalf("boundaries not increasing at scale=%d index=%d: %v <= %v",
					scale, index, cur, prev)
			}
			prev = cur
		}
	}
}

func TestMetricDataShapeDispatch(t *testing.T) {
	cases := []struct {
		data MetricData
		typ  MetricType
		n    int
	}{
		{Gauge{Points: make([]NumberDataPoint, 2)}, MetricTypeGauge, 2},
		{Sum{Points: make([]NumberDataPoint, 1), Temporality: TemporalityDelta, IsMonotonic: true}, MetricTypeSum, 1},
		{Histogram{Points: make([]HistogramDataPoint, 3)}, MetricTypeHistogram, 3},
		{ExponentialHistogram{Points: make([]ExponentialHistogramDataPoint, 1)}, MetricTypeExponentialHistogram, 1},
		{Summary{Points: make([]SummaryDataPoint, 4)}, MetricTypeSummary, 4},
	}
	for _, c := range cases {
		if c.data.Type() != c.typ {
			t.Errorf("expected type %s, got %s", c.typ, c.data.Type())
		}
		if c.data.PointCount() != c.n {
			t.Errorf("%s: expected %d points, got %d", c.typ, c.n, c.data.PointCount())
		}
	}
}

func TestSpanKindAndStatusNames(t *testing.T) {
	if SpanKindClient.String() != "CLIENT" {
		t.Errorf("unexpected kind name %q", SpanKindClient.String())
	}
	if SpanKind(99).String() != "UNSPECIFIED" {
		t.Errorf("unknown kind should render UNSPECIFIED")
	}
	if StatusError.String() != "ERROR" {
		t.Errorf("unexpected status name %q", StatusError.String())
	}
}
