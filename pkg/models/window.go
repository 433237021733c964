package models

// TimeWindow is an optional [start, end) nanosecond query window. A
// zero bound means "unbounded" on that side.
type TimeWindow struct {
	StartUnixNano int64
	EndUnixNano   int64
}

// IsZero reports whether no window was requested.
func (w TimeWindow) IsZero() bool {
	return w.StartUnixNano == 0 && w.EndUnixNano == 0
}

// ContainsPoint reports whether an instant falls inside the window.
func (w TimeWindow) ContainsPoint(ts int64) bool {
	if w.StartUnixNano != 0 && ts < w.StartUnixNano {
		return false
	}
	if w.EndUnixNano != 0 && ts >= w.EndUnixNano {
		return false
	}
	return true
}

// OverlapsRange reports whether a [start, end] interval (a span's
// lifetime) overlaps the window: the interval must begin before the
// window closes and end at or after it opens.
func (w TimeWindow) OverlapsRange(start, end int64) bool {
	if w.EndUnixNano != 0 && start >= w.EndUnixNano {
		return false
	}
	if w.StartUnixNano != 0 && end < w.StartUnixNano {
		return false
	}
	return true
}
