package dto

import "time"

// FilterSpec selects records. Zero values disable a predicate: a zero Since or
// Until is unbounded, an empty Unit matches every unit and a nil Limit is
// unlimited. An inverted time range is not rejected; it matches nothing.
type FilterSpec struct {
	Since time.Time
	Until time.Time
	Unit  string
	Limit *int
}

func (f FilterSpec) HasTimeRange() bool {
	return !f.Since.IsZero() || !f.Until.IsZero()
}

// LimitValue returns the count limit and whether one is set.
func (f FilterSpec) LimitValue() (int, bool) {
	if f.Limit == nil {
		return 0, false
	}
	return *f.Limit, true
}

func IntPtr(n int) *int {
	return &n
}
