package analyzer

import (
	"context"
	"sync/atomic"
)

// ProgressFunc is called once per finished translation unit with the number
// of units finished so far, the total and the unit's source file.
type ProgressFunc func(current, total int, file string)

// Tracker counts finished translation units. It is safe for concurrent use
// from multiple goroutines.
type Tracker struct {
	total    atomic.Int32
	current  atomic.Int32
	failed   atomic.Int32
	callback ProgressFunc
}

// NewTracker creates a tracker that invokes callback on every Tick and Fail.
func NewTracker(callback ProgressFunc) *Tracker {
	return &Tracker{callback: callback}
}

// Add grows the expected total by n.
func (t *Tracker) Add(n int) {
	t.total.Add(int32(n))
}

// Tick marks file as analyzed.
func (t *Tracker) Tick(file string) {
	t.advance(file)
}

// Fail marks file as finished without a usable result.
func (t *Tracker) Fail(file string) {
	t.failed.Add(1)
	t.advance(file)
}

func (t *Tracker) advance(file string) {
	current := int(t.current.Add(1))
	if t.callback != nil {
		t.callback(current, int(t.total.Load()), file)
	}
}

// Failed returns the number of units that produced no result.
func (t *Tracker) Failed() int {
	return int(t.failed.Load())
}

// Total returns the expected total.
func (t *Tracker) Total() int {
	return int(t.total.Load())
}

type trackerKey struct{}

// WithTracker returns a context that carries a progress tracker.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext extracts the progress tracker from the context.
// Returns nil if no tracker was set.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
