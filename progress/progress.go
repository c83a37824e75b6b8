package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by a producer or
// the scanner.
type Delta struct {
	Probed    int
	Available int
	Taken     int
	Transient int
	Generated int
	Batches   int
}

// Progress keeps aggregated counters for one run. It is safe for concurrent
// use.
type Progress struct {
	// Identification, filled when the run starts.
	RunID     string
	StateRoot string
	StartedAt time.Time

	// Counters, modified via Update().
	Probed           int
	Available        int
	Taken            int
	Transient        int
	Generated        int
	BatchesCompleted int

	sync.Mutex
	onChange func(Progress)
}

// Update applies the supplied delta. The onChange callback, when registered,
// runs with a copy of the tracker outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.Lock()
	p.Probed += d.Probed
	p.Available += d.Available
	p.Taken += d.Taken
	p.Transient += d.Transient
	p.Generated += d.Generated
	p.BatchesCompleted += d.Batches

	snapshot := p.copyLocked()
	cb := p.onChange
	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

func (p *Progress) copyLocked() Progress {
	return Progress{
		RunID:            p.RunID,
		StateRoot:        p.StateRoot,
		StartedAt:        p.StartedAt,
		Probed:           p.Probed,
		Available:        p.Available,
		Taken:            p.Taken,
		Transient:        p.Transient,
		Generated:        p.Generated,
		BatchesCompleted: p.BatchesCompleted,
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copyLocked()
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables it.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// New creates a tracker for the run.
func New(runID, stateRoot string) *Progress {
	return &Progress{RunID: runID, StateRoot: stateRoot, StartedAt: time.Now()}
}

// WithTracker embeds tr in a derived context.
func WithTracker(ctx context.Context, tr *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tr)
}

// WithNewTracker creates a tracker, embeds it in a derived context and
// returns both.
func WithNewTracker(ctx context.Context, runID, stateRoot string, onChange func(Progress)) (context.Context, *Progress) {
	tr := New(runID, stateRoot)
	tr.onChange = onChange
	return WithTracker(ctx, tr), tr
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// GetSnapshot combines FromContext and Snapshot.
func GetSnapshot(ctx context.Context) (Progress, bool) {
	if tr, ok := FromContext(ctx); ok {
		return tr.Snapshot(), true
	}
	return Progress{}, false
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
