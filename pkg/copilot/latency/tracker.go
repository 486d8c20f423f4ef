package latency

import (
	"sync"
	"time"
)

// Tracker holds the timelines of in-flight requests keyed by request id.
// Entries leave the map only through Finish.
type Tracker struct {
	mu     sync.Mutex
	active map[string]*Timeline
	clock  func() time.Time
}

func NewTracker(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{active: make(map[string]*Timeline), clock: clock}
}

func (tr *Tracker) Begin(requestId string) *Timeline {
	tl := NewTimeline(requestId, tr.clock)
	tr.mu.Lock()
	tr.active[requestId] = tl
	tr.mu.Unlock()
	return tl
}

func (tr *Tracker) Get(requestId string) *Timeline {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.active[requestId]
}

// Finish removes the timeline and returns its snapshot. ok is false for an
// unknown request id.
func (tr *Tracker) Finish(requestId string) (Snapshot, bool) {
	tr.mu.Lock()
	tl, ok := tr.active[requestId]
	delete(tr.active, requestId)
	tr.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return tl.Snapshot(), true
}

func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.active)
}
