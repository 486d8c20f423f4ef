package latency

import (
	"context"
	"sync"
	"time"
)

const (
	StageAuth      = "auth"
	StageLoad      = "load"
	StageGuardrail = "guardrail"
	StageInference = "inference"
	StagePersist   = "persist"
)

type Stage struct {
	Name    string     `json:"name"`
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}

func (s Stage) Duration() time.Duration {
	if s.EndAt == nil {
		return 0
	}
	return s.EndAt.Sub(s.StartAt)
}

type StageSnapshot struct {
	Name       string  `json:"name"`
	DurationMs float64 `json:"duration_ms"`
}

type Snapshot struct {
	RequestId string          `json:"request_id"`
	SessionId string          `json:"session_id,omitempty"`
	Stages    []StageSnapshot `json:"stages"`
	TotalMs   float64         `json:"total_ms"`
}

// Timeline records named stages for one request. All methods are safe on a
// nil receiver so handlers can instrument without checking.
type Timeline struct {
	mu        sync.Mutex
	requestId string
	sessionId string
	stages    []Stage
	clock     func() time.Time
}

func NewTimeline(requestId string, clock func() time.Time) *Timeline {
	if clock == nil {
		clock = time.Now
	}
	return &Timeline{requestId: requestId, clock: clock}
}

func (t *Timeline) SetSession(sessionId string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.sessionId = sessionId
	t.mu.Unlock()
}

func (t *Timeline) Start(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, Stage{Name: name, StartAt: t.clock()})
}

// End closes the first unclosed stage with this name. It reports false when
// there is nothing to close.
func (t *Timeline) End(name string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.stages {
		if t.stages[i].Name == name && t.stages[i].EndAt == nil {
			end := t.clock()
			t.stages[i].EndAt = &end
			return true
		}
	}
	return false
}

// Measure runs fn inside a named stage.
func (t *Timeline) Measure(name string, fn func() error) error {
	t.Start(name)
	defer t.End(name)
	return fn()
}

func (t *Timeline) Total() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, s := range t.stages {
		total += s.Duration()
	}
	return total
}

// Snapshot exports completed stages only.
func (t *Timeline) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{RequestId: t.requestId, SessionId: t.sessionId, Stages: []StageSnapshot{}}
	var total time.Duration
	for _, s := range t.stages {
		if s.EndAt == nil {
			continue
		}
		d := s.Duration()
		total += d
		snap.Stages = append(snap.Stages, StageSnapshot{Name: s.Name, DurationMs: ms(d)})
	}
	snap.TotalMs = ms(total)
	return snap
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

type ctxKey struct{}

func WithTimeline(ctx context.Context, t *Timeline) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the request timeline, or nil when none is attached.
func FromContext(ctx context.Context) *Timeline {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(ctxKey{}).(*Timeline)
	return t
}
