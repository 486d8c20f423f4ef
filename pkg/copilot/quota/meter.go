package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Unlimited is the limit value meaning "no ceiling", as in plan limits.
const Unlimited = -1

type Window struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

func (w Window) Remaining() int {
	if w.Limit < 0 {
		return math.MaxInt32
	}
	if w.Used >= w.Limit {
		return 0
	}
	return w.Limit - w.Used
}

func (w Window) Allowed() bool {
	if w.Limit < 0 {
		return true
	}
	return w.Used < w.Limit
}

// Snapshot holds the three independent ceilings. They are not a shared budget:
// every one of them must allow an action.
type Snapshot struct {
	Monthly    Window `json:"monthly"`
	Daily      Window `json:"daily"`
	PerSession Window `json:"per_session"`
}

func (s Snapshot) Allowed() bool {
	return s.Monthly.Allowed() && s.Daily.Allowed() && s.PerSession.Allowed()
}

// Blocking returns the names of the windows at capacity.
func (s Snapshot) Blocking() []string {
	var out []string
	if !s.Monthly.Allowed() {
		out = append(out, "monthly")
	}
	if !s.Daily.Allowed() {
		out = append(out, "daily")
	}
	if !s.PerSession.Allowed() {
		out = append(out, "per_session")
	}
	return out
}

type ElapsedUsage struct {
	ElapsedSeconds int `json:"elapsed_seconds"`
	ElapsedMinutes int `json:"elapsed_minutes"`
}

// GetElapsedUsage floors to whole seconds and rounds a partial minute up.
func GetElapsedUsage(startedAt, now time.Time) ElapsedUsage {
	ms := now.Sub(startedAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	seconds := int(ms / 1000)
	return ElapsedUsage{
		ElapsedSeconds: seconds,
		ElapsedMinutes: (seconds + 59) / 60,
	}
}

// GetBillableMinutes caps requested by the tightest remaining window.
func GetBillableMinutes(requested int, q Snapshot) int {
	billable := min(requested, q.Monthly.Remaining(), q.Daily.Remaining(), q.PerSession.Remaining())
	return max(0, billable)
}

type Billing struct {
	RequestedMinutes int  `json:"requested_minutes"`
	BillableMinutes  int  `json:"billable_minutes"`
	QuotaLimited     bool `json:"quota_limited"`
}

func Bill(requested int, q Snapshot) Billing {
	billable := GetBillableMinutes(requested, q)
	return Billing{
		RequestedMinutes: requested,
		BillableMinutes:  billable,
		QuotaLimited:     billable < requested,
	}
}

type Limits struct {
	Monthly    int
	Daily      int
	PerSession int
}

// Override replaces individual limits for one user; nil keeps the default.
type Override struct {
	Monthly    *int
	Daily      *int
	PerSession *int
}

func (l Limits) Apply(o *Override) Limits {
	if o == nil {
		return l
	}
	if o.Monthly != nil {
		l.Monthly = *o.Monthly
	}
	if o.Daily != nil {
		l.Daily = *o.Daily
	}
	if o.PerSession != nil {
		l.PerSession = *o.PerSession
	}
	return l
}

// Store is the collaborator holding usage records and per-user overrides.
type Store interface {
	SumMinutes(ctx context.Context, userId uuid.UUID, from, to time.Time) (int, error)
	FindOverride(ctx context.Context, userId uuid.UUID) (*Override, error)
	RecordUsage(ctx context.Context, userId, sessionId uuid.UUID, minutes int, at time.Time) error
}

type Meter struct {
	store    Store
	defaults Limits
	clock    func() time.Time
}

func NewMeter(store Store, defaults Limits, clock func() time.Time) *Meter {
	if clock == nil {
		clock = time.Now
	}
	return &Meter{store: store, defaults: defaults, clock: clock}
}

// MonthWindow and DayWindow are calendar windows in UTC.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func DayWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// GetQuotaSnapshot reads the monthly sum, daily sum and limit overrides
// concurrently. The per-session window meters a single session, so its used
// value starts at zero.
func (m *Meter) GetQuotaSnapshot(ctx context.Context, userId uuid.UUID) (Snapshot, error) {
	now := m.clock()
	monthFrom, monthTo := MonthWindow(now)
	dayFrom, dayTo := DayWindow(now)

	var monthly, daily int
	var override *Override

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := m.store.SumMinutes(gctx, userId, monthFrom, monthTo)
		if err != nil {
			return fmt.Errorf("sum monthly usage: %w", err)
		}
		monthly = v
		return nil
	})
	g.Go(func() error {
		v, err := m.store.SumMinutes(gctx, userId, dayFrom, dayTo)
		if err != nil {
			return fmt.Errorf("sum daily usage: %w", err)
		}
		daily = v
		return nil
	})
	g.Go(func() error {
		v, err := m.store.FindOverride(gctx, userId)
		if err != nil {
			return fmt.Errorf("find quota override: %w", err)
		}
		override = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	limits := m.defaults.Apply(override)

	return Snapshot{
		Monthly:    Window{Used: monthly, Limit: limits.Monthly},
		Daily:      Window{Used: daily, Limit: limits.Daily},
		PerSession: Window{Used: 0, Limit: limits.PerSession},
	}, nil
}

// RecordUsage writes the single usage record for a finalized session. Only the
// winner of the terminal transition may call it.
func (m *Meter) RecordUsage(ctx context.Context, userId, sessionId uuid.UUID, minutes int) error {
	if minutes < 0 {
		minutes = 0
	}
	return m.store.RecordUsage(ctx, userId, sessionId, minutes, m.clock())
}
