package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EntityClass string

const (
	EntityEvents    EntityClass = "events"
	EntitySummaries EntityClass = "summaries"
	EntitySessions  EntityClass = "sessions"
)

type Policy struct {
	EventsDays    int `json:"events_days"`
	SummariesDays int `json:"summaries_days"`
	SessionsDays  int `json:"sessions_days"`
}

var DefaultPolicy = Policy{EventsDays: 30, SummariesDays: 90, SessionsDays: 90}

// Overrides replaces individual fields of the default policy. Nil and
// non-positive values keep the default.
type Overrides struct {
	EventsDays    *int `json:"events_days,omitempty"`
	SummariesDays *int `json:"summaries_days,omitempty"`
	SessionsDays  *int `json:"sessions_days,omitempty"`
}

func ResolvePolicy(base Policy, o Overrides) Policy {
	p := base
	if o.EventsDays != nil && *o.EventsDays > 0 {
		p.EventsDays = *o.EventsDays
	}
	if o.SummariesDays != nil && *o.SummariesDays > 0 {
		p.SummariesDays = *o.SummariesDays
	}
	if o.SessionsDays != nil && *o.SessionsDays > 0 {
		p.SessionsDays = *o.SessionsDays
	}
	return p
}

type Cutoffs struct {
	Events    time.Time `json:"events"`
	Summaries time.Time `json:"summaries"`
	Sessions  time.Time `json:"sessions"`
}

func ComputeCutoffs(now time.Time, p Policy) Cutoffs {
	day := 24 * time.Hour
	return Cutoffs{
		Events:    now.Add(-time.Duration(p.EventsDays) * day),
		Summaries: now.Add(-time.Duration(p.SummariesDays) * day),
		Sessions:  now.Add(-time.Duration(p.SessionsDays) * day),
	}
}

// Filter scopes a bulk delete. A delete must carry at least one of
// CreatedBefore or UserId; Statuses restricts session deletes.
type Filter struct {
	CreatedBefore *time.Time
	UserId        *uuid.UUID
	Statuses      []string
}

var ErrUnscopedDelete = errors.New("refusing unscoped delete")

func (f Filter) Validate() error {
	if f.CreatedBefore == nil && f.UserId == nil {
		return ErrUnscopedDelete
	}
	return nil
}

// Deleter is the bulk-delete collaborator.
type Deleter interface {
	Delete(ctx context.Context, class EntityClass, filter Filter) (int64, error)
}

type Deleted struct {
	Events    int64 `json:"events"`
	Summaries int64 `json:"summaries"`
	Sessions  int64 `json:"sessions"`
}

type Result struct {
	DryRun  bool    `json:"dry_run"`
	Policy  Policy  `json:"policy"`
	Cutoffs Cutoffs `json:"cutoffs"`
	Deleted Deleted `json:"deleted"`
}

// TerminalStatuses are the only session statuses an age-based sweep removes.
var TerminalStatuses = []string{"stopped", "expired"}

type sweepOptions struct {
	live bool
}

type Option func(*sweepOptions)

// Live turns off the dry-run default.
func Live() Option {
	return func(o *sweepOptions) { o.live = true }
}

// DryRun sets the mode from a boolean, for callers that parse it from input.
func DryRun(dry bool) Option {
	return func(o *sweepOptions) { o.live = !dry }
}

type Sweeper struct {
	deleter Deleter
}

func NewSweeper(deleter Deleter) *Sweeper {
	return &Sweeper{deleter: deleter}
}

// Sweep computes cutoffs for policy and, in live mode only, deletes aged rows.
// Dry run is the default. The first failed delete aborts the sweep; callers
// running inside a transaction roll back whatever already ran.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, policy Policy, opts ...Option) (*Result, error) {
	o := sweepOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{
		DryRun:  !o.live,
		Policy:  policy,
		Cutoffs: ComputeCutoffs(now, policy),
	}
	if !o.live {
		return res, nil
	}

	steps := []struct {
		class  EntityClass
		filter Filter
		count  *int64
	}{
		{EntityEvents, Filter{CreatedBefore: &res.Cutoffs.Events}, &res.Deleted.Events},
		{EntitySummaries, Filter{CreatedBefore: &res.Cutoffs.Summaries}, &res.Deleted.Summaries},
		{EntitySessions, Filter{CreatedBefore: &res.Cutoffs.Sessions, Statuses: TerminalStatuses}, &res.Deleted.Sessions},
	}
	for _, step := range steps {
		n, err := s.deleter.Delete(ctx, step.class, step.filter)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", step.class, err)
		}
		*step.count = n
	}
	return res, nil
}
