package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/specification"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/pkg/copilot/quota"
	"interview-copilot-be/pkg/copilot/retention"
	"interview-copilot-be/pkg/events"
	"interview-copilot-be/pkg/llm"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for Postgres. Repositories interpret the
// specification structs they receive instead of building SQL.
type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]entity.CopilotSession
	events    []entity.CopilotEvent
	summaries map[uuid.UUID]entity.CopilotSummary
	usage     []entity.CopilotUsageRecord
	override  *quota.Override

	// beforeCAS runs just before a conditional write, outside the lock, to
	// simulate a concurrent writer.
	beforeCAS    func()
	beforeCreate func()
	deleteErr    error
	deletes      int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[uuid.UUID]entity.CopilotSession),
		summaries: make(map[uuid.UUID]entity.CopilotSummary),
	}
}

func (m *memStore) session(id uuid.UUID) entity.CopilotSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) usageFor(sessionId uuid.UUID) []entity.CopilotUsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.CopilotUsageRecord
	for _, u := range m.usage {
		if u.SessionId == sessionId {
			out = append(out, u)
		}
	}
	return out
}

func (m *memStore) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &memUnitOfWork{store: m}
}

type memUnitOfWork struct {
	store *memStore
}

func (u *memUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *memUnitOfWork) Commit() error                   { return nil }
func (u *memUnitOfWork) Rollback() error                 { return nil }

func (u *memUnitOfWork) CopilotSessionRepository() contract.CopilotSessionRepository {
	return &memSessionRepo{u.store}
}
func (u *memUnitOfWork) CopilotEventRepository() contract.CopilotEventRepository {
	return &memEventRepo{u.store}
}
func (u *memUnitOfWork) CopilotSummaryRepository() contract.CopilotSummaryRepository {
	return &memSummaryRepo{u.store}
}
func (u *memUnitOfWork) CopilotUsageRepository() contract.CopilotUsageRepository {
	return &memUsageRepo{u.store}
}
func (u *memUnitOfWork) CopilotRetentionRepository() contract.CopilotRetentionRepository {
	return &memRetentionRepo{u.store}
}

type memSessionRepo struct{ s *memStore }

func matchSession(sess *entity.CopilotSession, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch sp := spec.(type) {
		case specification.ByID:
			if sess.Id != sp.ID {
				return false
			}
		case specification.UserOwnedBy:
			if sess.UserId != sp.UserID {
				return false
			}
		case specification.ByStatus:
			found := false
			for _, st := range sp.Statuses {
				if sess.Status == st {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (r *memSessionRepo) Create(ctx context.Context, session *entity.CopilotSession) error {
	if hook := r.s.beforeCreate; hook != nil {
		r.s.beforeCreate = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.sessions {
		if other.UserId == session.UserId && other.Status == entity.CopilotSessionStatusActive {
			return contract.ErrActiveSessionExists
		}
	}
	stored := *session
	stored.Metadata = session.Metadata.Clone()
	r.s.sessions[session.Id] = stored
	return nil
}

func (r *memSessionRepo) CompareAndSwap(ctx context.Context, session *entity.CopilotSession, expected entity.CopilotSessionStatus) (bool, error) {
	if hook := r.s.beforeCAS; hook != nil {
		r.s.beforeCAS = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.sessions[session.Id]
	if !ok || cur.UserId != session.UserId || cur.Status != expected {
		return false, nil
	}
	cur.Status = session.Status
	cur.StoppedAt = session.StoppedAt
	cur.DurationSeconds = session.DurationSeconds
	cur.ConsumedMinutes = session.ConsumedMinutes
	cur.Metadata = session.Metadata.Clone()
	r.s.sessions[session.Id] = cur
	return true, nil
}

func (r *memSessionRepo) PatchHeartbeat(ctx context.Context, session *entity.CopilotSession, heartbeat entity.HeartbeatState) (bool, error) {
	return r.patch(session, func(cur *entity.CopilotSession) { cur.Metadata.Heartbeat = heartbeat })
}

func (r *memSessionRepo) PatchConsent(ctx context.Context, session *entity.CopilotSession, consent entity.ConsentState) (bool, error) {
	c := consent
	c.Audit = append([]entity.ConsentAuditEntry(nil), consent.Audit...)
	return r.patch(session, func(cur *entity.CopilotSession) { cur.Metadata.Consent = c })
}

func (r *memSessionRepo) patch(session *entity.CopilotSession, apply func(cur *entity.CopilotSession)) (bool, error) {
	if hook := r.s.beforeCAS; hook != nil {
		r.s.beforeCAS = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.sessions[session.Id]
	if !ok || cur.UserId != session.UserId || cur.Status != entity.CopilotSessionStatusActive {
		return false, nil
	}
	cur.Metadata = cur.Metadata.Clone()
	apply(&cur)
	r.s.sessions[session.Id] = cur
	return true, nil
}

func (r *memSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSession, error) {
	all, _ := r.FindAll(ctx, specs...)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (r *memSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.CopilotSession
	for _, sess := range r.s.sessions {
		sess := sess
		if matchSession(&sess, specs) {
			sess.Metadata = sess.Metadata.Clone()
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

type memEventRepo struct{ s *memStore }

func (r *memEventRepo) Create(ctx context.Context, event *entity.CopilotEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	r.s.events = append(r.s.events, *event)
	return nil
}

func (r *memEventRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	desc := false
	limit := 0
	var out []*entity.CopilotEvent
	for i := range r.s.events {
		e := r.s.events[i]
		keep := true
		for _, spec := range specs {
			switch sp := spec.(type) {
			case specification.BySessionID:
				keep = keep && e.SessionId == sp.SessionID
			case specification.UserOwnedBy:
				keep = keep && e.UserId == sp.UserID
			case specification.AfterCursor:
				keep = keep && sp.Cursor.IsAfter(e.CreatedAt, e.Id.String())
			}
		}
		if keep {
			out = append(out, &e)
		}
	}
	for _, spec := range specs {
		switch sp := spec.(type) {
		case specification.KeysetOrder:
			desc = sp.Desc
		case specification.Limit:
			limit = sp.N
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		less := a.CreatedAt.Before(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.Id.String() < b.Id.String())
		if desc {
			return !less
		}
		return less
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSummaryRepo struct{ s *memStore }

func (r *memSummaryRepo) Save(ctx context.Context, summary *entity.CopilotSummary) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.summaries[summary.SessionId] = *summary
	return nil
}

func (r *memSummaryRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, spec := range specs {
		if sp, ok := spec.(specification.BySessionID); ok {
			if sum, ok := r.s.summaries[sp.SessionID]; ok {
				return &sum, nil
			}
		}
	}
	return nil, nil
}

type memUsageRepo struct{ s *memStore }

func (r *memUsageRepo) SumMinutes(ctx context.Context, userId uuid.UUID, from, to time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0
	for _, u := range r.s.usage {
		if u.UserId == userId && !u.CreatedAt.Before(from) && u.CreatedAt.Before(to) {
			total += u.Minutes
		}
	}
	return total, nil
}

func (r *memUsageRepo) FindOverride(ctx context.Context, userId uuid.UUID) (*quota.Override, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.override, nil
}

func (r *memUsageRepo) RecordUsage(ctx context.Context, userId, sessionId uuid.UUID, minutes int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.usage {
		if u.SessionId == sessionId {
			return nil
		}
	}
	r.s.usage = append(r.s.usage, entity.CopilotUsageRecord{
		Id: uuid.New(), UserId: userId, SessionId: sessionId, Minutes: minutes, CreatedAt: at,
	})
	return nil
}

type memRetentionRepo struct{ s *memStore }

func (r *memRetentionRepo) Delete(ctx context.Context, class retention.EntityClass, f retention.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.deleteErr != nil {
		return 0, r.s.deleteErr
	}
	r.s.deletes++

	inScope := func(userId uuid.UUID, createdAt time.Time) bool {
		if f.UserId != nil && userId != *f.UserId {
			return false
		}
		if f.CreatedBefore != nil && !createdAt.Before(*f.CreatedBefore) {
			return false
		}
		return true
	}

	var n int64
	switch class {
	case retention.EntityEvents:
		kept := r.s.events[:0]
		for _, e := range r.s.events {
			if inScope(e.UserId, e.CreatedAt) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		r.s.events = kept
	case retention.EntitySummaries:
		for id, sum := range r.s.summaries {
			if inScope(sum.UserId, sum.CreatedAt) {
				delete(r.s.summaries, id)
				n++
			}
		}
	case retention.EntitySessions:
		statuses := f.Statuses
		if len(statuses) == 0 {
			statuses = retention.TerminalStatuses
		}
		for id, sess := range r.s.sessions {
			if !inScope(sess.UserId, sess.CreatedAt) {
				continue
			}
			for _, st := range statuses {
				if string(sess.Status) == st {
					delete(r.s.sessions, id)
					n++
					break
				}
			}
		}
	}
	return n, nil
}

func (r *memRetentionRepo) Purge(ctx context.Context, f retention.Filter) (retention.Deleted, error) {
	var out retention.Deleted
	var err error
	if out.Events, err = r.Delete(ctx, retention.EntityEvents, f); err != nil {
		return retention.Deleted{}, err
	}
	if out.Summaries, err = r.Delete(ctx, retention.EntitySummaries, f); err != nil {
		return retention.Deleted{}, err
	}
	if out.Sessions, err = r.Delete(ctx, retention.EntitySessions, f); err != nil {
		return retention.Deleted{}, err
	}
	return out, nil
}

// manualClock only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return limit <= 0 || l.counts[key] <= limit, nil
}

type scriptedLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	history [][]llm.Message
}

func (f *scriptedLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, history)
	return f.reply, f.err
}

func (f *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type push struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Type      string
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []push
}

func (p *recordingPusher) Push(userID, sessionID uuid.UUID, msgType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{userID, sessionID, msgType})
}

type recordingSummaries struct {
	mu   sync.Mutex
	jobs []SummaryJob
}

func (r *recordingSummaries) Enqueue(ctx context.Context, job SummaryJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSummaries) Consume(ctx context.Context) error { return nil }
