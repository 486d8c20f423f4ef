package lifecycle

import (
	"fmt"
	"time"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/pkg/copilot/consent"
)

const DefaultHeartbeatTimeout = 60 * time.Second

// LastHeartbeat resolves the liveness reference point: the recorded heartbeat,
// then the creation timestamp kept in metadata, then started_at.
func LastHeartbeat(session *entity.CopilotSession) time.Time {
	hb := session.Metadata.Heartbeat
	if hb.LastHeartbeatAt != nil && !hb.LastHeartbeatAt.IsZero() {
		return *hb.LastHeartbeatAt
	}
	if hb.CreatedAt != nil && !hb.CreatedAt.IsZero() {
		return *hb.CreatedAt
	}
	return session.StartedAt
}

// EvaluateLiveness reports whether an active session has gone stale. Terminal
// sessions are never stale. A non-positive timeout uses the default.
func EvaluateLiveness(session *entity.CopilotSession, now time.Time, timeout time.Duration) bool {
	if session == nil || session.Status != entity.CopilotSessionStatusActive {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return now.Sub(LastHeartbeat(session)) > timeout
}

// RefreshHeartbeat returns a metadata patch with the heartbeat set to now and
// every other key left as it was.
func RefreshHeartbeat(meta entity.SessionMetadata, now time.Time) entity.SessionMetadata {
	out := meta.Clone()
	at := now
	out.Heartbeat.LastHeartbeatAt = &at
	return out
}

// CanTransition allows only active -> stopped and active -> expired.
func CanTransition(from, to entity.CopilotSessionStatus) bool {
	if from != entity.CopilotSessionStatusActive {
		return false
	}
	return to == entity.CopilotSessionStatusStopped || to == entity.CopilotSessionStatusExpired
}

// NewSession builds an active session with consent granted and the heartbeat
// clock started at startedAt.
func NewSession(base entity.CopilotSession, startedAt time.Time) entity.CopilotSession {
	s := base
	s.Status = entity.CopilotSessionStatusActive
	s.StartedAt = startedAt
	s.StoppedAt = nil
	s.DurationSeconds = 0
	s.ConsumedMinutes = 0
	s.CreatedAt = startedAt

	meta := consent.Grant(base.Metadata, startedAt)
	created := startedAt
	meta.Heartbeat.CreatedAt = &created
	meta.Heartbeat.LastHeartbeatAt = &created
	s.Metadata = meta
	return s
}

// Transition is the one-time terminal write computed for a session. It is
// applied with a conditional update expecting From.
type Transition struct {
	From            entity.CopilotSessionStatus
	To              entity.CopilotSessionStatus
	StoppedAt       time.Time
	DurationSeconds int
	ConsumedMinutes int
	Metadata        entity.SessionMetadata
}

// PlanTermination computes the terminal transition for session. A stop ends
// the session at now; an expiry ends it at the last heartbeat so that stale
// time is not billed. consumedMinutes is the billable amount already capped
// by quota. stopped_at is clamped so it never precedes started_at.
func PlanTermination(session *entity.CopilotSession, to entity.CopilotSessionStatus, now time.Time, consumedMinutes int) (*Transition, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if !CanTransition(session.Status, to) {
		return nil, fmt.Errorf("invalid transition %s -> %s", session.Status, to)
	}

	end := EndOf(session, to, now)
	var meta entity.SessionMetadata
	if to == entity.CopilotSessionStatusExpired {
		meta = consent.Expire(session.Metadata, end)
	} else {
		meta = consent.Revoke(session.Metadata, now)
	}
	if consumedMinutes < 0 {
		consumedMinutes = 0
	}

	return &Transition{
		From:            session.Status,
		To:              to,
		StoppedAt:       end,
		DurationSeconds: int(end.Sub(session.StartedAt) / time.Second),
		ConsumedMinutes: consumedMinutes,
		Metadata:        meta,
	}, nil
}

// EndOf returns the instant a termination at now would record. The quota
// meter bills the interval [started_at, EndOf].
func EndOf(session *entity.CopilotSession, to entity.CopilotSessionStatus, now time.Time) time.Time {
	end := now
	if to == entity.CopilotSessionStatusExpired {
		end = LastHeartbeat(session)
	}
	if end.Before(session.StartedAt) {
		return session.StartedAt
	}
	return end
}

// Apply copies a transition onto session, as the store holds it after a
// successful conditional write.
func (t *Transition) Apply(session *entity.CopilotSession) {
	stoppedAt := t.StoppedAt
	session.Status = t.To
	session.StoppedAt = &stoppedAt
	session.DurationSeconds = t.DurationSeconds
	session.ConsumedMinutes = t.ConsumedMinutes
	session.Metadata = t.Metadata
}
