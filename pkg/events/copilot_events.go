package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionStarted = "copilot.session.started"
	SessionStopped = "copilot.session.stopped"
	SessionExpired = "copilot.session.expired"
	SessionsPurged = "copilot.session.purged"
	RetentionSwept = "copilot.retention.swept"
)

// SessionSubjects matches every session lifecycle event.
const SessionSubjects = "copilot.session.>"

func NewSessionEvent(eventType string, userId, sessionId uuid.UUID, at time.Time, extra map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"user_id":     userId.String(),
		"session_id":  sessionId.String(),
		"occurred_at": at.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		data[k] = v
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: at}
}

func NewPurgeEvent(userId uuid.UUID, at time.Time, counts map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"user_id":     userId.String(),
		"occurred_at": at.UTC().Format(time.RFC3339Nano),
		"deleted":     counts,
	}
	return BaseEvent{Type: SessionsPurged, Data: data, OccurredAt: at}
}

func NewSweepEvent(at time.Time, result map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"occurred_at": at.UTC().Format(time.RFC3339Nano),
		"result":      result,
	}
	return BaseEvent{Type: RetentionSwept, Data: data, OccurredAt: at}
}
