package dto

import (
	"time"

	"interview-copilot-be/pkg/copilot/consent"
	"interview-copilot-be/pkg/copilot/quota"
	"interview-copilot-be/pkg/copilot/retention"

	"github.com/google/uuid"
)

type StartSessionRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=general behavioral technical coding"`
}

type SessionResponse struct {
	Id              uuid.UUID   `json:"id"`
	Status          string      `json:"status"`
	Mode            string      `json:"mode"`
	StartedAt       time.Time   `json:"started_at"`
	StoppedAt       *time.Time  `json:"stopped_at,omitempty"`
	DurationSeconds int         `json:"duration_seconds"`
	ConsumedMinutes int         `json:"consumed_minutes"`
	Consent         ConsentInfo `json:"consent"`
	LastHeartbeatAt time.Time   `json:"last_heartbeat_at"`
}

type ConsentInfo struct {
	Status    string     `json:"status"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

type StartSessionResponse struct {
	Session SessionResponse `json:"session"`
	Quota   quota.Snapshot  `json:"quota"`
}

type HeartbeatResponse struct {
	SessionId       uuid.UUID `json:"session_id"`
	Status          string    `json:"status"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

type StopSessionResponse struct {
	Session        SessionResponse `json:"session"`
	AlreadyStopped bool            `json:"already_stopped"`
	Billing        *quota.Billing  `json:"billing,omitempty"`
}

type IngestEventRequest struct {
	Kind       string     `json:"kind" validate:"required,oneof=transcript question suggestion note"`
	Content    string     `json:"content" validate:"required"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

type EventResponse struct {
	Id              uuid.UUID `json:"id"`
	SessionId       uuid.UUID `json:"session_id"`
	Kind            string    `json:"kind"`
	Content         string    `json:"content"`
	Redactions      []string  `json:"redactions"`
	PromptInjection bool      `json:"prompt_injection"`
	CreatedAt       time.Time `json:"created_at"`
}

type ListEventsRequest struct {
	Cursor string `query:"cursor"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
}

type EventPageResponse struct {
	Events     []EventResponse `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

type SuggestionRequest struct {
	Question string `json:"question" validate:"required"`
}

type SuggestionResponse struct {
	SessionId       uuid.UUID `json:"session_id"`
	Suggestions     []string  `json:"suggestions"`
	PromptInjection bool      `json:"prompt_injection"`
	Redactions      []string  `json:"redactions"`
}

type ConsentRequest struct {
	Action string `json:"action" validate:"required,oneof=grant revoke"`
}

type ConsentResponse struct {
	SessionId uuid.UUID        `json:"session_id"`
	Consent   ConsentInfo      `json:"consent"`
	Decision  consent.Decision `json:"decision"`
}

type QuotaResponse struct {
	Quota    quota.Snapshot `json:"quota"`
	Allowed  bool           `json:"allowed"`
	Blocking []string       `json:"blocking,omitempty"`
}

type PurgeRequest struct {
	Confirmation string `json:"confirmation"`
}

type PurgeResponse struct {
	Deleted retention.Deleted `json:"deleted"`
}

type SweepRequest struct {
	// DryRun defaults to true; only an explicit false deletes.
	DryRun        *bool `json:"dry_run,omitempty"`
	EventsDays    *int  `json:"events_days,omitempty" validate:"omitempty,min=1"`
	SummariesDays *int  `json:"summaries_days,omitempty" validate:"omitempty,min=1"`
	SessionsDays  *int  `json:"sessions_days,omitempty" validate:"omitempty,min=1"`
}

// QuotaExceededError carries the three windows so the caller can see which
// one blocked admission.
type QuotaExceededError struct {
	Quota quota.Snapshot
}

func (e *QuotaExceededError) Error() string {
	return "copilot quota exceeded"
}

// QuotaExceededData is the data payload for quota_exceeded responses
type QuotaExceededData struct {
	Monthly    quota.Window `json:"monthly"`
	Daily      quota.Window `json:"daily"`
	PerSession quota.Window `json:"per_session"`
	Blocking   []string     `json:"blocking"`
}

func (e *QuotaExceededError) Data() QuotaExceededData {
	return QuotaExceededData{
		Monthly:    e.Quota.Monthly,
		Daily:      e.Quota.Daily,
		PerSession: e.Quota.PerSession,
		Blocking:   e.Quota.Blocking(),
	}
}
