package entity

import (
	"time"

	"github.com/google/uuid"
)

type CopilotEventKind string

const (
	CopilotEventKindTranscript CopilotEventKind = "transcript"
	CopilotEventKindQuestion   CopilotEventKind = "question"
	CopilotEventKindSuggestion CopilotEventKind = "suggestion"
	CopilotEventKindNote       CopilotEventKind = "note"
)

func (k CopilotEventKind) Valid() bool {
	switch k {
	case CopilotEventKindTranscript, CopilotEventKindQuestion, CopilotEventKindSuggestion, CopilotEventKindNote:
		return true
	}
	return false
}

// CopilotEvent holds content that already went through the guardrail.
type CopilotEvent struct {
	Id              uuid.UUID
	SessionId       uuid.UUID
	UserId          uuid.UUID
	Kind            CopilotEventKind
	Content         string
	Redactions      []string
	PromptInjection bool
	CreatedAt       time.Time
}

// CursorKey implements cursor.Row.
func (e *CopilotEvent) CursorKey() (time.Time, string) {
	return e.CreatedAt, e.Id.String()
}

type CopilotSummary struct {
	Id        uuid.UUID
	SessionId uuid.UUID
	UserId    uuid.UUID
	Content   string
	CreatedAt time.Time
}

// CopilotUsageRecord is written exactly once per finalized session.
type CopilotUsageRecord struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	SessionId uuid.UUID
	Minutes   int
	CreatedAt time.Time
}

// CopilotQuotaOverride replaces configured limits for a single user. Nil
// fields fall back to the configured default; a negative limit is unlimited.
type CopilotQuotaOverride struct {
	UserId          uuid.UUID
	MonthlyLimit    *int
	DailyLimit      *int
	PerSessionLimit *int
	UpdatedAt       time.Time
}
