package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CopilotEvent struct {
	Id              uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId       uuid.UUID      `gorm:"type:uuid;not null;index:idx_copilot_events_session_keyset,priority:1"`
	UserId          uuid.UUID      `gorm:"type:uuid;not null;index"`
	Kind            string         `gorm:"type:varchar(16);not null"`
	Content         string         `gorm:"type:text;not null"`
	Redactions      datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	PromptInjection bool           `gorm:"not null;default:false"`
	CreatedAt       time.Time      `gorm:"not null;index;index:idx_copilot_events_session_keyset,priority:2"`
}

func (CopilotEvent) TableName() string {
	return "copilot_events"
}

type CopilotSummary struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	UserId    uuid.UUID `gorm:"type:uuid;not null;index"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (CopilotSummary) TableName() string {
	return "copilot_summaries"
}
