package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CopilotSession struct {
	Id              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId          uuid.UUID `gorm:"type:uuid;not null;index:idx_copilot_sessions_user_status,priority:1"`
	Status          string    `gorm:"type:varchar(16);not null;index:idx_copilot_sessions_user_status,priority:2"`
	Mode            string    `gorm:"type:varchar(32);not null;default:'general'"`
	StartedAt       time.Time `gorm:"not null"`
	StoppedAt       *time.Time
	DurationSeconds int            `gorm:"not null;default:0"`
	ConsumedMinutes int            `gorm:"not null;default:0"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt       time.Time      `gorm:"index"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (CopilotSession) TableName() string {
	return "copilot_sessions"
}
