package model

import (
	"time"

	"github.com/google/uuid"
)

// CopilotUsageRecord is unique per session, which makes a retried stop unable
// to bill twice even if it got past the status predicate.
type CopilotUsageRecord struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId    uuid.UUID `gorm:"type:uuid;not null;index:idx_copilot_usage_user_created,priority:1"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Minutes   int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_copilot_usage_user_created,priority:2"`
}

func (CopilotUsageRecord) TableName() string {
	return "copilot_usage_records"
}

type CopilotQuotaOverride struct {
	UserId          uuid.UUID `gorm:"type:uuid;primaryKey"`
	MonthlyLimit    *int
	DailyLimit      *int
	PerSessionLimit *int
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (CopilotQuotaOverride) TableName() string {
	return "copilot_quota_overrides"
}
