package implementation

import (
	"context"
	"errors"
	"time"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/mapper"
	"interview-copilot-be/internal/model"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/pkg/copilot/quota"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CopilotUsageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CopilotMapper
}

func NewCopilotUsageRepository(db *gorm.DB) contract.CopilotUsageRepository {
	return &CopilotUsageRepositoryImpl{
		db:     db,
		mapper: mapper.NewCopilotMapper(),
	}
}

func (r *CopilotUsageRepositoryImpl) SumMinutes(ctx context.Context, userId uuid.UUID, from, to time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&model.CopilotUsageRecord{}).
		Select("COALESCE(SUM(minutes), 0)").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userId, from, to).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *CopilotUsageRepositoryImpl) FindOverride(ctx context.Context, userId uuid.UUID) (*quota.Override, error) {
	var m model.CopilotQuotaOverride
	if err := r.db.WithContext(ctx).Where("user_id = ?", userId).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	o := r.mapper.QuotaOverrideToEntity(&m)
	return &quota.Override{
		Monthly:    o.MonthlyLimit,
		Daily:      o.DailyLimit,
		PerSession: o.PerSessionLimit,
	}, nil
}

// RecordUsage ignores a second record for the same session.
func (r *CopilotUsageRepositoryImpl) RecordUsage(ctx context.Context, userId, sessionId uuid.UUID, minutes int, at time.Time) error {
	m := r.mapper.UsageToModel(&entity.CopilotUsageRecord{
		Id:        uuid.New(),
		UserId:    userId,
		SessionId: sessionId,
		Minutes:   minutes,
		CreatedAt: at,
	})
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(m).Error
}
