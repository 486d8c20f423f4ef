package implementation

import (
	"context"
	"errors"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/mapper"
	"interview-copilot-be/internal/model"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CopilotEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CopilotMapper
}

func NewCopilotEventRepository(db *gorm.DB) contract.CopilotEventRepository {
	return &CopilotEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewCopilotMapper(),
	}
}

func (r *CopilotEventRepositoryImpl) Create(ctx context.Context, event *entity.CopilotEvent) error {
	m := r.mapper.EventToModel(event)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*event = *r.mapper.EventToEntity(m)
	return nil
}

func (r *CopilotEventRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotEvent, error) {
	var models []*model.CopilotEvent
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.EventsToEntities(models), nil
}

type CopilotSummaryRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CopilotMapper
}

func NewCopilotSummaryRepository(db *gorm.DB) contract.CopilotSummaryRepository {
	return &CopilotSummaryRepositoryImpl{
		db:     db,
		mapper: mapper.NewCopilotMapper(),
	}
}

func (r *CopilotSummaryRepositoryImpl) Save(ctx context.Context, summary *entity.CopilotSummary) error {
	m := r.mapper.SummaryToModel(summary)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "created_at"}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	*summary = *r.mapper.SummaryToEntity(m)
	return nil
}

func (r *CopilotSummaryRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSummary, error) {
	var m model.CopilotSummary
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SummaryToEntity(&m), nil
}
