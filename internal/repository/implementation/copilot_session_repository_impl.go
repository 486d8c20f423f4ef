package implementation

import (
	"context"
	"encoding/json"
	"errors"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/mapper"
	"interview-copilot-be/internal/model"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/specification"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type CopilotSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CopilotMapper
}

func NewCopilotSessionRepository(db *gorm.DB) contract.CopilotSessionRepository {
	return &CopilotSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewCopilotMapper(),
	}
}

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *CopilotSessionRepositoryImpl) Create(ctx context.Context, session *entity.CopilotSession) error {
	m, err := r.mapper.SessionToModel(session)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == contract.ActiveSessionIndex {
			return contract.ErrActiveSessionExists
		}
		return err
	}
	*session = *r.mapper.SessionToEntity(m)
	return nil
}

func (r *CopilotSessionRepositoryImpl) CompareAndSwap(ctx context.Context, session *entity.CopilotSession, expected entity.CopilotSessionStatus) (bool, error) {
	meta, err := r.mapper.MetadataToJSON(session.Metadata)
	if err != nil {
		return false, err
	}

	// UPDATE ... WHERE id = ? AND user_id = ? AND status = ?
	res := r.db.WithContext(ctx).
		Model(&model.CopilotSession{}).
		Where("id = ? AND user_id = ? AND status = ?", session.Id, session.UserId, string(expected)).
		Updates(map[string]interface{}{
			"status":           string(session.Status),
			"stopped_at":       session.StoppedAt,
			"duration_seconds": session.DurationSeconds,
			"consumed_minutes": session.ConsumedMinutes,
			"metadata":         meta,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *CopilotSessionRepositoryImpl) PatchHeartbeat(ctx context.Context, session *entity.CopilotSession, heartbeat entity.HeartbeatState) (bool, error) {
	return r.patchMetadata(ctx, session, entity.MetadataKeyHeartbeat, heartbeat)
}

func (r *CopilotSessionRepositoryImpl) PatchConsent(ctx context.Context, session *entity.CopilotSession, consent entity.ConsentState) (bool, error) {
	return r.patchMetadata(ctx, session, entity.MetadataKeyConsent, consent)
}

// UPDATE ... SET metadata = jsonb_set(metadata, '{key}', ?) WHERE ... AND status = 'active'
func (r *CopilotSessionRepositoryImpl) patchMetadata(ctx context.Context, session *entity.CopilotSession, key string, value interface{}) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Model(&model.CopilotSession{}).
		Where("id = ? AND user_id = ? AND status = ?", session.Id, session.UserId, string(entity.CopilotSessionStatusActive)).
		Update("metadata", gorm.Expr(
			"jsonb_set(COALESCE(metadata, '{}'::jsonb), ?::text[], ?::jsonb, true)",
			"{"+key+"}", string(raw),
		))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *CopilotSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSession, error) {
	var m model.CopilotSession
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SessionToEntity(&m), nil
}

func (r *CopilotSessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotSession, error) {
	var models []*model.CopilotSession
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.SessionsToEntities(models), nil
}

func (r *CopilotSessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.CopilotSession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
