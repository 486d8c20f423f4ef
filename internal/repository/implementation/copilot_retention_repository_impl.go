package implementation

import (
	"context"
	"fmt"

	"interview-copilot-be/internal/model"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/scope"
	"interview-copilot-be/pkg/copilot/retention"

	"gorm.io/gorm"
)

type CopilotRetentionRepositoryImpl struct {
	db *gorm.DB
}

func NewCopilotRetentionRepository(db *gorm.DB) contract.CopilotRetentionRepository {
	return &CopilotRetentionRepositoryImpl{db: db}
}

func modelFor(class retention.EntityClass) (interface{}, error) {
	switch class {
	case retention.EntityEvents:
		return &model.CopilotEvent{}, nil
	case retention.EntitySummaries:
		return &model.CopilotSummary{}, nil
	case retention.EntitySessions:
		return &model.CopilotSession{}, nil
	default:
		return nil, fmt.Errorf("unknown entity class %q", class)
	}
}

func (r *CopilotRetentionRepositoryImpl) Delete(ctx context.Context, class retention.EntityClass, filter retention.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	target, err := modelFor(class)
	if err != nil {
		return 0, err
	}

	query := r.db.WithContext(ctx)
	if filter.CreatedBefore != nil {
		query = query.Scopes(scope.OlderThan(*filter.CreatedBefore))
	}
	if filter.UserId != nil {
		query = query.Scopes(scope.OwnedBy(*filter.UserId))
	}
	if class == retention.EntitySessions {
		// never by age alone: active sessions are out of reach
		statuses := filter.Statuses
		if len(statuses) == 0 {
			statuses = retention.TerminalStatuses
		}
		query = query.Scopes(scope.StatusIn(statuses))
	}

	res := query.Delete(target)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *CopilotRetentionRepositoryImpl) Purge(ctx context.Context, filter retention.Filter) (retention.Deleted, error) {
	var out retention.Deleted
	steps := []struct {
		class retention.EntityClass
		count *int64
	}{
		{retention.EntityEvents, &out.Events},
		{retention.EntitySummaries, &out.Summaries},
		{retention.EntitySessions, &out.Sessions},
	}
	for _, step := range steps {
		n, err := r.Delete(ctx, step.class, filter)
		if err != nil {
			return retention.Deleted{}, fmt.Errorf("purge %s: %w", step.class, err)
		}
		*step.count = n
	}
	return out, nil
}
