package service

import (
	"context"
	"time"

	"interview-copilot-be/internal/config"
	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/pkg/copilot/retention"
	"interview-copilot-be/pkg/events"
)

type IRetentionService interface {
	Sweep(ctx context.Context, req *dto.SweepRequest) (*retention.Result, error)
}

type retentionService struct {
	uowFactory unitofwork.RepositoryFactory
	defaults   retention.Policy
	publisher  events.Publisher
	logger     logger.ILogger
	clock      func() time.Time
}

func NewRetentionPolicy(cfg config.RetentionConfig) retention.Policy {
	return retention.ResolvePolicy(retention.DefaultPolicy, retention.Overrides{
		EventsDays:    &cfg.EventsDays,
		SummariesDays: &cfg.SummariesDays,
		SessionsDays:  &cfg.SessionsDays,
	})
}

func NewRetentionService(
	uowFactory unitofwork.RepositoryFactory,
	defaults retention.Policy,
	publisher events.Publisher,
	log logger.ILogger,
	clock func() time.Time,
) IRetentionService {
	if clock == nil {
		clock = time.Now
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &retentionService{
		uowFactory: uowFactory,
		defaults:   defaults,
		publisher:  publisher,
		logger:     log,
		clock:      clock,
	}
}

// Sweep is a dry run unless req.DryRun is explicitly false. A live sweep runs
// in one transaction, so a failed delete leaves nothing behind.
func (s *retentionService) Sweep(ctx context.Context, req *dto.SweepRequest) (*retention.Result, error) {
	policy := retention.ResolvePolicy(s.defaults, retention.Overrides{
		EventsDays:    req.EventsDays,
		SummariesDays: req.SummariesDays,
		SessionsDays:  req.SessionsDays,
	})
	live := req.DryRun != nil && !*req.DryRun
	now := s.clock().UTC()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if !live {
		return retention.NewSweeper(uow.CopilotRetentionRepository()).Sweep(ctx, now, policy)
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	result, err := retention.NewSweeper(uow.CopilotRetentionRepository()).Sweep(ctx, now, policy, retention.Live())
	if err != nil {
		s.logger.Error("RetentionService", "Retention sweep aborted", map[string]interface{}{"error": err, "policy": policy})
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("RetentionService", "Retention sweep completed", map[string]interface{}{
		"policy":    policy,
		"events":    result.Deleted.Events,
		"summaries": result.Deleted.Summaries,
		"sessions":  result.Deleted.Sessions,
	})
	if err := s.publisher.Publish(ctx, events.NewSweepEvent(now, map[string]interface{}{
		"events":    result.Deleted.Events,
		"summaries": result.Deleted.Summaries,
		"sessions":  result.Deleted.Sessions,
	})); err != nil {
		s.logger.Warn("RetentionService", "Failed to publish sweep event", map[string]interface{}{"error": err.Error()})
	}
	return result, nil
}
