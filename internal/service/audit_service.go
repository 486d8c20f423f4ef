package service

import (
	"context"

	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/pkg/events"
	pktNats "interview-copilot-be/pkg/nats"
)

const auditDurable = "copilot-audit-worker"

// AuditService copies every copilot lifecycle event from the stream into the
// audit log, so session starts, terminations and deletions stay traceable
// after the rows themselves are purged.
type AuditService struct {
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewAuditService(sub *pktNats.Subscriber, log logger.ILogger) *AuditService {
	return &AuditService{subscriber: sub, logger: log}
}

func (s *AuditService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, pktNats.StreamSubjects, auditDurable, s.HandleEvent); err != nil {
		return err
	}
	s.logger.Info("AuditService", "Listening for copilot lifecycle events", map[string]interface{}{"subject": pktNats.StreamSubjects})
	return nil
}

// HandleEvent never fails: a dropped audit line must not block the stream.
func (s *AuditService) HandleEvent(ctx context.Context, event events.Event) error {
	details := map[string]interface{}{
		"type":        event.EventType(),
		"occurred_at": event.Timestamp(),
	}
	for k, v := range event.Payload() {
		if k == "occurred_at" {
			continue
		}
		details[k] = v
	}
	s.logger.Info("Audit", event.EventType(), details)
	return nil
}
