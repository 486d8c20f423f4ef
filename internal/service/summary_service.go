package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/repository/specification"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/pkg/copilot/guardrail"
	"interview-copilot-be/pkg/copilot/suggestion"
	"interview-copilot-be/pkg/llm"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	SummaryTopic = "copilot.summary.requested"

	summaryMaxAttempts = 3
	summaryEventLimit  = 200
	attemptMetadataKey = "attempt"
)

// SummaryJob asks for the summary of a finished session.
type SummaryJob struct {
	SessionId uuid.UUID `json:"session_id"`
	UserId    uuid.UUID `json:"user_id"`
	Mode      string    `json:"mode"`
}

type ISummaryService interface {
	Enqueue(ctx context.Context, job SummaryJob) error
	Consume(ctx context.Context) error
}

type summaryService struct {
	publisher   message.Publisher
	subscriber  message.Subscriber
	uowFactory  unitofwork.RepositoryFactory
	llmProvider llm.LLMProvider
	guard       *guardrail.Guardrail
	logger      logger.ILogger
	clock       func() time.Time
}

// NewSummaryService works over any watermill pub/sub pair; the server wires
// both sides to one in-process gochannel.
func NewSummaryService(
	publisher message.Publisher,
	subscriber message.Subscriber,
	uowFactory unitofwork.RepositoryFactory,
	llmProvider llm.LLMProvider,
	log logger.ILogger,
) ISummaryService {
	return &summaryService{
		publisher:   publisher,
		subscriber:  subscriber,
		uowFactory:  uowFactory,
		llmProvider: llmProvider,
		guard:       guardrail.New(guardrail.DefaultMaxLength),
		logger:      log,
		clock:       time.Now,
	}
}

func (s *summaryService) Enqueue(ctx context.Context, job SummaryJob) error {
	return s.publish(job, 1)
}

func (s *summaryService) publish(job SummaryJob, attempt int) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(attemptMetadataKey, strconv.Itoa(attempt))
	return s.publisher.Publish(SummaryTopic, msg)
}

func (s *summaryService) Consume(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, SummaryTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage always acks. A failed job is re-published with a higher
// attempt number instead of nacked, since gochannel redelivers a nack
// immediately.
func (s *summaryService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var job SummaryJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		s.logger.Error("SummaryService", "Malformed summary job", map[string]interface{}{"error": err})
		return
	}
	attempt, _ := strconv.Atoi(msg.Metadata.Get(attemptMetadataKey))
	if attempt < 1 {
		attempt = 1
	}

	if err := s.summarize(ctx, job); err != nil {
		details := map[string]interface{}{
			"error":      err,
			"session_id": job.SessionId,
			"attempt":    attempt,
		}
		if attempt >= summaryMaxAttempts {
			s.logger.Error("SummaryService", "Giving up on session summary", details)
			return
		}
		s.logger.Warn("SummaryService", "Session summary failed, retrying", details)
		if err := s.publish(job, attempt+1); err != nil {
			s.logger.Error("SummaryService", "Failed to re-enqueue summary job", map[string]interface{}{"error": err, "session_id": job.SessionId})
		}
	}
}

func (s *summaryService) summarize(ctx context.Context, job SummaryJob) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.CopilotSessionRepository().FindOne(ctx,
		specification.ByID{ID: job.SessionId},
		specification.UserOwnedBy{UserID: job.UserId},
	)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil || !session.Status.IsTerminal() {
		// purged in the meantime, or not finished; nothing to do
		return nil
	}

	rows, err := uow.CopilotEventRepository().FindAll(ctx,
		specification.BySessionID{SessionID: job.SessionId},
		specification.UserOwnedBy{UserID: job.UserId},
		specification.KeysetOrder{},
		specification.Limit{N: summaryEventLimit},
	)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	prompt := suggestion.BuildSummaryPrompt(suggestion.ParseMode(job.Mode), transcriptLines(rows, false))
	raw, err := s.llmProvider.Generate(ctx, prompt, llm.WithMaxTokens(600))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	content := strings.TrimSpace(s.guard.Sanitize(raw).Text)
	if content == "" {
		return fmt.Errorf("empty summary")
	}

	summary := entity.CopilotSummary{
		Id:        uuid.New(),
		SessionId: session.Id,
		UserId:    session.UserId,
		Content:   content,
		CreatedAt: s.clock().UTC(),
	}
	if err := uow.CopilotSummaryRepository().Save(ctx, &summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	s.logger.Info("SummaryService", "Session summary stored", map[string]interface{}{
		"session_id": session.Id,
		"events":     len(rows),
	})
	return nil
}
