package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-copilot-be/internal/config"
	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/pkg/serverutils"
	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/specification"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/pkg/copilot/consent"
	"interview-copilot-be/pkg/copilot/cursor"
	"interview-copilot-be/pkg/copilot/guardrail"
	"interview-copilot-be/pkg/copilot/latency"
	"interview-copilot-be/pkg/copilot/lifecycle"
	"interview-copilot-be/pkg/copilot/quota"
	"interview-copilot-be/pkg/copilot/retention"
	"interview-copilot-be/pkg/copilot/suggestion"
	"interview-copilot-be/pkg/events"
	"interview-copilot-be/pkg/llm"

	"github.com/google/uuid"
)

const (
	PurgeConfirmation = "DELETE"

	defaultEventPageSize = 50
	maxEventPageSize     = 200
	promptHistorySize    = 20
	sessionListSize      = 50

	// clients may stamp events slightly ahead of our clock
	maxClockSkew = 5 * time.Second
)

// Websocket frame types
const (
	PushSessionState = "session_state"
	PushEvent        = "event"
	PushSuggestion   = "suggestion"
)

// SessionPusher delivers live frames to the owner's open connections.
// Implemented by the websocket hub.
type SessionPusher interface {
	Push(userID, sessionID uuid.UUID, msgType string, data interface{})
}

type ICopilotService interface {
	Start(ctx context.Context, userId uuid.UUID, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	Heartbeat(ctx context.Context, userId, sessionId uuid.UUID) (*dto.HeartbeatResponse, error)
	Stop(ctx context.Context, userId, sessionId uuid.UUID) (*dto.StopSessionResponse, error)
	IngestEvent(ctx context.Context, userId, sessionId uuid.UUID, req *dto.IngestEventRequest) (*dto.EventResponse, error)
	ListEvents(ctx context.Context, userId, sessionId uuid.UUID, req *dto.ListEventsRequest) (*dto.EventPageResponse, error)
	Suggest(ctx context.Context, userId, sessionId uuid.UUID, req *dto.SuggestionRequest) (*dto.SuggestionResponse, error)
	UpdateConsent(ctx context.Context, userId, sessionId uuid.UUID, req *dto.ConsentRequest) (*dto.ConsentResponse, error)
	ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error)
	GetSession(ctx context.Context, userId, sessionId uuid.UUID) (*dto.SessionResponse, error)
	GetQuota(ctx context.Context, userId uuid.UUID) (*dto.QuotaResponse, error)
	Purge(ctx context.Context, userId uuid.UUID, req *dto.PurgeRequest) (*dto.PurgeResponse, error)
}

// CopilotSettings is the slice of configuration the session service needs.
type CopilotSettings struct {
	HeartbeatTimeout   time.Duration
	Limits             quota.Limits
	SanitizeMaxLength  int
	MaxSuggestions     int
	StartRateLimit     int
	HeartbeatRateLimit int
	IngestRateLimit    int
	RateWindow         time.Duration
}

func NewCopilotSettings(cfg config.CopilotConfig) CopilotSettings {
	return CopilotSettings{
		HeartbeatTimeout: time.Duration(cfg.HeartbeatTimeoutMs) * time.Millisecond,
		Limits: quota.Limits{
			Monthly:    cfg.MonthlyMinutes,
			Daily:      cfg.DailyMinutes,
			PerSession: cfg.SessionMinutes,
		},
		SanitizeMaxLength:  cfg.SanitizeMaxLength,
		MaxSuggestions:     cfg.MaxSuggestions,
		StartRateLimit:     cfg.StartRateLimit,
		HeartbeatRateLimit: cfg.HeartbeatRateLimit,
		IngestRateLimit:    cfg.IngestRateLimit,
		RateWindow:         time.Duration(cfg.RateWindowMs) * time.Millisecond,
	}
}

type copilotService struct {
	uowFactory  unitofwork.RepositoryFactory
	settings    CopilotSettings
	guard       *guardrail.Guardrail
	limiter     contract.RateLimiter
	llmProvider llm.LLMProvider
	publisher   events.Publisher
	pusher      SessionPusher
	summaries   ISummaryService
	logger      logger.ILogger
	clock       func() time.Time
}

func NewCopilotService(
	uowFactory unitofwork.RepositoryFactory,
	settings CopilotSettings,
	limiter contract.RateLimiter,
	llmProvider llm.LLMProvider,
	publisher events.Publisher,
	pusher SessionPusher,
	summaries ISummaryService,
	log logger.ILogger,
	clock func() time.Time,
) ICopilotService {
	if clock == nil {
		clock = time.Now
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &copilotService{
		uowFactory:  uowFactory,
		settings:    settings,
		guard:       guardrail.New(settings.SanitizeMaxLength),
		limiter:     limiter,
		llmProvider: llmProvider,
		publisher:   publisher,
		pusher:      pusher,
		summaries:   summaries,
		logger:      log,
		clock:       clock,
	}
}

func (s *copilotService) now() time.Time {
	return s.clock().UTC()
}

func (s *copilotService) meter(uow unitofwork.UnitOfWork) *quota.Meter {
	return quota.NewMeter(uow.CopilotUsageRepository(), s.settings.Limits, s.now)
}

func (s *copilotService) admit(ctx context.Context, key string, limit int) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Check(ctx, key, limit, s.settings.RateWindow)
	if err != nil {
		return fmt.Errorf("rate limit %s: %w", key, err)
	}
	if !ok {
		return serverutils.ErrRateLimited()
	}
	return nil
}

func (s *copilotService) Start(ctx context.Context, userId uuid.UUID, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	if err := s.admit(ctx, "start:"+userId.String(), s.settings.StartRateLimit); err != nil {
		return nil, err
	}

	tl := latency.FromContext(ctx)
	uow := s.uowFactory.NewUnitOfWork(ctx)

	tl.Start(latency.StageLoad)
	active, err := uow.CopilotSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.WithStatus(entity.CopilotSessionStatusActive),
	)
	tl.End(latency.StageLoad)
	if err != nil {
		return nil, err
	}
	for _, session := range active {
		current, err := s.touch(ctx, uow, session)
		if err != nil {
			return nil, err
		}
		if current.Status == entity.CopilotSessionStatusActive {
			return nil, serverutils.ErrSessionActive().WithData(map[string]interface{}{"session_id": current.Id})
		}
	}

	snapshot, err := s.meter(uow).GetQuotaSnapshot(ctx, userId)
	if err != nil {
		return nil, err
	}
	if !snapshot.Allowed() {
		return nil, &dto.QuotaExceededError{Quota: snapshot}
	}

	now := s.now()
	session := lifecycle.NewSession(entity.CopilotSession{
		Id:     uuid.New(),
		UserId: userId,
		Mode:   string(suggestion.ParseMode(req.Mode)),
	}, now)
	tl.SetSession(session.Id.String())

	tl.Start(latency.StagePersist)
	err = uow.CopilotSessionRepository().Create(ctx, &session)
	tl.End(latency.StagePersist)
	if errors.Is(err, contract.ErrActiveSessionExists) {
		// a concurrent start won the race
		return nil, serverutils.ErrSessionActive()
	}
	if err != nil {
		return nil, err
	}

	s.announce(ctx, &session, events.SessionStarted, map[string]interface{}{"mode": session.Mode})

	return &dto.StartSessionResponse{
		Session: toSessionResponse(&session),
		Quota:   snapshot,
	}, nil
}

func (s *copilotService) Heartbeat(ctx context.Context, userId, sessionId uuid.UUID) (*dto.HeartbeatResponse, error) {
	if err := s.admit(ctx, "heartbeat:"+sessionId.String(), s.settings.HeartbeatRateLimit); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	session, err = s.touch(ctx, uow, session)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return heartbeatResponse(session), nil
	}

	updated := *session
	updated.Metadata = lifecycle.RefreshHeartbeat(session.Metadata, s.now())

	// only the heartbeat key is written, so a consent change that lands
	// between our read and this write survives
	applied, err := uow.CopilotSessionRepository().PatchHeartbeat(ctx, &updated, updated.Metadata.Heartbeat)
	if err != nil {
		return nil, err
	}
	if !applied {
		// lost to a concurrent stop or expiry; report what the store holds
		current, err := s.reload(ctx, uow, session)
		if err != nil {
			return nil, err
		}
		return heartbeatResponse(current), nil
	}
	return heartbeatResponse(&updated), nil
}

func (s *copilotService) Stop(ctx context.Context, userId, sessionId uuid.UUID) (*dto.StopSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		return &dto.StopSessionResponse{Session: toSessionResponse(session), AlreadyStopped: true}, nil
	}

	target := entity.CopilotSessionStatusStopped
	if lifecycle.EvaluateLiveness(session, s.now(), s.settings.HeartbeatTimeout) {
		target = entity.CopilotSessionStatusExpired
	}

	result, err := s.finalize(ctx, uow, session, target)
	if err != nil {
		return nil, err
	}
	if !result.applied {
		return &dto.StopSessionResponse{Session: toSessionResponse(result.session), AlreadyStopped: true}, nil
	}
	return &dto.StopSessionResponse{
		Session: toSessionResponse(result.session),
		Billing: &result.billing,
	}, nil
}

func (s *copilotService) IngestEvent(ctx context.Context, userId, sessionId uuid.UUID, req *dto.IngestEventRequest) (*dto.EventResponse, error) {
	if err := s.admit(ctx, "ingest:"+sessionId.String(), s.settings.IngestRateLimit); err != nil {
		return nil, err
	}
	kind := entity.CopilotEventKind(req.Kind)
	if !kind.Valid() {
		return nil, serverutils.ErrInvalidBody("Unknown event kind")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}
	session, err = s.touch(ctx, uow, session)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.CopilotSessionStatusActive {
		return nil, serverutils.ErrConsentRequired(consent.ReasonSessionNotActive)
	}

	now := s.now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
		if occurredAt.After(now.Add(maxClockSkew)) {
			occurredAt = now
		}
		if occurredAt.Before(session.StartedAt) {
			return nil, serverutils.ErrInvalidBody("occurred_at precedes the session start")
		}
	}
	// an event stamped before a revocation is still accepted when it arrives
	// after it; the event's own timestamp decides
	if decision := consent.CheckConsentAt(session, occurredAt); !decision.Allowed {
		return nil, serverutils.ErrConsentRequired(decision.Reason)
	}

	tl := latency.FromContext(ctx)
	tl.Start(latency.StageGuardrail)
	clean := s.guard.Sanitize(req.Content)
	tl.End(latency.StageGuardrail)

	event := entity.CopilotEvent{
		Id:              uuid.New(),
		SessionId:       session.Id,
		UserId:          userId,
		Kind:            kind,
		Content:         clean.Text,
		Redactions:      clean.Redactions,
		PromptInjection: clean.HasPromptInjection,
		CreatedAt:       occurredAt,
	}

	tl.Start(latency.StagePersist)
	err = uow.CopilotEventRepository().Create(ctx, &event)
	tl.End(latency.StagePersist)
	if err != nil {
		return nil, err
	}

	if clean.HasPromptInjection {
		s.logger.Warn("CopilotService", "Prompt injection signature in ingested event", map[string]interface{}{
			"session_id": session.Id,
			"event_id":   event.Id,
			"signatures": clean.Signatures,
		})
	}

	res := toEventResponse(&event)
	s.push(userId, session.Id, PushEvent, res)
	return &res, nil
}

func (s *copilotService) ListEvents(ctx context.Context, userId, sessionId uuid.UUID, req *dto.ListEventsRequest) (*dto.EventPageResponse, error) {
	var after *cursor.Cursor
	if req.Cursor != "" {
		after = cursor.Parse(req.Cursor)
		if after == nil {
			return nil, serverutils.ErrInvalidBody("Invalid cursor")
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}
	if limit > maxEventPageSize {
		limit = maxEventPageSize
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.loadOwned(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	// one extra row tells us whether another page exists
	rows, err := uow.CopilotEventRepository().FindAll(ctx,
		specification.BySessionID{SessionID: sessionId},
		specification.UserOwnedBy{UserID: userId},
		specification.AfterCursor{Cursor: after},
		specification.KeysetOrder{},
		specification.Limit{N: limit + 1},
	)
	if err != nil {
		return nil, err
	}

	page := cursor.Paginate(rows, after, limit)
	out := &dto.EventPageResponse{
		Events:     make([]dto.EventResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	if out.NextCursor == "" {
		// an empty page resumes from where the caller already is
		out.NextCursor = req.Cursor
	}
	for _, e := range page.Items {
		out.Events = append(out.Events, toEventResponse(e))
	}
	return out, nil
}

func (s *copilotService) Suggest(ctx context.Context, userId, sessionId uuid.UUID, req *dto.SuggestionRequest) (*dto.SuggestionResponse, error) {
	if err := s.admit(ctx, "suggest:"+sessionId.String(), s.settings.IngestRateLimit); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.gate(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	tl := latency.FromContext(ctx)
	tl.Start(latency.StageGuardrail)
	clean := s.guard.Sanitize(req.Question)
	tl.End(latency.StageGuardrail)

	tl.Start(latency.StageLoad)
	recent, err := uow.CopilotEventRepository().FindAll(ctx,
		specification.BySessionID{SessionID: session.Id},
		specification.UserOwnedBy{UserID: userId},
		specification.KeysetOrder{Desc: true},
		specification.Limit{N: promptHistorySize},
	)
	tl.End(latency.StageLoad)
	if err != nil {
		return nil, err
	}

	prompt := suggestion.NewBuilder(suggestion.ParseMode(session.Mode), clean.Text).
		WithTranscript(transcriptLines(recent, true)).
		WithInjectionFlag(clean.HasPromptInjection).
		WithMaxSuggestions(s.settings.MaxSuggestions)

	tl.Start(latency.StageInference)
	raw, err := s.llmProvider.Chat(ctx, prompt.Messages(), llm.WithJSON(), llm.WithMaxTokens(400))
	tl.End(latency.StageInference)
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	suggestions := suggestion.Parse(raw, s.settings.MaxSuggestions)

	askedAt := s.now()
	question := entity.CopilotEvent{
		Id:              uuid.New(),
		SessionId:       session.Id,
		UserId:          userId,
		Kind:            entity.CopilotEventKindQuestion,
		Content:         clean.Text,
		Redactions:      clean.Redactions,
		PromptInjection: clean.HasPromptInjection,
		CreatedAt:       askedAt,
	}
	answer := entity.CopilotEvent{
		Id:        uuid.New(),
		SessionId: session.Id,
		UserId:    userId,
		Kind:      entity.CopilotEventKindSuggestion,
		Content:   s.guard.Sanitize(strings.Join(suggestions, "\n")).Text,
		CreatedAt: askedAt.Add(time.Microsecond),
	}

	tl.Start(latency.StagePersist)
	err = s.persistExchange(ctx, uow, &question, &answer)
	tl.End(latency.StagePersist)
	if err != nil {
		return nil, err
	}

	res := &dto.SuggestionResponse{
		SessionId:       session.Id,
		Suggestions:     suggestions,
		PromptInjection: clean.HasPromptInjection,
		Redactions:      nonNil(clean.Redactions),
	}
	s.push(userId, session.Id, PushSuggestion, res)
	return res, nil
}

func (s *copilotService) persistExchange(ctx context.Context, uow unitofwork.UnitOfWork, question, answer *entity.CopilotEvent) error {
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.CopilotEventRepository().Create(ctx, question); err != nil {
		return err
	}
	if err := uow.CopilotEventRepository().Create(ctx, answer); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *copilotService) UpdateConsent(ctx context.Context, userId, sessionId uuid.UUID, req *dto.ConsentRequest) (*dto.ConsentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}
	session, err = s.touch(ctx, uow, session)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.CopilotSessionStatusActive {
		return nil, serverutils.ErrConsentRequired(consent.ReasonSessionNotActive)
	}

	now := s.now()
	updated := *session
	switch req.Action {
	case "grant":
		updated.Metadata = consent.Grant(session.Metadata, now)
	case "revoke":
		updated.Metadata = consent.Revoke(session.Metadata, now)
	default:
		return nil, serverutils.ErrInvalidBody("action must be grant or revoke")
	}

	applied, err := uow.CopilotSessionRepository().PatchConsent(ctx, &updated, updated.Metadata.Consent)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, serverutils.ErrConsentRequired(consent.ReasonSessionNotActive)
	}

	s.push(userId, session.Id, PushSessionState, toSessionResponse(&updated))
	return &dto.ConsentResponse{
		SessionId: updated.Id,
		Consent:   toConsentInfo(updated.Metadata.Consent),
		Decision:  consent.CheckIngestConsent(&updated),
	}, nil
}

func (s *copilotService) ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.CopilotSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: sessionListSize},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		current, err := s.touch(ctx, uow, session)
		if err != nil {
			return nil, err
		}
		res := toSessionResponse(current)
		out = append(out, &res)
	}
	return out, nil
}

func (s *copilotService) GetSession(ctx context.Context, userId, sessionId uuid.UUID) (*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}
	session, err = s.touch(ctx, uow, session)
	if err != nil {
		return nil, err
	}
	res := toSessionResponse(session)
	return &res, nil
}

func (s *copilotService) GetQuota(ctx context.Context, userId uuid.UUID) (*dto.QuotaResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	snapshot, err := s.meter(uow).GetQuotaSnapshot(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &dto.QuotaResponse{
		Quota:    snapshot,
		Allowed:  snapshot.Allowed(),
		Blocking: snapshot.Blocking(),
	}, nil
}

func (s *copilotService) Purge(ctx context.Context, userId uuid.UUID, req *dto.PurgeRequest) (*dto.PurgeResponse, error) {
	if req.Confirmation != PurgeConfirmation {
		return nil, serverutils.ErrInvalidConfirmation()
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	active, err := uow.CopilotSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.WithStatus(entity.CopilotSessionStatusActive),
	)
	if err != nil {
		return nil, err
	}
	for _, session := range active {
		current, err := s.touch(ctx, uow, session)
		if err != nil {
			return nil, err
		}
		if current.Status == entity.CopilotSessionStatusActive {
			return nil, serverutils.ErrSessionActive()
		}
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	deleted, err := uow.CopilotRetentionRepository().Purge(ctx, retention.Filter{UserId: &userId})
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("CopilotService", "User copilot data purged", map[string]interface{}{
		"user_id":   userId,
		"events":    deleted.Events,
		"summaries": deleted.Summaries,
		"sessions":  deleted.Sessions,
	})
	if err := s.publisher.Publish(ctx, events.NewPurgeEvent(userId, s.now(), map[string]interface{}{
		"events":    deleted.Events,
		"summaries": deleted.Summaries,
		"sessions":  deleted.Sessions,
	})); err != nil {
		s.logger.Warn("CopilotService", "Failed to publish purge event", map[string]interface{}{"error": err.Error()})
	}

	return &dto.PurgeResponse{Deleted: deleted}, nil
}

// loadOwned reads a session scoped by owner. A session that belongs to
// someone else is reported exactly like a missing one.
func (s *copilotService) loadOwned(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.CopilotSession, error) {
	tl := latency.FromContext(ctx)
	tl.SetSession(sessionId.String())
	tl.Start(latency.StageLoad)
	defer tl.End(latency.StageLoad)

	session, err := uow.CopilotSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, serverutils.ErrSessionNotFound()
	}
	return session, nil
}

func (s *copilotService) reload(ctx context.Context, uow unitofwork.UnitOfWork, session *entity.CopilotSession) (*entity.CopilotSession, error) {
	current, err := uow.CopilotSessionRepository().FindOne(ctx,
		specification.ByID{ID: session.Id},
		specification.UserOwnedBy{UserID: session.UserId},
	)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, serverutils.ErrSessionNotFound()
	}
	return current, nil
}

// gate loads the session, applies lazy expiry and checks ingest consent.
func (s *copilotService) gate(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.CopilotSession, error) {
	session, err := s.loadOwned(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}
	session, err = s.touch(ctx, uow, session)
	if err != nil {
		return nil, err
	}
	if decision := consent.CheckIngestConsent(session); !decision.Allowed {
		return nil, serverutils.ErrConsentRequired(decision.Reason)
	}
	return session, nil
}

// touch expires a stale active session and returns the session as it now
// stands. Anything else is returned unchanged.
func (s *copilotService) touch(ctx context.Context, uow unitofwork.UnitOfWork, session *entity.CopilotSession) (*entity.CopilotSession, error) {
	if !lifecycle.EvaluateLiveness(session, s.now(), s.settings.HeartbeatTimeout) {
		return session, nil
	}
	result, err := s.finalize(ctx, uow, session, entity.CopilotSessionStatusExpired)
	if err != nil {
		return nil, err
	}
	return result.session, nil
}

type finalizeResult struct {
	session *entity.CopilotSession
	billing quota.Billing
	applied bool
}

// finalize runs the one-time terminal transition. The conditional write and
// the usage record commit together, so only the writer that wins the swap
// ever records usage. A lost swap re-reads the session and is not an error.
func (s *copilotService) finalize(ctx context.Context, uow unitofwork.UnitOfWork, session *entity.CopilotSession, to entity.CopilotSessionStatus) (*finalizeResult, error) {
	now := s.now()
	end := lifecycle.EndOf(session, to, now)
	usage := quota.GetElapsedUsage(session.StartedAt, end)

	snapshot, err := s.meter(uow).GetQuotaSnapshot(ctx, session.UserId)
	if err != nil {
		return nil, err
	}
	billing := quota.Bill(usage.ElapsedMinutes, snapshot)

	transition, err := lifecycle.PlanTermination(session, to, now, billing.BillableMinutes)
	if err != nil {
		return nil, err
	}
	updated := *session
	transition.Apply(&updated)

	tl := latency.FromContext(ctx)
	tl.Start(latency.StagePersist)
	applied, err := s.commitTransition(ctx, uow, &updated, transition)
	tl.End(latency.StagePersist)
	if err != nil {
		return nil, err
	}

	if !applied {
		current, err := s.reload(ctx, uow, session)
		if err != nil {
			return nil, err
		}
		s.logger.Info("CopilotService", "Terminal transition lost to a concurrent writer", map[string]interface{}{
			"session_id": session.Id,
			"wanted":     to,
			"actual":     current.Status,
		})
		return &finalizeResult{session: current}, nil
	}

	eventType := events.SessionStopped
	if to == entity.CopilotSessionStatusExpired {
		eventType = events.SessionExpired
	}
	s.announce(ctx, &updated, eventType, map[string]interface{}{
		"duration_seconds":  updated.DurationSeconds,
		"consumed_minutes":  updated.ConsumedMinutes,
		"requested_minutes": billing.RequestedMinutes,
		"quota_limited":     billing.QuotaLimited,
	})
	if s.summaries != nil {
		if err := s.summaries.Enqueue(ctx, SummaryJob{SessionId: updated.Id, UserId: updated.UserId, Mode: updated.Mode}); err != nil {
			s.logger.Warn("CopilotService", "Failed to enqueue session summary", map[string]interface{}{
				"session_id": updated.Id,
				"error":      err.Error(),
			})
		}
	}

	return &finalizeResult{session: &updated, billing: billing, applied: true}, nil
}

func (s *copilotService) commitTransition(ctx context.Context, uow unitofwork.UnitOfWork, updated *entity.CopilotSession, t *lifecycle.Transition) (bool, error) {
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	defer uow.Rollback()

	applied, err := uow.CopilotSessionRepository().CompareAndSwap(ctx, updated, t.From)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	if err := s.meter(uow).RecordUsage(ctx, updated.UserId, updated.Id, t.ConsumedMinutes); err != nil {
		return false, fmt.Errorf("record usage: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// announce publishes a lifecycle event and pushes the new state to the owner.
// Both are best effort.
func (s *copilotService) announce(ctx context.Context, session *entity.CopilotSession, eventType string, extra map[string]interface{}) {
	evt := events.NewSessionEvent(eventType, session.UserId, session.Id, s.now(), extra)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("CopilotService", "Failed to publish lifecycle event", map[string]interface{}{
			"type":       eventType,
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}
	s.push(session.UserId, session.Id, PushSessionState, toSessionResponse(session))
}

func (s *copilotService) push(userId, sessionId uuid.UUID, msgType string, data interface{}) {
	if s.pusher != nil {
		s.pusher.Push(userId, sessionId, msgType, data)
	}
}

// transcriptLines turns events into prompt lines, oldest first.
func transcriptLines(rows []*entity.CopilotEvent, newestFirst bool) []suggestion.Line {
	lines := make([]suggestion.Line, 0, len(rows))
	for i := range rows {
		e := rows[i]
		if newestFirst {
			e = rows[len(rows)-1-i]
		}
		lines = append(lines, suggestion.Line{Kind: string(e.Kind), Content: e.Content})
	}
	return lines
}

func heartbeatResponse(session *entity.CopilotSession) *dto.HeartbeatResponse {
	return &dto.HeartbeatResponse{
		SessionId:       session.Id,
		Status:          string(session.Status),
		LastHeartbeatAt: lifecycle.LastHeartbeat(session),
	}
}

func toConsentInfo(c entity.ConsentState) dto.ConsentInfo {
	return dto.ConsentInfo{
		Status:    string(c.Status.Normalize()),
		GrantedAt: c.GrantedAt,
		RevokedAt: c.RevokedAt,
	}
}

func toSessionResponse(session *entity.CopilotSession) dto.SessionResponse {
	return dto.SessionResponse{
		Id:              session.Id,
		Status:          string(session.Status),
		Mode:            session.Mode,
		StartedAt:       session.StartedAt,
		StoppedAt:       session.StoppedAt,
		DurationSeconds: session.DurationSeconds,
		ConsumedMinutes: session.ConsumedMinutes,
		Consent:         toConsentInfo(session.Metadata.Consent),
		LastHeartbeatAt: lifecycle.LastHeartbeat(session),
	}
}

func toEventResponse(e *entity.CopilotEvent) dto.EventResponse {
	return dto.EventResponse{
		Id:              e.Id,
		SessionId:       e.SessionId,
		Kind:            string(e.Kind),
		Content:         e.Content,
		Redactions:      nonNil(e.Redactions),
		PromptInjection: e.PromptInjection,
		CreatedAt:       e.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
