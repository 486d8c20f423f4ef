package mapper

import (
	"encoding/json"
	"time"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/model"

	"gorm.io/datatypes"
)

type CopilotMapper struct{}

func NewCopilotMapper() *CopilotMapper {
	return &CopilotMapper{}
}

// Session Mappers

func (m *CopilotMapper) SessionToEntity(s *model.CopilotSession) *entity.CopilotSession {
	if s == nil {
		return nil
	}

	// SessionMetadata decoding never fails; bad blobs come back as defaults
	var meta entity.SessionMetadata
	_ = json.Unmarshal(s.Metadata, &meta)

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.CopilotSession{
		Id:              s.Id,
		UserId:          s.UserId,
		Status:          entity.CopilotSessionStatus(s.Status),
		Mode:            s.Mode,
		StartedAt:       s.StartedAt,
		StoppedAt:       s.StoppedAt,
		DurationSeconds: s.DurationSeconds,
		ConsumedMinutes: s.ConsumedMinutes,
		Metadata:        meta,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       updatedAt,
	}
}

func (m *CopilotMapper) SessionToModel(s *entity.CopilotSession) (*model.CopilotSession, error) {
	if s == nil {
		return nil, nil
	}

	meta, err := m.MetadataToJSON(s.Metadata)
	if err != nil {
		return nil, err
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.CopilotSession{
		Id:              s.Id,
		UserId:          s.UserId,
		Status:          string(s.Status),
		Mode:            s.Mode,
		StartedAt:       s.StartedAt,
		StoppedAt:       s.StoppedAt,
		DurationSeconds: s.DurationSeconds,
		ConsumedMinutes: s.ConsumedMinutes,
		Metadata:        meta,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func (m *CopilotMapper) MetadataToJSON(meta entity.SessionMetadata) (datatypes.JSON, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (m *CopilotMapper) SessionsToEntities(models []*model.CopilotSession) []*entity.CopilotSession {
	out := make([]*entity.CopilotSession, len(models))
	for i, s := range models {
		out[i] = m.SessionToEntity(s)
	}
	return out
}

// Event Mappers

func (m *CopilotMapper) EventToEntity(e *model.CopilotEvent) *entity.CopilotEvent {
	if e == nil {
		return nil
	}

	var redactions []string
	if len(e.Redactions) > 0 {
		_ = json.Unmarshal(e.Redactions, &redactions)
	}

	return &entity.CopilotEvent{
		Id:              e.Id,
		SessionId:       e.SessionId,
		UserId:          e.UserId,
		Kind:            entity.CopilotEventKind(e.Kind),
		Content:         e.Content,
		Redactions:      redactions,
		PromptInjection: e.PromptInjection,
		CreatedAt:       e.CreatedAt,
	}
}

func (m *CopilotMapper) EventToModel(e *entity.CopilotEvent) *model.CopilotEvent {
	if e == nil {
		return nil
	}

	redactions := e.Redactions
	if redactions == nil {
		redactions = []string{}
	}
	raw, _ := json.Marshal(redactions)

	return &model.CopilotEvent{
		Id:              e.Id,
		SessionId:       e.SessionId,
		UserId:          e.UserId,
		Kind:            string(e.Kind),
		Content:         e.Content,
		Redactions:      datatypes.JSON(raw),
		PromptInjection: e.PromptInjection,
		CreatedAt:       e.CreatedAt,
	}
}

func (m *CopilotMapper) EventsToEntities(models []*model.CopilotEvent) []*entity.CopilotEvent {
	out := make([]*entity.CopilotEvent, len(models))
	for i, e := range models {
		out[i] = m.EventToEntity(e)
	}
	return out
}

// Summary Mappers

func (m *CopilotMapper) SummaryToEntity(s *model.CopilotSummary) *entity.CopilotSummary {
	if s == nil {
		return nil
	}
	return &entity.CopilotSummary{
		Id:        s.Id,
		SessionId: s.SessionId,
		UserId:    s.UserId,
		Content:   s.Content,
		CreatedAt: s.CreatedAt,
	}
}

func (m *CopilotMapper) SummaryToModel(s *entity.CopilotSummary) *model.CopilotSummary {
	if s == nil {
		return nil
	}
	return &model.CopilotSummary{
		Id:        s.Id,
		SessionId: s.SessionId,
		UserId:    s.UserId,
		Content:   s.Content,
		CreatedAt: s.CreatedAt,
	}
}

// Usage Mappers

func (m *CopilotMapper) UsageToModel(u *entity.CopilotUsageRecord) *model.CopilotUsageRecord {
	if u == nil {
		return nil
	}
	return &model.CopilotUsageRecord{
		Id:        u.Id,
		UserId:    u.UserId,
		SessionId: u.SessionId,
		Minutes:   u.Minutes,
		CreatedAt: u.CreatedAt,
	}
}

func (m *CopilotMapper) QuotaOverrideToEntity(o *model.CopilotQuotaOverride) *entity.CopilotQuotaOverride {
	if o == nil {
		return nil
	}
	return &entity.CopilotQuotaOverride{
		UserId:          o.UserId,
		MonthlyLimit:    o.MonthlyLimit,
		DailyLimit:      o.DailyLimit,
		PerSessionLimit: o.PerSessionLimit,
		UpdatedAt:       o.UpdatedAt,
	}
}
