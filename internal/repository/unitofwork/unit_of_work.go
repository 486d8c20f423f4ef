package unitofwork

import (
	"context"

	"interview-copilot-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	CopilotSessionRepository() contract.CopilotSessionRepository
	CopilotEventRepository() contract.CopilotEventRepository
	CopilotSummaryRepository() contract.CopilotSummaryRepository
	CopilotUsageRepository() contract.CopilotUsageRepository
	CopilotRetentionRepository() contract.CopilotRetentionRepository
}
