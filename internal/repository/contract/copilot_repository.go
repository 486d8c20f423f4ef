package contract

import (
	"context"
	"errors"

	"interview-copilot-be/internal/entity"
	"interview-copilot-be/internal/repository/specification"
	"interview-copilot-be/pkg/copilot/quota"
	"interview-copilot-be/pkg/copilot/retention"
)

// ErrActiveSessionExists is returned by Create when the user already has an
// active session in the store.
var ErrActiveSessionExists = errors.New("active session already exists")

// ActiveSessionIndex is the partial unique index allowing one active session
// per user.
const ActiveSessionIndex = "idx_copilot_sessions_one_active"

type CopilotSessionRepository interface {
	Create(ctx context.Context, session *entity.CopilotSession) error
	// CompareAndSwap writes status, timing, usage and metadata of session only
	// if the stored row still has (id, user_id, expected). applied is false
	// when another writer got there first; that is not an error. Used for
	// terminal transitions; live metadata updates go through the Patch methods.
	CompareAndSwap(ctx context.Context, session *entity.CopilotSession, expected entity.CopilotSessionStatus) (applied bool, err error)
	// PatchHeartbeat and PatchConsent replace a single metadata key of an
	// active session and leave the rest of the stored blob alone. applied is
	// false when the session is no longer active.
	PatchHeartbeat(ctx context.Context, session *entity.CopilotSession, heartbeat entity.HeartbeatState) (applied bool, err error)
	PatchConsent(ctx context.Context, session *entity.CopilotSession, consent entity.ConsentState) (applied bool, err error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotSession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}

type CopilotEventRepository interface {
	Create(ctx context.Context, event *entity.CopilotEvent) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CopilotEvent, error)
}

type CopilotSummaryRepository interface {
	// Save inserts or replaces the summary of a session.
	Save(ctx context.Context, summary *entity.CopilotSummary) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CopilotSummary, error)
}

// CopilotUsageRepository is the quota collaborator backed by usage records
// and per-user overrides.
type CopilotUsageRepository interface {
	quota.Store
}

// CopilotRetentionRepository is the only bulk-delete path. Every delete must
// be scoped by owner or age.
type CopilotRetentionRepository interface {
	retention.Deleter
	// Purge removes every row owned by the user, sessions restricted to
	// terminal statuses. Counts are per entity class.
	Purge(ctx context.Context, filter retention.Filter) (retention.Deleted, error)
}
