package specification

import (
	"interview-copilot-be/internal/entity"
	"interview-copilot-be/pkg/copilot/cursor"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BySessionID struct {
	SessionID uuid.UUID
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

type ByStatus struct {
	Statuses []entity.CopilotSessionStatus
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	values := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		values[i] = string(st)
	}
	return db.Where("status IN ?", values)
}

func WithStatus(statuses ...entity.CopilotSessionStatus) Specification {
	return ByStatus{Statuses: statuses}
}

// AfterCursor keeps rows strictly after the (created_at, id) pair. A nil
// cursor selects from the beginning.
type AfterCursor struct {
	Cursor *cursor.Cursor
}

func (s AfterCursor) Apply(db *gorm.DB) *gorm.DB {
	if s.Cursor == nil {
		return db
	}
	return db.Where("(created_at, id) > (?, ?::uuid)", s.Cursor.Timestamp, s.Cursor.Id)
}

// KeysetOrder orders by the cursor tuple.
type KeysetOrder struct {
	Desc bool
}

func (s KeysetOrder) Apply(db *gorm.DB) *gorm.DB {
	if s.Desc {
		return db.Order("created_at DESC").Order("id DESC")
	}
	return db.Order("created_at ASC").Order("id ASC")
}

type Limit struct {
	N int
}

func (s Limit) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(s.N)
}
