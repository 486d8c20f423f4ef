package unitofwork

import (
	"context"
	"fmt"

	"interview-copilot-be/internal/repository/contract"
	"interview-copilot-be/internal/repository/implementation"

	"gorm.io/gorm"
)

type UnitOfWorkImpl struct {
	db *gorm.DB
	tx *gorm.DB // active transaction, nil outside Begin/Commit
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &UnitOfWorkImpl{
		db: db,
	}
}

func (u *UnitOfWorkImpl) getDB() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UnitOfWorkImpl) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	u.tx = tx
	return nil
}

func (u *UnitOfWorkImpl) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

// Rollback is a no-op once the transaction has been committed, so it can be
// deferred right after Begin.
func (u *UnitOfWorkImpl) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

// Repository Accessors

func (u *UnitOfWorkImpl) CopilotSessionRepository() contract.CopilotSessionRepository {
	return implementation.NewCopilotSessionRepository(u.getDB())
}

func (u *UnitOfWorkImpl) CopilotEventRepository() contract.CopilotEventRepository {
	return implementation.NewCopilotEventRepository(u.getDB())
}

func (u *UnitOfWorkImpl) CopilotSummaryRepository() contract.CopilotSummaryRepository {
	return implementation.NewCopilotSummaryRepository(u.getDB())
}

func (u *UnitOfWorkImpl) CopilotUsageRepository() contract.CopilotUsageRepository {
	return implementation.NewCopilotUsageRepository(u.getDB())
}

func (u *UnitOfWorkImpl) CopilotRetentionRepository() contract.CopilotRetentionRepository {
	return implementation.NewCopilotRetentionRepository(u.getDB())
}
