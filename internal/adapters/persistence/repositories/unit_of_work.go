package repositories

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork is one database transaction threaded explicitly through the
// core operations. It ends by commit or rollback only; hooks registered with
// AfterCommit run after a successful commit and are discarded on rollback.
type UnitOfWork struct {
	ctx         context.Context
	tx          *gorm.DB
	afterCommit []func()
}

// Context returns the context the unit was opened with
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

// DB returns the transaction handle
func (u *UnitOfWork) DB() *gorm.DB {
	return u.tx
}

// AfterCommit registers fn to run once the outermost transaction commits
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// Savepoint runs fn in a nested transaction. When fn fails only its own
// writes are rolled back and its hooks are dropped; the outer unit survives.
func (u *UnitOfWork) Savepoint(fn func(nested *UnitOfWork) error) error {
	nested := &UnitOfWork{ctx: u.ctx}
	err := u.tx.Transaction(func(tx *gorm.DB) error {
		nested.tx = tx
		return fn(nested)
	})
	if err != nil {
		return err
	}
	u.afterCommit = append(u.afterCommit, nested.afterCommit...)
	return nil
}

// TxManager opens units of work on a database
type TxManager struct {
	db *gorm.DB
}

// NewTxManager creates a new transaction manager
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Do runs fn in a transaction. nil commits, an error or panic rolls back.
func (m *TxManager) Do(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	uow := &UnitOfWork{ctx: ctx}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(uow)
	})
	if err != nil {
		return err
	}

	for _, hook := range uow.afterCommit {
		hook()
	}
	return nil
}
