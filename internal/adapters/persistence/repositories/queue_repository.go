package repositories

import (
	"context"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueRepository handles waitlist data access
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// ============================================================
// Entry lifecycle
// ============================================================

// Create persists a new queue entry
func (r *QueueRepository) Create(uow *UnitOfWork, entry *models.QueueEntry) error {
	return uow.DB().Create(entry).Error
}

// GetByID returns an entry by ID, nil when missing
func (r *QueueRepository) GetByID(ctx context.Context, id uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.WithContext(ctx).First(&entry, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &entry, err
}

// LockByID loads an entry and holds its row lock, nil when missing
func (r *QueueRepository) LockByID(uow *UnitOfWork, id uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &entry, err
}

// UpdateEntry applies column updates to an entry
func (r *QueueRepository) UpdateEntry(uow *UnitOfWork, id uint, updates map[string]interface{}) error {
	return uow.DB().Model(&models.QueueEntry{}).Where("id = ?", id).Updates(updates).Error
}

// FindActiveByUserAndBook returns the user's non-terminal entry for a book, nil when none
func (r *QueueRepository) FindActiveByUserAndBook(uow *UnitOfWork, userID, bookID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := uow.DB().
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, domain.ActiveQueueStatuses).
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &entry, err
}

// ============================================================
// Ordering (caller holds the book row lock)
// ============================================================

// CountWaiting counts WAITING entries of a book
func (r *QueueRepository) CountWaiting(uow *UnitOfWork, bookID uint) (int64, error) {
	var count int64
	err := uow.DB().Model(&models.QueueEntry{}).
		Where("book_id = ? AND status = ?", bookID, domain.QueueWaiting).
		Count(&count).Error
	return count, err
}

// NextWaiting returns the lowest-position WAITING entry, nil when the queue is empty
func (r *QueueRepository) NextWaiting(uow *UnitOfWork, bookID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("book_id = ? AND status = ?", bookID, domain.QueueWaiting).
		Order("position ASC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &entry, err
}

// CompactAfter shifts every WAITING entry behind position up by one
func (r *QueueRepository) CompactAfter(uow *UnitOfWork, bookID uint, position int) error {
	return uow.DB().Model(&models.QueueEntry{}).
		Where("book_id = ? AND status = ? AND position > ?", bookID, domain.QueueWaiting, position).
		Update("position", gorm.Expr("position - 1")).Error
}

// HeldCopyIDs returns copies held by READY/PENDING_APPROVAL entries of other users
func (r *QueueRepository) HeldCopyIDs(uow *UnitOfWork, bookID, exceptUserID uint) ([]uint, error) {
	var ids []uint
	err := uow.DB().Model(&models.QueueEntry{}).
		Where("book_id = ? AND user_id <> ? AND held_copy_id IS NOT NULL AND status IN ?",
			bookID, exceptUserID, []string{string(domain.QueueReady), string(domain.QueuePendingApproval)}).
		Pluck("held_copy_id", &ids).Error
	return ids, err
}

// HasOtherWaiting checks whether someone else is WAITING for the book
func (r *QueueRepository) HasOtherWaiting(uow *UnitOfWork, bookID, userID uint) (bool, error) {
	var count int64
	err := uow.DB().Model(&models.QueueEntry{}).
		Where("book_id = ? AND user_id <> ? AND status = ?", bookID, userID, domain.QueueWaiting).
		Count(&count).Error
	return count > 0, err
}

// ============================================================
// Queries
// ============================================================

// ListByBook returns the non-terminal entries of a book in queue order
func (r *QueueRepository) ListByBook(ctx context.Context, bookID uint) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status IN ?", bookID, domain.ActiveQueueStatuses).
		Order("CASE WHEN status = 'WAITING' THEN 1 ELSE 0 END ASC, position ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// GetActiveByUserAndBook returns the user's non-terminal entry for a book, nil when none
func (r *QueueRepository) GetActiveByUserAndBook(ctx context.Context, userID, bookID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, domain.ActiveQueueStatuses).
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &entry, err
}

// ListByUser returns a user's non-terminal entries
func (r *QueueRepository) ListByUser(ctx context.Context, userID uint) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, domain.ActiveQueueStatuses).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// FindExpiredHolds returns READY/PENDING_APPROVAL entries whose hold ended before now
func (r *QueueRepository) FindExpiredHolds(ctx context.Context, now time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{string(domain.QueueReady), string(domain.QueuePendingApproval)}, now).
		Order("expires_at ASC").
		Find(&entries).Error
	return entries, err
}
