package repositories

import (
	"context"
	"errors"
	"fmt"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCounterGuard is returned when a counter update would break its bounds
var ErrCounterGuard = errors.New("book counter out of bounds")

// BookRepository handles the catalog records the core reads and counts on
type BookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository
func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

// ============================================================
// Books
// ============================================================

// GetByID returns a book by ID, nil when missing
func (r *BookRepository) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &book, err
}

// LockByID loads a book and holds its row lock until the unit ends.
// Queue operations and copy claims for one book serialize on this lock.
func (r *BookRepository) LockByID(uow *UnitOfWork, id uint) (*models.Book, error) {
	var book models.Book
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &book, err
}

// AdjustAvailable moves available_copies by delta, keeping 0 ≤ available ≤ total
func (r *BookRepository) AdjustAvailable(uow *UnitOfWork, bookID uint, delta int) error {
	q := uow.DB().Model(&models.Book{}).Where("id = ?", bookID)
	if delta < 0 {
		q = q.Where("available_copies >= ?", -delta)
	} else {
		q = q.Where("available_copies + ? <= total_copies", delta)
	}
	return guardedUpdate(q.Update("available_copies", gorm.Expr("available_copies + ?", delta)), "available_copies")
}

// AdjustQueueCount moves queue_count by delta, never below zero
func (r *BookRepository) AdjustQueueCount(uow *UnitOfWork, bookID uint, delta int) error {
	q := uow.DB().Model(&models.Book{}).Where("id = ?", bookID)
	if delta < 0 {
		q = q.Where("queue_count >= ?", -delta)
	}
	return guardedUpdate(q.Update("queue_count", gorm.Expr("queue_count + ?", delta)), "queue_count")
}

// AdjustTotal moves total_copies by delta, never below available_copies
func (r *BookRepository) AdjustTotal(uow *UnitOfWork, bookID uint, delta int) error {
	q := uow.DB().Model(&models.Book{}).
		Where("id = ?", bookID).
		Where("total_copies + ? >= available_copies", delta)
	return guardedUpdate(q.Update("total_copies", gorm.Expr("total_copies + ?", delta)), "total_copies")
}

func guardedUpdate(res *gorm.DB, column string) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCounterGuard, column)
	}
	return nil
}

// ============================================================
// Copies
// ============================================================

// LockCopy loads a copy and holds its row lock, nil when missing
func (r *BookRepository) LockCopy(uow *UnitOfWork, copyID uint) (*models.BookCopy, error) {
	var c models.BookCopy
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, copyID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

// LockAnyAvailableCopy locks one AVAILABLE copy of a book not in exclude.
// Rows locked by concurrent claims are skipped rather than waited on.
func (r *BookRepository) LockAnyAvailableCopy(uow *UnitOfWork, bookID uint, exclude []uint) (*models.BookCopy, error) {
	var c models.BookCopy
	q := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("book_id = ? AND status = ?", bookID, domain.CopyAvailable)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	err := q.Order("id ASC").First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

// UpdateCopyStatus sets the status of a copy
func (r *BookRepository) UpdateCopyStatus(uow *UnitOfWork, copyID uint, status domain.CopyStatus) error {
	return uow.DB().Model(&models.BookCopy{}).
		Where("id = ?", copyID).
		Update("status", status).Error
}

// CountAvailableCopies counts AVAILABLE copies of a book, optionally excluding some
func (r *BookRepository) CountAvailableCopies(uow *UnitOfWork, bookID uint, exclude []uint) (int64, error) {
	var count int64
	q := uow.DB().Model(&models.BookCopy{}).
		Where("book_id = ? AND status = ?", bookID, domain.CopyAvailable)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	err := q.Count(&count).Error
	return count, err
}

// FindCopy reads a copy inside the unit without locking it, nil when missing
func (r *BookRepository) FindCopy(uow *UnitOfWork, copyID uint) (*models.BookCopy, error) {
	var c models.BookCopy
	err := uow.DB().First(&c, copyID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}
