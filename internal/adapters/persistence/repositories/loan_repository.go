package repositories

import (
	"context"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoanRepository handles book loan data access
type LoanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create persists a new loan
func (r *LoanRepository) Create(uow *UnitOfWork, loan *models.BookLoan) error {
	return uow.DB().Create(loan).Error
}

// GetByID returns a loan with book and copy, nil when missing
func (r *LoanRepository) GetByID(ctx context.Context, id uint) (*models.BookLoan, error) {
	var loan models.BookLoan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Preload("Copy").
		First(&loan, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &loan, err
}

// LockByID loads a loan and holds its row lock, nil when missing
func (r *LoanRepository) LockByID(uow *UnitOfWork, id uint) (*models.BookLoan, error) {
	var loan models.BookLoan
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &loan, err
}

// Update applies column updates to a loan
func (r *LoanRepository) Update(uow *UnitOfWork, id uint, updates map[string]interface{}) error {
	return uow.DB().Model(&models.BookLoan{}).Where("id = ?", id).Updates(updates).Error
}

// CountOutstandingByUser counts ACTIVE/OVERDUE loans of a user
func (r *LoanRepository) CountOutstandingByUser(uow *UnitOfWork, userID uint) (int64, error) {
	var count int64
	err := uow.DB().Model(&models.BookLoan{}).
		Where("user_id = ? AND status IN ?", userID, domain.OutstandingLoanStatuses).
		Count(&count).Error
	return count, err
}

// HasOutstandingForBook checks whether the user holds any copy of the book
func (r *LoanRepository) HasOutstandingForBook(uow *UnitOfWork, userID, bookID uint) (bool, error) {
	var count int64
	err := uow.DB().Model(&models.BookLoan{}).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, domain.OutstandingLoanStatuses).
		Count(&count).Error
	return count > 0, err
}

// ListByUser returns a user's loans, newest first, optionally filtered by status
func (r *LoanRepository) ListByUser(ctx context.Context, userID uint, status string, offset, limit int) ([]models.BookLoan, int64, error) {
	var loans []models.BookLoan
	var total int64

	q := r.db.WithContext(ctx).Model(&models.BookLoan{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Book").
		Order("borrowed_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&loans).Error
	return loans, total, err
}

// ListOverdue returns OVERDUE loans plus ACTIVE loans already past due
func (r *LoanRepository) ListOverdue(ctx context.Context, now time.Time, offset, limit int) ([]models.BookLoan, int64, error) {
	var loans []models.BookLoan
	var total int64

	q := r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("status = ? OR (status = ? AND due_date < ?)", domain.LoanOverdue, domain.LoanActive, now).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Book").
		Order("due_date ASC").
		Offset(offset).
		Limit(limit).
		Find(&loans).Error
	return loans, total, err
}

// FindActiveDueBefore returns IDs of ACTIVE loans due before t
func (r *LoanRepository) FindActiveDueBefore(ctx context.Context, t time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.BookLoan{}).
		Where("status = ? AND due_date < ?", domain.LoanActive, t).
		Order("due_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// FindActiveDueBetween returns ACTIVE loans due in [from, to)
func (r *LoanRepository) FindActiveDueBetween(ctx context.Context, from, to time.Time) ([]models.BookLoan, error) {
	var loans []models.BookLoan
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date < ?", domain.LoanActive, from, to).
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}
