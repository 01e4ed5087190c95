package repositories

import (
	"context"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository handles book request data access
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create persists a new request
func (r *RequestRepository) Create(uow *UnitOfWork, req *models.BookRequest) error {
	return uow.DB().Create(req).Error
}

// GetByID returns a request by ID, nil when missing
func (r *RequestRepository) GetByID(ctx context.Context, id uint) (*models.BookRequest, error) {
	var req models.BookRequest
	err := r.db.WithContext(ctx).First(&req, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &req, err
}

// LockByID loads a request and holds its row lock, nil when missing
func (r *RequestRepository) LockByID(uow *UnitOfWork, id uint) (*models.BookRequest, error) {
	var req models.BookRequest
	err := uow.DB().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &req, err
}

// Update applies column updates to a request
func (r *RequestRepository) Update(uow *UnitOfWork, id uint, updates map[string]interface{}) error {
	return uow.DB().Model(&models.BookRequest{}).Where("id = ?", id).Updates(updates).Error
}

// FindPendingByUserAndBook returns the user's PENDING request for a book, nil when none
func (r *RequestRepository) FindPendingByUserAndBook(uow *UnitOfWork, userID, bookID uint) (*models.BookRequest, error) {
	var req models.BookRequest
	err := uow.DB().
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, domain.RequestPending).
		First(&req).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &req, err
}

// HasOtherPending checks whether another user has a PENDING request for the book
func (r *RequestRepository) HasOtherPending(uow *UnitOfWork, bookID, userID uint) (bool, error) {
	var count int64
	err := uow.DB().Model(&models.BookRequest{}).
		Where("book_id = ? AND user_id <> ? AND status = ?", bookID, userID, domain.RequestPending).
		Count(&count).Error
	return count > 0, err
}

// ListPending returns PENDING requests, oldest first
func (r *RequestRepository) ListPending(ctx context.Context, offset, limit int) ([]models.BookRequest, int64, error) {
	var reqs []models.BookRequest
	var total int64

	q := r.db.WithContext(ctx).Model(&models.BookRequest{}).
		Where("status = ?", domain.RequestPending).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at ASC").Offset(offset).Limit(limit).Find(&reqs).Error
	return reqs, total, err
}
