package services

import (
	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"
)

// ClaimRequest describes which copy a borrower may take
type ClaimRequest struct {
	BookID uint
	CopyID *uint
	UserID uint
	// FallbackToAny claims any free copy when the preferred one is gone
	FallbackToAny bool
}

// CopyAllocator claims copies inside the caller's unit of work. It never
// commits; the claim lives or dies with the caller's transaction.
type CopyAllocator struct {
	books *repositories.BookRepository
	queue *repositories.QueueRepository
}

// NewCopyAllocator creates a new copy allocator
func NewCopyAllocator(books *repositories.BookRepository, queue *repositories.QueueRepository) *CopyAllocator {
	return &CopyAllocator{
		books: books,
		queue: queue,
	}
}

// Claim locks one AVAILABLE copy and marks it BORROWED. Copies held for
// another user's queue turn are never handed out.
func (a *CopyAllocator) Claim(uow *repositories.UnitOfWork, req ClaimRequest) (*models.BookCopy, error) {
	bookID := req.BookID

	if req.CopyID != nil {
		c, err := a.books.LockCopy(uow, *req.CopyID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			if !req.FallbackToAny || bookID == 0 {
				return nil, domain.ErrCopyNotFound
			}
		} else {
			if bookID == 0 {
				bookID = c.BookID
			}
			if c.BookID == bookID && c.Status == domain.CopyAvailable {
				held, err := a.queue.HeldCopyIDs(uow, bookID, req.UserID)
				if err != nil {
					return nil, err
				}
				if !containsID(held, c.ID) {
					return a.markBorrowed(uow, c)
				}
			}
			if !req.FallbackToAny {
				return nil, domain.ErrBookNotAvailable
			}
		}
	}

	held, err := a.queue.HeldCopyIDs(uow, bookID, req.UserID)
	if err != nil {
		return nil, err
	}
	c, err := a.books.LockAnyAvailableCopy(uow, bookID, held)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrBookNotAvailable
	}
	return a.markBorrowed(uow, c)
}

// FindFree locks a claimable copy for userID without changing it, nil when none
func (a *CopyAllocator) FindFree(uow *repositories.UnitOfWork, bookID, userID uint) (*models.BookCopy, error) {
	held, err := a.queue.HeldCopyIDs(uow, bookID, userID)
	if err != nil {
		return nil, err
	}
	return a.books.LockAnyAvailableCopy(uow, bookID, held)
}

// FreeCopies counts copies userID could claim right now
func (a *CopyAllocator) FreeCopies(uow *repositories.UnitOfWork, bookID, userID uint) (int64, error) {
	held, err := a.queue.HeldCopyIDs(uow, bookID, userID)
	if err != nil {
		return 0, err
	}
	return a.books.CountAvailableCopies(uow, bookID, held)
}

// Release moves a copy out of BORROWED, normally back to AVAILABLE
func (a *CopyAllocator) Release(uow *repositories.UnitOfWork, copyID uint, status domain.CopyStatus) error {
	return a.books.UpdateCopyStatus(uow, copyID, status)
}

func (a *CopyAllocator) markBorrowed(uow *repositories.UnitOfWork, c *models.BookCopy) (*models.BookCopy, error) {
	if err := a.books.UpdateCopyStatus(uow, c.ID, domain.CopyBorrowed); err != nil {
		return nil, err
	}
	c.Status = domain.CopyBorrowed
	return c, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
