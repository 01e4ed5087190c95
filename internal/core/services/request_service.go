package services

import (
	"context"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"
)

// RequestService runs the librarian approval workflow for book requests
type RequestService struct {
	tx        *repositories.TxManager
	requests  *repositories.RequestRepository
	books     *repositories.BookRepository
	queue     *repositories.QueueRepository
	allocator *CopyAllocator
	loans     *LoanService
	notifier  *NotificationService
	clock     Clock
	advancer  QueueAdvancer
}

// NewRequestService creates a new request service
func NewRequestService(
	tx *repositories.TxManager,
	requests *repositories.RequestRepository,
	books *repositories.BookRepository,
	queue *repositories.QueueRepository,
	allocator *CopyAllocator,
	loans *LoanService,
	notifier *NotificationService,
	clock Clock,
) *RequestService {
	return &RequestService{
		tx:        tx,
		requests:  requests,
		books:     books,
		queue:     queue,
		allocator: allocator,
		loans:     loans,
		notifier:  notifier,
		clock:     clock,
	}
}

// SetQueueAdvancer sets who is told when a held copy is given up
func (s *RequestService) SetQueueAdvancer(a QueueAdvancer) {
	s.advancer = a
}

// Open files a direct request for a book that has no free copy
func (s *RequestService) Open(ctx context.Context, bookID, userID uint) (*models.BookRequest, error) {
	var req *models.BookRequest
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		book, err := s.books.LockByID(uow, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return domain.ErrBookNotFound
		}
		r, err := s.openTx(uow, bookID, userID, domain.DirectOrigin{})
		if err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// openTx opens a PENDING request. A queue turn adopts the user's existing
// pending request for the book instead of failing on it.
func (s *RequestService) openTx(uow *repositories.UnitOfWork, bookID, userID uint, origin domain.Origin) (*models.BookRequest, error) {
	if origin.Kind() == domain.OriginDirect {
		free, err := s.allocator.FreeCopies(uow, bookID, userID)
		if err != nil {
			return nil, err
		}
		if free > 0 {
			return nil, domain.ErrBookCurrentlyAvailable
		}
	}

	existing, err := s.requests.FindPendingByUserAndBook(uow, userID, bookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if origin.Kind() != domain.OriginQueueAdvance {
			return nil, domain.ErrDuplicatePendingRequest
		}
		entryID := origin.QueueEntryID()
		if err := s.requests.Update(uow, existing.ID, map[string]interface{}{
			"origin_kind":    origin.Kind(),
			"queue_entry_id": *entryID,
		}); err != nil {
			return nil, err
		}
		existing.OriginKind = origin.Kind()
		existing.QueueEntryID = entryID
		return existing, nil
	}

	req := &models.BookRequest{
		BookID:       bookID,
		UserID:       userID,
		OriginKind:   origin.Kind(),
		QueueEntryID: origin.QueueEntryID(),
		Status:       domain.RequestPending,
	}
	if err := s.requests.Create(uow, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve lends a copy against a PENDING request. An explicit copy is
// strict; otherwise the queue hold's copy is used, or any free copy.
func (s *RequestService) Approve(ctx context.Context, requestID, librarianID uint, preferredCopyID *uint) (*models.BookLoan, error) {
	found, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrRequestNotFound
	}

	var loan *models.BookLoan
	err = s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		if _, err := s.books.LockByID(uow, found.BookID); err != nil {
			return err
		}
		req, err := s.requests.LockByID(uow, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return domain.ErrRequestNotFound
		}
		if req.Status != domain.RequestPending {
			return domain.ErrInvalidRequestState
		}

		copyID := preferredCopyID
		fallback := false
		if copyID == nil {
			fallback = true
			if req.QueueEntryID != nil {
				entry, err := s.queue.LockByID(uow, *req.QueueEntryID)
				if err != nil {
					return err
				}
				if entry != nil && entry.HeldCopyID != nil {
					copyID = entry.HeldCopyID
				}
			}
		}

		l, err := s.loans.createLoanTx(uow, CreateLoanInput{
			BookID:    req.BookID,
			CopyID:    copyID,
			UserID:    req.UserID,
			RequestID: &req.ID,
		}, fallback)
		if err != nil {
			return err
		}
		if err := s.requests.Update(uow, req.ID, map[string]interface{}{
			"decided_by": librarianID,
		}); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Reject closes a PENDING request and tells the requester why
func (s *RequestService) Reject(ctx context.Context, requestID, librarianID uint, reason string) (*models.BookRequest, error) {
	return s.close(ctx, requestID, func(req *models.BookRequest) (map[string]interface{}, error) {
		return map[string]interface{}{
			"status":     domain.RequestRejected,
			"decided_by": librarianID,
			"reason":     reason,
		}, nil
	}, func(req *models.BookRequest) {
		s.notifier.SendRequestRejected(req, reason)
	})
}

// Cancel withdraws a PENDING request on behalf of its requester
func (s *RequestService) Cancel(ctx context.Context, requestID uint, actor domain.Actor) (*models.BookRequest, error) {
	return s.close(ctx, requestID, func(req *models.BookRequest) (map[string]interface{}, error) {
		if !actor.CanActFor(req.UserID) {
			return nil, domain.ErrUnauthorized
		}
		return map[string]interface{}{
			"status": domain.RequestCancelled,
			"reason": "cancelled by requester",
		}, nil
	}, nil)
}

// close ends a PENDING request and the queue turn linked to it. A released
// hold moves the queue on after commit.
func (s *RequestService) close(
	ctx context.Context,
	requestID uint,
	decide func(req *models.BookRequest) (map[string]interface{}, error),
	notify func(req *models.BookRequest),
) (*models.BookRequest, error) {
	found, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrRequestNotFound
	}

	var result *models.BookRequest
	err = s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		if _, err := s.books.LockByID(uow, found.BookID); err != nil {
			return err
		}
		req, err := s.requests.LockByID(uow, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return domain.ErrRequestNotFound
		}

		updates, err := decide(req)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return domain.ErrInvalidRequestState
		}

		now := s.clock.Now()
		updates["decided_at"] = now
		if err := s.requests.Update(uow, req.ID, updates); err != nil {
			return err
		}
		if err := s.releaseLinkedEntry(uow, req, now); err != nil {
			return err
		}

		fresh, err := s.requests.LockByID(uow, req.ID)
		if err != nil {
			return err
		}
		result = fresh

		uow.AfterCommit(func() {
			if notify != nil {
				notify(fresh)
			}
			if fresh.QueueEntryID != nil {
				runAdvance(ctx, s.advancer, fresh.BookID)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// releaseLinkedEntry cancels the queue turn a closed request belonged to
func (s *RequestService) releaseLinkedEntry(uow *repositories.UnitOfWork, req *models.BookRequest, now time.Time) error {
	if req.QueueEntryID == nil {
		return nil
	}
	entry, err := s.queue.LockByID(uow, *req.QueueEntryID)
	if err != nil || entry == nil {
		return err
	}
	switch entry.Status {
	case domain.QueueWaiting, domain.QueueReady, domain.QueuePendingApproval:
		return closeEntry(uow, s.queue, s.books, entry, domain.QueueCancelled, map[string]interface{}{
			"resolved_at": now,
		})
	}
	return nil
}

// Get returns a request visible to the actor
func (s *RequestService) Get(ctx context.Context, requestID uint, actor domain.Actor) (*models.BookRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	if !actor.CanActFor(req.UserID) {
		return nil, domain.ErrUnauthorized
	}
	return req, nil
}

// ListPending returns PENDING requests, oldest first
func (s *RequestService) ListPending(ctx context.Context, offset, limit int) ([]models.BookRequest, int64, error) {
	return s.requests.ListPending(ctx, offset, limit)
}
