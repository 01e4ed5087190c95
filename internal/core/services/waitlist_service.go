package services

import (
	"context"
	"errors"
	"log"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"
)

// WaitlistService keeps the per-book queue and hands freed copies to it
type WaitlistService struct {
	tx        *repositories.TxManager
	queue     *repositories.QueueRepository
	books     *repositories.BookRepository
	requests  *repositories.RequestRepository
	allocator *CopyAllocator
	loans     *LoanService
	approvals *RequestService
	notifier  *NotificationService
	library   domain.LibraryPolicy
	clock     Clock
}

// NewWaitlistService creates a new waitlist service
func NewWaitlistService(
	tx *repositories.TxManager,
	queue *repositories.QueueRepository,
	books *repositories.BookRepository,
	requests *repositories.RequestRepository,
	allocator *CopyAllocator,
	loans *LoanService,
	approvals *RequestService,
	notifier *NotificationService,
	library domain.LibraryPolicy,
	clock Clock,
) *WaitlistService {
	return &WaitlistService{
		tx:        tx,
		queue:     queue,
		books:     books,
		requests:  requests,
		allocator: allocator,
		loans:     loans,
		approvals: approvals,
		notifier:  notifier,
		library:   library,
		clock:     clock,
	}
}

// QueuePosition represents where a user stands in a book's queue
type QueuePosition struct {
	Entry       *models.QueueEntry `json:"entry"`
	Position    int                `json:"position"`
	Ahead       int                `json:"ahead"`
	QueueLength int                `json:"queue_length"`
}

// ============================================================
// Join / Leave
// ============================================================

// Enqueue adds the user to the end of the book's queue. A user who already
// holds a copy of the book cannot join.
func (s *WaitlistService) Enqueue(ctx context.Context, bookID, userID uint) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		book, err := s.books.LockByID(uow, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return domain.ErrBookNotFound
		}

		existing, err := s.queue.FindActiveByUserAndBook(uow, userID, bookID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyQueued
		}
		holding, err := s.loans.loans.HasOutstandingForBook(uow, userID, bookID)
		if err != nil {
			return err
		}
		if holding {
			return domain.ErrDuplicateActiveLoan
		}

		waiting, err := s.queue.CountWaiting(uow, bookID)
		if err != nil {
			return err
		}
		e := &models.QueueEntry{
			BookID:   bookID,
			UserID:   userID,
			Position: int(waiting) + 1,
			Status:   domain.QueueWaiting,
		}
		if err := s.queue.Create(uow, e); err != nil {
			return err
		}
		if err := s.books.AdjustQueueCount(uow, bookID, 1); err != nil {
			return err
		}
		entry = e

		// A copy is already free: offer it straight away
		free, err := s.allocator.FreeCopies(uow, bookID, userID)
		if err != nil {
			return err
		}
		if free > 0 {
			uow.AfterCommit(func() { runAdvance(ctx, s, bookID) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Cancel withdraws a WAITING entry and closes the gap it leaves
func (s *WaitlistService) Cancel(ctx context.Context, entryID uint, actor domain.Actor) error {
	found, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if found == nil {
		return domain.ErrQueueEntryNotFound
	}

	return s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		if _, err := s.books.LockByID(uow, found.BookID); err != nil {
			return err
		}
		entry, err := s.queue.LockByID(uow, entryID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrQueueEntryNotFound
		}
		if !actor.CanActFor(entry.UserID) {
			return domain.ErrUnauthorized
		}
		if entry.Status != domain.QueueWaiting {
			return domain.ErrInvalidQueueState
		}

		return closeEntry(uow, s.queue, s.books, entry, domain.QueueCancelled, map[string]interface{}{
			"resolved_at": s.clock.Now(),
		})
	})
}

// ============================================================
// Advance / Expire / Pickup
// ============================================================

// AdvanceQueue offers a free copy to the lowest-position WAITING entry.
// No waiter or no free copy is not an error.
func (s *WaitlistService) AdvanceQueue(ctx context.Context, bookID uint) error {
	return s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		return s.advanceTx(uow, bookID)
	})
}

func (s *WaitlistService) advanceTx(uow *repositories.UnitOfWork, bookID uint) error {
	// 1. Serialize on the book
	book, err := s.books.LockByID(uow, bookID)
	if err != nil {
		return err
	}
	if book == nil {
		return domain.ErrBookNotFound
	}

	// 2. Next in line and a copy for them
	entry, err := s.queue.NextWaiting(uow, bookID)
	if err != nil || entry == nil {
		return err
	}
	c, err := s.allocator.FindFree(uow, bookID, entry.UserID)
	if err != nil || c == nil {
		return err
	}

	// 3. Hold the copy
	now := s.clock.Now()
	expiresAt := now.Add(s.library.HoldDuration())
	copyID := c.ID
	if err := closeEntry(uow, s.queue, s.books, entry, domain.QueueReady, map[string]interface{}{
		"ready_at":     now,
		"expires_at":   expiresAt,
		"held_copy_id": copyID,
	}); err != nil {
		return err
	}
	entry.Status = domain.QueueReady
	entry.ReadyAt = &now
	entry.ExpiresAt = &expiresAt
	entry.HeldCopyID = &copyID

	// 4. Auto-approve; any domain failure falls through to manual approval
	if s.library.AutoApproveQueueLoans {
		err := uow.Savepoint(func(nested *repositories.UnitOfWork) error {
			req, err := s.approvals.openTx(nested, bookID, entry.UserID, domain.QueueOrigin{EntryID: entry.ID})
			if err != nil {
				return err
			}
			_, err = s.loans.createLoanTx(nested, CreateLoanInput{
				BookID:    bookID,
				CopyID:    &copyID,
				UserID:    entry.UserID,
				RequestID: &req.ID,
			}, false)
			return err
		})
		if err == nil {
			log.Printf("✅ Queue entry %d auto-approved (book %d, copy %d)", entry.ID, bookID, copyID)
			return nil
		}
		if domain.KindOf(err) == domain.KindInternal {
			return err
		}
		log.Printf("⚠️ Auto-approve for queue entry %d failed, awaiting librarian: %v", entry.ID, err)
	}

	// 5. Manual approval
	req, err := s.approvals.openTx(uow, bookID, entry.UserID, domain.QueueOrigin{EntryID: entry.ID})
	if err != nil {
		return err
	}
	if err := s.queue.UpdateEntry(uow, entry.ID, map[string]interface{}{
		"status":     domain.QueuePendingApproval,
		"request_id": req.ID,
	}); err != nil {
		return err
	}
	entry.Status = domain.QueuePendingApproval
	entry.RequestID = &req.ID

	uow.AfterCommit(func() {
		s.notifier.SendHoldReady(entry)
	})
	return nil
}

// ExpireHolds ends holds whose time ran out and moves the queue on
func (s *WaitlistService) ExpireHolds(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	now := s.clock.Now()

	expired, err := s.queue.FindExpiredHolds(ctx, now)
	if err != nil {
		return result, err
	}
	result.Scanned = len(expired)

	for _, found := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		bookID := found.BookID
		entryID := found.ID
		err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
			if _, err := s.books.LockByID(uow, bookID); err != nil {
				return err
			}
			entry, err := s.queue.LockByID(uow, entryID)
			if err != nil {
				return err
			}
			if entry == nil || entry.ExpiresAt == nil || !entry.ExpiresAt.Before(now) {
				return errSkipped
			}

			switch entry.Status {
			case domain.QueueReady:
				err = closeEntry(uow, s.queue, s.books, entry, domain.QueueExpired, map[string]interface{}{
					"resolved_at": now,
				})
			case domain.QueuePendingApproval:
				err = closeEntry(uow, s.queue, s.books, entry, domain.QueueCancelled, map[string]interface{}{
					"resolved_at": now,
				})
				if err == nil && entry.RequestID != nil {
					err = cancelPendingRequest(uow, s.requests, *entry.RequestID, now, "hold expired")
				}
			default:
				return errSkipped
			}
			if err != nil {
				return err
			}

			uow.AfterCommit(func() { runAdvance(ctx, s, bookID) })
			return nil
		})
		switch {
		case err == nil:
			result.Updated++
		case errors.Is(err, errSkipped):
		default:
			result.Failed++
			log.Printf("❌ Hold expiry failed for queue entry %d: %v", entryID, err)
		}
	}

	if result.Updated > 0 || result.Failed > 0 {
		log.Printf("✅ Hold expiry: %d scanned, %d expired, %d failed", result.Scanned, result.Updated, result.Failed)
	}
	return result, nil
}

// MarkPickup hands the held copy to the entry's user at the desk
func (s *WaitlistService) MarkPickup(ctx context.Context, entryID, librarianID uint) (*models.BookLoan, error) {
	found, err := s.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrQueueEntryNotFound
	}
	if found.Status == domain.QueuePendingApproval && found.RequestID != nil {
		return s.approvals.Approve(ctx, *found.RequestID, librarianID, nil)
	}

	var loan *models.BookLoan
	err = s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		if _, err := s.books.LockByID(uow, found.BookID); err != nil {
			return err
		}
		entry, err := s.queue.LockByID(uow, entryID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrQueueEntryNotFound
		}
		if entry.Status != domain.QueueReady {
			return domain.ErrInvalidQueueState
		}

		l, err := s.loans.createLoanTx(uow, CreateLoanInput{
			BookID: entry.BookID,
			CopyID: entry.HeldCopyID,
			UserID: entry.UserID,
		}, true)
		if err != nil {
			return err
		}
		loan = l
		log.Printf("✅ Queue entry %d picked up, handed out by librarian %d", entry.ID, librarianID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ============================================================
// Queries
// ============================================================

// GetPosition returns the user's standing in a book's queue
func (s *WaitlistService) GetPosition(ctx context.Context, bookID, userID uint) (*QueuePosition, error) {
	entry, err := s.queue.GetActiveByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.ErrQueueEntryNotFound
	}
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, domain.ErrBookNotFound
	}

	pos := &QueuePosition{
		Entry:       entry,
		QueueLength: book.QueueCount,
	}
	if entry.Status == domain.QueueWaiting {
		pos.Position = entry.Position
		pos.Ahead = entry.Position - 1
	}
	return pos, nil
}

// GetBookQueue returns a book's active entries, holds first then waiters in order
func (s *WaitlistService) GetBookQueue(ctx context.Context, bookID uint) ([]models.QueueEntry, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, domain.ErrBookNotFound
	}
	return s.queue.ListByBook(ctx, bookID)
}

// ListUserEntries returns the user's active entries across books
func (s *WaitlistService) ListUserEntries(ctx context.Context, userID uint) ([]models.QueueEntry, error) {
	return s.queue.ListByUser(ctx, userID)
}

// ============================================================
// Helpers shared by the circulation services
// ============================================================

// closeEntry moves an entry out of WAITING (or between non-waiting states).
// Leaving WAITING compacts later positions and decrements queue_count in
// the same unit, so positions stay 1..N.
func closeEntry(uow *repositories.UnitOfWork, queue *repositories.QueueRepository, books *repositories.BookRepository,
	entry *models.QueueEntry, status domain.QueueStatus, updates map[string]interface{}) error {
	updates["status"] = status
	if err := queue.UpdateEntry(uow, entry.ID, updates); err != nil {
		return err
	}
	if entry.Status != domain.QueueWaiting {
		return nil
	}
	if err := queue.CompactAfter(uow, entry.BookID, entry.Position); err != nil {
		return err
	}
	return books.AdjustQueueCount(uow, entry.BookID, -1)
}

// cancelPendingRequest cancels a request if it is still PENDING
func cancelPendingRequest(uow *repositories.UnitOfWork, requests *repositories.RequestRepository, requestID uint, at time.Time, reason string) error {
	req, err := requests.LockByID(uow, requestID)
	if err != nil || req == nil || req.Status != domain.RequestPending {
		return err
	}
	return requests.Update(uow, req.ID, map[string]interface{}{
		"status":     domain.RequestCancelled,
		"decided_at": at,
		"reason":     reason,
	})
}

// runAdvance advances a book's queue after a commit. Failures are logged only.
func runAdvance(ctx context.Context, advancer QueueAdvancer, bookID uint) {
	if advancer == nil {
		return
	}
	if err := advancer.AdvanceQueue(context.WithoutCancel(ctx), bookID); err != nil {
		log.Printf("⚠️ Queue advance for book %d failed: %v", bookID, err)
	}
}
