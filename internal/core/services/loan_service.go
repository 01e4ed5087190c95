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

// errSkipped marks a sweep item that no longer qualifies once locked
var errSkipped = errors.New("skipped")

// LoanService manages the loan lifecycle
type LoanService struct {
	tx        *repositories.TxManager
	loans     *repositories.LoanRepository
	books     *repositories.BookRepository
	queue     *repositories.QueueRepository
	requests  *repositories.RequestRepository
	policies  *PolicyResolver
	allocator *CopyAllocator
	notifier  *NotificationService
	library   domain.LibraryPolicy
	clock     Clock
	ids       IDGen
	advancer  QueueAdvancer
}

// NewLoanService creates a new loan service
func NewLoanService(
	tx *repositories.TxManager,
	loans *repositories.LoanRepository,
	books *repositories.BookRepository,
	queue *repositories.QueueRepository,
	requests *repositories.RequestRepository,
	policies *PolicyResolver,
	allocator *CopyAllocator,
	notifier *NotificationService,
	library domain.LibraryPolicy,
	clock Clock,
	ids IDGen,
) *LoanService {
	return &LoanService{
		tx:        tx,
		loans:     loans,
		books:     books,
		queue:     queue,
		requests:  requests,
		policies:  policies,
		allocator: allocator,
		notifier:  notifier,
		library:   library,
		clock:     clock,
		ids:       ids,
	}
}

// SetQueueAdvancer sets who is told when a copy is freed
func (s *LoanService) SetQueueAdvancer(a QueueAdvancer) {
	s.advancer = a
}

// ============================================================
// Create
// ============================================================

// CreateLoanInput represents a borrow request. Either BookID or CopyID is required.
type CreateLoanInput struct {
	BookID    uint  `json:"book_id"`
	CopyID    *uint `json:"copy_id"`
	UserID    uint  `json:"user_id"`
	RequestID *uint `json:"request_id"`
}

// CreateLoan lends a copy to a user in one transaction
func (s *LoanService) CreateLoan(ctx context.Context, input CreateLoanInput) (*models.BookLoan, error) {
	var loan *models.BookLoan
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		l, err := s.createLoanTx(uow, input, false)
		if err != nil {
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

// createLoanTx is the loan creation shared by direct borrows, request
// approval and queue auto-approval. It runs in the caller's unit.
func (s *LoanService) createLoanTx(uow *repositories.UnitOfWork, input CreateLoanInput, fallbackToAny bool) (*models.BookLoan, error) {
	if input.UserID == 0 {
		return nil, domain.InvalidInput("user_id is required")
	}

	// 1. Resolve and lock the book
	bookID := input.BookID
	if bookID == 0 {
		if input.CopyID == nil {
			return nil, domain.InvalidInput("book_id or copy_id is required")
		}
		c, err := s.books.FindCopy(uow, *input.CopyID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, domain.ErrCopyNotFound
		}
		bookID = c.BookID
	}
	book, err := s.books.LockByID(uow, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, domain.ErrBookNotFound
	}

	// 2. Request being fulfilled
	var req *models.BookRequest
	if input.RequestID != nil {
		req, err = s.requests.LockByID(uow, *input.RequestID)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, domain.ErrRequestNotFound
		}
		if req.Status != domain.RequestPending {
			return nil, domain.ErrInvalidRequestState
		}
		if req.UserID != input.UserID || req.BookID != bookID {
			return nil, domain.InvalidInput("request belongs to another user or book")
		}
	}

	// 3. Policy and quota
	policy, err := s.policies.Resolve(uow, input.UserID, true)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.loans.CountOutstandingByUser(uow, input.UserID)
	if err != nil {
		return nil, err
	}
	if int(outstanding) >= policy.MaxLoans {
		return nil, domain.LoanLimitExceeded(policy.MaxLoans)
	}

	// 4. Claim a copy
	c, err := s.allocator.Claim(uow, ClaimRequest{
		BookID:        bookID,
		CopyID:        input.CopyID,
		UserID:        input.UserID,
		FallbackToAny: fallbackToAny,
	})
	if err != nil {
		return nil, err
	}

	// 5. One outstanding loan per user and book
	dup, err := s.loans.HasOutstandingForBook(uow, input.UserID, bookID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, domain.ErrDuplicateActiveLoan
	}

	// 6. Persist loan and counters
	ref, err := s.ids.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	loan := &models.BookLoan{
		Reference:  ref,
		UserID:     input.UserID,
		BookID:     bookID,
		CopyID:     c.ID,
		RequestID:  input.RequestID,
		BorrowedAt: now,
		DueDate:    now.Add(policy.LoanPeriod()),
		Status:     domain.LoanActive,
	}
	if err := s.loans.Create(uow, loan); err != nil {
		return nil, err
	}
	if err := s.books.AdjustAvailable(uow, bookID, -1); err != nil {
		return nil, err
	}

	// 7. Close the request and queue turn this loan satisfies
	if req != nil {
		if err := s.requests.Update(uow, req.ID, map[string]interface{}{
			"status":     domain.RequestFulfilled,
			"loan_id":    loan.ID,
			"decided_at": now,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.settleQueueEntry(uow, loan, input.RequestID); err != nil {
		return nil, err
	}

	uow.AfterCommit(func() {
		s.notifier.SendLoanConfirmation(loan)
		s.notifier.ScheduleReturnReminder(loan)
	})
	return loan, nil
}

// settleQueueEntry fulfills the borrower's own active entry for the book.
// A hold on a different copy is released and its pending request cancelled.
func (s *LoanService) settleQueueEntry(uow *repositories.UnitOfWork, loan *models.BookLoan, requestID *uint) error {
	entry, err := s.queue.FindActiveByUserAndBook(uow, loan.UserID, loan.BookID)
	if err != nil || entry == nil {
		return err
	}

	now := s.clock.Now()
	if err := closeEntry(uow, s.queue, s.books, entry, domain.QueueFulfilled, map[string]interface{}{
		"loan_id":     loan.ID,
		"resolved_at": now,
	}); err != nil {
		return err
	}

	if entry.RequestID != nil && (requestID == nil || *entry.RequestID != *requestID) {
		if err := cancelPendingRequest(uow, s.requests, *entry.RequestID, now, "fulfilled by another loan"); err != nil {
			return err
		}
	}
	if entry.HeldCopyID != nil && *entry.HeldCopyID != loan.CopyID {
		ctx := uow.Context()
		bookID := loan.BookID
		uow.AfterCommit(func() { runAdvance(ctx, s.advancer, bookID) })
	}
	return nil
}

// ============================================================
// Return / Renew / Lost
// ============================================================

// ReturnBook closes an outstanding loan and frees its copy
func (s *LoanService) ReturnBook(ctx context.Context, loanID uint, actor domain.Actor) (*models.BookLoan, error) {
	var loan *models.BookLoan
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		l, err := s.loans.LockByID(uow, loanID)
		if err != nil {
			return err
		}
		if l == nil {
			return domain.ErrLoanNotFound
		}
		if !actor.CanActFor(l.UserID) {
			return domain.ErrUnauthorized
		}
		if !l.Status.IsOutstanding() {
			return domain.ErrInvalidLoanState
		}

		if _, err := s.books.LockByID(uow, l.BookID); err != nil {
			return err
		}
		policy, err := s.policies.ResolveOrDefault(uow, l.UserID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		fine := ComputeFine(l.DueDate, now, policy)
		returnedBy := actor.UserID
		if err := s.loans.Update(uow, l.ID, map[string]interface{}{
			"status":      domain.LoanReturned,
			"returned_at": now,
			"returned_by": returnedBy,
			"fine_amount": fine,
		}); err != nil {
			return err
		}
		if err := s.allocator.Release(uow, l.CopyID, domain.CopyAvailable); err != nil {
			return err
		}
		if err := s.books.AdjustAvailable(uow, l.BookID, 1); err != nil {
			return err
		}

		l.Status = domain.LoanReturned
		l.ReturnedAt = &now
		l.ReturnedBy = &returnedBy
		l.FineAmount = fine
		loan = l

		uow.AfterCommit(func() {
			s.notifier.SendReturnConfirmation(l)
			runAdvance(ctx, s.advancer, l.BookID)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// RenewLoan pushes the due date of an ACTIVE loan by one renewal period
func (s *LoanService) RenewLoan(ctx context.Context, loanID uint, actor domain.Actor) (*models.BookLoan, error) {
	var loan *models.BookLoan
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		l, err := s.loans.LockByID(uow, loanID)
		if err != nil {
			return err
		}
		if l == nil {
			return domain.ErrLoanNotFound
		}
		if l.UserID != actor.UserID {
			return domain.ErrNotBorrower
		}
		if l.Status != domain.LoanActive {
			return domain.ErrInvalidLoanState
		}

		if _, err := s.books.LockByID(uow, l.BookID); err != nil {
			return err
		}
		policy, err := s.policies.Resolve(uow, l.UserID, false)
		if err != nil {
			return err
		}

		// Someone else waiting for the title blocks renewal
		blocked, err := s.requests.HasOtherPending(uow, l.BookID, l.UserID)
		if err != nil {
			return err
		}
		if !blocked && s.library.RenewalBlockedByQueue {
			blocked, err = s.queue.HasOtherWaiting(uow, l.BookID, l.UserID)
			if err != nil {
				return err
			}
		}
		if blocked {
			return domain.ErrRenewalBlockedByDemand
		}

		now := s.clock.Now()
		cooldown := time.Duration(s.library.RenewalCooldownHours) * time.Hour
		if cooldown > 0 && l.LastRenewedAt != nil && now.Sub(*l.LastRenewedAt) < cooldown {
			return domain.ErrRenewalTooSoon
		}
		if l.RenewalCount >= policy.RenewalLimit {
			return domain.RenewalLimitExceeded(policy.RenewalLimit)
		}

		due := l.DueDate.Add(policy.RenewalPeriod())
		if err := s.loans.Update(uow, l.ID, map[string]interface{}{
			"due_date":        due,
			"renewal_count":   l.RenewalCount + 1,
			"last_renewed_at": now,
		}); err != nil {
			return err
		}

		l.DueDate = due
		l.RenewalCount++
		l.LastRenewedAt = &now
		loan = l

		uow.AfterCommit(func() {
			s.notifier.ScheduleReturnReminder(l)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// MarkLost writes off the copy of an outstanding loan and records the fine
func (s *LoanService) MarkLost(ctx context.Context, loanID, librarianID uint) (*models.BookLoan, error) {
	var loan *models.BookLoan
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		l, err := s.loans.LockByID(uow, loanID)
		if err != nil {
			return err
		}
		if l == nil {
			return domain.ErrLoanNotFound
		}
		if !l.Status.IsOutstanding() {
			return domain.ErrInvalidLoanState
		}

		if _, err := s.books.LockByID(uow, l.BookID); err != nil {
			return err
		}
		policy, err := s.policies.ResolveOrDefault(uow, l.UserID)
		if err != nil {
			return err
		}

		fine := ComputeFine(l.DueDate, s.clock.Now(), policy)
		if err := s.loans.Update(uow, l.ID, map[string]interface{}{
			"status":      domain.LoanLost,
			"fine_amount": fine,
		}); err != nil {
			return err
		}
		if err := s.allocator.Release(uow, l.CopyID, domain.CopyLost); err != nil {
			return err
		}
		if err := s.books.AdjustTotal(uow, l.BookID, -1); err != nil {
			return err
		}

		l.Status = domain.LoanLost
		l.FineAmount = fine
		loan = l
		log.Printf("⚠️ Loan %s marked lost by librarian %d (copy %d)", l.Reference, librarianID, l.CopyID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ============================================================
// Fines & sweeps
// ============================================================

// CalculateFine returns the fine accrued so far; it never writes
func (s *LoanService) CalculateFine(ctx context.Context, loanID uint) (float64, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return 0, err
	}
	if loan == nil {
		return 0, domain.ErrLoanNotFound
	}
	if !loan.Status.IsOutstanding() {
		return 0, nil
	}

	var fine float64
	err = s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		policy, err := s.policies.ResolveOrDefault(uow, loan.UserID)
		if err != nil {
			return err
		}
		fine = ComputeFine(loan.DueDate, s.clock.Now(), policy)
		return nil
	})
	return fine, err
}

// SweepOverdue moves ACTIVE loans past due to OVERDUE, one transaction each
func (s *LoanService) SweepOverdue(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	now := s.clock.Now()

	ids, err := s.loans.FindActiveDueBefore(ctx, now)
	if err != nil {
		return result, err
	}
	result.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
			l, err := s.loans.LockByID(uow, id)
			if err != nil {
				return err
			}
			if l == nil || l.Status != domain.LoanActive || !l.DueDate.Before(now) {
				return errSkipped
			}
			policy, err := s.policies.ResolveOrDefault(uow, l.UserID)
			if err != nil {
				return err
			}
			if err := s.loans.Update(uow, l.ID, map[string]interface{}{
				"status": domain.LoanOverdue,
			}); err != nil {
				return err
			}

			l.Status = domain.LoanOverdue
			fine := ComputeFine(l.DueDate, now, policy)
			uow.AfterCommit(func() {
				s.notifier.SendOverdueNotice(l, fine)
			})
			return nil
		})
		switch {
		case err == nil:
			result.Updated++
		case errors.Is(err, errSkipped):
		default:
			result.Failed++
			log.Printf("❌ Overdue sweep failed for loan %d: %v", id, err)
		}
	}

	if result.Updated > 0 || result.Failed > 0 {
		log.Printf("✅ Overdue sweep: %d scanned, %d marked overdue, %d failed", result.Scanned, result.Updated, result.Failed)
	}
	return result, nil
}

// RemindDueSoon sends a reminder for every ACTIVE loan due within a day
func (s *LoanService) RemindDueSoon(ctx context.Context) (domain.SweepResult, error) {
	var result domain.SweepResult
	now := s.clock.Now()

	loans, err := s.loans.FindActiveDueBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return result, err
	}
	result.Scanned = len(loans)
	for i := range loans {
		s.notifier.SendDueSoonReminder(&loans[i])
		result.Updated++
	}
	return result, nil
}

// ============================================================
// Queries
// ============================================================

// GetLoan returns a loan visible to the actor
func (s *LoanService) GetLoan(ctx context.Context, loanID uint, actor domain.Actor) (*models.BookLoan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, domain.ErrLoanNotFound
	}
	if !actor.CanActFor(loan.UserID) {
		return nil, domain.ErrUnauthorized
	}
	return loan, nil
}

// ListUserLoans returns a user's loans, optionally filtered by status
func (s *LoanService) ListUserLoans(ctx context.Context, userID uint, status string, offset, limit int) ([]models.BookLoan, int64, error) {
	return s.loans.ListByUser(ctx, userID, status, offset, limit)
}

// ListOverdueLoans returns loans past their due date
func (s *LoanService) ListOverdueLoans(ctx context.Context, offset, limit int) ([]models.BookLoan, int64, error) {
	return s.loans.ListOverdue(ctx, s.clock.Now(), offset, limit)
}
