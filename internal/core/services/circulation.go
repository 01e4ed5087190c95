package services

import (
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
)

// Circulation bundles the wired circulation services
type Circulation struct {
	Loans     *LoanService
	Waitlist  *WaitlistService
	Requests  *RequestService
	Dashboard *DashboardService
	Policies  *PolicyResolver
	Notifier  *NotificationService
}

// NewCirculation builds the repositories and services on one database
func NewCirculation(db *gorm.DB, library domain.LibraryPolicy, publisher EventPublisher, clock Clock, ids IDGen) *Circulation {
	tx := repositories.NewTxManager(db)
	books := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	queueRepo := repositories.NewQueueRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	memberships := repositories.NewMembershipRepository(db)

	policies := NewPolicyResolver(memberships, library, clock)
	allocator := NewCopyAllocator(books, queueRepo)
	notifier := NewNotificationService(publisher, clock)

	loans := NewLoanService(tx, loanRepo, books, queueRepo, requestRepo, policies, allocator, notifier, library, clock, ids)
	requests := NewRequestService(tx, requestRepo, books, queueRepo, allocator, loans, notifier, clock)
	waitlist := NewWaitlistService(tx, queueRepo, books, requestRepo, allocator, loans, requests, notifier, library, clock)

	loans.SetQueueAdvancer(waitlist)
	requests.SetQueueAdvancer(waitlist)

	return &Circulation{
		Loans:     loans,
		Waitlist:  waitlist,
		Requests:  requests,
		Dashboard: NewDashboardService(db, tx, policies, clock),
		Policies:  policies,
		Notifier:  notifier,
	}
}
