package services

import (
	"context"
	"errors"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
)

// DashboardService serves read-only circulation summaries
type DashboardService struct {
	db       *gorm.DB
	tx       *repositories.TxManager
	policies *PolicyResolver
	clock    Clock
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(db *gorm.DB, tx *repositories.TxManager, policies *PolicyResolver, clock Clock) *DashboardService {
	return &DashboardService{db: db, tx: tx, policies: policies, clock: clock}
}

// ============================================================
// Staff Dashboard
// ============================================================

// StaffDashboardData is the circulation desk overview
type StaffDashboardData struct {
	ActiveLoans     int64 `json:"active_loans"`
	OverdueLoans    int64 `json:"overdue_loans"`
	DueToday        int64 `json:"due_today"`
	PendingRequests int64 `json:"pending_requests"`
	WaitingEntries  int64 `json:"waiting_entries"`
	HeldForPickup   int64 `json:"held_for_pickup"`
	LoansThisMonth  int64 `json:"loans_this_month"`

	FinesThisMonth float64 `json:"fines_this_month"`

	MostWaitedBooks []BookDemand `json:"most_waited_books"`
}

// BookDemand is a book with its waitlist length
type BookDemand struct {
	BookID          uint   `json:"book_id"`
	Title           string `json:"title"`
	AvailableCopies int    `json:"available_copies"`
	QueueCount      int    `json:"queue_count"`
}

// GetStaffDashboard returns counts across all loans, requests and queues
func (s *DashboardService) GetStaffDashboard(ctx context.Context) (*StaffDashboardData, error) {
	now := s.clock.Now()
	data := &StaffDashboardData{}
	db := s.db.WithContext(ctx)

	// Loans
	if err := db.Model(&models.BookLoan{}).Where("status = ?", domain.LoanActive).Count(&data.ActiveLoans).Error; err != nil {
		return nil, err
	}
	db.Model(&models.BookLoan{}).
		Where("status = ? OR (status = ? AND due_date < ?)", domain.LoanOverdue, domain.LoanActive, now).
		Count(&data.OverdueLoans)

	startOfDay := now.Truncate(24 * time.Hour)
	db.Model(&models.BookLoan{}).
		Where("status = ? AND due_date >= ? AND due_date < ?", domain.LoanActive, startOfDay, startOfDay.Add(24*time.Hour)).
		Count(&data.DueToday)

	// Requests & queues
	db.Model(&models.BookRequest{}).Where("status = ?", domain.RequestPending).Count(&data.PendingRequests)
	db.Model(&models.QueueEntry{}).Where("status = ?", domain.QueueWaiting).Count(&data.WaitingEntries)
	db.Model(&models.QueueEntry{}).
		Where("status IN ?", []string{string(domain.QueueReady), string(domain.QueuePendingApproval)}).
		Count(&data.HeldForPickup)

	// This month
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	db.Model(&models.BookLoan{}).Where("borrowed_at >= ?", startOfMonth).Count(&data.LoansThisMonth)
	db.Model(&models.BookLoan{}).
		Where("returned_at >= ?", startOfMonth).
		Select("COALESCE(SUM(fine_amount), 0)").
		Scan(&data.FinesThisMonth)

	// Books with the longest waitlists
	var books []models.Book
	db.Where("queue_count > 0").Order("queue_count DESC, id ASC").Limit(10).Find(&books)

	data.MostWaitedBooks = make([]BookDemand, len(books))
	for i, b := range books {
		data.MostWaitedBooks[i] = BookDemand{
			BookID:          b.ID,
			Title:           b.Title,
			AvailableCopies: b.AvailableCopies,
			QueueCount:      b.QueueCount,
		}
	}

	return data, nil
}

// ============================================================
// Member Dashboard
// ============================================================

// MemberDashboardData is one member's circulation summary
type MemberDashboardData struct {
	Policy          domain.Policy `json:"policy"`
	HasMembership   bool          `json:"has_membership"`
	OutstandingLoan int64         `json:"outstanding_loans"`
	RemainingQuota  int           `json:"remaining_quota"`
	OverdueLoans    int64         `json:"overdue_loans"`
	AccruedFines    float64       `json:"accrued_fines"`

	DueSoon      []models.BookLoan    `json:"due_soon"`
	QueueEntries []models.QueueEntry  `json:"queue_entries"`
	Requests     []models.BookRequest `json:"pending_requests"`
}

// GetMemberDashboard returns the caller's loans, holds and quota
func (s *DashboardService) GetMemberDashboard(ctx context.Context, userID uint) (*MemberDashboardData, error) {
	now := s.clock.Now()
	data := &MemberDashboardData{}

	// 1. Policy & quota
	err := s.tx.Do(ctx, func(uow *repositories.UnitOfWork) error {
		policy, err := s.policies.Resolve(uow, userID, false)
		if err == nil {
			data.Policy = policy
			data.HasMembership = true
			return nil
		}
		if !errors.Is(err, domain.ErrNoActiveMembership) {
			return err
		}
		data.Policy = s.policies.Default()
		return nil
	})
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	// 2. Loans
	var loans []models.BookLoan
	if err := db.Preload("Book").
		Where("user_id = ? AND status IN ?", userID, domain.OutstandingLoanStatuses).
		Order("due_date ASC").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	data.OutstandingLoan = int64(len(loans))
	if data.HasMembership {
		data.RemainingQuota = data.Policy.MaxLoans - len(loans)
		if data.RemainingQuota < 0 {
			data.RemainingQuota = 0
		}
	}

	data.DueSoon = []models.BookLoan{}
	for _, l := range loans {
		if l.Status == domain.LoanOverdue || l.DueDate.Before(now) {
			data.OverdueLoans++
			data.AccruedFines += ComputeFine(l.DueDate, now, data.Policy)
			continue
		}
		if l.DueDate.Sub(now) <= 3*24*time.Hour {
			data.DueSoon = append(data.DueSoon, l)
		}
	}
	data.AccruedFines = roundCents(data.AccruedFines)

	// 3. Queue entries & requests
	if err := db.Where("user_id = ? AND status IN ?", userID, domain.ActiveQueueStatuses).
		Order("created_at ASC").
		Find(&data.QueueEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ? AND status = ?", userID, domain.RequestPending).
		Order("created_at ASC").
		Find(&data.Requests).Error; err != nil {
		return nil, err
	}

	return data, nil
}
