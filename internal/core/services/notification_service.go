package services

import (
	"time"

	"library-circulation/internal/adapters/persistence/models"

	"github.com/google/uuid"
)

// Notification event types
const (
	EventLoanConfirmation        = "loan_confirmation"
	EventReturnReminderScheduled = "return_reminder_scheduled"
	EventOverdueNotice           = "overdue_notice"
	EventReturnConfirmation      = "return_confirmation"
	EventRequestRejected         = "request_rejected"
	EventHoldReady               = "hold_ready"
	EventDueSoonReminder         = "due_soon_reminder"
)

// NotificationEvent is an outbound message for the notification collaborator
type NotificationEvent struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	UserID     uint       `json:"user_id"`
	BookID     uint       `json:"book_id"`
	LoanID     *uint      `json:"loan_id,omitempty"`
	RequestID  *uint      `json:"request_id,omitempty"`
	Reference  string     `json:"reference,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	RemindAt   *time.Time `json:"remind_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Amount     float64    `json:"amount,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NotificationService turns circulation outcomes into fire-and-forget events.
// None of its methods report errors to the caller.
type NotificationService struct {
	publisher EventPublisher
	clock     Clock
}

// NewNotificationService creates a new notification service
func NewNotificationService(publisher EventPublisher, clock Clock) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		clock:     clock,
	}
}

func (n *NotificationService) loanEvent(eventType string, loan *models.BookLoan) NotificationEvent {
	loanID := loan.ID
	due := loan.DueDate
	return NotificationEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserID:     loan.UserID,
		BookID:     loan.BookID,
		LoanID:     &loanID,
		RequestID:  loan.RequestID,
		Reference:  loan.Reference,
		DueDate:    &due,
		OccurredAt: n.clock.Now(),
	}
}

// SendLoanConfirmation tells the borrower a loan was created
func (n *NotificationService) SendLoanConfirmation(loan *models.BookLoan) {
	n.publisher.Publish(n.loanEvent(EventLoanConfirmation, loan))
}

// ScheduleReturnReminder asks the collaborator to remind the borrower one day before due
func (n *NotificationService) ScheduleReturnReminder(loan *models.BookLoan) {
	evt := n.loanEvent(EventReturnReminderScheduled, loan)
	remindAt := loan.DueDate.Add(-24 * time.Hour)
	evt.RemindAt = &remindAt
	n.publisher.Publish(evt)
}

// SendOverdueNotice tells the borrower the loan is overdue with the fine so far
func (n *NotificationService) SendOverdueNotice(loan *models.BookLoan, fine float64) {
	evt := n.loanEvent(EventOverdueNotice, loan)
	evt.Amount = fine
	n.publisher.Publish(evt)
}

// SendReturnConfirmation tells the borrower the copy was checked in
func (n *NotificationService) SendReturnConfirmation(loan *models.BookLoan) {
	evt := n.loanEvent(EventReturnConfirmation, loan)
	evt.Amount = loan.FineAmount
	n.publisher.Publish(evt)
}

// SendDueSoonReminder reminds the borrower the loan is due shortly
func (n *NotificationService) SendDueSoonReminder(loan *models.BookLoan) {
	n.publisher.Publish(n.loanEvent(EventDueSoonReminder, loan))
}

// SendRequestRejected tells the requester a librarian turned the request down
func (n *NotificationService) SendRequestRejected(req *models.BookRequest, reason string) {
	requestID := req.ID
	n.publisher.Publish(NotificationEvent{
		ID:         uuid.New().String(),
		Type:       EventRequestRejected,
		UserID:     req.UserID,
		BookID:     req.BookID,
		RequestID:  &requestID,
		Reason:     reason,
		OccurredAt: n.clock.Now(),
	})
}

// SendHoldReady tells a waitlisted user a copy is held for them
func (n *NotificationService) SendHoldReady(entry *models.QueueEntry) {
	n.publisher.Publish(NotificationEvent{
		ID:         uuid.New().String(),
		Type:       EventHoldReady,
		UserID:     entry.UserID,
		BookID:     entry.BookID,
		RequestID:  entry.RequestID,
		ExpiresAt:  entry.ExpiresAt,
		OccurredAt: n.clock.Now(),
	})
}
