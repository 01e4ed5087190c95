package domain

import "time"

// Role represents user role in the system
type Role string

const (
	RoleMember    Role = "MEMBER"
	RoleLibrarian Role = "LIBRARIAN"
	RoleAdmin     Role = "ADMIN"
)

// Actor is the authenticated caller of a core operation
type Actor struct {
	UserID uint
	Role   Role
}

// IsStaff returns true for librarian and admin roles
func (a Actor) IsStaff() bool {
	return a.Role == RoleLibrarian || a.Role == RoleAdmin
}

// CanActFor reports whether the actor owns the resource or is privileged
func (a Actor) CanActFor(ownerID uint) bool {
	return a.UserID == ownerID || a.IsStaff()
}

// CopyStatus is the lifecycle state of a physical copy
type CopyStatus string

const (
	CopyAvailable CopyStatus = "AVAILABLE"
	CopyBorrowed  CopyStatus = "BORROWED"
	CopyLost      CopyStatus = "LOST"
	CopyDamaged   CopyStatus = "DAMAGED"
	CopyInRepair  CopyStatus = "IN_REPAIR"
	CopyWithdrawn CopyStatus = "WITHDRAWN"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanReturned LoanStatus = "RETURNED"
	LoanLost     LoanStatus = "LOST"
)

// OutstandingLoanStatuses are the statuses that hold a copy
var OutstandingLoanStatuses = []string{string(LoanActive), string(LoanOverdue)}

// IsOutstanding returns true while the loan still holds its copy
func (s LoanStatus) IsOutstanding() bool {
	return s == LoanActive || s == LoanOverdue
}

// QueueStatus is the lifecycle state of a waitlist entry
type QueueStatus string

const (
	QueueWaiting         QueueStatus = "WAITING"
	QueueReady           QueueStatus = "READY"
	QueuePendingApproval QueueStatus = "PENDING_APPROVAL"
	QueueFulfilled       QueueStatus = "FULFILLED"
	QueueExpired         QueueStatus = "EXPIRED"
	QueueCancelled       QueueStatus = "CANCELLED"
)

// ActiveQueueStatuses are the non-terminal waitlist statuses
var ActiveQueueStatuses = []string{string(QueueWaiting), string(QueueReady), string(QueuePendingApproval)}

// RequestStatus is the lifecycle state of a book request
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// MembershipStatus is the state of a membership record
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipSuspended MembershipStatus = "SUSPENDED"
	MembershipExpired   MembershipStatus = "EXPIRED"
)

// OriginKind tags where a book request came from
type OriginKind string

const (
	OriginDirect       OriginKind = "DIRECT"
	OriginQueueAdvance OriginKind = "QUEUE_ADVANCE"
)

// Origin is the source of a book request: either a direct user request or
// a waitlist turn. Only DirectOrigin and QueueOrigin implement it.
type Origin interface {
	Kind() OriginKind
	QueueEntryID() *uint
}

// DirectOrigin is a request opened by the user because the book is out of stock
type DirectOrigin struct{}

func (DirectOrigin) Kind() OriginKind    { return OriginDirect }
func (DirectOrigin) QueueEntryID() *uint { return nil }

// QueueOrigin is a request opened when a waitlist entry reached the front
type QueueOrigin struct {
	EntryID uint
}

func (QueueOrigin) Kind() OriginKind { return OriginQueueAdvance }

func (o QueueOrigin) QueueEntryID() *uint {
	id := o.EntryID
	return &id
}

// Policy is a snapshot of the borrowing limits for one user at one moment
type Policy struct {
	MembershipName    string
	MaxLoans          int
	LoanPeriodDays    int
	RenewalPeriodDays int
	RenewalLimit      int
	FineRate          float64
	GraceDays         int
	ResolvedAt        time.Time
}

// LoanPeriod returns the loan period as a duration
func (p Policy) LoanPeriod() time.Duration {
	return time.Duration(p.LoanPeriodDays) * 24 * time.Hour
}

// RenewalPeriod returns how far one renewal pushes the due date
func (p Policy) RenewalPeriod() time.Duration {
	return time.Duration(p.RenewalPeriodDays) * 24 * time.Hour
}

// LibraryPolicy holds library-wide circulation settings
type LibraryPolicy struct {
	LoanPeriodDays         int     `yaml:"loan_period_days"`
	MaxLoansPerUser        int     `yaml:"max_loans_per_user"`
	RenewalDays            int     `yaml:"renewal_days"`
	MaxRenewals            int     `yaml:"max_renewals"`
	DailyFineAmount        float64 `yaml:"daily_fine_amount"`
	RenewalCooldownHours   int     `yaml:"renewal_cooldown_hours"`
	QueueHoldDurationHours int     `yaml:"queue_hold_duration_hours"`
	AutoApproveQueueLoans  bool    `yaml:"auto_approve_queue_loans"`
	RenewalBlockedByQueue  bool    `yaml:"renewal_blocked_by_queue"`
}

// DefaultLibraryPolicy returns the built-in circulation settings
func DefaultLibraryPolicy() LibraryPolicy {
	return LibraryPolicy{
		LoanPeriodDays:         14,
		MaxLoansPerUser:        5,
		RenewalDays:            14,
		MaxRenewals:            2,
		DailyFineAmount:        5,
		RenewalCooldownHours:   0,
		QueueHoldDurationHours: 48,
		AutoApproveQueueLoans:  false,
		RenewalBlockedByQueue:  false,
	}
}

// HoldDuration returns how long a queue turn is held for the user
func (p LibraryPolicy) HoldDuration() time.Duration {
	return time.Duration(p.QueueHoldDurationHours) * time.Hour
}

// SweepResult summarizes a batch of independent state transitions
type SweepResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
