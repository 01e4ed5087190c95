package models

import (
	"time"

	"library-circulation/internal/core/domain"
)

// ============================================================
// Catalog: books & copies (counters maintained by the core)
// ============================================================

type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Author          string    `gorm:"size:255" json:"author"`
	ISBN            string    `gorm:"size:20;index" json:"isbn"`
	TotalCopies     int       `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:0" json:"available_copies"`
	QueueCount      int       `gorm:"not null;default:0" json:"queue_count"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}

type BookCopy struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	BookID    uint              `gorm:"not null;index:idx_copy_book_status" json:"book_id"`
	Barcode   string            `gorm:"size:50;uniqueIndex;not null" json:"barcode"`
	Status    domain.CopyStatus `gorm:"size:15;default:'AVAILABLE';index:idx_copy_book_status" json:"status"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BookCopy) TableName() string {
	return "book_copies"
}

// ============================================================
// Circulation: loans, waitlist, approval requests
// ============================================================

type BookLoan struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Reference     string            `gorm:"size:26;uniqueIndex;not null" json:"reference"`
	UserID        uint              `gorm:"not null;index" json:"user_id"`
	BookID        uint              `gorm:"not null;index" json:"book_id"`
	CopyID        uint              `gorm:"not null;index" json:"copy_id"`
	RequestID     *uint             `gorm:"index" json:"request_id"`
	BorrowedAt    time.Time         `gorm:"not null" json:"borrowed_at"`
	DueDate       time.Time         `gorm:"not null;index" json:"due_date"`
	ReturnedAt    *time.Time        `json:"returned_at"`
	ReturnedBy    *uint             `json:"returned_by"`
	RenewalCount  int               `gorm:"not null;default:0" json:"renewal_count"`
	LastRenewedAt *time.Time        `json:"last_renewed_at"`
	FineAmount    float64           `gorm:"type:decimal(10,2);not null;default:0" json:"fine_amount"`
	Status        domain.LoanStatus `gorm:"size:15;default:'ACTIVE';index" json:"status"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	Book          *Book             `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Copy          *BookCopy         `gorm:"foreignKey:CopyID" json:"copy,omitempty"`
}

func (BookLoan) TableName() string {
	return "book_loans"
}

type QueueEntry struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	BookID     uint               `gorm:"not null;index:idx_queue_book_status" json:"book_id"`
	UserID     uint               `gorm:"not null;index" json:"user_id"`
	Position   int                `gorm:"not null;default:0" json:"position"`
	Status     domain.QueueStatus `gorm:"size:20;default:'WAITING';index:idx_queue_book_status" json:"status"`
	HeldCopyID *uint              `json:"held_copy_id"`
	RequestID  *uint              `gorm:"index" json:"request_id"`
	LoanID     *uint              `json:"loan_id"`
	ReadyAt    *time.Time         `json:"ready_at"`
	ExpiresAt  *time.Time         `gorm:"index" json:"expires_at"`
	ResolvedAt *time.Time         `json:"resolved_at"`
	CreatedAt  time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}

type BookRequest struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	BookID       uint                 `gorm:"not null;index" json:"book_id"`
	UserID       uint                 `gorm:"not null;index" json:"user_id"`
	OriginKind   domain.OriginKind    `gorm:"size:20;not null" json:"origin_kind"`
	QueueEntryID *uint                `gorm:"index" json:"queue_entry_id"`
	Status       domain.RequestStatus `gorm:"size:15;default:'PENDING';index" json:"status"`
	LoanID       *uint                `json:"loan_id"`
	DecidedBy    *uint                `json:"decided_by"`
	DecidedAt    *time.Time           `json:"decided_at"`
	Reason       string               `gorm:"size:255" json:"reason"`
	CreatedAt    time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BookRequest) TableName() string {
	return "book_requests"
}

// Origin rebuilds the tagged origin from its stored columns
func (r *BookRequest) Origin() domain.Origin {
	if r.OriginKind == domain.OriginQueueAdvance && r.QueueEntryID != nil {
		return domain.QueueOrigin{EntryID: *r.QueueEntryID}
	}
	return domain.DirectOrigin{}
}
