package models

import (
	"time"

	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
)

// ============================================================
// Users & Memberships (owned by membership management, read-only here)
// ============================================================

// User represents users table
type User struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Username  string      `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email     string      `gorm:"uniqueIndex;size:100;not null" json:"email"`
	FullName  string      `gorm:"size:150" json:"full_name"`
	Role      domain.Role `gorm:"size:20;default:'MEMBER'" json:"role"`
	IsActive  bool        `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// MembershipType holds the numeric borrowing policy of a tier. A NULL
// limit defers to the library policy; 0 is a real limit.
type MembershipType struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	MaxBooks        *int      `json:"max_books"`
	MaxDurationDays *int      `json:"max_duration_days"`
	RenewalLimit    *int      `json:"renewal_limit"`
	FineRate        *float64  `gorm:"type:decimal(10,2)" json:"fine_rate"`
	GraceDays       int       `gorm:"not null;default:0" json:"grace_days"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MembershipType) TableName() string {
	return "membership_types"
}

// Membership links a user to a membership type for a period
type Membership struct {
	ID               uint                    `gorm:"primaryKey" json:"id"`
	UserID           uint                    `gorm:"not null;index" json:"user_id"`
	MembershipTypeID uint                    `gorm:"not null;index" json:"membership_type_id"`
	Status           domain.MembershipStatus `gorm:"size:15;default:'ACTIVE';index" json:"status"`
	StartsAt         time.Time               `gorm:"not null" json:"starts_at"`
	ExpiresAt        time.Time               `gorm:"not null;index" json:"expires_at"`
	CreatedAt        time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
	MembershipType   MembershipType          `gorm:"foreignKey:MembershipTypeID" json:"membership_type"`
}

func (Membership) TableName() string {
	return "memberships"
}

// AutoMigrate runs auto migration for all circulation tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&MembershipType{},
		&Membership{},
		&Book{},
		&BookCopy{},
		&BookRequest{},
		&QueueEntry{},
		&BookLoan{},
	)
}
