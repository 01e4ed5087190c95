package repositories

import (
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipRepository is READ-ONLY access to memberships owned by
// membership management
type MembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// FindActive returns the user's active, unexpired membership with its type,
// nil when none. forUpdate holds the membership row lock until the unit ends.
func (r *MembershipRepository) FindActive(uow *UnitOfWork, userID uint, now time.Time, forUpdate bool) (*models.Membership, error) {
	var m models.Membership
	q := uow.DB().Preload("MembershipType")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.
		Where("user_id = ? AND status = ? AND expires_at > ?", userID, domain.MembershipActive, now).
		Order("expires_at DESC").
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
