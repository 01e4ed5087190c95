package services

import (
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/adapters/persistence/repositories"
	"library-circulation/internal/core/domain"
)

// PolicyResolver derives borrowing limits from a user's active membership.
// Policies are snapshots; every operation resolves its own.
type PolicyResolver struct {
	memberships *repositories.MembershipRepository
	library     domain.LibraryPolicy
	clock       Clock
}

// NewPolicyResolver creates a new policy resolver
func NewPolicyResolver(memberships *repositories.MembershipRepository, library domain.LibraryPolicy, clock Clock) *PolicyResolver {
	return &PolicyResolver{
		memberships: memberships,
		library:     library,
		clock:       clock,
	}
}

// Resolve returns the policy of the user's active membership or
// ErrNoActiveMembership. lock holds the membership row until the unit ends.
func (r *PolicyResolver) Resolve(uow *repositories.UnitOfWork, userID uint, lock bool) (domain.Policy, error) {
	now := r.clock.Now()
	m, err := r.memberships.FindActive(uow, userID, now, lock)
	if err != nil {
		return domain.Policy{}, err
	}
	if m == nil {
		return domain.Policy{}, domain.ErrNoActiveMembership
	}
	return r.fromMembership(m, now), nil
}

// ResolveOrDefault is Resolve falling back to library defaults, for fines
// on loans whose membership has lapsed since borrowing
func (r *PolicyResolver) ResolveOrDefault(uow *repositories.UnitOfWork, userID uint) (domain.Policy, error) {
	p, err := r.Resolve(uow, userID, false)
	if err == domain.ErrNoActiveMembership {
		return r.Default(), nil
	}
	return p, err
}

// Default returns the library-wide policy
func (r *PolicyResolver) Default() domain.Policy {
	return domain.Policy{
		MaxLoans:          r.library.MaxLoansPerUser,
		LoanPeriodDays:    r.library.LoanPeriodDays,
		RenewalPeriodDays: r.library.RenewalDays,
		RenewalLimit:      r.library.MaxRenewals,
		FineRate:          r.library.DailyFineAmount,
		ResolvedAt:        r.clock.Now(),
	}
}

// fromMembership reads the tier's limits. Only unset (NULL) columns fall
// back to the library policy; an explicit 0 is honored.
func (r *PolicyResolver) fromMembership(m *models.Membership, now time.Time) domain.Policy {
	t := m.MembershipType
	fineRate := r.library.DailyFineAmount
	if t.FineRate != nil {
		fineRate = *t.FineRate
	}
	return domain.Policy{
		MembershipName:    t.Name,
		MaxLoans:          intOr(t.MaxBooks, r.library.MaxLoansPerUser),
		LoanPeriodDays:    intOr(t.MaxDurationDays, r.library.LoanPeriodDays),
		RenewalPeriodDays: intOr(t.MaxDurationDays, r.library.RenewalDays),
		RenewalLimit:      intOr(t.RenewalLimit, r.library.MaxRenewals),
		FineRate:          fineRate,
		GraceDays:         t.GraceDays,
		ResolvedAt:        now,
	}
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
