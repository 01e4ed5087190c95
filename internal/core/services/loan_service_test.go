package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"library-circulation/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLoan_ClaimsCopyAndUpdatesCounters(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	book, copies := env.seedBook(2)

	loan := env.borrow(book.ID, user)

	assert.Equal(t, domain.LoanActive, loan.Status)
	assert.Equal(t, copies[0].ID, loan.CopyID)
	assert.NotEmpty(t, loan.Reference)
	assert.True(t, loan.DueDate.Equal(testStart.AddDate(0, 0, 14)), "due %s", loan.DueDate)
	assert.Equal(t, domain.CopyBorrowed, env.copy(copies[0].ID).Status)
	assert.Equal(t, 1, env.book(book.ID).AvailableCopies)
	assert.Equal(t, 1, env.events.Count(EventLoanConfirmation, user))
	assert.Equal(t, 1, env.events.Count(EventReturnReminderScheduled, user))
	env.assertBookConsistent(book.ID)
}

func TestCreateLoan_ByCopyDerivesBook(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	book, copies := env.seedBook(2)

	loan, err := env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{CopyID: &copies[1].ID, UserID: user})
	require.NoError(t, err)

	assert.Equal(t, book.ID, loan.BookID)
	assert.Equal(t, copies[1].ID, loan.CopyID)
	assert.Equal(t, domain.CopyAvailable, env.copy(copies[0].ID).Status)
	env.assertBookConsistent(book.ID)
}

func TestCreateLoan_LoanLimitExceeded(t *testing.T) {
	env := newTestEnv(t)
	opts := defaultMember()
	opts.maxBooks = 3
	user := env.seedMember(opts)

	for i := 0; i < 3; i++ {
		b, _ := env.seedBook(1)
		env.borrow(b.ID, user)
	}
	fourth, _ := env.seedBook(1)

	_, err := env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{BookID: fourth.ID, UserID: user})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLoanLimitExceeded))
	assert.Equal(t, domain.KindPolicyViolation, domain.KindOf(err))
	assert.Equal(t, 1, env.book(fourth.ID).AvailableCopies)
	env.assertBookConsistent(fourth.ID)
}

func TestCreateLoan_RequiresActiveMembership(t *testing.T) {
	env := newTestEnv(t)
	book, _ := env.seedBook(1)

	_, err := env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{BookID: book.ID, UserID: 4242})
	assert.ErrorIs(t, err, domain.ErrNoActiveMembership)
	env.assertBookConsistent(book.ID)
}

func TestCreateLoan_DuplicateRollsBackClaim(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	book, copies := env.seedBook(2)
	env.borrow(book.ID, user)

	_, err := env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{BookID: book.ID, UserID: user})
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveLoan)
	assert.Equal(t, domain.CopyAvailable, env.copy(copies[1].ID).Status)
	env.assertBookConsistent(book.ID)
}

func TestCreateLoan_UnknownBookOrCopy(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	missing := uint(777)

	_, err := env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{BookID: 999, UserID: user})
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	_, err = env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{CopyID: &missing, UserID: user})
	assert.ErrorIs(t, err, domain.ErrCopyNotFound)

	_, err = env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{UserID: user})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestCreateLoan_LastCopyRace(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedMember(defaultMember())
	bob := env.seedMember(defaultMember())
	book, _ := env.seedBook(1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []uint{alice, bob} {
		wg.Add(1)
		go func(i int, user uint) {
			defer wg.Done()
			_, errs[i] = env.circ.Loans.CreateLoan(ctxT(t), CreateLoanInput{BookID: book.ID, UserID: user})
		}(i, user)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrBookNotAvailable)
		assert.Equal(t, domain.KindResourceUnavailable, domain.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, env.book(book.ID).AvailableCopies)
	env.assertBookConsistent(book.ID)
}

func TestReturnBook_RecordsFineAndRejectsSecondReturn(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Set(time.Date(2023, 12, 27, 10, 0, 0, 0, time.UTC))
	user := env.seedMember(defaultMember())
	book, copies := env.seedBook(1)
	loan := env.borrow(book.ID, user)
	require.True(t, loan.DueDate.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)))

	env.clock.Set(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))

	fine, err := env.circ.Loans.CalculateFine(ctxT(t), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, fine)

	returned, err := env.circ.Loans.ReturnBook(ctxT(t), loan.ID, member(user))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanReturned, returned.Status)
	assert.Equal(t, 5.00, returned.FineAmount)
	require.NotNil(t, returned.ReturnedAt)

	stored := env.loan(loan.ID)
	assert.Equal(t, domain.LoanReturned, stored.Status)
	assert.Equal(t, 5.00, stored.FineAmount)
	assert.Equal(t, domain.CopyAvailable, env.copy(copies[0].ID).Status)
	assert.Equal(t, 1, env.events.Count(EventReturnConfirmation, user))

	_, err = env.circ.Loans.ReturnBook(ctxT(t), loan.ID, member(user))
	assert.ErrorIs(t, err, domain.ErrInvalidLoanState)
	assert.Equal(t, 1, env.book(book.ID).AvailableCopies)

	fine, err = env.circ.Loans.CalculateFine(ctxT(t), loan.ID)
	require.NoError(t, err)
	assert.Zero(t, fine)
	env.assertBookConsistent(book.ID)
}

func TestReturnBook_OnlyBorrowerOrStaff(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedMember(defaultMember())
	other := env.seedMember(defaultMember())
	book, _ := env.seedBook(1)
	loan := env.borrow(book.ID, owner)

	_, err := env.circ.Loans.ReturnBook(ctxT(t), loan.ID, member(other))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	returned, err := env.circ.Loans.ReturnBook(ctxT(t), loan.ID, librarian())
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedBy)
	assert.Equal(t, librarian().UserID, *returned.ReturnedBy)

	_, err = env.circ.Loans.ReturnBook(ctxT(t), 12345, librarian())
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestRenewLoan_ExtendsUntilLimit(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	book, _ := env.seedBook(1)
	loan := env.borrow(book.ID, user)

	renewed, err := env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	require.NoError(t, err)
	assert.Equal(t, 1, renewed.RenewalCount)
	assert.True(t, renewed.DueDate.Equal(loan.DueDate.AddDate(0, 0, 14)))

	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	require.NoError(t, err)

	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	assert.ErrorIs(t, err, domain.ErrRenewalLimitExceeded)

	stored := env.loan(loan.ID)
	assert.Equal(t, 2, stored.RenewalCount)
	assert.True(t, stored.DueDate.Equal(loan.DueDate.AddDate(0, 0, 28)))
}

func TestRenewLoan_ZeroLimitTierNeverRenews(t *testing.T) {
	env := newTestEnv(t)
	opts := defaultMember()
	opts.renewals = 0
	user := env.seedMember(opts)
	book, _ := env.seedBook(1)
	loan := env.borrow(book.ID, user)

	_, err := env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	assert.ErrorIs(t, err, domain.ErrRenewalLimitExceeded)

	stored := env.loan(loan.ID)
	assert.Zero(t, stored.RenewalCount)
	assert.True(t, stored.DueDate.Equal(loan.DueDate))
}

func TestRenewLoan_Rules(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedMember(defaultMember())
	other := env.seedMember(defaultMember())
	book, _ := env.seedBook(1)
	loan := env.borrow(book.ID, owner)

	_, err := env.circ.Loans.RenewLoan(ctxT(t), loan.ID, librarian())
	assert.ErrorIs(t, err, domain.ErrNotBorrower)

	// Someone else asked for the title
	_, err = env.circ.Requests.Open(ctxT(t), book.ID, other)
	require.NoError(t, err)

	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(owner))
	assert.ErrorIs(t, err, domain.ErrRenewalBlockedByDemand)

	// Overdue loans cannot be renewed
	env.clock.Advance(20 * 24 * time.Hour)
	_, err = env.circ.Loans.SweepOverdue(ctxT(t))
	require.NoError(t, err)

	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(owner))
	assert.ErrorIs(t, err, domain.ErrInvalidLoanState)
}

func TestRenewLoan_QueueWaitersBlockOnlyWhenConfigured(t *testing.T) {
	for _, blocked := range []bool{false, true} {
		env := newTestEnv(t, func(p *domain.LibraryPolicy) { p.RenewalBlockedByQueue = blocked })
		owner := env.seedMember(defaultMember())
		waiter := env.seedMember(defaultMember())
		book, _ := env.seedBook(1)
		loan := env.borrow(book.ID, owner)

		_, err := env.circ.Waitlist.Enqueue(ctxT(t), book.ID, waiter)
		require.NoError(t, err)

		_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(owner))
		if blocked {
			assert.ErrorIs(t, err, domain.ErrRenewalBlockedByDemand)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestRenewLoan_Cooldown(t *testing.T) {
	env := newTestEnv(t, func(p *domain.LibraryPolicy) { p.RenewalCooldownHours = 24 })
	user := env.seedMember(defaultMember())
	book, _ := env.seedBook(1)
	loan := env.borrow(book.ID, user)

	_, err := env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	assert.ErrorIs(t, err, domain.ErrRenewalTooSoon)

	env.clock.Advance(23 * time.Hour)
	_, err = env.circ.Loans.RenewLoan(ctxT(t), loan.ID, member(user))
	assert.NoError(t, err)
}

func TestMarkLost_WritesOffCopy(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	book, copies := env.seedBook(2)
	loan := env.borrow(book.ID, user)

	env.clock.Set(loan.DueDate.AddDate(0, 0, 3))
	lost, err := env.circ.Loans.MarkLost(ctxT(t), loan.ID, librarian().UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanLost, lost.Status)
	assert.Equal(t, 3.00, lost.FineAmount)

	b := env.book(book.ID)
	assert.Equal(t, 1, b.TotalCopies)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Equal(t, domain.CopyLost, env.copy(copies[0].ID).Status)

	_, err = env.circ.Loans.ReturnBook(ctxT(t), loan.ID, member(user))
	assert.ErrorIs(t, err, domain.ErrInvalidLoanState)
	env.assertBookConsistent(book.ID)
}

func TestSweepOverdue(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	early, _ := env.seedBook(1)
	lateBook, _ := env.seedBook(1)

	overdue := env.borrow(early.ID, user)
	env.clock.Advance(10 * 24 * time.Hour)
	current := env.borrow(lateBook.ID, user)

	env.clock.Advance(5 * 24 * time.Hour)
	res, err := env.circ.Loans.SweepOverdue(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, domain.SweepResult{Scanned: 1, Updated: 1}, res)

	assert.Equal(t, domain.LoanOverdue, env.loan(overdue.ID).Status)
	assert.Equal(t, domain.LoanActive, env.loan(current.ID).Status)
	assert.Equal(t, 1, env.events.Count(EventOverdueNotice, user))

	res, err = env.circ.Loans.SweepOverdue(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)

	// OVERDUE loans still count against the quota and can be returned
	_, err = env.circ.Loans.ReturnBook(ctxT(t), overdue.ID, member(user))
	assert.NoError(t, err)
}

func TestRemindDueSoon(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedMember(defaultMember())
	b1, _ := env.seedBook(1)
	b2, _ := env.seedBook(1)

	env.borrow(b1.ID, user)
	env.clock.Advance(5 * 24 * time.Hour)
	env.borrow(b2.ID, user)

	env.clock.Set(testStart.AddDate(0, 0, 13).Add(time.Hour))
	res, err := env.circ.Loans.RemindDueSoon(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, env.events.Count(EventDueSoonReminder, user))
}

func TestGetLoanAndListings(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedMember(defaultMember())
	other := env.seedMember(defaultMember())
	b1, _ := env.seedBook(1)
	b2, _ := env.seedBook(1)
	l1 := env.borrow(b1.ID, owner)
	env.borrow(b2.ID, owner)

	got, err := env.circ.Loans.GetLoan(ctxT(t), l1.ID, member(owner))
	require.NoError(t, err)
	assert.Equal(t, l1.Reference, got.Reference)

	_, err = env.circ.Loans.GetLoan(ctxT(t), l1.ID, member(other))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	loans, total, err := env.circ.Loans.ListUserLoans(ctxT(t), owner, "", 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, loans, 1)

	env.clock.Advance(15 * 24 * time.Hour)
	overdue, total, err := env.circ.Loans.ListOverdueLoans(ctxT(t), 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, overdue, 2)
}
