package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/config"
	"library-circulation/internal/core/domain"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("LN%06d", g.n), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (p *recordingPublisher) Publish(evt NotificationEvent) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) Count(eventType string, userID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType && e.UserID == userID {
			n++
		}
	}
	return n
}

type testEnv struct {
	t       *testing.T
	db      *gorm.DB
	clock   *fixedClock
	events  *recordingPublisher
	library domain.LibraryPolicy
	circ    *Circulation
	seq     int
}

func newTestEnv(t *testing.T, tweak ...func(p *domain.LibraryPolicy)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		AppMode: "prod",
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "circulation.db"),
		},
	}
	db, err := config.ConnectDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	library := domain.DefaultLibraryPolicy()
	for _, fn := range tweak {
		fn(&library)
	}

	env := &testEnv{
		t:       t,
		db:      db,
		clock:   &fixedClock{now: testStart},
		events:  &recordingPublisher{},
		library: library,
	}
	env.circ = NewCirculation(db, library, env.events, env.clock, &seqIDs{})
	return env
}

// ============================================================
// Seeding
// ============================================================

type memberOpts struct {
	maxBooks     int
	durationDays int
	renewals     int
	fineRate     float64
	graceDays    int
	// inherit leaves the tier's limits NULL
	inherit      bool
}

func defaultMember() memberOpts {
	return memberOpts{maxBooks: 3, durationDays: 14, renewals: 2, fineRate: 1.00}
}

func (e *testEnv) next() int {
	e.seq++
	return e.seq
}

// seedMember creates a user with an active membership and returns its ID
func (e *testEnv) seedMember(opts memberOpts) uint {
	e.t.Helper()
	n := e.next()

	user := models.User{
		Username: fmt.Sprintf("member%d", n),
		Email:    fmt.Sprintf("member%d@example.org", n),
		Role:     domain.RoleMember,
	}
	require.NoError(e.t, e.db.Create(&user).Error)

	mt := models.MembershipType{
		Name:      fmt.Sprintf("tier-%d", n),
		GraceDays: opts.graceDays,
	}
	if !opts.inherit {
		mt.MaxBooks = &opts.maxBooks
		mt.MaxDurationDays = &opts.durationDays
		mt.RenewalLimit = &opts.renewals
		mt.FineRate = &opts.fineRate
	}
	require.NoError(e.t, e.db.Create(&mt).Error)

	now := e.clock.Now()
	m := models.Membership{
		UserID:           user.ID,
		MembershipTypeID: mt.ID,
		Status:           domain.MembershipActive,
		StartsAt:         now.AddDate(0, -1, 0),
		ExpiresAt:        now.AddDate(1, 0, 0),
	}
	require.NoError(e.t, e.db.Create(&m).Error)
	return user.ID
}

// seedBook creates a title with n AVAILABLE copies
func (e *testEnv) seedBook(n int) (*models.Book, []models.BookCopy) {
	e.t.Helper()
	id := e.next()

	book := models.Book{
		Title:           fmt.Sprintf("Book %d", id),
		Author:          "Author",
		TotalCopies:     n,
		AvailableCopies: n,
	}
	require.NoError(e.t, e.db.Create(&book).Error)

	copies := make([]models.BookCopy, n)
	for i := range copies {
		copies[i] = models.BookCopy{
			BookID:  book.ID,
			Barcode: fmt.Sprintf("BC-%d-%d", book.ID, i+1),
			Status:  domain.CopyAvailable,
		}
		require.NoError(e.t, e.db.Create(&copies[i]).Error)
	}
	return &book, copies
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

func librarian() domain.Actor {
	return domain.Actor{UserID: 9000, Role: domain.RoleLibrarian}
}

func member(id uint) domain.Actor {
	return domain.Actor{UserID: id, Role: domain.RoleMember}
}

// borrow creates a direct loan and fails the test on error
func (e *testEnv) borrow(bookID, userID uint) *models.BookLoan {
	e.t.Helper()
	loan, err := e.circ.Loans.CreateLoan(ctxT(e.t), CreateLoanInput{BookID: bookID, UserID: userID})
	require.NoError(e.t, err)
	return loan
}

// ============================================================
// Reloading & invariants
// ============================================================

func (e *testEnv) book(id uint) models.Book {
	e.t.Helper()
	var b models.Book
	require.NoError(e.t, e.db.First(&b, id).Error)
	return b
}

func (e *testEnv) copy(id uint) models.BookCopy {
	e.t.Helper()
	var c models.BookCopy
	require.NoError(e.t, e.db.First(&c, id).Error)
	return c
}

func (e *testEnv) loan(id uint) models.BookLoan {
	e.t.Helper()
	var l models.BookLoan
	require.NoError(e.t, e.db.First(&l, id).Error)
	return l
}

func (e *testEnv) entry(id uint) models.QueueEntry {
	e.t.Helper()
	var q models.QueueEntry
	require.NoError(e.t, e.db.First(&q, id).Error)
	return q
}

func (e *testEnv) request(id uint) models.BookRequest {
	e.t.Helper()
	var r models.BookRequest
	require.NoError(e.t, e.db.First(&r, id).Error)
	return r
}

func (e *testEnv) outstandingLoans(userID, bookID uint) []models.BookLoan {
	e.t.Helper()
	var loans []models.BookLoan
	require.NoError(e.t, e.db.
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, domain.OutstandingLoanStatuses).
		Find(&loans).Error)
	return loans
}

// assertBookConsistent checks the book counters against its copies and
// queue, and that WAITING positions are exactly 1..N
func (e *testEnv) assertBookConsistent(bookID uint) {
	e.t.Helper()
	b := e.book(bookID)

	var available, owned int64
	require.NoError(e.t, e.db.Model(&models.BookCopy{}).
		Where("book_id = ? AND status = ?", bookID, domain.CopyAvailable).Count(&available).Error)
	require.NoError(e.t, e.db.Model(&models.BookCopy{}).
		Where("book_id = ? AND status <> ?", bookID, domain.CopyLost).Count(&owned).Error)

	var waiting []models.QueueEntry
	require.NoError(e.t, e.db.
		Where("book_id = ? AND status = ?", bookID, domain.QueueWaiting).
		Order("position ASC").Find(&waiting).Error)

	require.EqualValues(e.t, available, b.AvailableCopies, "available_copies")
	require.EqualValues(e.t, owned, b.TotalCopies, "total_copies")
	require.Equal(e.t, len(waiting), b.QueueCount, "queue_count")
	for i, q := range waiting {
		require.Equal(e.t, i+1, q.Position, "position of entry %d", q.ID)
	}
	require.GreaterOrEqual(e.t, b.AvailableCopies, 0)
	require.LessOrEqual(e.t, b.AvailableCopies, b.TotalCopies)
}
