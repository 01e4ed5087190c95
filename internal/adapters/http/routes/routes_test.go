package routes

import (
	"bytes"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"library-circulation/internal/adapters/http/middleware"
	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/config"
	"library-circulation/internal/core/domain"
	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "routes-test-secret"

type discardPublisher struct{}

func (discardPublisher) Publish(services.NotificationEvent) {}

type apiEnv struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	cfg := &config.Config{
		AppMode: "prod",
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "api.db"),
		},
		JWT: config.JWTConfig{Secret: testSecret, AccessTokenMins: 15},
	}
	db, err := config.ConnectDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	circ := services.NewCirculation(db, domain.DefaultLibraryPolicy(), discardPublisher{}, services.SystemClock(), services.ULIDGenerator())
	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	Setup(app, circ, cfg)
	return &apiEnv{t: t, app: app, db: db}
}

func (e *apiEnv) seedMember(maxBooks int) uint {
	e.t.Helper()
	var n int64
	e.db.Model(&models.User{}).Count(&n)

	user := models.User{
		Username: fmt.Sprintf("reader%d", n+1),
		Email:    fmt.Sprintf("reader%d@example.org", n+1),
		Role:     domain.RoleMember,
	}
	require.NoError(e.t, e.db.Create(&user).Error)
	days, renewals, rate := 14, 2, 1.0
	mt := models.MembershipType{Name: user.Username + "-tier", MaxBooks: &maxBooks, MaxDurationDays: &days, RenewalLimit: &renewals, FineRate: &rate}
	require.NoError(e.t, e.db.Create(&mt).Error)
	require.NoError(e.t, e.db.Create(&models.Membership{
		UserID:           user.ID,
		MembershipTypeID: mt.ID,
		Status:           domain.MembershipActive,
		StartsAt:         time.Now().AddDate(0, -1, 0),
		ExpiresAt:        time.Now().AddDate(1, 0, 0),
	}).Error)
	return user.ID
}

func (e *apiEnv) seedBook(copies int) uint {
	e.t.Helper()
	book := models.Book{Title: "Dune", Author: "Frank Herbert", TotalCopies: copies, AvailableCopies: copies}
	require.NoError(e.t, e.db.Create(&book).Error)
	for i := 0; i < copies; i++ {
		require.NoError(e.t, e.db.Create(&models.BookCopy{
			BookID:  book.ID,
			Barcode: fmt.Sprintf("DUNE-%d-%d", book.ID, i),
			Status:  domain.CopyAvailable,
		}).Error)
	}
	return book.ID
}

func (e *apiEnv) token(userID uint, role domain.Role) string {
	e.t.Helper()
	tok, err := jwt.GenerateAccessToken(userID, "tester", string(role), testSecret, 15)
	require.NoError(e.t, err)
	return tok
}

// call performs a request and decodes the JSON body into a map
func (e *apiEnv) call(method, path, token string, body interface{}) (int, map[string]interface{}) {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := jsoniter.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(e.t, jsoniter.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	status, _ := env.call("GET", "/api/v1/loans/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.call("GET", "/api/v1/loans/me", "garbage", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.call("GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestBorrowOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	reader := env.seedMember(1)
	tok := env.token(reader, domain.RoleMember)
	first := env.seedBook(1)
	second := env.seedBook(1)

	status, body := env.call("POST", "/api/v1/loans", tok, fiber.Map{"book_id": first})
	require.Equal(t, fiber.StatusCreated, status, body)
	loan := body["data"].(map[string]interface{})
	assert.Equal(t, string(domain.LoanActive), loan["status"])
	assert.NotEmpty(t, loan["reference"])

	// Loan cap of one
	status, body = env.call("POST", "/api/v1/loans", tok, fiber.Map{"book_id": second})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "LOAN_LIMIT_EXCEEDED", body["code"])

	status, body = env.call("POST", "/api/v1/loans", tok, fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.call("GET", "/api/v1/loans/me?limit=1", tok, nil)
	require.Equal(t, fiber.StatusOK, status)
	meta := body["data"].(map[string]interface{})["meta"].(map[string]interface{})
	assert.EqualValues(t, 1, meta["total"])
	assert.EqualValues(t, 1, meta["limit"])
	assert.Equal(t, false, meta["has_next"])
}

func TestRequestAndQueueOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	holder := env.seedMember(3)
	waiter := env.seedMember(3)
	book := env.seedBook(1)

	status, _ := env.call("POST", "/api/v1/loans", env.token(holder, domain.RoleMember), fiber.Map{"book_id": book})
	require.Equal(t, fiber.StatusCreated, status)

	// A free copy is gone; a direct request is allowed
	waiterTok := env.token(waiter, domain.RoleMember)
	status, body := env.call("POST", "/api/v1/requests", waiterTok, fiber.Map{"book_id": book})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = env.call("POST", "/api/v1/requests", waiterTok, fiber.Map{"book_id": book})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_PENDING_REQUEST", body["code"])

	status, body = env.call("POST", "/api/v1/queue", waiterTok, fiber.Map{"book_id": book})
	require.Equal(t, fiber.StatusCreated, status, body)
	entry := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, entry["position"])

	status, _ = env.call("GET", "/api/v1/queue/me", waiterTok, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.call("DELETE", fmt.Sprintf("/api/v1/queue/%v", entry["id"]), env.token(holder, domain.RoleMember), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestStaffRoutes(t *testing.T) {
	env := newAPIEnv(t)
	reader := env.seedMember(3)
	memberTok := env.token(reader, domain.RoleMember)
	staffTok := env.token(9000, domain.RoleLibrarian)

	status, _ := env.call("GET", "/api/v1/dashboard/staff", memberTok, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := env.call("GET", "/api/v1/dashboard/staff", staffTok, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["data"], "active_loans")

	status, body = env.call("GET", "/api/v1/dashboard", memberTok, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(domain.RoleMember), body["data"].(map[string]interface{})["role"])

	status, _ = env.call("GET", "/api/v1/requests/pending", memberTok, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.call("GET", "/api/v1/requests/pending", staffTok, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.call("GET", "/api/v1/loans/999", staffTok, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.call("GET", "/api/v1/loans/abc", staffTok, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = env.call("POST", "/api/v1/loans/sweep-overdue", staffTok, nil)
	assert.Equal(t, fiber.StatusOK, status, body)
}
