package config

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"library-circulation/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPolicyFile_OverlaysKeys(t *testing.T) {
	path := writeFile(t, "policy.yaml", `
loan_period_days: 21
max_loans_per_user: 2
auto_approve_queue_loans: true
`)
	p := domain.DefaultLibraryPolicy()
	require.NoError(t, LoadPolicyFile(path, &p))

	assert.Equal(t, 21, p.LoanPeriodDays)
	assert.Equal(t, 2, p.MaxLoansPerUser)
	assert.True(t, p.AutoApproveQueueLoans)
	// Untouched keys keep their defaults
	assert.Equal(t, 48, p.QueueHoldDurationHours)
	assert.Equal(t, 2, p.MaxRenewals)
}

func TestLoadPolicyFile_Errors(t *testing.T) {
	p := domain.DefaultLibraryPolicy()

	err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"), &p)
	assert.ErrorContains(t, err, "read policy file")

	bad := writeFile(t, "bad.yaml", "loan_period_days: [oops")
	assert.ErrorContains(t, LoadPolicyFile(bad, &p), "parse policy file")

	zero := writeFile(t, "zero.yaml", "queue_hold_duration_hours: 0\n")
	p = domain.DefaultLibraryPolicy()
	assert.ErrorContains(t, LoadPolicyFile(zero, &p), "must be positive")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_MODE", "prod")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("PROD_DB_PATH", "/tmp/lib.db")
	t.Setenv("PROD_JWT_SECRET", "s")
	t.Setenv("POLICY_MAX_LOANS_PER_USER", "7")
	t.Setenv("POLICY_DAILY_FINE_AMOUNT", "0.5")
	t.Setenv("POLICY_RENEWAL_BLOCKED_BY_QUEUE", "true")
	t.Setenv("NOTIFY_WEBHOOK_SECRET", "mac-key")
	t.Setenv("CRON_DUE_SOON", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/lib.db", cfg.Database.Path)
	assert.Equal(t, "s", cfg.JWT.Secret)
	assert.Equal(t, 7, cfg.Policy.MaxLoansPerUser)
	assert.Equal(t, 0.5, cfg.Policy.DailyFineAmount)
	assert.True(t, cfg.Policy.RenewalBlockedByQueue)
	assert.Equal(t, "mac-key", cfg.Notify.WebhookSecret)
	assert.Empty(t, cfg.Schedule.DueSoon)
	assert.Equal(t, "0 * * * *", cfg.Schedule.OverdueSweep)
}

func TestLoad_RejectsBadSettings(t *testing.T) {
	t.Setenv("APP_MODE", "staging")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid APP_MODE")

	t.Setenv("APP_MODE", "dev")
	t.Setenv("DB_DRIVER", "oracle")
	_, err = Load()
	assert.ErrorContains(t, err, "invalid DB_DRIVER")

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("POLICY_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestConnectDatabase_Sqlite(t *testing.T) {
	cfg := &Config{
		AppMode:  "prod",
		Database: DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")},
	}
	db, err := ConnectDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, HealthCheck())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, CloseDatabase())

	_, err = buildDialector(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(&Config{AppMode: "prod"}, log.New(&buf, "", 0))
	query := func() (string, int64) { return "SELECT * FROM book_loans WHERE id = 9", 0 }

	l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), query, nil)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), query, errors.New("deadlock detected"))
	assert.Contains(t, buf.String(), "deadlock detected")
}
