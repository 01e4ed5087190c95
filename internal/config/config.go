package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"library-circulation/internal/core/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	Database DatabaseConfig
	JWT      JWTConfig
	Policy   domain.LibraryPolicy
	Notify   NotifyConfig
	Schedule ScheduleConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	// Path is the database file for the sqlite driver
	Path string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret          string
	AccessTokenMins int
}

// NotifyConfig holds the outbound notification settings
type NotifyConfig struct {
	WebhookURL    string
	WebhookToken  string
	WebhookSecret string
	Workers       int
	Buffer        int
}

// ScheduleConfig holds cron specs of the background sweeps
type ScheduleConfig struct {
	OverdueSweep string
	HoldExpiry   string
	DueSoon      string
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Get APP_MODE (default to "dev") - trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	policy, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		Database: loadDatabaseConfig(appMode),
		JWT:      loadJWTConfig(appMode),
		Policy:   policy,
		Notify:   loadNotifyConfig(),
		Schedule: loadScheduleConfig(),
	}

	switch config.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: '%s' (must be 'mysql', 'postgres' or 'sqlite')", config.Database.Driver)
	}

	// Set global config
	AppConfig = config

	log.Printf("✅ Configuration loaded successfully [MODE: %s, DB: %s]", appMode, config.Database.Driver)
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	driver := strings.ToLower(strings.TrimSpace(getEnv("DB_DRIVER", "mysql")))
	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", defaultPort),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "library_circulation"),
		Path:     getEnv(prefix+"DB_PATH", "circulation.db"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return JWTConfig{
		Secret:          getEnv(prefix+"JWT_SECRET", "default_secret"),
		AccessTokenMins: getEnvInt("ACCESS_TOKEN_MINUTES", 15),
	}
}

// loadPolicy builds the library policy from defaults, env, then POLICY_FILE
func loadPolicy() (domain.LibraryPolicy, error) {
	p := domain.DefaultLibraryPolicy()

	p.LoanPeriodDays = getEnvInt("POLICY_LOAN_PERIOD_DAYS", p.LoanPeriodDays)
	p.MaxLoansPerUser = getEnvInt("POLICY_MAX_LOANS_PER_USER", p.MaxLoansPerUser)
	p.RenewalDays = getEnvInt("POLICY_RENEWAL_DAYS", p.RenewalDays)
	p.MaxRenewals = getEnvInt("POLICY_MAX_RENEWALS", p.MaxRenewals)
	p.DailyFineAmount = getEnvFloat("POLICY_DAILY_FINE_AMOUNT", p.DailyFineAmount)
	p.RenewalCooldownHours = getEnvInt("POLICY_RENEWAL_COOLDOWN_HOURS", p.RenewalCooldownHours)
	p.QueueHoldDurationHours = getEnvInt("POLICY_QUEUE_HOLD_HOURS", p.QueueHoldDurationHours)
	p.AutoApproveQueueLoans = getEnvBool("POLICY_AUTO_APPROVE_QUEUE_LOANS", p.AutoApproveQueueLoans)
	p.RenewalBlockedByQueue = getEnvBool("POLICY_RENEWAL_BLOCKED_BY_QUEUE", p.RenewalBlockedByQueue)

	if path := getEnv("POLICY_FILE", ""); path != "" {
		if err := LoadPolicyFile(path, &p); err != nil {
			return p, err
		}
		log.Printf("✅ Library policy loaded from %s", path)
	}
	return p, nil
}

// LoadPolicyFile overlays the keys present in a YAML policy file onto p
func LoadPolicyFile(path string, p *domain.LibraryPolicy) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(b, p); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	if p.LoanPeriodDays <= 0 || p.MaxLoansPerUser <= 0 || p.QueueHoldDurationHours <= 0 {
		return fmt.Errorf("invalid policy file %s: loan period, max loans and hold duration must be positive", path)
	}
	return nil
}

// loadNotifyConfig loads notification dispatcher config
func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
		WebhookToken:  getEnv("NOTIFY_WEBHOOK_TOKEN", ""),
		WebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		Workers:       getEnvInt("NOTIFY_WORKERS", 2),
		Buffer:        getEnvInt("NOTIFY_BUFFER", 256),
	}
}

// loadScheduleConfig loads cron specs; "off" disables a job
func loadScheduleConfig() ScheduleConfig {
	spec := func(key, def string) string {
		v := strings.TrimSpace(getEnv(key, def))
		if strings.EqualFold(v, "off") {
			return ""
		}
		return v
	}
	return ScheduleConfig{
		OverdueSweep: spec("CRON_OVERDUE_SWEEP", "0 * * * *"),
		HoldExpiry:   spec("CRON_HOLD_SWEEP", "*/5 * * * *"),
		DueSoon:      spec("CRON_DUE_SOON", "30 8 * * *"),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "http://localhost:3000"
	}
	return origins
}
