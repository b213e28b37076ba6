package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mailflow/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type RunnerConfig struct {
	Interval     time.Duration `json:"interval"`
	BatchSize    int           `json:"batch_size"`
	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
	ClaimLease   time.Duration `json:"claim_lease"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	JWTSecret string `json:"-"`
	SentryDSN string `json:"-"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromName     string `json:"from_name"`
	FromEmail    string `json:"from_email"`

	Runner        RunnerConfig `json:"runner"`
	SweepInterval time.Duration `json:"sweep_interval"`

	RateLimitPublic int         `json:"rate_limit_public"`
	Redis           RedisConfig `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "mailflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret: getEnv("JWT_SECRET", ""),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromName:     getEnv("FROM_NAME", "Mailflow"),
		FromEmail:    getEnv("FROM_EMAIL", "no-reply@localhost"),

		Runner: RunnerConfig{
			Interval:     time.Duration(getEnvAsInt("RUNNER_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:    getEnvAsInt("RUNNER_BATCH_SIZE", 50),
			MaxRetries:   getEnvAsInt("RUNNER_MAX_RETRIES", 3),
			RetryBackoff: time.Duration(getEnvAsInt("RUNNER_RETRY_BACKOFF_MINUTES", 15)) * time.Minute,
			ClaimLease:   time.Duration(getEnvAsInt("RUNNER_CLAIM_LEASE_MINUTES", 5)) * time.Minute,
		},
		SweepInterval: time.Duration(getEnvAsInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,

		RateLimitPublic: getEnvAsInt("RATE_LIMIT_PUBLIC", 60),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Runner: every %v, batch %d, max retries %d",
		AppConfig.Runner.Interval,
		AppConfig.Runner.BatchSize,
		AppConfig.Runner.MaxRetries)
}

func migrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Subscriber{},
		&models.Segment{},
		&models.Template{},
		&models.Automation{},
		&models.AutomationStep{},
		&models.AutomationExecution{},
		&models.AutomationStepLog{},
	); err != nil {
		return err
	}

	// One live execution per (automation, subscriber); enforced in storage
	// so concurrent enrollments cannot race past the application check
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_automation_executions_live
		 ON automation_executions (automation_id, subscriber_id)
		 WHERE status IN ('pending', 'in_progress')`,
	).Error
}
