package db

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hirewire/portal/internal/config"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/servicetag"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New creates a new database connection based on configuration.
// fallbackLogLevel is used when database.log_level is empty.
func New(cfg config.DatabaseConfig, fallbackLogLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		// WAL mode and busy timeout for concurrent readers
		dialector = sqlite.Open(cfg.DSN + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	level := cfg.LogLevel
	if level == "" {
		level = fallbackLogLevel
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(level)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite: single connection, WAL allows concurrent reads but only one writer
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		slog.Info("Configured SQLite with WAL mode and single connection")
	} else {
		maxIdleConns := cfg.MaxIdleConns
		if maxIdleConns <= 0 {
			maxIdleConns = 10
		}
		maxOpenConns := cfg.MaxOpenConns
		if maxOpenConns <= 0 {
			maxOpenConns = 100
		}
		connMaxLifetime := cfg.ConnMaxLifetime
		if connMaxLifetime <= 0 {
			connMaxLifetime = 60
		}

		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Minute)

		slog.Info("Configured PostgreSQL connection pool",
			"max_idle_conns", maxIdleConns,
			"max_open_conns", maxOpenConns,
			"conn_max_lifetime_min", connMaxLifetime)
	}

	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	slog.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
		&models.ServiceRole{},
		&models.RoleIndex{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedPlans(db); err != nil {
		return fmt.Errorf("failed to seed subscription plans: %w", err)
	}

	return nil
}

// DefaultPlans is the plan catalogue: one plan per subscription title.
var DefaultPlans = []models.SubscriptionPlan{
	{Title: servicetag.TitleCVSourcing, CreditsPerCycle: 10, PriceCents: 49900},
	{Title: servicetag.TitlePrequalification, CreditsPerCycle: 5, PriceCents: 39900},
	{Title: servicetag.TitleDirect, CreditsPerCycle: 3, PriceCents: 59900},
	{Title: servicetag.TitleLeadGeneration, CreditsPerCycle: 10, PriceCents: 29900},
}

// seedPlans creates any missing default plan. Existing plans are left as they are.
func seedPlans(db *gorm.DB) error {
	for _, plan := range DefaultPlans {
		var existing models.SubscriptionPlan
		err := db.Where("title = ?", plan.Title).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			plan := plan
			if err := db.Create(&plan).Error; err != nil {
				return err
			}
			slog.Info("Created subscription plan", "title", plan.Title)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
