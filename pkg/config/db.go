package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-agent/backend/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNoDatabase is returned by NewDB when DATABASE_URL does not name a postgres database
var ErrNoDatabase = errors.New("no postgres database configured")

const maxConnectBackoff = 30 * time.Second

// NewDB opens the postgres database named by DATABASE_URL.
// Failed attempts are retried up to Database.Retries times with a doubling delay.
func NewDB(ctx context.Context, cfg *Config, log *logger.Logger) (*gorm.DB, error) {
	if cfg.DatabaseMode() != DatabasePostgres {
		return nil, ErrNoDatabase
	}

	level := gormlogger.Error
	if cfg.Debug {
		level = gormlogger.Info
	}
	gormConfig := &gorm.Config{TranslateError: true, Logger: gormlogger.Default.LogMode(level)}

	retries := max(cfg.Database.Retries, 1)
	delay := time.Second

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := connect(ctx, cfg, gormConfig)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if attempt == retries {
			break
		}

		log.Warn("Database not reachable, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, maxConnectBackoff)
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", retries, lastErr)
}

func connect(ctx context.Context, cfg *Config, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.URL), gormConfig)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(min(cfg.Database.MaxConns, 10))
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := Ping(ctx, db, cfg.Database.Timeout); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks the connection within timeout. A non-positive timeout only uses ctx.
func Ping(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
