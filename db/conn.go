// Package db opens the user database and keeps its schema up to date
package db

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/internal/model"
	"bitwise74/account-api/pkg/util"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type migration struct {
	name   string
	models []any
}

// Applied in order, each one only once per database
var migrations = []migration{
	{name: "0001_add_users", models: []any{model.User{}}},
}

func New(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() && cfg.DSN != ":memory:" {
			if _, err := os.Stat(cfg.DSN); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to /app/%s", cfg.DSN)
			}
		}

		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Unique constraint violations come back as gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger: logger.New(gormWriter{}, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			// Missing rows are an expected answer, not worth a log line
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database, %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite only allows one writer anyway, and an in-memory database
		// only exists for the lifetime of its connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB, %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// gormWriter sends gorm's log lines to the global zap logger, looked up on
// every call so it follows zap.ReplaceGlobals
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	zap.L().Sugar().Warnf(format, args...)
}

// Migrate creates missing tables and records which migrations were applied
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.Migration{}); err != nil {
		return fmt.Errorf("failed to automigrate migrations table, %w", err)
	}

	for _, m := range migrations {
		var applied bool

		err := db.Model(model.Migration{}).
			Select("count(*) > 0").
			Where("name = ?", m.name).
			Find(&applied).
			Error
		if err != nil {
			return fmt.Errorf("failed to check migration %s, %w", m.name, err)
		}

		if applied {
			continue
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(m.models...); err != nil {
				return err
			}

			return tx.Create(&model.Migration{Name: m.name}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s, %w", m.name, err)
		}

		zap.L().Info("Applied migration", zap.String("name", m.name))
	}

	return nil
}
