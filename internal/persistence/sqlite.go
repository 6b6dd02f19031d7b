package persistence

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taskpilot/tracker/internal/config"
)

// OpenSQLite opens the embedded store. Shared-cache in-memory DSNs
// (file:<name>?mode=memory&cache=shared) keep one database per name for
// the life of the process.
func OpenSQLite(cfg config.SQLiteConfig, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Silent
	if log != nil && log.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one writer at a time; concurrent writers on a shared cache get SQLITE_LOCKED
	sqlDB.SetMaxOpenConns(1)
	if log != nil {
		log.Info("opened sqlite store", zap.String("dsn", cfg.DSN))
	}
	return db, nil
}
