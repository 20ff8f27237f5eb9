// Package dbutil opens the SQLite stores CAPF and TVS read from and
// UPDATE into. The schema itself belongs to the external admin
// tooling (spec.md §1, §4.7); Open only connects to an existing file.
// AutoMigrate exists purely so tests and local/dev runs can stand up a
// throwaway store without that external tooling — production
// deployments never call it.
package dbutil

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// Open connects to the SQLite file at path, disabling gorm's default
// chatty logger (the daemon logs through slog at the session layer,
// not through the ORM).
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperr.NewStoreError(fmt.Sprintf("open %s", path), err)
	}

	return db, nil
}

// AutoMigrate creates or updates tables for models. Intended for
// tests and local/dev bootstrapping only.
func AutoMigrate(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return apperr.NewStoreError("automigrate", err)
	}

	return nil
}
