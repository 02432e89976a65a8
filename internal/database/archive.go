package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/csharp-course-api/internal/models"
)

const sqlitePrefix = "sqlite:"

// ConnectArchive opens the submission archive store. URLs starting with "sqlite:" open a
// SQLite file (or ":memory:"); anything else is treated as a PostgreSQL DSN. An empty URL
// disables archiving and returns a nil handle.
func ConnectArchive(url string) (*gorm.DB, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(url, sqlitePrefix) {
		path := strings.TrimPrefix(url, sqlitePrefix)
		if path == "" {
			return nil, fmt.Errorf("sqlite path must not be empty")
		}
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}

	if err := db.AutoMigrate(&models.SubmissionArchive{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return db, nil
}
