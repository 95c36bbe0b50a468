package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

// SQLiteStore stores jobs in a SQLite file.
type SQLiteStore struct {
	GormStore
	Path string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteStore(path string, debug bool) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.Newf("sqlite path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newQueryLogger(debug),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", "sqlite").
			Build()
	}

	store := &SQLiteStore{GormStore: GormStore{DB: db, dialect: "sqlite"}, Path: path}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	GetLogger().Info("opened sqlite database", logger.String("path", path))
	return store, nil
}
