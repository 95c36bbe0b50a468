package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

// MySQLConfig holds the connection settings of a MySQL store.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Debug    bool
}

// MySQLStore stores jobs in a MySQL database.
type MySQLStore struct {
	GormStore
	location string
}

// NewMySQLStore connects to MySQL and migrates the schema.
func NewMySQLStore(cfg MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newQueryLogger(cfg.Debug),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("dialect", "mysql").
			Context("host", cfg.Host).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "connect", "")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store := &MySQLStore{
		GormStore: GormStore{DB: db, dialect: "mysql"},
		location:  fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database),
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	GetLogger().Info("connected to mysql database", logger.String("location", store.location))
	return store, nil
}
