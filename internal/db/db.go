package db

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM database connection
type DB struct {
	*gorm.DB
}

// Config returns the gorm configuration shared by every dialect
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		NamingStrategy:         NamingStrategy{},
		TranslateError:         true,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
}

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string) (*DB, error) {
	database, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}

	// Get underlying SQL DB
	sqlDB, err := database.DB.DB()
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}

// Open opens a database for any gorm dialector with the shared configuration
func Open(dialector gorm.Dialector) (*DB, error) {
	db, err := gorm.Open(dialector, Config())
	if err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
