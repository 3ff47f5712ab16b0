package database

import (
	"fmt"

	"github.com/avolkov/macrocoach/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgresDB opens a PostgreSQL connection and migrates the schema
func NewPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate runs the schema auto-migration for all models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Program{},
		&ProgramReview{},
		&MacroHistoryEntry{},
		&FoodEntry{},
		&WeightEntry{},
		&UserStats{},
	)
}
