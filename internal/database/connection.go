package database

import (
	"context"
	"errors"

	"github.com/thereayou/campus-chat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the PostgreSQL database at dsn and migrates the schema.
func (d *Database) Connect(dsn string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	return d.open(postgres.Open(dsn))
}

// Open is Connect for an arbitrary gorm dialector.
func Open(dialector gorm.Dialector) (*Database, error) {
	d := &Database{}
	if err := d.open(dialector); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) open(dialector gorm.Dialector) error {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	err = db.AutoMigrate(&models.User{}, &models.Room{}, &models.Membership{}, &models.Message{})
	if err != nil {
		return err
	}

	d.db = db

	return nil
}

// Ping checks that the database answers.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
