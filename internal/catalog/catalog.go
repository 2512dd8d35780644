// Package catalog serves read-only reference data (character classes and
// items) from the relational store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrEmptyDSN = errors.New("catalog: empty database url")

type CharacterClass struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	HitDie      int       `json:"hit_die"`
	PrimaryStat string    `json:"primary_stat"`
	CreatedAt   time.Time `json:"created_at"`
}

func (CharacterClass) TableName() string { return "character_classes" }

type Item struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Rarity      string    `json:"rarity"`
	Value       int       `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Item) TableName() string { return "items" }

type Store interface {
	ListClasses(ctx context.Context) ([]CharacterClass, error)
	ListItems(ctx context.Context) ([]Item, error)
}

type DB struct {
	db *gorm.DB
}

// Open connects to postgres and pings it.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	return open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
}

func open(dialector gorm.Dialector, cfg *gorm.Config) (*DB, error) {
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) classes(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Model(&CharacterClass{}).Order("name")
}

func (d *DB) items(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).Model(&Item{}).Order("name")
}

func (d *DB) ListClasses(ctx context.Context) ([]CharacterClass, error) {
	out := []CharacterClass{}
	if err := d.classes(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

func (d *DB) ListItems(ctx context.Context) ([]Item, error) {
	out := []Item{}
	if err := d.items(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
