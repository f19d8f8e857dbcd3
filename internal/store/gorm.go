package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freedomain/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps documents in the documents table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an already migrated database
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get loads the document stored under key
func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where(&models.Document{Key: key}).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	return []byte(doc.Value), nil
}

// Put upserts the document stored under key
func (s *GormStore) Put(ctx context.Context, key string, value []byte) error {
	doc := models.Document{
		Key:       key,
		Value:     string(value),
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", key, err)
	}
	return nil
}
