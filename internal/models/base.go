package models

import (
	"time"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/uuid"

	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}

// Versioned carries the optimistic-concurrency counter of a mutable aggregate.
// Every write bumps it with a compare-and-swap on the value that was read.
type Versioned struct {
	Version int64 `gorm:"not null;default:1" json:"version"`
}
