package models

import (
	"time"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PropertyType represents the kind of real-estate asset.
type PropertyType string

const (
	PropertyTypeResidential PropertyType = "residential"
	PropertyTypeCommercial  PropertyType = "commercial"
	PropertyTypeIndustrial  PropertyType = "industrial"
	PropertyTypeLand        PropertyType = "land"
	PropertyTypeMixedUse    PropertyType = "mixed_use"
)

// Property is a real-estate asset whose units can be held fractionally.
// The catalog itself is owned by an upstream system; this row only carries
// what the ledger needs to reference and price it.
type Property struct {
	Base
	Name         string       `gorm:"not null" json:"name"`
	Location     string       `json:"location"`
	PropertyType PropertyType `gorm:"not null" json:"property_type"`
	Currency     string       `gorm:"size:3;not null;default:'USD'" json:"currency"`
	ExternalRef  *string      `gorm:"uniqueIndex" json:"external_ref,omitempty"`
	IsActive     bool         `gorm:"not null" json:"is_active"`

	CurrentPrice *decimal.Decimal `gorm:"-" json:"current_price,omitempty"` // Populated at query time from property_prices
}

// PropertyPrice represents a historical unit price entry for a property.
// Immutable time-series data: no Base embed and no soft deletes.
type PropertyPrice struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	PropertyID string          `gorm:"type:uuid;not null;index:idx_property_prices_lookup,priority:1" json:"property_id"`
	Price      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price"`
	RecordedAt time.Time       `gorm:"not null;index:idx_property_prices_lookup,priority:2" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PropertyPrice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
