package models

import (
	"time"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PortfolioValuation is a point-in-time snapshot of a portfolio written on recalculation.
// Immutable time-series data: no Base embed and no soft deletes.
type PortfolioValuation struct {
	ID                string          `gorm:"type:uuid;primaryKey" json:"id"`
	PortfolioID       string          `gorm:"type:uuid;not null;index:idx_valuations_lookup,priority:1" json:"portfolio_id"`
	RecordedAt        time.Time       `gorm:"not null;index:idx_valuations_lookup,priority:2" json:"recorded_at"`
	TotalInvested     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_invested"`
	TotalCurrentValue decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_current_value"`
	UnrealizedGains   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"unrealized_gains"`
	RealizedGains     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"realized_gains"`
	ActiveHoldings    int             `gorm:"not null" json:"active_holdings"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (v *PortfolioValuation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New()
	}
	return nil
}
