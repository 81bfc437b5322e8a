package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientQuantity is returned when a reduction exceeds the quantity held.
var ErrInsufficientQuantity = errors.New("insufficient quantity")

// QuantityScale is the number of fractional digits kept for unit quantities.
const QuantityScale = 8

// HoldingStatus represents the state of a position.
type HoldingStatus string

const (
	HoldingActive      HoldingStatus = "active"
	HoldingSold        HoldingStatus = "sold"
	HoldingTransferred HoldingStatus = "transferred"
)

var hundred = decimal.NewFromInt(100)

// Holding is a portfolio's position in one property. There is at most one
// row per (portfolio, property); emptied positions are reactivated by later buys.
type Holding struct {
	Base
	Versioned
	PortfolioID        string          `gorm:"type:uuid;not null;uniqueIndex:idx_holding_portfolio_property,priority:1" json:"portfolio_id"`
	PropertyID         string          `gorm:"type:uuid;not null;uniqueIndex:idx_holding_portfolio_property,priority:2" json:"property_id"`
	Quantity           decimal.Decimal `gorm:"type:numeric(28,8);not null" json:"quantity"`
	AverageCostBasis   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"average_cost_basis"`
	TotalCostBasis     decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"total_cost_basis"`
	CurrentValue       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"current_value"`
	UnrealizedGainLoss decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"unrealized_gain_loss"`
	Status             HoldingStatus   `gorm:"not null;default:'active';index" json:"status"`
}

// IsActive reports whether the holding still carries units.
func (h *Holding) IsActive() bool {
	return h.Status == HoldingActive
}

// AddQuantity blends qty units bought (or carried over) at unitCost into the
// position using the weighted-average cost method.
func (h *Holding) AddQuantity(qty, unitCost decimal.Decimal) {
	h.TotalCostBasis = h.TotalCostBasis.Add(qty.Mul(unitCost))
	h.Quantity = h.Quantity.Add(qty)
	h.AverageCostBasis = h.TotalCostBasis.Div(h.Quantity).Round(2)
	h.Status = HoldingActive
}

// ReduceQuantity removes qty units at the current average cost and returns the
// cost basis removed. A position reduced to zero moves to emptyStatus.
// The holding is left untouched when qty exceeds the quantity held.
func (h *Holding) ReduceQuantity(qty decimal.Decimal, emptyStatus HoldingStatus) (decimal.Decimal, error) {
	if qty.GreaterThan(h.Quantity) {
		return decimal.Zero, ErrInsufficientQuantity
	}
	removed := h.AverageCostBasis.Mul(qty)
	h.Quantity = h.Quantity.Sub(qty)
	h.TotalCostBasis = h.TotalCostBasis.Sub(removed)
	if h.Quantity.IsZero() {
		h.TotalCostBasis = decimal.Zero
		h.Status = emptyStatus
	}
	return removed, nil
}

// UpdateCurrentValue marks the position to the given unit price.
func (h *Holding) UpdateCurrentValue(price decimal.Decimal) {
	h.CurrentValue = h.Quantity.Mul(price).Round(2)
	h.UnrealizedGainLoss = h.CurrentValue.Sub(h.TotalCostBasis).Round(2)
}

// LastUnitValue is the per-unit value implied by the last mark, zero when empty.
func (h *Holding) LastUnitValue() decimal.Decimal {
	if h.Quantity.IsZero() {
		return decimal.Zero
	}
	return h.CurrentValue.Div(h.Quantity)
}

// UnrealizedGainLossPercent returns unrealized gain as a percentage of cost, 0 when cost is 0.
func (h *Holding) UnrealizedGainLossPercent() decimal.Decimal {
	if h.TotalCostBasis.IsZero() {
		return decimal.Zero
	}
	return h.UnrealizedGainLoss.Div(h.TotalCostBasis).Mul(hundred).Round(2)
}

// AdjustCurrentValue shifts the marked value by delta without repricing.
// Transfers use it to move value between holdings at the source's last mark.
func (h *Holding) AdjustCurrentValue(delta decimal.Decimal) {
	if h.Quantity.IsZero() {
		h.CurrentValue = decimal.Zero
	} else {
		h.CurrentValue = h.CurrentValue.Add(delta).Round(2)
	}
	h.UnrealizedGainLoss = h.CurrentValue.Sub(h.TotalCostBasis).Round(2)
}
