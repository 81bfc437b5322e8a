package models

import "github.com/shopspring/decimal"

// RiskProfile represents the investment risk appetite declared for a portfolio.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// PortfolioStatus represents the lifecycle state of a portfolio.
type PortfolioStatus string

const (
	PortfolioActive    PortfolioStatus = "active"
	PortfolioSuspended PortfolioStatus = "suspended"
	PortfolioClosed    PortfolioStatus = "closed"
)

// Portfolio groups a user's holdings and carries their aggregated totals.
// Totals are maintained incrementally by every trade and reconciled by Recalculate.
type Portfolio struct {
	Base
	Versioned
	UserID            string          `gorm:"type:uuid;not null;uniqueIndex:idx_portfolio_user_name,priority:1" json:"user_id"`
	Name              string          `gorm:"not null;uniqueIndex:idx_portfolio_user_name,priority:2" json:"name"`
	Description       string          `json:"description"`
	RiskProfile       RiskProfile     `gorm:"not null;default:'moderate'" json:"risk_profile"`
	Status            PortfolioStatus `gorm:"not null;default:'active';index" json:"status"`
	TotalInvested     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_invested"`
	TotalCurrentValue decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_current_value"`
	UnrealizedGains   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"unrealized_gains"`
	RealizedGains     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"realized_gains"`
}

// IsActive reports whether the portfolio accepts trades.
func (p *Portfolio) IsActive() bool {
	return p.Status == PortfolioActive
}

// ApplyBuy adds the gross purchase amount to both invested and current value.
func (p *Portfolio) ApplyBuy(gross decimal.Decimal) {
	p.TotalInvested = p.TotalInvested.Add(gross).Round(2)
	p.TotalCurrentValue = p.TotalCurrentValue.Add(gross).Round(2)
	p.RecomputeUnrealized()
}

// ApplySell removes the disposed cost basis and sale proceeds and books the gain.
func (p *Portfolio) ApplySell(costRemoved, gross, realized decimal.Decimal) {
	p.TotalInvested = p.TotalInvested.Sub(costRemoved).Round(2)
	p.TotalCurrentValue = p.TotalCurrentValue.Sub(gross).Round(2)
	p.RealizedGains = p.RealizedGains.Add(realized).Round(2)
	p.RecomputeUnrealized()
}

// ApplyTransferOut removes a moved position from the source side of a transfer.
func (p *Portfolio) ApplyTransferOut(costMoved, valueMoved decimal.Decimal) {
	p.TotalInvested = p.TotalInvested.Sub(costMoved).Round(2)
	p.TotalCurrentValue = p.TotalCurrentValue.Sub(valueMoved).Round(2)
	p.RecomputeUnrealized()
}

// ApplyTransferIn adds a moved position to the destination side of a transfer.
func (p *Portfolio) ApplyTransferIn(costMoved, valueMoved decimal.Decimal) {
	p.TotalInvested = p.TotalInvested.Add(costMoved).Round(2)
	p.TotalCurrentValue = p.TotalCurrentValue.Add(valueMoved).Round(2)
	p.RecomputeUnrealized()
}

// ApplyDividend books a cash distribution as realized gain.
func (p *Portfolio) ApplyDividend(amount decimal.Decimal) {
	p.RealizedGains = p.RealizedGains.Add(amount).Round(2)
}

// Reprice replaces the totals with sums over the active holdings.
func (p *Portfolio) Reprice(holdings []Holding) {
	invested := decimal.Zero
	current := decimal.Zero
	for i := range holdings {
		if holdings[i].Status != HoldingActive {
			continue
		}
		invested = invested.Add(holdings[i].TotalCostBasis)
		current = current.Add(holdings[i].CurrentValue)
	}
	p.TotalInvested = invested.Round(2)
	p.TotalCurrentValue = current.Round(2)
	p.RecomputeUnrealized()
}

// RecomputeUnrealized sets unrealized gains to current value minus invested.
func (p *Portfolio) RecomputeUnrealized() {
	p.UnrealizedGains = p.TotalCurrentValue.Sub(p.TotalInvested)
}
