package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger entry.
type TransactionType string

const (
	TransactionBuy         TransactionType = "buy"
	TransactionSell        TransactionType = "sell"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
	TransactionDividend    TransactionType = "dividend"
)

// TransactionStatus represents the processing state of a ledger entry.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
	TransactionReversed   TransactionStatus = "reversed"
)

// PlatformFeeRate is the fee charged on the gross amount of buys and sells.
var PlatformFeeRate = decimal.RequireFromString("0.01")

// InvestmentTransaction is an immutable ledger entry produced by one trade.
// The only permitted mutation after completion is completed -> reversed.
type InvestmentTransaction struct {
	Base
	Reference               string              `gorm:"uniqueIndex;not null" json:"reference"`
	Type                    TransactionType     `gorm:"not null" json:"type"`
	PortfolioID             string              `gorm:"type:uuid;not null;index" json:"portfolio_id"`
	HoldingID               *string             `gorm:"type:uuid;index" json:"holding_id,omitempty"`
	PropertyID              string              `gorm:"type:uuid;not null" json:"property_id"`
	UserID                  string              `gorm:"type:uuid;not null;index" json:"user_id"`
	CounterpartyPortfolioID *string             `gorm:"type:uuid" json:"counterparty_portfolio_id,omitempty"`
	Quantity                decimal.Decimal     `gorm:"type:numeric(28,8);not null" json:"quantity"`
	UnitPrice               decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"unit_price"`
	GrossAmount             decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"gross_amount"`
	PlatformFee             decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"platform_fee"`
	NetAmount               decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"net_amount"`
	CostBasis               decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"cost_basis"`
	RealizedGainLoss        decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"realized_gain_loss"`
	Status                  TransactionStatus   `gorm:"not null;index" json:"status"`
	IdempotencyKey          *string             `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	ReversedAt              *time.Time          `json:"reversed_at,omitempty"`
	ReversedBy              *string             `gorm:"type:uuid" json:"reversed_by,omitempty"`
}

// Amounts holds the currency figures derived from a quantity and unit price.
type Amounts struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

// ComputeAmounts derives gross, fee and net for a trade. Buys pay the fee on
// top of gross, sells receive gross less the fee, other types carry no fee.
// All figures are rounded half-up to 2 decimals.
func ComputeAmounts(t TransactionType, qty, unitPrice decimal.Decimal) Amounts {
	gross := qty.Mul(unitPrice).Round(2)
	a := Amounts{Gross: gross, Fee: decimal.Zero, Net: gross}
	switch t {
	case TransactionBuy:
		a.Fee = gross.Mul(PlatformFeeRate).Round(2)
		a.Net = gross.Add(a.Fee)
	case TransactionSell:
		a.Fee = gross.Mul(PlatformFeeRate).Round(2)
		a.Net = gross.Sub(a.Fee)
	}
	return a
}

// IsReversible reports whether the entry may move to reversed.
func (t *InvestmentTransaction) IsReversible() bool {
	return t.Status == TransactionCompleted
}
