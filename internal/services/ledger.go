package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
)

// Shared persistence helpers for the portfolio and trading services. Every
// write to a Portfolio or Holding goes through savePortfolio / saveHolding,
// which compare-and-swap on the version that was read.

// withDeadline bounds ctx by d. A non-positive d leaves ctx unchanged.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// forUpdate adds SELECT ... FOR UPDATE. Dialects without row locks ignore it.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadPortfolio(db *gorm.DB, id string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPortfolioNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &p, nil
}

func loadHolding(db *gorm.DB, id string) (*models.Holding, error) {
	var h models.Holding
	if err := db.Where("id = ?", id).First(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrHoldingNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &h, nil
}

// findHolding returns the (portfolio, property) position or nil when none exists.
func findHolding(db *gorm.DB, portfolioID, propertyID string) (*models.Holding, error) {
	var h models.Holding
	err := db.Where("portfolio_id = ? AND property_id = ?", portfolioID, propertyID).First(&h).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &h, nil
}

func loadTransaction(db *gorm.DB, id string) (*models.InvestmentTransaction, error) {
	var t models.InvestmentTransaction
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}

// savePortfolio persists p if nobody wrote it since it was read.
func savePortfolio(tx *gorm.DB, p *models.Portfolio) error {
	now := time.Now()
	res := tx.Model(&models.Portfolio{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"name":                p.Name,
			"description":         p.Description,
			"risk_profile":        p.RiskProfile,
			"status":              p.Status,
			"total_invested":      p.TotalInvested,
			"total_current_value": p.TotalCurrentValue,
			"unrealized_gains":    p.UnrealizedGains,
			"realized_gains":      p.RealizedGains,
			"version":             p.Version + 1,
			"updated_at":          now,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperrors.ErrDuplicatePortfolioName
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

// saveHolding inserts a new holding or persists an existing one under the
// version compare-and-swap.
func saveHolding(tx *gorm.DB, h *models.Holding) error {
	if h.ID == "" {
		h.Version = 1
		if err := tx.Create(h).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Wrap(apperrors.ErrConcurrentModification, err)
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	}

	now := time.Now()
	res := tx.Model(&models.Holding{}).
		Where("id = ? AND version = ?", h.ID, h.Version).
		Updates(map[string]any{
			"quantity":             h.Quantity,
			"average_cost_basis":   h.AverageCostBasis,
			"total_cost_basis":     h.TotalCostBasis,
			"current_value":        h.CurrentValue,
			"unrealized_gain_loss": h.UnrealizedGainLoss,
			"status":               h.Status,
			"version":              h.Version + 1,
			"updated_at":           now,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentModification
	}
	h.Version++
	h.UpdatedAt = now
	return nil
}
