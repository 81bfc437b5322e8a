package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/concurrency"
	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
)

// portfolioService handles the portfolio aggregate: lifecycle, reads and
// reconciliation of the totals against current prices.
type portfolioService struct {
	db      *gorm.DB
	ctrl    *concurrency.Controller
	prices  PriceProvider
	timeout time.Duration
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB, ctrl *concurrency.Controller, prices PriceProvider, timeout time.Duration) PortfolioServicer {
	return &portfolioService{db: db, ctrl: ctrl, prices: prices, timeout: timeout}
}

func validRiskProfile(r models.RiskProfile) bool {
	switch r {
	case models.RiskConservative, models.RiskModerate, models.RiskAggressive:
		return true
	}
	return false
}

// CreatePortfolio creates an empty active portfolio owned by the caller.
func (s *portfolioService) CreatePortfolio(ctx context.Context, caller Caller, name, description string, riskProfile models.RiskProfile) (*models.Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "portfolio name is required")
	}
	if riskProfile == "" {
		riskProfile = models.RiskModerate
	}
	if !validRiskProfile(riskProfile) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown risk profile")
	}

	db := s.db.WithContext(ctx)
	if err := s.ensureNameAvailable(db, caller.UserID, name, ""); err != nil {
		return nil, err
	}

	portfolio := &models.Portfolio{
		Versioned:         models.Versioned{Version: 1},
		UserID:            caller.UserID,
		Name:              name,
		Description:       description,
		RiskProfile:       riskProfile,
		Status:            models.PortfolioActive,
		TotalInvested:     decimal.Zero,
		TotalCurrentValue: decimal.Zero,
		UnrealizedGains:   decimal.Zero,
		RealizedGains:     decimal.Zero,
	}
	if err := db.Create(portfolio).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicatePortfolioName
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return portfolio, nil
}

// GetPortfolio returns a portfolio readable by the caller.
func (s *portfolioService) GetPortfolio(ctx context.Context, caller Caller, id string) (*models.Portfolio, error) {
	portfolio, err := loadPortfolio(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !caller.CanRead(portfolio.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return portfolio, nil
}

// ListPortfolios returns the caller's own portfolios, newest first.
func (s *portfolioService) ListPortfolios(ctx context.Context, caller Caller, page pagination.PageRequest) (*pagination.PageResponse[models.Portfolio], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.WithContext(ctx).Model(&models.Portfolio{}).Where("user_id = ?", caller.UserID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var portfolios []models.Portfolio
	if err := s.db.WithContext(ctx).Where("user_id = ?", caller.UserID).
		Order("created_at DESC").Scopes(pagination.Paginate(page)).
		Find(&portfolios).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(portfolios, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// UpdatePortfolio changes the descriptive fields of a portfolio. Owner only.
func (s *portfolioService) UpdatePortfolio(ctx context.Context, caller Caller, id string, in UpdatePortfolioInput) (*models.Portfolio, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		if trimmed == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "portfolio name cannot be empty")
		}
		in.Name = &trimmed
	}
	if in.RiskProfile != nil && !validRiskProfile(*in.RiskProfile) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown risk profile")
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	release, err := s.ctrl.Lock(ctx, concurrency.PortfolioKeys(id)...)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	portfolio, err := loadPortfolio(db, id)
	if err != nil {
		return nil, err
	}
	if portfolio.UserID != caller.UserID {
		return nil, apperrors.ErrForbidden
	}

	if in.Name != nil && *in.Name != portfolio.Name {
		if err := s.ensureNameAvailable(db, portfolio.UserID, *in.Name, portfolio.ID); err != nil {
			return nil, err
		}
		portfolio.Name = *in.Name
	}
	if in.Description != nil {
		portfolio.Description = *in.Description
	}
	if in.RiskProfile != nil {
		portfolio.RiskProfile = *in.RiskProfile
	}

	if err := savePortfolio(db, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

// Recalculate re-prices every active holding and rebuilds the totals as sums
// over them, then records a valuation snapshot. Owner or admin.
func (s *portfolioService) Recalculate(ctx context.Context, caller Caller, id string) (*models.Portfolio, error) {
	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	var result *models.Portfolio
	err := s.ctrl.Run(ctx, concurrency.OpRecalculate, func(ctx context.Context) error {
		release, err := s.ctrl.Lock(ctx, concurrency.PortfolioKeys(id)...)
		if err != nil {
			return err
		}
		defer release()

		db := s.db.WithContext(ctx)
		portfolio, err := loadPortfolio(db, id)
		if err != nil {
			return err
		}
		if portfolio.UserID != caller.UserID && !caller.IsAdmin() {
			return apperrors.ErrForbidden
		}

		// Prices are resolved before the database transaction is opened.
		var propertyIDs []string
		if err := db.Model(&models.Holding{}).
			Where("portfolio_id = ? AND status = ?", id, models.HoldingActive).
			Distinct().Pluck("property_id", &propertyIDs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		prices := make(map[string]decimal.Decimal, len(propertyIDs))
		for _, propertyID := range propertyIDs {
			price, err := s.prices.GetCurrentPrice(ctx, propertyID)
			if err != nil {
				return err
			}
			prices[propertyID] = price
		}

		return s.ctrl.InTx(ctx, s.db, concurrency.OpRecalculate, func(tx *gorm.DB) error {
			locked, err := loadPortfolio(forUpdate(tx), id)
			if err != nil {
				return err
			}

			var holdings []models.Holding
			if err := forUpdate(tx).Where("portfolio_id = ? AND status = ?", id, models.HoldingActive).
				Find(&holdings).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			for i := range holdings {
				price, ok := prices[holdings[i].PropertyID]
				if !ok {
					return apperrors.ErrConcurrentModification
				}
				holdings[i].UpdateCurrentValue(price)
				if err := saveHolding(tx, &holdings[i]); err != nil {
					return err
				}
			}

			locked.Reprice(holdings)
			if err := savePortfolio(tx, locked); err != nil {
				return err
			}

			valuation := &models.PortfolioValuation{
				PortfolioID:       locked.ID,
				RecordedAt:        time.Now().UTC(),
				TotalInvested:     locked.TotalInvested,
				TotalCurrentValue: locked.TotalCurrentValue,
				UnrealizedGains:   locked.UnrealizedGains,
				RealizedGains:     locked.RealizedGains,
				ActiveHoldings:    len(holdings),
			}
			if err := tx.Create(valuation).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}

			result = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Named("portfolio").Infow("Portfolio recalculated",
		"portfolio_id", result.ID,
		"total_invested", result.TotalInvested.String(),
		"total_current_value", result.TotalCurrentValue.String(),
	)
	return result, nil
}

// ClosePortfolio closes a portfolio that no longer has active holdings. Owner or admin.
func (s *portfolioService) ClosePortfolio(ctx context.Context, caller Caller, id string) (*models.Portfolio, error) {
	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	var result *models.Portfolio
	err := s.ctrl.Run(ctx, concurrency.OpClose, func(ctx context.Context) error {
		release, err := s.ctrl.Lock(ctx, concurrency.PortfolioKeys(id)...)
		if err != nil {
			return err
		}
		defer release()

		return s.ctrl.InTx(ctx, s.db, concurrency.OpClose, func(tx *gorm.DB) error {
			portfolio, err := loadPortfolio(forUpdate(tx), id)
			if err != nil {
				return err
			}
			if portfolio.UserID != caller.UserID && !caller.IsAdmin() {
				return apperrors.ErrForbidden
			}
			if portfolio.Status == models.PortfolioClosed {
				result = portfolio
				return nil
			}

			var active int64
			if err := tx.Model(&models.Holding{}).
				Where("portfolio_id = ? AND status = ?", id, models.HoldingActive).
				Count(&active).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			if active > 0 {
				return apperrors.ErrPortfolioHasActiveHoldings
			}

			portfolio.Status = models.PortfolioClosed
			if err := savePortfolio(tx, portfolio); err != nil {
				return err
			}
			result = portfolio
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetHoldings returns the holdings of a portfolio readable by the caller.
func (s *portfolioService) GetHoldings(ctx context.Context, caller Caller, id string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error) {
	if _, err := s.GetPortfolio(ctx, caller, id); err != nil {
		return nil, err
	}

	page.Defaults()

	var totalItems int64
	base := s.db.WithContext(ctx).Model(&models.Holding{}).Where("portfolio_id = ?", id)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var holdings []models.Holding
	if err := s.db.WithContext(ctx).Where("portfolio_id = ?", id).
		Order("created_at ASC").Scopes(pagination.Paginate(page)).
		Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(holdings, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetValuations returns the valuation snapshots of a portfolio, newest first.
func (s *portfolioService) GetValuations(ctx context.Context, caller Caller, id string, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioValuation], error) {
	if _, err := s.GetPortfolio(ctx, caller, id); err != nil {
		return nil, err
	}

	page.Defaults()

	var totalItems int64
	base := s.db.WithContext(ctx).Model(&models.PortfolioValuation{}).Where("portfolio_id = ?", id)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var valuations []models.PortfolioValuation
	if err := s.db.WithContext(ctx).Where("portfolio_id = ?", id).
		Order("recorded_at DESC").Scopes(pagination.Paginate(page)).
		Find(&valuations).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(valuations, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ensureNameAvailable fails with ErrDuplicatePortfolioName when the owner
// already has another portfolio called name.
func (s *portfolioService) ensureNameAvailable(db *gorm.DB, userID, name, excludeID string) error {
	q := db.Model(&models.Portfolio{}).Where("user_id = ? AND name = ?", userID, name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrDuplicatePortfolioName
	}
	return nil
}
