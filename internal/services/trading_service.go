package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/concurrency"
	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/reference"
)

// tradingService is the transaction orchestrator. Each command runs as
// idempotency check, in-process locks, pricing, then one database
// transaction that rewrites holding, portfolio and ledger entry together.
// Prices and prechecks are resolved before the database transaction opens so
// that the transaction itself only touches rows it has locked.
type tradingService struct {
	db      *gorm.DB
	ctrl    *concurrency.Controller
	prices  PriceProvider
	refs    *reference.Generator
	guard   *idempotencyGuard
	timeout time.Duration
}

// NewTradingService creates a new TradingServicer.
func NewTradingService(
	db *gorm.DB,
	ctrl *concurrency.Controller,
	prices PriceProvider,
	refs *reference.Generator,
	timeout time.Duration,
) TradingServicer {
	return &tradingService{
		db:      db,
		ctrl:    ctrl,
		prices:  prices,
		refs:    refs,
		guard:   newIdempotencyGuard(db, ctrl),
		timeout: timeout,
	}
}

// validateQuantity rejects non-positive quantities and quantities finer than
// the ledger's unit precision.
func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return apperrors.ErrInvalidQuantity
	}
	if !q.Equal(q.Truncate(models.QuantityScale)) {
		return apperrors.WithMessage(apperrors.ErrInvalidQuantity, "Quantity supports at most 8 decimal places")
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Buy purchases units of a property into the caller's portfolio, merging
// into the existing holding with a weighted-average cost update.
func (s *tradingService) Buy(ctx context.Context, caller Caller, cmd BuyCommand) (*models.InvestmentTransaction, error) {
	if err := validateQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	if cmd.PortfolioID == "" || cmd.PropertyID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "portfolio and property are required")
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	scope := idempotencyScope{Type: models.TransactionBuy, PortfolioID: cmd.PortfolioID, UserID: caller.UserID}

	var result *models.InvestmentTransaction
	err := s.ctrl.Run(ctx, concurrency.OpBuy, func(ctx context.Context) error {
		txn, err := s.guard.Do(ctx, cmd.IdempotencyKey, scope, func(ctx context.Context) (*models.InvestmentTransaction, error) {
			return s.executeBuy(ctx, caller, cmd)
		})
		result = txn
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tradingService) executeBuy(ctx context.Context, caller Caller, cmd BuyCommand) (*models.InvestmentTransaction, error) {
	release, err := s.ctrl.Lock(ctx, concurrency.PortfolioKeys(cmd.PortfolioID)...)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	portfolio, err := loadPortfolio(db, cmd.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.UserID != caller.UserID {
		return nil, apperrors.ErrForbidden
	}
	if !portfolio.IsActive() {
		return nil, apperrors.ErrPortfolioNotActive
	}
	if err := s.ensurePropertyActive(db, cmd.PropertyID); err != nil {
		return nil, err
	}

	price, err := s.prices.GetCurrentPrice(ctx, cmd.PropertyID)
	if err != nil {
		return nil, err
	}
	amounts := models.ComputeAmounts(models.TransactionBuy, cmd.Quantity, price)

	var txn *models.InvestmentTransaction
	err = s.ctrl.InTx(ctx, s.db, concurrency.OpBuy, func(tx *gorm.DB) error {
		p, err := loadPortfolio(forUpdate(tx), cmd.PortfolioID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperrors.ErrPortfolioNotActive
		}

		holding, err := findHolding(forUpdate(tx), p.ID, cmd.PropertyID)
		if err != nil {
			return err
		}
		if holding == nil {
			holding = &models.Holding{
				PortfolioID: p.ID,
				PropertyID:  cmd.PropertyID,
				Status:      models.HoldingActive,
			}
		}
		holding.AddQuantity(cmd.Quantity, price)
		holding.UpdateCurrentValue(price)
		if err := saveHolding(tx, holding); err != nil {
			return err
		}

		p.ApplyBuy(amounts.Gross)
		if err := savePortfolio(tx, p); err != nil {
			return err
		}

		txn, err = s.record(tx, &models.InvestmentTransaction{
			Type:           models.TransactionBuy,
			PortfolioID:    p.ID,
			HoldingID:      &holding.ID,
			PropertyID:     cmd.PropertyID,
			UserID:         caller.UserID,
			Quantity:       cmd.Quantity,
			UnitPrice:      price,
			GrossAmount:    amounts.Gross,
			PlatformFee:    amounts.Fee,
			NetAmount:      amounts.Net,
			IdempotencyKey: optional(cmd.IdempotencyKey),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logCompleted(txn)
	return txn, nil
}

// Sell disposes units of a holding at the current price and books the
// realized gain against the weighted-average cost.
func (s *tradingService) Sell(ctx context.Context, caller Caller, cmd SellCommand) (*models.InvestmentTransaction, error) {
	if err := validateQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	if cmd.PortfolioID == "" || cmd.HoldingID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "portfolio and holding are required")
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	scope := idempotencyScope{Type: models.TransactionSell, PortfolioID: cmd.PortfolioID, UserID: caller.UserID}

	var result *models.InvestmentTransaction
	err := s.ctrl.Run(ctx, concurrency.OpSell, func(ctx context.Context) error {
		txn, err := s.guard.Do(ctx, cmd.IdempotencyKey, scope, func(ctx context.Context) (*models.InvestmentTransaction, error) {
			return s.executeSell(ctx, caller, cmd)
		})
		result = txn
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tradingService) executeSell(ctx context.Context, caller Caller, cmd SellCommand) (*models.InvestmentTransaction, error) {
	keys := append(concurrency.PortfolioKeys(cmd.PortfolioID), concurrency.HoldingKey(cmd.HoldingID))
	release, err := s.ctrl.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	portfolio, err := loadPortfolio(db, cmd.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.UserID != caller.UserID {
		return nil, apperrors.ErrForbidden
	}
	if !portfolio.IsActive() {
		return nil, apperrors.ErrPortfolioNotActive
	}
	holding, err := loadHolding(db, cmd.HoldingID)
	if err != nil {
		return nil, err
	}
	if holding.PortfolioID != portfolio.ID {
		return nil, apperrors.ErrHoldingPortfolioMismatch
	}
	if cmd.Quantity.GreaterThan(holding.Quantity) {
		return nil, apperrors.ErrInsufficientQuantity
	}

	price, err := s.prices.GetCurrentPrice(ctx, holding.PropertyID)
	if err != nil {
		return nil, err
	}
	amounts := models.ComputeAmounts(models.TransactionSell, cmd.Quantity, price)

	var txn *models.InvestmentTransaction
	err = s.ctrl.InTx(ctx, s.db, concurrency.OpSell, func(tx *gorm.DB) error {
		p, err := loadPortfolio(forUpdate(tx), cmd.PortfolioID)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return apperrors.ErrPortfolioNotActive
		}
		h, err := loadHolding(forUpdate(tx), cmd.HoldingID)
		if err != nil {
			return err
		}
		if h.PortfolioID != p.ID {
			return apperrors.ErrHoldingPortfolioMismatch
		}

		removed, err := h.ReduceQuantity(cmd.Quantity, models.HoldingSold)
		if err != nil {
			return mapLedgerError(err)
		}
		costRemoved := removed.Round(2)
		realized := amounts.Gross.Sub(costRemoved)

		h.UpdateCurrentValue(price)
		if err := saveHolding(tx, h); err != nil {
			return err
		}

		p.ApplySell(costRemoved, amounts.Gross, realized)
		if err := savePortfolio(tx, p); err != nil {
			return err
		}

		txn, err = s.record(tx, &models.InvestmentTransaction{
			Type:             models.TransactionSell,
			PortfolioID:      p.ID,
			HoldingID:        &h.ID,
			PropertyID:       h.PropertyID,
			UserID:           caller.UserID,
			Quantity:         cmd.Quantity,
			UnitPrice:        price,
			GrossAmount:      amounts.Gross,
			PlatformFee:      amounts.Fee,
			NetAmount:        amounts.Net,
			CostBasis:        nullDecimal(costRemoved),
			RealizedGainLoss: nullDecimal(realized),
			IdempotencyKey:   optional(cmd.IdempotencyKey),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logCompleted(txn)
	return txn, nil
}

// Transfer moves units of a holding into another portfolio carrying the
// source's average cost unchanged. The source portfolio must belong to the
// caller; the destination only has to be active. A transfer_out entry is
// written against the source and a paired transfer_in against the destination.
func (s *tradingService) Transfer(ctx context.Context, caller Caller, cmd TransferCommand) (*models.InvestmentTransaction, error) {
	if err := validateQuantity(cmd.Quantity); err != nil {
		return nil, err
	}
	if cmd.FromPortfolioID == "" || cmd.ToPortfolioID == "" || cmd.HoldingID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "source, destination and holding are required")
	}
	if cmd.FromPortfolioID == cmd.ToPortfolioID {
		return nil, apperrors.ErrSamePortfolioTransfer
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	scope := idempotencyScope{Type: models.TransactionTransferOut, PortfolioID: cmd.FromPortfolioID, UserID: caller.UserID}

	var result *models.InvestmentTransaction
	err := s.ctrl.Run(ctx, concurrency.OpTransfer, func(ctx context.Context) error {
		txn, err := s.guard.Do(ctx, cmd.IdempotencyKey, scope, func(ctx context.Context) (*models.InvestmentTransaction, error) {
			return s.executeTransfer(ctx, caller, cmd)
		})
		result = txn
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tradingService) executeTransfer(ctx context.Context, caller Caller, cmd TransferCommand) (*models.InvestmentTransaction, error) {
	keys := append(concurrency.PortfolioKeys(cmd.FromPortfolioID, cmd.ToPortfolioID), concurrency.HoldingKey(cmd.HoldingID))
	release, err := s.ctrl.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	db := s.db.WithContext(ctx)
	source, err := loadPortfolio(db, cmd.FromPortfolioID)
	if err != nil {
		return nil, err
	}
	if source.UserID != caller.UserID {
		return nil, apperrors.ErrForbidden
	}
	if !source.IsActive() {
		return nil, apperrors.ErrPortfolioNotActive
	}
	dest, err := loadPortfolio(db, cmd.ToPortfolioID)
	if err != nil {
		return nil, err
	}
	if !dest.IsActive() {
		return nil, apperrors.WithMessage(apperrors.ErrPortfolioNotActive, "Destination portfolio is not active")
	}
	holding, err := loadHolding(db, cmd.HoldingID)
	if err != nil {
		return nil, err
	}
	if holding.PortfolioID != source.ID {
		return nil, apperrors.ErrHoldingPortfolioMismatch
	}
	if cmd.Quantity.GreaterThan(holding.Quantity) {
		return nil, apperrors.ErrInsufficientQuantity
	}

	var txn *models.InvestmentTransaction
	err = s.ctrl.InTx(ctx, s.db, concurrency.OpTransfer, func(tx *gorm.DB) error {
		locked := make(map[string]*models.Portfolio, 2)
		for _, id := range sortedPair(cmd.FromPortfolioID, cmd.ToPortfolioID) {
			p, err := loadPortfolio(forUpdate(tx), id)
			if err != nil {
				return err
			}
			if !p.IsActive() {
				return apperrors.ErrPortfolioNotActive
			}
			locked[id] = p
		}
		src, dst := locked[cmd.FromPortfolioID], locked[cmd.ToPortfolioID]

		from, err := loadHolding(forUpdate(tx), cmd.HoldingID)
		if err != nil {
			return err
		}
		if from.PortfolioID != src.ID {
			return apperrors.ErrHoldingPortfolioMismatch
		}
		to, err := findHolding(forUpdate(tx), dst.ID, from.PropertyID)
		if err != nil {
			return err
		}
		if to == nil {
			to = &models.Holding{
				PortfolioID: dst.ID,
				PropertyID:  from.PropertyID,
				Status:      models.HoldingActive,
			}
		}

		avgCost := from.AverageCostBasis
		unitValue := from.LastUnitValue()

		moved, err := from.ReduceQuantity(cmd.Quantity, models.HoldingTransferred)
		if err != nil {
			return mapLedgerError(err)
		}
		costMoved := moved.Round(2)
		valueMoved := unitValue.Mul(cmd.Quantity).Round(2)
		from.AdjustCurrentValue(valueMoved.Neg())

		to.AddQuantity(cmd.Quantity, avgCost)
		to.AdjustCurrentValue(valueMoved)

		if err := saveHolding(tx, from); err != nil {
			return err
		}
		if err := saveHolding(tx, to); err != nil {
			return err
		}

		src.ApplyTransferOut(costMoved, valueMoved)
		dst.ApplyTransferIn(costMoved, valueMoved)
		if err := savePortfolio(tx, src); err != nil {
			return err
		}
		if err := savePortfolio(tx, dst); err != nil {
			return err
		}

		amounts := models.ComputeAmounts(models.TransactionTransferOut, cmd.Quantity, avgCost)
		out, err := s.record(tx, &models.InvestmentTransaction{
			Type:                    models.TransactionTransferOut,
			PortfolioID:             src.ID,
			HoldingID:               &from.ID,
			PropertyID:              from.PropertyID,
			UserID:                  caller.UserID,
			CounterpartyPortfolioID: &dst.ID,
			Quantity:                cmd.Quantity,
			UnitPrice:               avgCost,
			GrossAmount:             amounts.Gross,
			PlatformFee:             amounts.Fee,
			NetAmount:               amounts.Net,
			CostBasis:               nullDecimal(costMoved),
			RealizedGainLoss:        nullDecimal(decimal.Zero),
			IdempotencyKey:          optional(cmd.IdempotencyKey),
		})
		if err != nil {
			return err
		}
		if _, err := s.record(tx, &models.InvestmentTransaction{
			Type:                    models.TransactionTransferIn,
			PortfolioID:             dst.ID,
			HoldingID:               &to.ID,
			PropertyID:              to.PropertyID,
			UserID:                  caller.UserID,
			CounterpartyPortfolioID: &src.ID,
			Quantity:                cmd.Quantity,
			UnitPrice:               avgCost,
			GrossAmount:             amounts.Gross,
			PlatformFee:             amounts.Fee,
			NetAmount:               amounts.Net,
			CostBasis:               nullDecimal(costMoved),
			RealizedGainLoss:        nullDecimal(decimal.Zero),
		}); err != nil {
			return err
		}
		txn = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCompleted(txn)
	return txn, nil
}

// RecordDividend books a cash distribution paid on an active holding as
// realized gain. Quantity and cost basis are unchanged.
func (s *tradingService) RecordDividend(ctx context.Context, caller Caller, cmd DividendCommand) (*models.InvestmentTransaction, error) {
	if !cmd.Amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Dividend amount must be greater than zero")
	}
	if !cmd.Amount.Equal(cmd.Amount.Round(2)) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Dividend amount supports at most 2 decimal places")
	}
	if cmd.PortfolioID == "" || cmd.HoldingID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "portfolio and holding are required")
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	scope := idempotencyScope{Type: models.TransactionDividend, PortfolioID: cmd.PortfolioID, UserID: caller.UserID}

	var result *models.InvestmentTransaction
	err := s.ctrl.Run(ctx, concurrency.OpDividend, func(ctx context.Context) error {
		txn, err := s.guard.Do(ctx, cmd.IdempotencyKey, scope, func(ctx context.Context) (*models.InvestmentTransaction, error) {
			return s.executeDividend(ctx, caller, cmd)
		})
		result = txn
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tradingService) executeDividend(ctx context.Context, caller Caller, cmd DividendCommand) (*models.InvestmentTransaction, error) {
	keys := append(concurrency.PortfolioKeys(cmd.PortfolioID), concurrency.HoldingKey(cmd.HoldingID))
	release, err := s.ctrl.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *models.InvestmentTransaction
	err = s.ctrl.InTx(ctx, s.db, concurrency.OpDividend, func(tx *gorm.DB) error {
		p, err := loadPortfolio(forUpdate(tx), cmd.PortfolioID)
		if err != nil {
			return err
		}
		if p.UserID != caller.UserID {
			return apperrors.ErrForbidden
		}
		if !p.IsActive() {
			return apperrors.ErrPortfolioNotActive
		}
		h, err := loadHolding(forUpdate(tx), cmd.HoldingID)
		if err != nil {
			return err
		}
		if h.PortfolioID != p.ID {
			return apperrors.ErrHoldingPortfolioMismatch
		}
		if !h.IsActive() {
			return apperrors.ErrHoldingNotActive
		}

		amount := cmd.Amount.Round(2)
		p.ApplyDividend(amount)
		if err := savePortfolio(tx, p); err != nil {
			return err
		}

		txn, err = s.record(tx, &models.InvestmentTransaction{
			Type:             models.TransactionDividend,
			PortfolioID:      p.ID,
			HoldingID:        &h.ID,
			PropertyID:       h.PropertyID,
			UserID:           caller.UserID,
			Quantity:         h.Quantity,
			UnitPrice:        amount.Div(h.Quantity).Round(2),
			GrossAmount:      amount,
			PlatformFee:      decimal.Zero,
			NetAmount:        amount,
			RealizedGainLoss: nullDecimal(amount),
			IdempotencyKey:   optional(cmd.IdempotencyKey),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logCompleted(txn)
	return txn, nil
}

// Reverse flips a completed transaction to reversed. Admin only. Holdings and
// portfolio totals are not restored; a correcting trade does that.
func (s *tradingService) Reverse(ctx context.Context, caller Caller, transactionID string) (*models.InvestmentTransaction, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.WithMessage(apperrors.ErrForbidden, "Only administrators can reverse transactions")
	}

	ctx, cancel := withDeadline(ctx, s.timeout)
	defer cancel()

	var result *models.InvestmentTransaction
	err := s.ctrl.Run(ctx, concurrency.OpReverse, func(ctx context.Context) error {
		release, err := s.ctrl.Lock(ctx, concurrency.TransactionKey(transactionID))
		if err != nil {
			return err
		}
		defer release()

		return s.ctrl.InTx(ctx, s.db, concurrency.OpReverse, func(tx *gorm.DB) error {
			if _, err := loadTransaction(tx, transactionID); err != nil {
				return err
			}

			now := time.Now()
			res := tx.Model(&models.InvestmentTransaction{}).
				Where("id = ? AND status = ?", transactionID, models.TransactionCompleted).
				Updates(map[string]any{
					"status":      models.TransactionReversed,
					"reversed_at": now,
					"reversed_by": caller.UserID,
					"updated_at":  now,
				})
			if res.Error != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
			}
			if res.RowsAffected == 0 {
				return apperrors.ErrTransactionNotReversible
			}

			reversed, err := loadTransaction(tx, transactionID)
			if err != nil {
				return err
			}
			result = reversed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Named("trading").Infow("Transaction reversed",
		"reference", result.Reference,
		"transaction_id", result.ID,
		"reversed_by", caller.UserID,
	)
	return result, nil
}

// GetHistory returns the ledger entries of a portfolio, newest first.
func (s *tradingService) GetHistory(
	ctx context.Context,
	caller Caller,
	portfolioID string,
	page pagination.PageRequest,
	filter HistoryFilter,
) (*pagination.PageResponse[models.InvestmentTransaction], error) {
	db := s.db.WithContext(ctx)
	portfolio, err := loadPortfolio(db, portfolioID)
	if err != nil {
		return nil, err
	}
	if !caller.CanRead(portfolio.UserID) {
		return nil, apperrors.ErrForbidden
	}

	page.Defaults()

	query := db.Model(&models.InvestmentTransaction{}).Where("portfolio_id = ?", portfolioID)
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.InvestmentTransaction
	if err := query.Order("created_at DESC").Order("id DESC").
		Scopes(pagination.Paginate(page)).Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetTransaction returns one ledger entry. It is readable by whoever can read
// its portfolio and by the user who initiated it.
func (s *tradingService) GetTransaction(ctx context.Context, caller Caller, id string) (*models.InvestmentTransaction, error) {
	db := s.db.WithContext(ctx)
	txn, err := loadTransaction(db, id)
	if err != nil {
		return nil, err
	}
	if txn.UserID == caller.UserID || caller.Role.CanReadAllPortfolios() {
		return txn, nil
	}

	portfolio, err := loadPortfolio(db, txn.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.UserID != caller.UserID {
		return nil, apperrors.ErrForbidden
	}
	return txn, nil
}

// record stamps a reference on a completed ledger entry, inserts it and
// returns it as stored so that replays serialize identically.
//
// Each insert runs under a savepoint. A unique violation on the idempotency
// key is returned as is for the guard to resolve; any other unique violation
// is a reference issued elsewhere, so the sequence is resynced from the store
// and a fresh reference drawn.
func (s *tradingService) record(tx *gorm.DB, entry *models.InvestmentTransaction) (*models.InvestmentTransaction, error) {
	entry.Status = models.TransactionCompleted

	var err error
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		entry.Reference = s.refs.Next()
		err = tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(entry).Error
		})
		if err == nil {
			return loadTransaction(tx, entry.ID)
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}

		keyTaken, checkErr := idempotencyKeyRecorded(tx, entry.IdempotencyKey)
		if checkErr != nil {
			return nil, checkErr
		}
		if keyTaken {
			break
		}

		logger.Named("trading").Warnw("Reference already issued, resyncing sequence",
			"reference", entry.Reference, "attempt", attempt)
		seq, seqErr := lastIssuedSequence(tx, s.refs.Prefix())
		if seqErr != nil {
			return nil, seqErr
		}
		s.refs.AdvanceTo(seq)
	}
	return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
}

func (s *tradingService) ensurePropertyActive(db *gorm.DB, propertyID string) error {
	var property models.Property
	if err := db.Select("id", "is_active").Where("id = ?", propertyID).First(&property).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrPropertyNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !property.IsActive {
		return apperrors.ErrPropertyNotActive
	}
	return nil
}

func mapLedgerError(err error) error {
	if errors.Is(err, models.ErrInsufficientQuantity) {
		return apperrors.ErrInsufficientQuantity
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

func sortedPair(a, b string) []string {
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}

func logCompleted(t *models.InvestmentTransaction) {
	logger.Named("trading").Infow("Transaction completed",
		"reference", t.Reference,
		"type", t.Type,
		"portfolio_id", t.PortfolioID,
		"property_id", t.PropertyID,
		"quantity", t.Quantity.String(),
		"unit_price", t.UnitPrice.String(),
		"gross_amount", t.GrossAmount.String(),
	)
}
