package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
)

// TradingHandler exposes the transaction orchestrator over HTTP.
type TradingHandler struct {
	tradingService services.TradingServicer
	auditService   services.AuditServicer
}

// NewTradingHandler creates a new TradingHandler.
func NewTradingHandler(tradingService services.TradingServicer, auditService services.AuditServicer) *TradingHandler {
	return &TradingHandler{tradingService: tradingService, auditService: auditService}
}

// Quantities and amounts are decimal strings ("1.25") or JSON numbers.

// BuyRequest represents the request payload for buying property units.
type BuyRequest struct {
	PropertyID string          `json:"property_id" binding:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity" swaggertype:"string" example:"1.5"`
}

// SellRequest represents the request payload for selling units of a holding.
type SellRequest struct {
	HoldingID string          `json:"holding_id" binding:"required,uuid"`
	Quantity  decimal.Decimal `json:"quantity" swaggertype:"string" example:"0.5"`
}

// TransferRequest represents the request payload for moving units to another portfolio.
type TransferRequest struct {
	ToPortfolioID string          `json:"to_portfolio_id" binding:"required,uuid"`
	HoldingID     string          `json:"holding_id" binding:"required,uuid"`
	Quantity      decimal.Decimal `json:"quantity" swaggertype:"string" example:"0.25"`
}

// DividendRequest represents the request payload for recording a dividend.
type DividendRequest struct {
	HoldingID string          `json:"holding_id" binding:"required,uuid"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string" example:"120.50"`
}

// HistoryQuery holds the optional filters of a history request.
type HistoryQuery struct {
	Type   string `form:"type" binding:"omitempty,transaction_type"`
	Status string `form:"status" binding:"omitempty,transaction_status"`
}

// Buy handles purchasing property units into a portfolio.
// @Summary     Buy units
// @Description Buy units of a property at its current price. Retries with the same Idempotency-Key return the original transaction.
// @Tags        trading
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id              path   string     true  "Portfolio ID"
// @Param       Idempotency-Key header string     false "Client idempotency key"
// @Param       request         body   BuyRequest true  "Buy details"
// @Success     201 {object} TransactionResponse "Transaction completed"
// @Failure     400 {object} ErrorResponse "Invalid input or portfolio not active"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio or property not found"
// @Failure     409 {object} ErrorResponse "Concurrent modification or idempotency key reused"
// @Failure     422 {object} ErrorResponse "Price unavailable"
// @Failure     503 {object} ErrorResponse "Lock timeout"
// @Router      /portfolios/{id}/buy [post]
func (h *TradingHandler) Buy(c *gin.Context) {
	caller, portfolioID, key, ok := h.commandContext(c)
	if !ok {
		return
	}

	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txn, err := h.tradingService.Buy(c.Request.Context(), caller, services.BuyCommand{
		PortfolioID:    portfolioID,
		PropertyID:     req.PropertyID,
		Quantity:       req.Quantity,
		IdempotencyKey: key,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit(c, caller, models.AuditBuy, txn)
	c.JSON(http.StatusCreated, TransactionResponse{Transaction: txn})
}

// Sell handles selling units of a holding.
// @Summary     Sell units
// @Description Sell units of a holding at the current price, realizing gain against average cost
// @Tags        trading
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id              path   string      true  "Portfolio ID"
// @Param       Idempotency-Key header string      false "Client idempotency key"
// @Param       request         body   SellRequest true  "Sell details"
// @Success     201 {object} TransactionResponse "Transaction completed"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient quantity"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio or holding not found"
// @Failure     409 {object} ErrorResponse "Concurrent modification or idempotency key reused"
// @Failure     503 {object} ErrorResponse "Lock timeout"
// @Router      /portfolios/{id}/sell [post]
func (h *TradingHandler) Sell(c *gin.Context) {
	caller, portfolioID, key, ok := h.commandContext(c)
	if !ok {
		return
	}

	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txn, err := h.tradingService.Sell(c.Request.Context(), caller, services.SellCommand{
		PortfolioID:    portfolioID,
		HoldingID:      req.HoldingID,
		Quantity:       req.Quantity,
		IdempotencyKey: key,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit(c, caller, models.AuditSell, txn)
	c.JSON(http.StatusCreated, TransactionResponse{Transaction: txn})
}

// Transfer handles moving units of a holding into another portfolio.
// @Summary     Transfer units
// @Description Move units to another portfolio at the source's average cost. Returns the transfer_out entry.
// @Tags        trading
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id              path   string          true  "Source portfolio ID"
// @Param       Idempotency-Key header string          false "Client idempotency key"
// @Param       request         body   TransferRequest true  "Transfer details"
// @Success     201 {object} TransactionResponse "Transaction completed"
// @Failure     400 {object} ErrorResponse "Invalid input, same portfolio or insufficient quantity"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio or holding not found"
// @Failure     409 {object} ErrorResponse "Concurrent modification"
// @Failure     503 {object} ErrorResponse "Lock timeout"
// @Router      /portfolios/{id}/transfer [post]
func (h *TradingHandler) Transfer(c *gin.Context) {
	caller, portfolioID, key, ok := h.commandContext(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txn, err := h.tradingService.Transfer(c.Request.Context(), caller, services.TransferCommand{
		FromPortfolioID: portfolioID,
		ToPortfolioID:   req.ToPortfolioID,
		HoldingID:       req.HoldingID,
		Quantity:        req.Quantity,
		IdempotencyKey:  key,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit(c, caller, models.AuditTransfer, txn)
	c.JSON(http.StatusCreated, TransactionResponse{Transaction: txn})
}

// RecordDividend handles booking a dividend paid on a holding.
// @Summary     Record dividend
// @Description Book a cash distribution on an active holding as realized gain
// @Tags        trading
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id              path   string          true  "Portfolio ID"
// @Param       Idempotency-Key header string          false "Client idempotency key"
// @Param       request         body   DividendRequest true  "Dividend details"
// @Success     201 {object} TransactionResponse "Transaction completed"
// @Failure     400 {object} ErrorResponse "Invalid input or holding not active"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio or holding not found"
// @Router      /portfolios/{id}/dividend [post]
func (h *TradingHandler) RecordDividend(c *gin.Context) {
	caller, portfolioID, key, ok := h.commandContext(c)
	if !ok {
		return
	}

	var req DividendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	txn, err := h.tradingService.RecordDividend(c.Request.Context(), caller, services.DividendCommand{
		PortfolioID:    portfolioID,
		HoldingID:      req.HoldingID,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit(c, caller, models.AuditDividend, txn)
	c.JSON(http.StatusCreated, TransactionResponse{Transaction: txn})
}

// GetHistory handles listing a portfolio's ledger entries.
// @Summary     Get transaction history
// @Description Get a paginated list of a portfolio's transactions, newest first
// @Tags        trading
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Portfolio ID"
// @Param       type      query string false "Filter by transaction type"
// @Param       status    query string false "Filter by transaction status"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.InvestmentTransaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/transactions [get]
func (h *TradingHandler) GetHistory(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolioID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.HistoryFilter
	if q.Type != "" {
		t := models.TransactionType(q.Type)
		filter.Type = &t
	}
	if q.Status != "" {
		s := models.TransactionStatus(q.Status)
		filter.Status = &s
	}

	result, err := h.tradingService.GetHistory(c.Request.Context(), caller, portfolioID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTransaction handles retrieving one ledger entry.
// @Summary     Get transaction
// @Description Get a single transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} TransactionResponse "Transaction"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *TradingHandler) GetTransaction(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn, err := h.tradingService.GetTransaction(c.Request.Context(), caller, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, TransactionResponse{Transaction: txn})
}

// Reverse handles marking a completed transaction as reversed.
// @Summary     Reverse transaction
// @Description Mark a completed transaction as reversed (admin only). Holdings are not restored.
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} TransactionResponse "Transaction reversed"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Transaction not reversible"
// @Router      /transactions/{id}/reverse [post]
func (h *TradingHandler) Reverse(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	txn, err := h.tradingService.Reverse(c.Request.Context(), caller, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit(c, caller, models.AuditReverse, txn)
	c.JSON(http.StatusOK, TransactionResponse{Transaction: txn})
}

// commandContext resolves the caller, portfolio path id and idempotency key
// shared by every trading command. It writes the error response itself.
func (h *TradingHandler) commandContext(c *gin.Context) (services.Caller, string, string, bool) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return services.Caller{}, "", "", false
	}
	portfolioID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return services.Caller{}, "", "", false
	}
	key, err := idempotencyKey(c)
	if err != nil {
		respondWithError(c, err)
		return services.Caller{}, "", "", false
	}
	return caller, portfolioID, key, true
}

func (h *TradingHandler) audit(c *gin.Context, caller services.Caller, action string, txn *models.InvestmentTransaction) {
	h.auditService.Log(caller.UserID, action, models.AuditResourceTransaction, txn.ID, c.ClientIP(),
		map[string]interface{}{
			"reference":    txn.Reference,
			"portfolio_id": txn.PortfolioID,
			"quantity":     txn.Quantity.String(),
			"net_amount":   txn.NetAmount.String(),
		})
}
