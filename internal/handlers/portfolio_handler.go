package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
)

// PortfolioHandler handles portfolio lifecycle and read requests.
type PortfolioHandler struct {
	portfolioService services.PortfolioServicer
	auditService     services.AuditServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioService services.PortfolioServicer, auditService services.AuditServicer) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService, auditService: auditService}
}

// CreatePortfolioRequest represents the request payload for creating a portfolio.
type CreatePortfolioRequest struct {
	Name        string             `json:"name" binding:"required,min=1,max=100"`
	Description string             `json:"description" binding:"max=500"`
	RiskProfile models.RiskProfile `json:"risk_profile" binding:"omitempty,risk_profile"`
}

// UpdatePortfolioRequest represents the request payload for updating a portfolio.
type UpdatePortfolioRequest struct {
	Name        *string             `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string             `json:"description" binding:"omitempty,max=500"`
	RiskProfile *models.RiskProfile `json:"risk_profile" binding:"omitempty,risk_profile"`
}

// CreatePortfolio handles creating a new portfolio.
// @Summary     Create portfolio
// @Description Create an empty active portfolio owned by the caller
// @Tags        portfolios
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreatePortfolioRequest true "Portfolio details"
// @Success     201 {object} PortfolioResponse "Portfolio created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Duplicate portfolio name"
// @Router      /portfolios [post]
func (h *PortfolioHandler) CreatePortfolio(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	portfolio, err := h.portfolioService.CreatePortfolio(c.Request.Context(), caller, req.Name, req.Description, req.RiskProfile)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, models.AuditCreatePortfolio, models.AuditResourcePortfolio, portfolio.ID, c.ClientIP(),
		map[string]interface{}{"name": portfolio.Name, "risk_profile": string(portfolio.RiskProfile)})

	c.JSON(http.StatusCreated, PortfolioResponse{Portfolio: portfolio})
}

// ListPortfolios handles listing the caller's portfolios.
// @Summary     List portfolios
// @Description Get a paginated list of the caller's portfolios, newest first
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Portfolio] "Paginated portfolios"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /portfolios [get]
func (h *PortfolioHandler) ListPortfolios(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.portfolioService.ListPortfolios(c.Request.Context(), caller, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPortfolio handles retrieving one portfolio.
// @Summary     Get portfolio
// @Description Get a portfolio with its running totals
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     200 {object} PortfolioResponse "Portfolio"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id} [get]
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
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

	portfolio, err := h.portfolioService.GetPortfolio(c.Request.Context(), caller, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, PortfolioResponse{Portfolio: portfolio})
}

// UpdatePortfolio handles changing a portfolio's descriptive fields.
// @Summary     Update portfolio
// @Description Rename or re-describe a portfolio (owner only)
// @Tags        portfolios
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                 true "Portfolio ID"
// @Param       request body UpdatePortfolioRequest true "Fields to update"
// @Success     200 {object} PortfolioResponse "Portfolio updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Failure     409 {object} ErrorResponse "Duplicate portfolio name"
// @Router      /portfolios/{id} [put]
func (h *PortfolioHandler) UpdatePortfolio(c *gin.Context) {
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

	var req UpdatePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	portfolio, err := h.portfolioService.UpdatePortfolio(c.Request.Context(), caller, id, services.UpdatePortfolioInput{
		Name:        req.Name,
		Description: req.Description,
		RiskProfile: req.RiskProfile,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, models.AuditUpdatePortfolio, models.AuditResourcePortfolio, portfolio.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, PortfolioResponse{Portfolio: portfolio})
}

// ClosePortfolio handles closing a portfolio.
// @Summary     Close portfolio
// @Description Close a portfolio that holds no active positions (owner or admin)
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     200 {object} PortfolioResponse "Portfolio closed"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Failure     409 {object} ErrorResponse "Portfolio still has active holdings"
// @Router      /portfolios/{id}/close [post]
func (h *PortfolioHandler) ClosePortfolio(c *gin.Context) {
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

	portfolio, err := h.portfolioService.ClosePortfolio(c.Request.Context(), caller, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, models.AuditClosePortfolio, models.AuditResourcePortfolio, portfolio.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, PortfolioResponse{Portfolio: portfolio})
}

// Recalculate handles re-pricing a portfolio against current property prices.
// @Summary     Recalculate portfolio
// @Description Re-price every active holding, rebuild the totals and record a valuation
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     200 {object} PortfolioResponse "Recalculated portfolio"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Failure     422 {object} ErrorResponse "Price unavailable"
// @Router      /portfolios/{id}/recalculate [post]
func (h *PortfolioHandler) Recalculate(c *gin.Context) {
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

	portfolio, err := h.portfolioService.Recalculate(c.Request.Context(), caller, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, models.AuditRecalculate, models.AuditResourcePortfolio, portfolio.ID, c.ClientIP(),
		map[string]interface{}{
			"total_current_value": portfolio.TotalCurrentValue.String(),
			"unrealized_gains":    portfolio.UnrealizedGains.String(),
		})

	c.JSON(http.StatusOK, PortfolioResponse{Portfolio: portfolio})
}

// GetHoldings handles listing a portfolio's holdings.
// @Summary     Get holdings
// @Description Get a paginated list of a portfolio's holdings
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Portfolio ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Holding] "Paginated holdings"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/holdings [get]
func (h *PortfolioHandler) GetHoldings(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.portfolioService.GetHoldings(c.Request.Context(), caller, id, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetValuations handles listing a portfolio's valuation snapshots.
// @Summary     Get valuations
// @Description Get the valuation snapshots recorded by recalculation, newest first
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Portfolio ID"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.PortfolioValuation] "Paginated valuations"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/valuations [get]
func (h *PortfolioHandler) GetValuations(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.portfolioService.GetValuations(c.Request.Context(), caller, id, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
