package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
)

// PropertyHandler serves the property catalog and the price feed endpoints.
type PropertyHandler struct {
	propertyService services.PropertyServicer
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(propertyService services.PropertyServicer) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService}
}

// CreatePropertyRequest represents the request payload for registering a property.
type CreatePropertyRequest struct {
	Name         string              `json:"name" binding:"required,min=1,max=200"`
	Location     string              `json:"location" binding:"max=200"`
	PropertyType models.PropertyType `json:"property_type" binding:"omitempty,property_type"`
	Currency     string              `json:"currency" binding:"omitempty,iso4217"`
	ExternalRef  string              `json:"external_ref" binding:"max=100"`
}

// RecordPricesRequest represents the request payload for bulk price recording.
type RecordPricesRequest struct {
	Prices []RecordPriceEntry `json:"prices" binding:"required,min=1,max=1000,dive"`
}

// RecordPriceEntry represents a single price entry in a bulk request.
type RecordPriceEntry struct {
	PropertyID string          `json:"property_id" binding:"required,uuid"`
	Price      decimal.Decimal `json:"price" swaggertype:"string" example:"525000.00"`
}

// GetProperty handles retrieving a property with its current price.
// @Summary     Get property
// @Description Get a property and its latest unit price
// @Tags        properties
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Property ID"
// @Success     200 {object} PropertyResponse "Property"
// @Failure     400 {object} ErrorResponse "Invalid ID"
// @Failure     404 {object} ErrorResponse "Property not found"
// @Router      /properties/{id} [get]
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	property, err := h.propertyService.GetProperty(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, PropertyResponse{Property: property})
}

// CreateProperty handles registering a property in the catalog.
// @Summary     Create property
// @Description Register a property (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body CreatePropertyRequest true "Property details"
// @Success     201 {object} PropertyResponse "Property created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/properties [post]
func (h *PropertyHandler) CreateProperty(c *gin.Context) {
	var req CreatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	property, err := h.propertyService.CreateProperty(c.Request.Context(), services.CreatePropertyInput{
		Name:         req.Name,
		Location:     req.Location,
		PropertyType: req.PropertyType,
		Currency:     req.Currency,
		ExternalRef:  req.ExternalRef,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, PropertyResponse{Property: property})
}

// RecordPrices handles bulk price recording for properties.
// @Summary     Record prices
// @Description Bulk record unit prices for properties (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RecordPricesRequest true "Price entries"
// @Success     200 {object} PricesRecordedResponse "Prices recorded count"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Property not found"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/prices [post]
func (h *PropertyHandler) RecordPrices(c *gin.Context) {
	var req RecordPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	entries := make([]services.PriceEntry, len(req.Prices))
	for i, p := range req.Prices {
		entries[i] = services.PriceEntry{PropertyID: p.PropertyID, Price: p.Price}
	}

	count, err := h.propertyService.RecordPrices(c.Request.Context(), entries)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, PricesRecordedResponse{PricesRecorded: count})
}
