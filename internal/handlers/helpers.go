package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/middleware"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/uuid"
)

const idempotencyHeader = "Idempotency-Key"

// getCaller extracts the authenticated principal from the Gin context.
// Returns ErrUnauthorized if not present.
func getCaller(c *gin.Context) (services.Caller, error) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		return services.Caller{}, apperrors.ErrUnauthorized
	}
	role, _ := c.Get(middleware.ContextRole)
	r, _ := role.(models.Role)
	if r == "" {
		r = models.RoleInvestor
	}
	return services.Caller{UserID: userID, Role: r}, nil
}

// parsePathID reads a UUID path parameter.
func parsePathID(c *gin.Context, param string) (string, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+param)
	}
	return id, nil
}

// idempotencyKey returns the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) (string, error) {
	key := c.GetHeader(idempotencyHeader)
	if len(key) > 255 {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Idempotency-Key must be at most 255 characters")
	}
	return key, nil
}

// respondWithError writes err in the standard error envelope.
func respondWithError(c *gin.Context, err error) {
	middleware.RespondError(c, err)
}

// ErrorDetail represents the inner error object in an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
