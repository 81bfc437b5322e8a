package handlers

import "github.com/Pranjal0410/real-estate-project-sub000/internal/models"

// TransactionResponse wraps a single ledger entry.
type TransactionResponse struct {
	Transaction *models.InvestmentTransaction `json:"transaction"`
}

// PortfolioResponse wraps a single portfolio.
type PortfolioResponse struct {
	Portfolio *models.Portfolio `json:"portfolio"`
}

// PropertyResponse wraps a single property.
type PropertyResponse struct {
	Property *models.Property `json:"property"`
}

// ProfileResponse wraps the authenticated user's profile.
type ProfileResponse struct {
	User UserResponse `json:"user"`
}

type PricesRecordedResponse struct {
	PricesRecorded int `json:"prices_recorded"`
}
