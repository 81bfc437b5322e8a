package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/pagination"
)

// Caller identifies the authenticated principal an operation runs on behalf of.
type Caller struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// CanRead reports whether the caller may read a resource owned by ownerID.
func (c Caller) CanRead(ownerID string) bool {
	return c.UserID == ownerID || c.Role.CanReadAllPortfolios()
}

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string, role models.Role) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
}

// PriceProvider supplies the current unit price of a property.
type PriceProvider interface {
	GetCurrentPrice(ctx context.Context, propertyID string) (decimal.Decimal, error)
}

// PriceEntry is one observation recorded into the price time series.
type PriceEntry struct {
	PropertyID string
	Price      decimal.Decimal
}

// CreatePropertyInput holds the catalog fields of a new property.
type CreatePropertyInput struct {
	Name         string
	Location     string
	PropertyType models.PropertyType
	Currency     string
	ExternalRef  string
}

// PropertyServicer defines the contract for the property catalog and pricing.
type PropertyServicer interface {
	PriceProvider
	CreateProperty(ctx context.Context, in CreatePropertyInput) (*models.Property, error)
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	RecordPrices(ctx context.Context, entries []PriceEntry) (int, error)
}

// UpdatePortfolioInput holds the optional fields of a portfolio update.
// Nil fields are left unchanged.
type UpdatePortfolioInput struct {
	Name        *string
	Description *string
	RiskProfile *models.RiskProfile
}

// PortfolioServicer defines the contract for the portfolio aggregate.
type PortfolioServicer interface {
	CreatePortfolio(ctx context.Context, caller Caller, name, description string, riskProfile models.RiskProfile) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, caller Caller, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, caller Caller, page pagination.PageRequest) (*pagination.PageResponse[models.Portfolio], error)
	UpdatePortfolio(ctx context.Context, caller Caller, id string, in UpdatePortfolioInput) (*models.Portfolio, error)
	Recalculate(ctx context.Context, caller Caller, id string) (*models.Portfolio, error)
	ClosePortfolio(ctx context.Context, caller Caller, id string) (*models.Portfolio, error)
	GetHoldings(ctx context.Context, caller Caller, id string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error)
	GetValuations(ctx context.Context, caller Caller, id string, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioValuation], error)
}

// BuyCommand requests the purchase of quantity units of a property.
type BuyCommand struct {
	PortfolioID    string
	PropertyID     string
	Quantity       decimal.Decimal
	IdempotencyKey string
}

// SellCommand requests the disposal of quantity units from a holding.
type SellCommand struct {
	PortfolioID    string
	HoldingID      string
	Quantity       decimal.Decimal
	IdempotencyKey string
}

// TransferCommand requests moving quantity units of a holding to another portfolio.
type TransferCommand struct {
	FromPortfolioID string
	ToPortfolioID   string
	HoldingID       string
	Quantity        decimal.Decimal
	IdempotencyKey  string
}

// DividendCommand requests recording a cash distribution on a holding.
type DividendCommand struct {
	PortfolioID    string
	HoldingID      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// HistoryFilter holds optional filter parameters for transaction history.
type HistoryFilter struct {
	Type   *models.TransactionType
	Status *models.TransactionStatus
}

// TradingServicer defines the contract of the transaction orchestrator.
type TradingServicer interface {
	Buy(ctx context.Context, caller Caller, cmd BuyCommand) (*models.InvestmentTransaction, error)
	Sell(ctx context.Context, caller Caller, cmd SellCommand) (*models.InvestmentTransaction, error)
	Transfer(ctx context.Context, caller Caller, cmd TransferCommand) (*models.InvestmentTransaction, error)
	RecordDividend(ctx context.Context, caller Caller, cmd DividendCommand) (*models.InvestmentTransaction, error)
	Reverse(ctx context.Context, caller Caller, transactionID string) (*models.InvestmentTransaction, error)
	GetHistory(ctx context.Context, caller Caller, portfolioID string, page pagination.PageRequest, filter HistoryFilter) (*pagination.PageResponse[models.InvestmentTransaction], error)
	GetTransaction(ctx context.Context, caller Caller, id string) (*models.InvestmentTransaction, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]any)
}
