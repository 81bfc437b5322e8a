package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates an investor with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return CreateTestUserWithRole(t, db, models.RoleInvestor)
}

// CreateTestUserWithRole creates a user with the given role and a unique email.
func CreateTestUserWithRole(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email, role)
}

// CreateTestUserWithEmail creates a user with the given email and role.
// The password is always "password123".
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestProperty creates an active property priced at price.
func CreateTestProperty(t *testing.T, db *gorm.DB, price string) *models.Property {
	t.Helper()

	property := &models.Property{
		Name:         fmt.Sprintf("Test Property %d", nextID()),
		Location:     "Springfield",
		PropertyType: models.PropertyTypeResidential,
		Currency:     "USD",
		IsActive:     true,
	}
	if err := db.Create(property).Error; err != nil {
		t.Fatalf("failed to create test property: %v", err)
	}
	SetTestPrice(t, db, property.ID, price)
	return property
}

// SetTestPrice records price as the newest price of a property.
func SetTestPrice(t *testing.T, db *gorm.DB, propertyID, price string) {
	t.Helper()

	// Strictly increasing timestamps keep the latest price unambiguous.
	row := &models.PropertyPrice{
		PropertyID: propertyID,
		Price:      decimal.RequireFromString(price),
		RecordedAt: time.Now().UTC().Add(time.Duration(nextID()) * time.Millisecond),
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to record test price: %v", err)
	}
}

// CreateTestPortfolio creates an empty active portfolio for the user.
func CreateTestPortfolio(t *testing.T, db *gorm.DB, userID string) *models.Portfolio {
	t.Helper()

	portfolio := &models.Portfolio{
		Versioned:         models.Versioned{Version: 1},
		UserID:            userID,
		Name:              fmt.Sprintf("Test Portfolio %d", nextID()),
		RiskProfile:       models.RiskModerate,
		Status:            models.PortfolioActive,
		TotalInvested:     decimal.Zero,
		TotalCurrentValue: decimal.Zero,
		UnrealizedGains:   decimal.Zero,
		RealizedGains:     decimal.Zero,
	}
	if err := db.Create(portfolio).Error; err != nil {
		t.Fatalf("failed to create test portfolio: %v", err)
	}
	return portfolio
}

// ReloadPortfolio reads the current state of a portfolio.
func ReloadPortfolio(t *testing.T, db *gorm.DB, id string) *models.Portfolio {
	t.Helper()

	var p models.Portfolio
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		t.Fatalf("failed to reload portfolio: %v", err)
	}
	return &p
}

// ReloadHolding reads the current state of a holding.
func ReloadHolding(t *testing.T, db *gorm.DB, id string) *models.Holding {
	t.Helper()

	var h models.Holding
	if err := db.Where("id = ?", id).First(&h).Error; err != nil {
		t.Fatalf("failed to reload holding: %v", err)
	}
	return &h
}
