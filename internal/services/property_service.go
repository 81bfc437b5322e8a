package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
)

// propertyService owns the property catalog rows and the unit price time series.
type propertyService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPropertyService creates a new PropertyServicer.
func NewPropertyService(db *gorm.DB) PropertyServicer {
	return &propertyService{db: db, now: time.Now}
}

// CreateProperty registers a property in the catalog.
func (s *propertyService) CreateProperty(ctx context.Context, in CreatePropertyInput) (*models.Property, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "property name is required")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "currency must be a 3-letter code")
	}
	propertyType := in.PropertyType
	if propertyType == "" {
		propertyType = models.PropertyTypeResidential
	}

	property := &models.Property{
		Name:         name,
		Location:     in.Location,
		PropertyType: propertyType,
		Currency:     currency,
		ExternalRef:  optional(strings.TrimSpace(in.ExternalRef)),
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(property).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "a property with this external reference already exists")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return property, nil
}

// GetProperty returns a property with its latest price populated when one exists.
func (s *propertyService) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var property models.Property
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&property).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPropertyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	price, err := s.latestPrice(ctx, id)
	if err != nil {
		return nil, err
	}
	property.CurrentPrice = price
	return &property, nil
}

// RecordPrices appends a batch of price observations in one transaction and
// returns how many were written. Every property must exist.
func (s *propertyService) RecordPrices(ctx context.Context, entries []PriceEntry) (int, error) {
	if len(entries) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one price is required")
	}

	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.Price.IsPositive() {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "price must be positive")
		}
		if _, ok := seen[e.PropertyID]; !ok {
			seen[e.PropertyID] = struct{}{}
			ids = append(ids, e.PropertyID)
		}
	}

	var found int64
	if err := s.db.WithContext(ctx).Model(&models.Property{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if found != int64(len(ids)) {
		return 0, apperrors.ErrPropertyNotFound
	}

	recordedAt := s.now().UTC()
	rows := make([]models.PropertyPrice, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.PropertyPrice{
			PropertyID: e.PropertyID,
			Price:      e.Price.Round(2),
			RecordedAt: recordedAt,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if txErr := tx.Create(&rows).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// GetCurrentPrice returns the most recent unit price of a property.
func (s *propertyService) GetCurrentPrice(ctx context.Context, propertyID string) (decimal.Decimal, error) {
	var property models.Property
	if err := s.db.WithContext(ctx).Select("id").Where("id = ?", propertyID).First(&property).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.ErrPropertyNotFound
		}
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	price, err := s.latestPrice(ctx, propertyID)
	if err != nil {
		return decimal.Zero, err
	}
	if price == nil {
		return decimal.Zero, apperrors.ErrPriceUnavailable
	}
	return *price, nil
}

// latestPrice returns nil when the property has no recorded price.
func (s *propertyService) latestPrice(ctx context.Context, propertyID string) (*decimal.Decimal, error) {
	var row models.PropertyPrice
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("recorded_at DESC").Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &row.Price, nil
}
