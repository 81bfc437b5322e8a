package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/reference"
)

// referenceAttempts bounds how many references record draws for one entry
// before giving up on a run of collisions.
const referenceAttempts = 3

// SeedReferences moves refs past every reference already issued today, so a
// restarted process continues the day's sequence instead of reissuing it.
func SeedReferences(ctx context.Context, db *gorm.DB, refs *reference.Generator) error {
	seq, err := lastIssuedSequence(db.WithContext(ctx), refs.Prefix())
	if err != nil {
		return err
	}
	refs.AdvanceTo(seq)
	logger.Named("trading").Infow("Reference sequence seeded", "prefix", refs.Prefix(), "last_issued", seq)
	return nil
}

// lastIssuedSequence returns the highest sequence stored under prefix, or 0.
func lastIssuedSequence(db *gorm.DB, prefix string) (int64, error) {
	var last string
	err := db.Model(&models.InvestmentTransaction{}).Unscoped().
		Where("reference LIKE ?", prefix+"%").
		Select("COALESCE(MAX(reference), '')").
		Scan(&last).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	seq, _ := reference.Sequence(last)
	return seq, nil
}

// idempotencyKeyRecorded reports whether another writer already stored key.
func idempotencyKeyRecorded(db *gorm.DB, key *string) (bool, error) {
	if key == nil {
		return false, nil
	}
	var t models.InvestmentTransaction
	err := db.Unscoped().Select("id").Where("idempotency_key = ?", *key).First(&t).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return true, nil
}
