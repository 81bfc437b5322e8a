package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/concurrency"
	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/models"
)

const maxIdempotencyKeyLength = 255

// idempotencyScope is what a key was first used for. A key replayed against
// a different scope is a client error, not a replay.
type idempotencyScope struct {
	Type        models.TransactionType
	PortfolioID string
	UserID      string
}

func (sc idempotencyScope) matches(t *models.InvestmentTransaction) bool {
	return t.Type == sc.Type && t.PortfolioID == sc.PortfolioID && t.UserID == sc.UserID
}

// idempotencyGuard gives commands exactly-once semantics per client key.
// Within the process the key is serialized through the lock registry; across
// processes the unique index on investment_transactions.idempotency_key makes
// the insert the arbiter, and a losing insert resolves to the winner's row.
type idempotencyGuard struct {
	db   *gorm.DB
	ctrl *concurrency.Controller
}

func newIdempotencyGuard(db *gorm.DB, ctrl *concurrency.Controller) *idempotencyGuard {
	return &idempotencyGuard{db: db, ctrl: ctrl}
}

// Do runs exec unless key was already recorded, in which case the recorded
// transaction is returned unchanged. An empty key always runs exec.
func (g *idempotencyGuard) Do(
	ctx context.Context,
	key string,
	scope idempotencyScope,
	exec func(ctx context.Context) (*models.InvestmentTransaction, error),
) (*models.InvestmentTransaction, error) {
	if key == "" {
		return exec(ctx)
	}
	if len(key) > maxIdempotencyKeyLength {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "idempotency key is too long")
	}

	release, err := g.ctrl.Lock(ctx, concurrency.IdempotencyKey(key))
	if err != nil {
		return nil, err
	}
	defer release()

	if prior, err := g.find(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return g.replay(key, scope, prior)
	}

	txn, err := exec(ctx)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	// Lost the insert race to another process holding the same key.
	prior, findErr := g.find(ctx, key)
	if findErr != nil {
		return nil, findErr
	}
	if prior == nil {
		return nil, err
	}
	return g.replay(key, scope, prior)
}

func (g *idempotencyGuard) replay(key string, scope idempotencyScope, prior *models.InvestmentTransaction) (*models.InvestmentTransaction, error) {
	if !scope.matches(prior) {
		return nil, apperrors.ErrIdempotencyKeyReused
	}
	logger.Named("trading").Infow("Idempotent replay",
		"idempotency_key", key,
		"reference", prior.Reference,
		"type", prior.Type,
	)
	return prior, nil
}

func (g *idempotencyGuard) find(ctx context.Context, key string) (*models.InvestmentTransaction, error) {
	var t models.InvestmentTransaction
	err := g.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &t, nil
}
