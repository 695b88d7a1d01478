package credit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// Repository handles credit account persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to credit account operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateAccount opens a credit line between a buyer and a supplier.
func (r *Repository) CreateAccount(ctx context.Context, account *models.CreditAccount) (*models.CreditAccount, error) {
	if account == nil {
		return nil, errors.New("account is required")
	}
	if account.CreditLimit.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be positive")
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// FindAccount loads the account for one buyer-supplier pair.
func (r *Repository) FindAccount(ctx context.Context, buyerID, supplierID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no credit account for buyer and supplier")
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateLimit changes the account's credit ceiling. Lowering it below the
// currently committed amount is allowed; the account just cannot take new
// reservations until the balance drops.
func (r *Repository) UpdateLimit(ctx context.Context, accountID uuid.UUID, limit decimal.Decimal) error {
	if limit.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.CreditAccount{}).
		Where("id = ?", accountID).
		Update("credit_limit", limit)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
	}
	return nil
}

// SetBlocked blocks or unblocks the account. Blocked accounts refuse new
// reservations but existing obligations still settle.
func (r *Repository) SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool, reason string) error {
	updates := map[string]any{"is_active": !blocked}
	if blocked {
		updates["blocked_reason"] = reason
	} else {
		updates["blocked_reason"] = nil
	}
	res := r.db.WithContext(ctx).Model(&models.CreditAccount{}).
		Where("id = ?", accountID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "credit account not found")
	}
	return nil
}
