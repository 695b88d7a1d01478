package suppliers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// Repository handles supplier persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to supplier operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new supplier row.
func (r *Repository) Create(ctx context.Context, supplier *models.Supplier) (*models.Supplier, error) {
	if supplier == nil {
		return nil, errors.New("supplier is required")
	}
	if supplier.ID == uuid.Nil {
		supplier.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(supplier).Error; err != nil {
		return nil, err
	}
	return supplier, nil
}

// FindByID loads a supplier by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).First(&supplier, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		}
		return nil, err
	}
	return &supplier, nil
}

// ListActiveVerified returns the suppliers that can receive broadcasts.
func (r *Repository) ListActiveVerified(ctx context.Context) ([]models.Supplier, error) {
	var rows []models.Supplier
	err := r.db.WithContext(ctx).
		Where("active = ? AND verified = ?", true, true).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// FindByIDsTx loads the given suppliers inside the caller's transaction.
func (r *Repository) FindByIDsTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Supplier, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var rows []models.Supplier
	err := tx.Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// IncrementAssignedTx bumps the assigned-orders counter when a supplier wins.
func (r *Repository) IncrementAssignedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Supplier{}).
		Where("id = ?", id).
		Update("assigned_orders", gorm.Expr("assigned_orders + 1")).Error
}

// IncrementCompletedTx bumps the completed-orders counter at delivery.
func (r *Repository) IncrementCompletedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.Supplier{}).
		Where("id = ?", id).
		Update("completed_orders", gorm.Expr("completed_orders + 1")).Error
}
