package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// SetStock creates or updates the supplier's stock level for one product.
// Lowering stock below the quantity already held by active reservations is
// rejected so the ledger invariant keeps holding.
func SetStock(ctx context.Context, db *gorm.DB, supplierID, productID uuid.UUID, stock int) (*models.SupplierProduct, error) {
	if supplierID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplierId and productId are required")
	}
	if stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}

	var row models.SupplierProduct
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("supplier_id = ? AND product_id = ?", supplierID, productID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.SupplierProduct{
				ID:         uuid.New(),
				SupplierID: supplierID,
				ProductID:  productID,
				Stock:      stock,
			}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}

		res := tx.Model(&models.SupplierProduct{}).
			Where("id = ? AND reserved_stock <= ?", row.ID, stock).
			Updates(map[string]any{"stock": stock, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stock cannot drop below reserved quantity").
				WithDetails(map[string]any{"reserved_stock": row.ReservedStock})
		}
		row.Stock = stock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// StockForSupplier lists the supplier's stock rows.
func StockForSupplier(ctx context.Context, db *gorm.DB, supplierID uuid.UUID) ([]models.SupplierProduct, error) {
	var rows []models.SupplierProduct
	err := db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}
