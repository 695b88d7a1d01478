package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// Shortage names one product line a supplier cannot cover.
type Shortage struct {
	ProductID uuid.UUID `json:"productId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// CheckAvailability reports whether the supplier can cover every order item
// from available stock. Read-only, no locks taken.
func CheckAvailability(ctx context.Context, db *gorm.DB, supplierID uuid.UUID, items []models.OrderItem) (bool, []Shortage, error) {
	if len(items) == 0 {
		return false, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order item is required")
	}

	var products []models.SupplierProduct
	err := db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Find(&products).Error
	if err != nil {
		return false, nil, err
	}

	byProduct := make(map[uuid.UUID]models.SupplierProduct, len(products))
	for _, p := range products {
		byProduct[p.ProductID] = p
	}

	var shortages []Shortage
	for _, item := range items {
		available := 0
		if product, ok := byProduct[item.ProductID]; ok {
			available = product.Available()
		}
		if available < item.Quantity {
			shortages = append(shortages, Shortage{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}
	return len(shortages) == 0, shortages, nil
}

// Reserve places an ACTIVE hold for every order item, all-or-nothing: any
// single shortage fails the whole call and (because it runs inside the
// caller's transaction) nothing is committed. Product rows are touched in
// id-sorted order so concurrent reservations cannot deadlock each other.
func Reserve(ctx context.Context, tx *gorm.DB, orderID, supplierID uuid.UUID, items []models.OrderItem) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order item is required")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
	}

	productIDs := make([]uuid.UUID, 0, len(items))
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
		quantities[item.ProductID] += item.Quantity
	}

	var products []models.SupplierProduct
	err := tx.Where("supplier_id = ? AND product_id IN ?", supplierID, productIDs).
		Find(&products).Error
	if err != nil {
		return err
	}
	if len(products) < len(quantities) {
		held := make(map[uuid.UUID]bool, len(products))
		for _, p := range products {
			held[p.ProductID] = true
		}
		var shortages []Shortage
		for productID, qty := range quantities {
			if !held[productID] {
				shortages = append(shortages, Shortage{ProductID: productID, Requested: qty})
			}
		}
		return insufficientStock(shortages)
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].ID.String() < products[j].ID.String()
	})

	for _, product := range products {
		qty := quantities[product.ProductID]
		// Guarded update: the availability check and the increment are one
		// statement, so a concurrent reservation cannot slip between them.
		res := tx.Model(&models.SupplierProduct{}).
			Where("id = ? AND stock - reserved_stock >= ?", product.ID, qty).
			Updates(map[string]any{
				"reserved_stock": gorm.Expr("reserved_stock + ?", qty),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current models.SupplierProduct
			if err := tx.First(&current, "id = ?", product.ID).Error; err != nil {
				return err
			}
			return insufficientStock([]Shortage{{
				ProductID: product.ProductID,
				Requested: qty,
				Available: current.Available(),
			}})
		}

		reservation := models.StockReservation{
			ID:                uuid.New(),
			SupplierProductID: product.ID,
			OrderID:           orderID,
			Quantity:          qty,
			Status:            enums.StockReservationActive,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return err
		}
	}
	return nil
}

// Release returns every ACTIVE hold on the order to available stock and
// marks the reservations RELEASED. Calling it on an order with no active
// holds is a no-op.
func Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	reservations, err := activeReservations(tx, orderID)
	if err != nil {
		return err
	}
	for _, reservation := range reservations {
		res := tx.Model(&models.SupplierProduct{}).
			Where("id = ? AND reserved_stock >= ?", reservation.SupplierProductID, reservation.Quantity).
			Updates(map[string]any{
				"reserved_stock": gorm.Expr("reserved_stock - ?", reservation.Quantity),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("reserved stock underflow on supplier product %s", reservation.SupplierProductID)
		}
		if err := setReservationStatus(tx, reservation.ID, enums.StockReservationReleased); err != nil {
			return err
		}
	}
	return nil
}

// Deduct consumes the order's ACTIVE holds at delivery: physical stock
// drops by the delivered quantity, the full hold is returned, and each
// reservation ends FULFILLED or PARTIALLY_FULFILLED. partial maps a
// supplier-product id to a delivered quantity lower than its reservation;
// products not in the map are delivered in full.
func Deduct(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, partial map[uuid.UUID]int) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	reservations, err := activeReservations(tx, orderID)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no active stock reservations")
	}

	for _, reservation := range reservations {
		delivered := reservation.Quantity
		if qty, ok := partial[reservation.SupplierProductID]; ok {
			if qty <= 0 || qty > reservation.Quantity {
				return pkgerrors.New(pkgerrors.CodeValidation, "partial quantity out of range")
			}
			delivered = qty
		}

		res := tx.Model(&models.SupplierProduct{}).
			Where("id = ? AND stock >= ? AND reserved_stock >= ?",
				reservation.SupplierProductID, delivered, reservation.Quantity).
			Updates(map[string]any{
				"stock":          gorm.Expr("stock - ?", delivered),
				"reserved_stock": gorm.Expr("reserved_stock - ?", reservation.Quantity),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("stock underflow on supplier product %s", reservation.SupplierProductID)
		}

		status := enums.StockReservationFulfilled
		if delivered < reservation.Quantity {
			status = enums.StockReservationPartiallyFulfilled
		}
		if err := setReservationStatus(tx, reservation.ID, status); err != nil {
			return err
		}
	}
	return nil
}

// Violation is one supplier-product row breaking the stock invariant.
type Violation struct {
	SupplierProductID uuid.UUID
	SupplierID        uuid.UUID
	ProductID         uuid.UUID
	Stock             int
	ReservedStock     int
}

// AuditScan finds rows violating 0 <= reserved_stock <= stock. The
// transaction discipline makes this structurally impossible, so any hit is
// flagged for manual correction rather than fixed automatically.
func AuditScan(ctx context.Context, db *gorm.DB) ([]Violation, error) {
	var rows []models.SupplierProduct
	err := db.WithContext(ctx).
		Where("reserved_stock > stock OR reserved_stock < 0 OR stock < 0").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	violations := make([]Violation, 0, len(rows))
	for _, row := range rows {
		violations = append(violations, Violation{
			SupplierProductID: row.ID,
			SupplierID:        row.SupplierID,
			ProductID:         row.ProductID,
			Stock:             row.Stock,
			ReservedStock:     row.ReservedStock,
		})
	}
	return violations, nil
}

func activeReservations(tx *gorm.DB, orderID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.StockReservationActive).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func setReservationStatus(tx *gorm.DB, id uuid.UUID, status enums.StockReservationStatus) error {
	return tx.Model(&models.StockReservation{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

func insufficientStock(shortages []Shortage) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientResource, "insufficient stock").
		WithDetails(map[string]any{"shortages": shortages})
}
