package models

import (
	"time"

	"github.com/google/uuid"
)

// SupplierProduct tracks physical stock and active holds per
// (supplier, product). Invariant: 0 <= reserved_stock <= stock.
type SupplierProduct struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID    uuid.UUID `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_supplier_products_supplier_product"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_supplier_products_supplier_product"`
	Stock         int       `gorm:"column:stock;not null;default:0"`
	ReservedStock int       `gorm:"column:reserved_stock;not null;default:0"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the quantity new reservations can still claim.
func (p SupplierProduct) Available() int {
	return p.Stock - p.ReservedStock
}
