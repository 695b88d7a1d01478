package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// StockReservation is a hold against a SupplierProduct created while an
// order is being fulfilled. Terminal rows are never mutated again.
type StockReservation struct {
	ID                uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	SupplierProductID uuid.UUID                    `gorm:"column:supplier_product_id;type:uuid;not null;index"`
	OrderID           uuid.UUID                    `gorm:"column:order_id;type:uuid;not null;index"`
	Quantity          int                          `gorm:"column:quantity;not null"`
	Status            enums.StockReservationStatus `gorm:"column:status;type:stock_reservation_status_enum;not null;default:'ACTIVE'"`
	CreatedAt         time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}
