package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// CreditReservation holds part of a buyer's credit line for one order until
// delivery converts it to a debit or cancellation releases it.
type CreditReservation struct {
	ID                uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                     `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_credit_reservations_order"`
	BuyerID           uuid.UUID                     `gorm:"column:buyer_id;type:uuid;not null;index"`
	SupplierID        uuid.UUID                     `gorm:"column:supplier_id;type:uuid;not null;index"`
	ReservationAmount decimal.Decimal               `gorm:"column:reservation_amount;type:decimal(20,4);not null"`
	Status            enums.CreditReservationStatus `gorm:"column:status;type:credit_reservation_status_enum;not null;default:'ACTIVE'"`
	ReleaseReason     *string                       `gorm:"column:release_reason"`
	CreatedAt         time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}
