package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// Order represents a buy-side order moving through the fulfillment pipeline.
// SupplierID stays nil until a winner is assigned.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	SupplierID       *uuid.UUID           `gorm:"column:supplier_id;type:uuid"`
	TotalAmount      decimal.Decimal      `gorm:"column:total_amount;type:decimal(20,4);not null"`
	Status           enums.OrderStatus    `gorm:"column:status;type:order_status_enum;not null;default:'CREATED'"`
	FailureReason    *string              `gorm:"column:failure_reason"`
	BiddingDeadline  time.Time            `gorm:"column:bidding_deadline;not null"`
	DeliveryLocation types.GeographyPoint `gorm:"column:delivery_location"`
	Items            []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Offers           []VendorOffer        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transitions      []OrderTransition    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
