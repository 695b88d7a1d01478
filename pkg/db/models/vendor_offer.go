package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// VendorOffer is a supplier's bid on an order. One row per
// (order, supplier) pair; repeat submissions update in place.
type VendorOffer struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_vendor_offers_order_supplier"`
	SupplierID     uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_vendor_offers_order_supplier"`
	PriceQuote     decimal.Decimal   `gorm:"column:price_quote;type:decimal(20,4);not null"`
	DeliveryEtaRaw string            `gorm:"column:delivery_eta_raw;not null;default:''"`
	EtaHours       float64           `gorm:"column:eta_hours;not null"`
	StockConfirmed bool              `gorm:"column:stock_confirmed;not null;default:false"`
	Status         enums.OfferStatus `gorm:"column:status;type:offer_status_enum;not null;default:'PENDING'"`
	SubmittedAt    time.Time         `gorm:"column:submitted_at;not null"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
