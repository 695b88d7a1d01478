package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditAccount is the credit line a supplier extends to one buyer. Every
// (buyer, supplier) pair gets at most one row.
type CreditAccount struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_credit_accounts_buyer_supplier"`
	SupplierID    uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_credit_accounts_buyer_supplier"`
	CreditLimit   decimal.Decimal `gorm:"column:credit_limit;type:decimal(20,4);not null"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	BlockedReason *string         `gorm:"column:blocked_reason"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
