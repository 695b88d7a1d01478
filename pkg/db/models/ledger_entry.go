package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// LedgerEntry is one immutable row of the buyer-supplier debt ledger.
// Entries are hash-chained per (buyer, supplier) pair: Hash covers the
// entry's own fields plus PreviousHash, so any mutation or reorder breaks
// the chain. BalanceAfter is a cache; the fold of all entries is
// authoritative.
type LedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID        uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index:ix_ledger_entries_pair"`
	SupplierID     uuid.UUID             `gorm:"column:supplier_id;type:uuid;not null;index:ix_ledger_entries_pair"`
	OrderID        *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	EntryType      enums.LedgerEntryType `gorm:"column:entry_type;type:ledger_entry_type_enum;not null"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:decimal(20,4);not null"`
	BalanceAfter   decimal.Decimal       `gorm:"column:balance_after;type:decimal(20,4);not null"`
	Hash           string                `gorm:"column:hash;not null"`
	PreviousHash   string                `gorm:"column:previous_hash;not null"`
	DueDate        *time.Time            `gorm:"column:due_date"`
	IdempotencyKey string                `gorm:"column:idempotency_key;not null;uniqueIndex:ux_ledger_entries_idempotency_key"`
	Metadata       types.JSONMap         `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
