package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderBroadcastEvent is emitted when an order opens for bidding.
type OrderBroadcastEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	EligibleVendors []uuid.UUID     `json:"eligible_vendors"`
	BiddingDeadline time.Time       `json:"bidding_deadline"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// OrderAssignedEvent is emitted when the winner decision commits.
type OrderAssignedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	WinningBidID  uuid.UUID       `json:"winning_bid_id"`
	PriceQuote    decimal.Decimal `json:"price_quote"`
	ReservedUntil *time.Time      `json:"reserved_until,omitempty"`
}

// OrderConfirmedEvent signals the assigned supplier accepted the order.
type OrderConfirmedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
}

// OrderDeliveredEvent surfaces the settled amounts at delivery.
type OrderDeliveredEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	DebitAmount   decimal.Decimal `json:"debit_amount"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	DeliveredAt   time.Time       `json:"delivered_at"`
}

// OrderReturnedEvent is emitted when a delivered order comes back.
type OrderReturnedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	ReversalEntryID uuid.UUID `json:"reversal_entry_id"`
	Reason          string    `json:"reason,omitempty"`
}

// OrderCancelledEvent is emitted on any pre-delivery cancellation.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	BuyerID     uuid.UUID  `json:"buyer_id"`
	SupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
	CancelledAt time.Time  `json:"cancelled_at"`
	Reason      string     `json:"reason,omitempty"`
}

// OrderFailedEvent reports a terminal failure with its recorded cause.
type OrderFailedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	FailureReason string    `json:"failure_reason"`
}

// OfferAcceptedEvent is emitted for the winning offer.
type OfferAcceptedEvent struct {
	OfferID    uuid.UUID       `json:"offer_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	SupplierID uuid.UUID       `json:"supplier_id"`
	Score      decimal.Decimal `json:"score"`
}

// OfferRejectedEvent is emitted for each losing offer.
type OfferRejectedEvent struct {
	OfferID    uuid.UUID `json:"offer_id"`
	OrderID    uuid.UUID `json:"order_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
}

// OfferTimedOutEvent is emitted when a bid window closes on a pending offer.
type OfferTimedOutEvent struct {
	OfferID    uuid.UUID `json:"offer_id"`
	OrderID    uuid.UUID `json:"order_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	DeadlineAt time.Time `json:"deadline_at"`
}

// LedgerInvariantViolationEvent raises an alarm when a hash chain or balance
// check fails verification.
type LedgerInvariantViolationEvent struct {
	BuyerID    uuid.UUID `json:"buyer_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	EntryID    uuid.UUID `json:"entry_id"`
	Detail     string    `json:"detail"`
}

// StockInvariantViolationEvent raises an alarm when the inventory audit finds
// reserved stock exceeding physical stock.
type StockInvariantViolationEvent struct {
	SupplierID    uuid.UUID `json:"supplier_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Stock         int       `json:"stock"`
	ReservedStock int       `json:"reserved_stock"`
}

// SupplierMessageEvent carries a supplier-facing notification.
type SupplierMessageEvent struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Kind       string    `json:"kind"`
	Body       string    `json:"body,omitempty"`
}

// BuyerMessageEvent carries a buyer-facing notification.
type BuyerMessageEvent struct {
	BuyerID uuid.UUID `json:"buyer_id"`
	OrderID uuid.UUID `json:"order_id"`
	Kind    string    `json:"kind"`
	Body    string    `json:"body,omitempty"`
}

// CreditDebitReversedEvent is emitted when a delivered debit is reversed.
type CreditDebitReversedEvent struct {
	BuyerID         uuid.UUID       `json:"buyer_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	OriginalEntryID uuid.UUID       `json:"original_entry_id"`
	ReversalEntryID uuid.UUID       `json:"reversal_entry_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// CreditReservationConvertedEvent is emitted when a reservation becomes a debit.
type CreditReservationConvertedEvent struct {
	BuyerID       uuid.UUID       `json:"buyer_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	ReservationID uuid.UUID       `json:"reservation_id"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// CreditAmountMismatchEvent reports a conversion whose final amount differed
// from the reserved amount.
type CreditAmountMismatchEvent struct {
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SupplierID     uuid.UUID       `json:"supplier_id"`
	ReservationID  uuid.UUID       `json:"reservation_id"`
	ReservedAmount decimal.Decimal `json:"reserved_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}
