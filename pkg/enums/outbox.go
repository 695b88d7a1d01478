package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateVendorOffer   OutboxAggregateType = "vendor_offer"
	AggregateLedgerEntry   OutboxAggregateType = "ledger_entry"
	AggregateCreditAccount OutboxAggregateType = "credit_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateVendorOffer,
	AggregateLedgerEntry,
	AggregateCreditAccount,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum in Postgres.
type OutboxEventType string

const (
	EventOrderBroadcast   OutboxEventType = "order.broadcast"
	EventOrderAssigned    OutboxEventType = "order.assigned"
	EventOrderConfirmed   OutboxEventType = "order.confirmed"
	EventOrderDelivered   OutboxEventType = "order.delivered"
	EventOrderReturned    OutboxEventType = "order.returned"
	EventOrderCancelled   OutboxEventType = "order.cancelled"
	EventOrderFailed      OutboxEventType = "order.failed"
	EventOfferAccepted    OutboxEventType = "offer.accepted"
	EventOfferRejected    OutboxEventType = "offer.rejected"
	EventOfferTimedOut    OutboxEventType = "offer.timed_out"
	EventLedgerInvariant  OutboxEventType = "ledger.invariant_violation"
	EventStockInvariant   OutboxEventType = "stock.invariant_violation"
	EventSupplierMessage  OutboxEventType = "supplier.message"
	EventBuyerMessage     OutboxEventType = "buyer.message"
	EventCreditReverted   OutboxEventType = "credit.debit_reversed"
	EventCreditConverted  OutboxEventType = "credit.reservation_converted"
	EventCreditMismatched OutboxEventType = "credit.amount_mismatch"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderBroadcast,
	EventOrderAssigned,
	EventOrderConfirmed,
	EventOrderDelivered,
	EventOrderReturned,
	EventOrderCancelled,
	EventOrderFailed,
	EventOfferAccepted,
	EventOfferRejected,
	EventOfferTimedOut,
	EventLedgerInvariant,
	EventStockInvariant,
	EventSupplierMessage,
	EventBuyerMessage,
	EventCreditReverted,
	EventCreditConverted,
	EventCreditMismatched,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
