package enums

import "fmt"

// OrderStatus tracks the lifecycle of a buy-side order. The names are part
// of the external contract and must be rendered exactly as stored.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusValidated      OrderStatus = "VALIDATED"
	OrderStatusCreditReserved OrderStatus = "CREDIT_RESERVED"
	OrderStatusBroadcasting   OrderStatus = "BROADCASTING"
	OrderStatusAssigned       OrderStatus = "ASSIGNED"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusReturned       OrderStatus = "RETURNED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusFailed         OrderStatus = "FAILED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusValidated,
	OrderStatusCreditReserved,
	OrderStatusBroadcasting,
	OrderStatusAssigned,
	OrderStatusConfirmed,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusReturned,
	OrderStatusCancelled,
	OrderStatusFailed,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this status.
// DELIVERED keeps its single documented exit to RETURNED.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusReturned, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
