package enums

import "fmt"

// StockReservationStatus tracks a hold against physical inventory.
type StockReservationStatus string

const (
	StockReservationActive             StockReservationStatus = "ACTIVE"
	StockReservationReleased           StockReservationStatus = "RELEASED"
	StockReservationFulfilled          StockReservationStatus = "FULFILLED"
	StockReservationPartiallyFulfilled StockReservationStatus = "PARTIALLY_FULFILLED"
)

var validStockReservationStatuses = []StockReservationStatus{
	StockReservationActive,
	StockReservationReleased,
	StockReservationFulfilled,
	StockReservationPartiallyFulfilled,
}

// IsTerminal reports whether the reservation can no longer change.
func (s StockReservationStatus) IsTerminal() bool {
	return s != StockReservationActive
}

// IsValid reports whether the value is a known StockReservationStatus.
func (s StockReservationStatus) IsValid() bool {
	for _, candidate := range validStockReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockReservationStatus converts raw input into a StockReservationStatus.
func ParseStockReservationStatus(value string) (StockReservationStatus, error) {
	for _, candidate := range validStockReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock reservation status %q", value)
}
