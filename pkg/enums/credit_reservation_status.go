package enums

import "fmt"

// CreditReservationStatus tracks a hold against a buyer's credit line.
type CreditReservationStatus string

const (
	CreditReservationActive           CreditReservationStatus = "ACTIVE"
	CreditReservationReleased         CreditReservationStatus = "RELEASED"
	CreditReservationConvertedToDebit CreditReservationStatus = "CONVERTED_TO_DEBIT"
)

var validCreditReservationStatuses = []CreditReservationStatus{
	CreditReservationActive,
	CreditReservationReleased,
	CreditReservationConvertedToDebit,
}

// IsTerminal reports whether the reservation can no longer change.
func (s CreditReservationStatus) IsTerminal() bool {
	return s != CreditReservationActive
}

// IsValid reports whether the value is a known CreditReservationStatus.
func (s CreditReservationStatus) IsValid() bool {
	for _, candidate := range validCreditReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCreditReservationStatus converts raw input into a CreditReservationStatus.
func ParseCreditReservationStatus(value string) (CreditReservationStatus, error) {
	for _, candidate := range validCreditReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit reservation status %q", value)
}
