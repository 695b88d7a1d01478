package enums

import "fmt"

// LedgerEntryType classifies an immutable credit ledger entry.
type LedgerEntryType string

const (
	LedgerEntryDebit      LedgerEntryType = "DEBIT"
	LedgerEntryCredit     LedgerEntryType = "CREDIT"
	LedgerEntryAdjustment LedgerEntryType = "ADJUSTMENT"
	LedgerEntryReversal   LedgerEntryType = "REVERSAL"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryDebit,
	LedgerEntryCredit,
	LedgerEntryAdjustment,
	LedgerEntryReversal,
}

// AddsToBalance reports whether entries of this type increase the debt a
// buyer owes the supplier. DEBIT and ADJUSTMENT add; CREDIT and REVERSAL
// subtract.
func (t LedgerEntryType) AddsToBalance() bool {
	return t == LedgerEntryDebit || t == LedgerEntryAdjustment
}

// IsValid reports whether the value is a known LedgerEntryType.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
