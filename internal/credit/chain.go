package credit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// genesisHash seeds the previous_hash of the first entry in every
// buyer-supplier chain.
const genesisHash = "GENESIS"

// entryHash derives the tamper-evident hash for one ledger entry. Amount is
// fixed to four decimal places so the digest does not depend on how the
// decimal happens to be stored.
func entryHash(idempotencyKey string, buyerID, supplierID uuid.UUID, amount decimal.Decimal, entryType enums.LedgerEntryType, previousHash string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		idempotencyKey,
		buyerID.String(),
		supplierID.String(),
		amount.StringFixed(4),
		string(entryType),
		previousHash,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// ChainReport is the result of walking one buyer-supplier ledger chain.
type ChainReport struct {
	BuyerID    uuid.UUID       `json:"buyerId"`
	SupplierID uuid.UUID       `json:"supplierId"`
	Valid      bool            `json:"valid"`
	Length     int             `json:"length"`
	Balance    decimal.Decimal `json:"balance"`
	BrokenAt   *uuid.UUID      `json:"brokenAt,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// VerifyChain walks the pair's ledger from GENESIS, recomputing every hash
// and the running balance. Any recomputed hash that disagrees with the
// stored one, a broken link, or a balance drift marks the chain invalid at
// the offending entry.
func VerifyChain(ctx context.Context, db *gorm.DB, buyerID, supplierID uuid.UUID) (*ChainReport, error) {
	var entries []models.LedgerEntry
	err := db.WithContext(ctx).
		Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	report := &ChainReport{
		BuyerID:    buyerID,
		SupplierID: supplierID,
		Valid:      true,
		Balance:    decimal.Zero,
	}
	if len(entries) == 0 {
		return report, nil
	}

	byPrevious := make(map[string]models.LedgerEntry, len(entries))
	for _, entry := range entries {
		if _, dup := byPrevious[entry.PreviousHash]; dup {
			id := entry.ID
			report.Valid = false
			report.BrokenAt = &id
			report.Detail = "chain forks: previous hash referenced twice"
			return report, nil
		}
		byPrevious[entry.PreviousHash] = entry
	}

	balance := decimal.Zero
	previous := genesisHash
	for {
		entry, ok := byPrevious[previous]
		if !ok {
			break
		}
		id := entry.ID

		want := entryHash(entry.IdempotencyKey, entry.BuyerID, entry.SupplierID, entry.Amount, entry.EntryType, entry.PreviousHash)
		if entry.Hash != want {
			report.Valid = false
			report.BrokenAt = &id
			report.Detail = "stored hash does not match recomputed hash"
			return report, nil
		}

		if entry.EntryType.AddsToBalance() {
			balance = balance.Add(entry.Amount)
		} else {
			balance = balance.Sub(entry.Amount)
		}
		if !entry.BalanceAfter.Equal(balance) {
			report.Valid = false
			report.BrokenAt = &id
			report.Detail = "stored balance does not match running balance"
			return report, nil
		}

		report.Length++
		previous = entry.Hash
	}

	if report.Length != len(entries) {
		report.Valid = false
		report.Detail = "entries unreachable from genesis"
		return report, nil
	}
	report.Balance = balance
	return report, nil
}
