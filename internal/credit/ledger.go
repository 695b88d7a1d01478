package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// AmountMismatch reports a delivery conversion whose final amount differs
// from what was reserved at decision time. The conversion still proceeds
// with the final amount; the caller flags the discrepancy.
type AmountMismatch struct {
	OrderID  uuid.UUID       `json:"orderId"`
	Reserved decimal.Decimal `json:"reserved"`
	Final    decimal.Decimal `json:"final"`
}

// lockAccountTx loads the pair's credit account and takes a write lock on
// it for the rest of the transaction. The lock is a guarded bump of the
// account row, which serializes concurrent reservations against the same
// account on any backend.
func lockAccountTx(tx *gorm.DB, buyerID, supplierID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := tx.Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no credit account for buyer and supplier")
	}
	if err != nil {
		return nil, err
	}
	err = tx.Model(&models.CreditAccount{}).
		Where("id = ?", account.ID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// chainHeadTx returns the newest entry in the pair's chain, found by
// linkage: the head is the only entry whose hash nothing else references.
func chainHeadTx(tx *gorm.DB, buyerID, supplierID uuid.UUID) (*models.LedgerEntry, error) {
	var head models.LedgerEntry
	err := tx.
		Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
		Where("hash NOT IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.LedgerEntry{}).
			Select("previous_hash").
			Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID)).
		First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &head, nil
}

func activeReservationTotalTx(tx *gorm.DB, buyerID, supplierID uuid.UUID) (decimal.Decimal, error) {
	var rows []models.CreditReservation
	err := tx.Where("buyer_id = ? AND supplier_id = ? AND status = ?",
		buyerID, supplierID, enums.CreditReservationActive).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.ReservationAmount)
	}
	return total, nil
}

// AvailableTx computes the credit the buyer can still commit against the
// supplier: the account limit minus outstanding ledger balance minus every
// ACTIVE reservation. Must run inside a transaction that holds the account
// lock when the result feeds a write.
func AvailableTx(tx *gorm.DB, account *models.CreditAccount) (decimal.Decimal, error) {
	head, err := chainHeadTx(tx, account.BuyerID, account.SupplierID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	if head != nil {
		balance = head.BalanceAfter
	}
	reserved, err := activeReservationTotalTx(tx, account.BuyerID, account.SupplierID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.CreditLimit.Sub(balance).Sub(reserved), nil
}

// Available is the read-only variant for API exposure.
func Available(ctx context.Context, db *gorm.DB, buyerID, supplierID uuid.UUID) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.CreditAccount
		err := tx.Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
			First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no credit account for buyer and supplier")
		}
		if err != nil {
			return err
		}
		available, err = AvailableTx(tx, &account)
		return err
	})
	return available, err
}

// ReserveTx places a hold for the order against the buyer's credit line.
// Calling it again for the same order returns the existing ACTIVE hold, so
// a retried decision cannot double-reserve.
func ReserveTx(tx *gorm.DB, orderID, buyerID, supplierID uuid.UUID, amount decimal.Decimal) (*models.CreditReservation, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation amount must be positive")
	}

	var existing models.CreditReservation
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.CreditReservationActive).
		First(&existing).Error
	if err == nil {
		if existing.SupplierID != supplierID || existing.BuyerID != buyerID {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already holds credit for a different pair").
				WithDetails(map[string]any{
					"heldSupplierId": existing.SupplierID.String(),
				})
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account, err := lockAccountTx(tx, buyerID, supplierID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		err := pkgerrors.New(pkgerrors.CodeStateConflict, "credit account is blocked")
		if account.BlockedReason != nil {
			err = err.WithDetails(map[string]any{"blockedReason": *account.BlockedReason})
		}
		return nil, err
	}

	available, err := AvailableTx(tx, account)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(available) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientResource, "insufficient credit").
			WithDetails(map[string]any{
				"requested": amount.String(),
				"available": available.String(),
			})
	}

	reservation := models.CreditReservation{
		ID:                uuid.New(),
		OrderID:           orderID,
		BuyerID:           buyerID,
		SupplierID:        supplierID,
		ReservationAmount: amount,
		Status:            enums.CreditReservationActive,
	}
	if err := tx.Create(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ReleaseTx frees the order's ACTIVE hold without touching the ledger.
// Returns (nil, nil) when no active hold exists.
func ReleaseTx(tx *gorm.DB, orderID uuid.UUID, reason string) (*models.CreditReservation, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var reservation models.CreditReservation
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.CreditReservationActive).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":     enums.CreditReservationReleased,
		"updated_at": time.Now(),
	}
	if reason != "" {
		updates["release_reason"] = reason
	}
	if err := tx.Model(&models.CreditReservation{}).Where("id = ?", reservation.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	reservation.Status = enums.CreditReservationReleased
	if reason != "" {
		reservation.ReleaseReason = &reason
	}
	return &reservation, nil
}

// EntryInput describes one ledger entry to append.
type EntryInput struct {
	BuyerID        uuid.UUID
	SupplierID     uuid.UUID
	OrderID        *uuid.UUID
	EntryType      enums.LedgerEntryType
	Amount         decimal.Decimal
	DueDate        *time.Time
	IdempotencyKey string
	Metadata       types.JSONMap
}

// AppendEntryTx appends an immutable entry to the pair's hash chain. The
// account lock serializes appends, so the chain never forks. Replaying an
// idempotency key with identical parameters returns the original entry;
// replaying it with different parameters is rejected.
func AppendEntryTx(tx *gorm.DB, input EntryInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if input.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if !input.EntryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger entry type")
	}
	if input.EntryType == enums.LedgerEntryAdjustment {
		if input.Amount.IsZero() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must be non-zero")
		}
	} else if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry amount must be positive")
	}

	var existing models.LedgerEntry
	err := tx.Where("idempotency_key = ?", input.IdempotencyKey).First(&existing).Error
	if err == nil {
		sameEntry := existing.BuyerID == input.BuyerID &&
			existing.SupplierID == input.SupplierID &&
			existing.EntryType == input.EntryType &&
			existing.Amount.Equal(input.Amount)
		if !sameEntry {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different parameters").
				WithDetails(map[string]any{"idempotencyKey": input.IdempotencyKey})
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if _, err := lockAccountTx(tx, input.BuyerID, input.SupplierID); err != nil {
		return nil, err
	}

	head, err := chainHeadTx(tx, input.BuyerID, input.SupplierID)
	if err != nil {
		return nil, err
	}
	previousHash := genesisHash
	balance := decimal.Zero
	if head != nil {
		previousHash = head.Hash
		balance = head.BalanceAfter
	}
	if input.EntryType.AddsToBalance() {
		balance = balance.Add(input.Amount)
	} else {
		balance = balance.Sub(input.Amount)
	}

	entry := models.LedgerEntry{
		ID:             uuid.New(),
		BuyerID:        input.BuyerID,
		SupplierID:     input.SupplierID,
		OrderID:        input.OrderID,
		EntryType:      input.EntryType,
		Amount:         input.Amount,
		BalanceAfter:   balance,
		Hash:           entryHash(input.IdempotencyKey, input.BuyerID, input.SupplierID, input.Amount, input.EntryType, previousHash),
		PreviousHash:   previousHash,
		DueDate:        input.DueDate,
		IdempotencyKey: input.IdempotencyKey,
		Metadata:       input.Metadata,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ConvertToDebitTx settles the order's hold into a DEBIT entry at delivery.
// A final amount differing from the reservation still converts, at the
// final amount, and the mismatch is returned for the caller to flag.
func ConvertToDebitTx(tx *gorm.DB, orderID uuid.UUID, finalAmount decimal.Decimal, dueDate *time.Time, metadata types.JSONMap) (*models.LedgerEntry, *AmountMismatch, error) {
	if tx == nil {
		return nil, nil, gorm.ErrInvalidTransaction
	}
	var reservation models.CreditReservation
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.CreditReservationActive).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no active credit reservation")
	}
	if err != nil {
		return nil, nil, err
	}

	var mismatch *AmountMismatch
	if !finalAmount.Equal(reservation.ReservationAmount) {
		mismatch = &AmountMismatch{
			OrderID:  orderID,
			Reserved: reservation.ReservationAmount,
			Final:    finalAmount,
		}
	}

	id := orderID
	entry, err := AppendEntryTx(tx, EntryInput{
		BuyerID:        reservation.BuyerID,
		SupplierID:     reservation.SupplierID,
		OrderID:        &id,
		EntryType:      enums.LedgerEntryDebit,
		Amount:         finalAmount,
		DueDate:        dueDate,
		IdempotencyKey: "order-debit-" + orderID.String(),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, nil, err
	}

	err = tx.Model(&models.CreditReservation{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]any{
			"status":     enums.CreditReservationConvertedToDebit,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return nil, nil, err
	}
	return entry, mismatch, nil
}

// ReverseDebitTx appends a REVERSAL cancelling the order's DEBIT, used on
// returns. The reversal carries the debit's full amount.
func ReverseDebitTx(tx *gorm.DB, orderID uuid.UUID, metadata types.JSONMap) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var debit models.LedgerEntry
	err := tx.Where("order_id = ? AND entry_type = ?", orderID, enums.LedgerEntryDebit).
		First(&debit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no debit to reverse")
	}
	if err != nil {
		return nil, err
	}

	id := orderID
	return AppendEntryTx(tx, EntryInput{
		BuyerID:        debit.BuyerID,
		SupplierID:     debit.SupplierID,
		OrderID:        &id,
		EntryType:      enums.LedgerEntryReversal,
		Amount:         debit.Amount,
		IdempotencyKey: "order-reversal-" + orderID.String(),
		Metadata:       metadata,
	})
}

// ReverseDebitIfPostedTx reverses the order's DEBIT when one exists and
// returns (nil, nil) otherwise. Cancellation uses it so a posted debit can
// never survive the cancel, whichever state the order reached first.
func ReverseDebitIfPostedTx(tx *gorm.DB, orderID uuid.UUID, metadata types.JSONMap) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var debit models.LedgerEntry
	err := tx.Where("order_id = ? AND entry_type = ?", orderID, enums.LedgerEntryDebit).
		First(&debit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ReverseDebitTx(tx, orderID, metadata)
}

// EntriesForPair lists the pair's ledger in chain order, oldest first.
func EntriesForPair(ctx context.Context, db *gorm.DB, buyerID, supplierID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := db.WithContext(ctx).
		Where("buyer_id = ? AND supplier_id = ?", buyerID, supplierID).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	byPrevious := make(map[string]models.LedgerEntry, len(entries))
	for _, entry := range entries {
		byPrevious[entry.PreviousHash] = entry
	}
	ordered := make([]models.LedgerEntry, 0, len(entries))
	previous := genesisHash
	for {
		entry, ok := byPrevious[previous]
		if !ok {
			break
		}
		ordered = append(ordered, entry)
		previous = entry.Hash
	}
	if len(ordered) != len(entries) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger chain is not contiguous")
	}
	return ordered, nil
}
