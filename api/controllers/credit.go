package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/api/responses"
	"github.com/mandexhq/mandex-backend/api/validators"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
)

type createCreditAccountRequest struct {
	BuyerID     string `json:"buyer_id" validate:"required,uuid4"`
	SupplierID  string `json:"supplier_id" validate:"required,uuid4"`
	CreditLimit string `json:"credit_limit" validate:"required"`
}

// CreateCreditAccount opens a credit line between one buyer and one supplier.
func CreateCreditAccount(repo *credit.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createCreditAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerID, err := uuid.Parse(payload.BuyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer_id"))
			return
		}
		supplierID, err := uuid.Parse(payload.SupplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid supplier_id"))
			return
		}
		limit, err := decimal.NewFromString(strings.TrimSpace(payload.CreditLimit))
		if err != nil || limit.LessThanOrEqual(decimal.Zero) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "credit_limit must be a positive amount"))
			return
		}

		account, err := repo.CreateAccount(r.Context(), &models.CreditAccount{
			BuyerID:     buyerID,
			SupplierID:  supplierID,
			CreditLimit: limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, account)
	}
}

type updateCreditLimitRequest struct {
	CreditLimit string `json:"credit_limit" validate:"required"`
}

// UpdateCreditLimit changes the credit line's limit.
func UpdateCreditLimit(repo *credit.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCreditLimitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := decimal.NewFromString(strings.TrimSpace(payload.CreditLimit))
		if err != nil || limit.LessThanOrEqual(decimal.Zero) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "credit_limit must be a positive amount"))
			return
		}

		if err := repo.UpdateLimit(r.Context(), accountID, limit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type blockCreditAccountRequest struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// BlockCreditAccount blocks or unblocks a credit line. Blocked accounts
// refuse new reservations; settlement of existing holds keeps working.
func BlockCreditAccount(repo *credit.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := parseUUIDParam(r, "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload blockCreditAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Blocked && strings.TrimSpace(payload.Reason) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reason is required when blocking"))
			return
		}

		if err := repo.SetBlocked(r.Context(), accountID, payload.Blocked, payload.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// CreditAvailable returns the caller's headroom against one supplier.
func CreditAvailable(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := parseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		available, err := credit.Available(r.Context(), db, buyerID, supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"buyer_id":    buyerID,
			"supplier_id": supplierID,
			"available":   available,
		})
	}
}

// CreditEntries returns the caller's ledger entries against one supplier,
// oldest first.
func CreditEntries(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := parseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := credit.EntriesForPair(r.Context(), db, buyerID, supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// VerifyCreditChain walks a pair's hash chain and reports its integrity.
func VerifyCreditChain(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := parseUUIDParam(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := parseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := credit.VerifyChain(r.Context(), db, buyerID, supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
