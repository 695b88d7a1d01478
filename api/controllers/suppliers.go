package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/api/responses"
	"github.com/mandexhq/mandex-backend/api/validators"
	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

type createSupplierRequest struct {
	Name             string  `json:"name" validate:"required,min=2"`
	Verified         bool    `json:"verified"`
	DeliveryRadiusKm float64 `json:"delivery_radius_km"`
	ContactAddress   string  `json:"contact_address,omitempty"`
	Location         *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location,omitempty"`
}

// CreateSupplier registers a vendor.
func CreateSupplier(repo *suppliers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createSupplierRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		supplier := &models.Supplier{
			ID:               uuid.New(),
			Name:             payload.Name,
			Active:           true,
			Verified:         payload.Verified,
			DeliveryRadiusKm: payload.DeliveryRadiusKm,
			ContactAddress:   payload.ContactAddress,
		}
		if payload.Location != nil {
			supplier.Location = types.GeographyPoint{Lat: payload.Location.Lat, Lng: payload.Location.Lng}
		}

		created, err := repo.Create(r.Context(), supplier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create supplier"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// SupplierDetail returns one supplier.
func SupplierDetail(repo *suppliers.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := parseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		supplier, err := repo.FindByID(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, supplier)
	}
}

type setStockRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Stock     int    `json:"stock" validate:"min=0"`
}

// SetStock creates or updates the calling supplier's stock for one product.
func SetStock(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id"))
			return
		}

		row, err := inventory.SetStock(r.Context(), db, supplierID, productID, payload.Stock)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// ListStock returns the calling supplier's stock rows.
func ListStock(db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		supplierID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := inventory.StockForSupplier(r.Context(), db, supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock"))
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
