package controllers

import (
	"net/http"

	"github.com/mandexhq/mandex-backend/api/responses"
	"github.com/mandexhq/mandex-backend/api/validators"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/decision"
	"github.com/mandexhq/mandex-backend/pkg/logger"
)

type submitBidRequest struct {
	// Text is the free-form bid line, e.g. "price: 900, eta: 2 days".
	Text           string `json:"text" validate:"required,min=3"`
	StockConfirmed bool   `json:"stock_confirmed"`
}

// SubmitBid records the supplier's offer on a broadcasting order.
func SubmitBid(svc *auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.SubmitBid(r.Context(), auction.SubmitBidInput{
			OrderID:        orderID,
			SupplierID:     supplierID,
			Text:           payload.Text,
			StockConfirmed: payload.StockConfirmed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}

// ListOffers returns the offers submitted against an order.
func ListOffers(svc *auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offers, err := svc.OffersForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offers)
	}
}

// DecideOrder runs the winner decision for a broadcasting order.
func DecideOrder(coordinator *decision.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := coordinator.Decide(r.Context(), decision.Input{
			OrderID: orderID,
			ActorID: actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
