package statemachine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// transitions is the exhaustive table of legal moves. Any pair not listed
// here is rejected. Credit reservation happens inside the winner decision,
// so CREDIT_RESERVED sits between BROADCASTING and ASSIGNED on the path.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {
		enums.OrderStatusValidated,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusValidated: {
		enums.OrderStatusBroadcasting,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusBroadcasting: {
		enums.OrderStatusCreditReserved,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusCreditReserved: {
		enums.OrderStatusAssigned,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusAssigned: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusBroadcasting,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusReturned,
	},
	enums.OrderStatusReturned:  {},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusFailed:    {},
}

// RejectionDetails is attached to STATE_CONFLICT errors so callers can
// react deterministically.
type RejectionDetails struct {
	CurrentStatus     enums.OrderStatus   `json:"currentStatus"`
	RequestedStatus   enums.OrderStatus   `json:"requestedStatus"`
	AllowedNextStates []enums.OrderStatus `json:"allowedNextStates"`
}

// Allowed returns the legal next states from the given status.
func Allowed(from enums.OrderStatus) []enums.OrderStatus {
	next, ok := transitions[from]
	if !ok {
		return nil
	}
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// Validate checks the transition table without touching any state. A
// same-state pair is allowed (callers treat it as a no-op).
func Validate(from, to enums.OrderStatus) error {
	if !from.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status "+string(from))
	}
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status "+string(to))
	}
	if from == to {
		return nil
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
		WithDetails(RejectionDetails{
			CurrentStatus:     from,
			RequestedStatus:   to,
			AllowedNextStates: Allowed(from),
		})
}

// TransitionInput names the actor and reason recorded with the move.
type TransitionInput struct {
	To          enums.OrderStatus
	PerformedBy uuid.UUID
	Reason      string
}

// Transition moves the order to the target status inside the caller's
// transaction: it updates the order row and appends an immutable
// OrderTransition record. Same-state calls return the order unchanged
// without writing anything. The caller holds the order row lock.
func Transition(ctx context.Context, tx *gorm.DB, order *models.Order, input TransitionInput) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if order == nil {
		return errors.New("order is required")
	}
	if input.PerformedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "performedBy is required")
	}
	if err := Validate(order.Status, input.To); err != nil {
		return err
	}
	if order.Status == input.To {
		return nil
	}
	if input.To == enums.OrderStatusDelivered {
		reserved, err := hasTransitionTo(tx, order.ID, enums.OrderStatusCreditReserved)
		if err != nil {
			return err
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery requires a prior credit reservation").
				WithDetails(RejectionDetails{
					CurrentStatus:     order.Status,
					RequestedStatus:   input.To,
					AllowedNextStates: Allowed(order.Status),
				})
		}
	}

	from := order.Status
	updates := map[string]any{
		"status":     input.To,
		"updated_at": time.Now(),
	}
	if input.To == enums.OrderStatusFailed && input.Reason != "" {
		updates["failure_reason"] = input.Reason
	}
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return err
	}

	record := models.OrderTransition{
		ID:          uuid.New(),
		OrderID:     order.ID,
		FromStatus:  from,
		ToStatus:    input.To,
		PerformedBy: input.PerformedBy,
		Reason:      input.Reason,
	}
	if err := tx.Create(&record).Error; err != nil {
		return err
	}

	order.Status = input.To
	if input.To == enums.OrderStatusFailed && input.Reason != "" {
		reason := input.Reason
		order.FailureReason = &reason
	}
	return nil
}

// HasReachedCreditReserved reports whether the order's history contains a
// CREDIT_RESERVED event.
func HasReachedCreditReserved(tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	return hasTransitionTo(tx, orderID, enums.OrderStatusCreditReserved)
}

func hasTransitionTo(tx *gorm.DB, orderID uuid.UUID, status enums.OrderStatus) (bool, error) {
	var count int64
	err := tx.Model(&models.OrderTransition{}).
		Where("order_id = ? AND to_status = ?", orderID, status).
		Count(&count).Error
	return count > 0, err
}
