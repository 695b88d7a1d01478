package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/audit"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/decision"
	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/statemachine"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/outbox/payloads"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

const sweepBatchSize = 20

// NewBidExpiryJob closes bidding windows past their deadline: orders with
// usable offers go through the winner decision, the rest fail terminally
// with their pending offers marked TIMEOUT.
func NewBidExpiryJob(db *gorm.DB, orderRepo *orders.Repository, offerRepo *auction.Repository, coordinator *decision.Coordinator, events *outbox.Service, logg *logger.Logger) Job {
	run := func(ctx context.Context) error {
		expired, err := orderRepo.ListExpiredBroadcasting(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			return err
		}

		var errs error
		for _, order := range expired {
			if err := expireOrder(ctx, db, order, orderRepo, offerRepo, coordinator, events, logg); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			}
		}
		return errs
	}
	return Job{Name: "bid_expiry", Run: run}
}

func expireOrder(ctx context.Context, db *gorm.DB, order models.Order, orderRepo *orders.Repository, offerRepo *auction.Repository, coordinator *decision.Coordinator, events *outbox.Service, logg *logger.Logger) error {
	logCtx := logg.WithOrderID(ctx, order.ID.String())

	_, err := coordinator.Decide(ctx, decision.Input{OrderID: order.ID, ActorID: SystemActorID})
	if err == nil {
		logg.Info(logCtx, "expired order assigned by sweep decision")
		return nil
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	var reason string
	switch typed.Code() {
	case pkgerrors.CodeStateConflict:
		reason = "no bids received"
	case pkgerrors.CodeInsufficientResource:
		reason = "no fundable candidate"
	default:
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := orderRepo.LockTx(tx, order.ID)
		if err != nil {
			return err
		}
		// A concurrent decision may have resolved the order meanwhile.
		if locked.Status != enums.OrderStatusBroadcasting {
			return nil
		}

		pending, err := offerRepo.PendingByOrderTx(tx, locked.ID)
		if err != nil {
			return err
		}
		if _, err := offerRepo.TimeoutPendingTx(tx, locked.ID); err != nil {
			return err
		}
		for _, offer := range pending {
			if err := events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOfferTimedOut,
				AggregateType: enums.AggregateVendorOffer,
				AggregateID:   offer.ID,
				Actor:         &outbox.ActorRef{ActorID: SystemActorID, Role: "system"},
				Data: payloads.OfferTimedOutEvent{
					OfferID:    offer.ID,
					OrderID:    locked.ID,
					SupplierID: offer.SupplierID,
					DeadlineAt: locked.BiddingDeadline,
				},
			}); err != nil {
				return err
			}
		}

		if err := statemachine.Transition(ctx, tx, locked, statemachine.TransitionInput{
			To:          enums.OrderStatusFailed,
			PerformedBy: SystemActorID,
			Reason:      reason,
		}); err != nil {
			return err
		}
		if err := events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   locked.ID,
			Actor:         &outbox.ActorRef{ActorID: SystemActorID, Role: "system"},
			Data: payloads.OrderFailedEvent{
				OrderID:       locked.ID,
				BuyerID:       locked.BuyerID,
				FailureReason: reason,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  SystemActorID,
			Action:   enums.AuditOrderTransition,
			TargetID: locked.ID,
			Reason:   reason,
		})
	})
}

// NewStaleOrderJob cancels non-terminal orders untouched for longer than
// the TTL, releasing their holds through the regular cancel path.
func NewStaleOrderJob(orderSvc *orders.Service, orderRepo *orders.Repository, ttl time.Duration, logg *logger.Logger) Job {
	run := func(ctx context.Context) error {
		stale, err := orderRepo.ListStale(ctx, time.Now().Add(-ttl), sweepBatchSize)
		if err != nil {
			return err
		}

		var errs error
		for _, order := range stale {
			if _, err := orderSvc.Cancel(ctx, order.ID, SystemActorID, "stale order sweep"); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
				continue
			}
			logg.Info(logg.WithOrderID(ctx, order.ID.String()), "stale order cancelled by sweep")
		}
		return errs
	}
	return Job{Name: "stale_orders", Run: run}
}

// NewInventoryAuditJob scans for supplier products whose reserved stock
// exceeds physical stock and flags each violation once.
func NewInventoryAuditJob(db *gorm.DB, events *outbox.Service, logg *logger.Logger) Job {
	run := func(ctx context.Context) error {
		violations, err := inventory.AuditScan(ctx, db)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			return nil
		}

		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, violation := range violations {
				logCtx := logg.WithFields(ctx, map[string]any{
					"supplier_product_id": violation.SupplierProductID.String(),
					"stock":               violation.Stock,
					"reserved_stock":      violation.ReservedStock,
				})
				logg.Warn(logCtx, "stock invariant violation found")

				if err := events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventStockInvariant,
					AggregateType: enums.AggregateOrder,
					AggregateID:   violation.SupplierProductID,
					Actor:         &outbox.ActorRef{ActorID: SystemActorID, Role: "system"},
					Data: payloads.StockInvariantViolationEvent{
						SupplierID:    violation.SupplierID,
						ProductID:     violation.ProductID,
						Stock:         violation.Stock,
						ReservedStock: violation.ReservedStock,
					},
				}); err != nil {
					return err
				}
				if err := audit.AppendTx(tx, audit.Record{
					ActorID:  SystemActorID,
					Action:   enums.AuditStockAuditFlag,
					TargetID: violation.SupplierProductID,
					Reason:   "reserved stock exceeds physical stock",
					Metadata: types.JSONMap{
						"stock":          violation.Stock,
						"reserved_stock": violation.ReservedStock,
					},
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return Job{Name: "inventory_audit", Run: run}
}

// NewOutboxRetentionJob prunes published outbox rows older than the
// retention window.
func NewOutboxRetentionJob(repo *outbox.Repository, retentionDays int, logg *logger.Logger) Job {
	run := func(ctx context.Context) error {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		deleted, err := repo.DeletePublishedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logg.Info(logg.WithField(ctx, "deleted", deleted), "published outbox rows pruned")
		}
		return nil
	}
	return Job{Name: "outbox_retention", Run: run}
}
