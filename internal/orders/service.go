package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/audit"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/statemachine"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/outbox/payloads"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// Service drives the order lifecycle. Every mutation runs in one database
// transaction holding the order row lock; notifications go out only after
// the transaction commits.
type Service struct {
	db        *gorm.DB
	repo      *Repository
	suppliers *suppliers.Repository
	offers    *auction.Repository
	events    *outbox.Service
	sender    messaging.Sender
	cfg       config.AuctionConfig
	logg      *logger.Logger
}

// NewService wires the order lifecycle service.
func NewService(db *gorm.DB, repo *Repository, supplierRepo *suppliers.Repository, offerRepo *auction.Repository, events *outbox.Service, sender messaging.Sender, cfg config.AuctionConfig, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if repo == nil || supplierRepo == nil || offerRepo == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("message sender is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		db:        db,
		repo:      repo,
		suppliers: supplierRepo,
		offers:    offerRepo,
		events:    events,
		sender:    sender,
		cfg:       cfg,
		logg:      logg,
	}, nil
}

// ItemInput is one order line in a create request.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateInput carries a new order.
type CreateInput struct {
	BuyerID          uuid.UUID
	Items            []ItemInput
	TotalAmount      decimal.Decimal
	DeliveryLocation types.GeographyPoint
}

// Create persists a new order in CREATED.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyerId is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]bool, len(input.Items))
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required on every item")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if seen[item.ProductID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in items")
		}
		seen[item.ProductID] = true
		items = append(items, models.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if input.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "totalAmount must be positive")
	}

	order := &models.Order{
		BuyerID:          input.BuyerID,
		TotalAmount:      input.TotalAmount,
		Status:           enums.OrderStatusCreated,
		BiddingDeadline:  time.Now().Add(s.cfg.BidWindow),
		DeliveryLocation: input.DeliveryLocation,
		Items:            items,
	}
	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order created")
	return created, nil
}

// Validate moves CREATED to VALIDATED after rechecking order completeness.
func (s *Service) Validate(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
				To:          enums.OrderStatusFailed,
				PerformedBy: actorID,
				Reason:      "order has no items",
			})
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusValidated,
			PerformedBy: actorID,
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  actorID,
			Action:   enums.AuditOrderTransition,
			TargetID: order.ID,
			Reason:   "validated",
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Broadcast opens the order for bidding. With zero eligible suppliers the
// order fails terminally instead; the returned order carries the outcome.
func (s *Service) Broadcast(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	candidates, err := s.suppliers.ListActiveVerified(ctx)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	var eligible []models.Supplier
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusValidated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only validated orders can broadcast").
				WithDetails(map[string]any{"status": order.Status})
		}

		eligible, err = auction.EligibleSuppliers(ctx, tx, order, candidates)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
				To:          enums.OrderStatusFailed,
				PerformedBy: actorID,
				Reason:      "no eligible suppliers",
			}); err != nil {
				return err
			}
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderFailed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{ActorID: actorID},
				Data: payloads.OrderFailedEvent{
					OrderID:       order.ID,
					BuyerID:       order.BuyerID,
					FailureReason: "no eligible suppliers",
				},
			})
		}

		deadline := time.Now().Add(s.cfg.BidWindow)
		if err := tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("bidding_deadline", deadline).Error; err != nil {
			return err
		}
		order.BiddingDeadline = deadline

		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusBroadcasting,
			PerformedBy: actorID,
		}); err != nil {
			return err
		}

		vendorIDs := make([]uuid.UUID, 0, len(eligible))
		for _, supplier := range eligible {
			vendorIDs = append(vendorIDs, supplier.ID)
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderBroadcast,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: actorID},
			Data: payloads.OrderBroadcastEvent{
				OrderID:         order.ID,
				BuyerID:         order.BuyerID,
				EligibleVendors: vendorIDs,
				BiddingDeadline: deadline,
				TotalAmount:     order.TotalAmount,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  actorID,
			Action:   enums.AuditOrderTransition,
			TargetID: order.ID,
			Reason:   "broadcast",
			Metadata: types.JSONMap{"eligible_count": len(eligible)},
		})
	})
	if err != nil {
		return nil, err
	}

	if order.Status == enums.OrderStatusBroadcasting {
		for _, supplier := range eligible {
			s.sender.NotifySupplier(ctx, messaging.Message{
				RecipientID: supplier.ID,
				OrderID:     order.ID,
				Kind:        "order.broadcast_invite",
				Body:        fmt.Sprintf("New order open for bids until %s", order.BiddingDeadline.Format(time.RFC3339)),
			})
		}
	}
	return order, nil
}

// Confirm records the assigned supplier's acceptance.
func (s *Service) Confirm(ctx context.Context, orderID, supplierID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.SupplierID == nil || *order.SupplierID != supplierID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this supplier")
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusConfirmed,
			PerformedBy: supplierID,
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: supplierID, SupplierID: &supplierID, Role: "supplier"},
			Data: payloads.OrderConfirmedEvent{
				OrderID:    order.ID,
				SupplierID: supplierID,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  supplierID,
			Action:   enums.AuditOrderTransition,
			TargetID: order.ID,
			Reason:   "confirmed",
		})
	})
	if err != nil {
		return nil, err
	}

	s.sender.NotifyBuyer(ctx, messaging.Message{
		RecipientID: order.BuyerID,
		OrderID:     order.ID,
		Kind:        "order.confirmed",
		Body:        "Your supplier confirmed the order.",
	})
	return order, nil
}

// MarkOutForDelivery records that the supplier dispatched the goods.
func (s *Service) MarkOutForDelivery(ctx context.Context, orderID, supplierID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.SupplierID == nil || *order.SupplierID != supplierID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this supplier")
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusOutForDelivery,
			PerformedBy: supplierID,
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  supplierID,
			Action:   enums.AuditOrderTransition,
			TargetID: order.ID,
			Reason:   "out for delivery",
		})
	})
	if err != nil {
		return nil, err
	}

	s.sender.NotifyBuyer(ctx, messaging.Message{
		RecipientID: order.BuyerID,
		OrderID:     order.ID,
		Kind:        "order.out_for_delivery",
		Body:        "Your order is on its way.",
	})
	return order, nil
}

// DeliveryInput describes the delivery confirmation.
type DeliveryInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	// PartialQuantities maps supplier-product ids to delivered quantities
	// lower than the reservation; empty means everything shipped in full.
	PartialQuantities map[uuid.UUID]int
	// FinalAmount overrides the settled amount; zero means the winning
	// offer's price quote.
	FinalAmount decimal.Decimal
}

// ConfirmDelivery settles the order in one transaction: stock holds are
// consumed, the credit reservation converts to a DEBIT on the hash chain,
// and the order reaches DELIVERED. Either all of it commits or none.
func (s *Service) ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actorId is required")
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusOutForDelivery {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not out for delivery").
				WithDetails(map[string]any{"status": order.Status})
		}
		if order.SupplierID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no assigned supplier")
		}
		supplierID := *order.SupplierID

		accepted, err := s.offers.AcceptedByOrderTx(tx, order.ID)
		if err != nil {
			return err
		}
		if accepted == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no accepted offer")
		}
		finalAmount := input.FinalAmount
		if finalAmount.IsZero() {
			finalAmount = accepted.PriceQuote
		}

		if err := inventory.Deduct(ctx, tx, order.ID, input.PartialQuantities); err != nil {
			return err
		}

		entry, mismatch, err := credit.ConvertToDebitTx(tx, order.ID, finalAmount, nil, types.JSONMap{
			"order_id": order.ID.String(),
		})
		if err != nil {
			return err
		}
		if mismatch != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id": order.ID.String(),
				"reserved": mismatch.Reserved.String(),
				"final":    mismatch.Final.String(),
			})
			s.logg.Warn(logCtx, "delivery settled at a different amount than reserved")
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCreditMismatched,
				AggregateType: enums.AggregateLedgerEntry,
				AggregateID:   entry.ID,
				Actor:         &outbox.ActorRef{ActorID: input.ActorID},
				Data: payloads.CreditAmountMismatchEvent{
					BuyerID:        order.BuyerID,
					SupplierID:     supplierID,
					ReservedAmount: mismatch.Reserved,
					FinalAmount:    mismatch.Final,
				},
			}); err != nil {
				return err
			}
		}

		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusDelivered,
			PerformedBy: input.ActorID,
		}); err != nil {
			return err
		}
		if err := s.suppliers.IncrementCompletedTx(tx, supplierID); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: input.ActorID},
			Data: payloads.OrderDeliveredEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				SupplierID:    supplierID,
				DebitAmount:   entry.Amount,
				LedgerEntryID: entry.ID,
				DeliveredAt:   time.Now().UTC(),
			},
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditConverted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{ActorID: input.ActorID},
			Data: payloads.CreditReservationConvertedEvent{
				BuyerID:       order.BuyerID,
				SupplierID:    supplierID,
				LedgerEntryID: entry.ID,
				Amount:        entry.Amount,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  input.ActorID,
			Action:   enums.AuditCreditConvert,
			TargetID: order.ID,
			Reason:   "delivery settled",
			Metadata: types.JSONMap{"ledger_entry_id": entry.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}

	s.sender.NotifyBuyer(ctx, messaging.Message{
		RecipientID: order.BuyerID,
		OrderID:     order.ID,
		Kind:        "order.delivered",
		Body:        "Your order was delivered.",
	})
	return order, nil
}

// Return reverses a delivered order: a REVERSAL entry cancels the debit and
// the order reaches RETURNED. Goods are not restocked automatically; a
// returned shipment goes through manual inspection first.
func (s *Service) Return(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned").
				WithDetails(map[string]any{"status": order.Status})
		}

		reversal, err := credit.ReverseDebitTx(tx, order.ID, types.JSONMap{
			"order_id": order.ID.String(),
			"reason":   reason,
		})
		if err != nil {
			return err
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusReturned,
			PerformedBy: actorID,
			Reason:      reason,
		}); err != nil {
			return err
		}

		supplierID := uuid.Nil
		if order.SupplierID != nil {
			supplierID = *order.SupplierID
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReturned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: actorID},
			Data: payloads.OrderReturnedEvent{
				OrderID:         order.ID,
				SupplierID:      supplierID,
				ReversalEntryID: reversal.ID,
				Reason:          reason,
			},
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditReverted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   reversal.ID,
			Actor:         &outbox.ActorRef{ActorID: actorID},
			Data: payloads.CreditDebitReversedEvent{
				BuyerID:         order.BuyerID,
				SupplierID:      supplierID,
				ReversalEntryID: reversal.ID,
				Amount:          reversal.Amount,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  actorID,
			Action:   enums.AuditCreditReverse,
			TargetID: order.ID,
			Reason:   reason,
		})
	})
	if err != nil {
		return nil, err
	}

	if order.SupplierID != nil {
		s.sender.NotifySupplier(ctx, messaging.Message{
			RecipientID: *order.SupplierID,
			OrderID:     order.ID,
			Kind:        "order.returned",
			Body:        "The buyer returned this order.",
		})
	}
	return order, nil
}

// Cancel aborts an order before delivery, releasing stock holds and the
// credit reservation in the same transaction as the status change.
func (s *Service) Cancel(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockTx(tx, orderID)
		if err != nil {
			return err
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusCancelled,
			PerformedBy: actorID,
			Reason:      reason,
		}); err != nil {
			return err
		}

		if err := inventory.Release(ctx, tx, order.ID); err != nil {
			return err
		}
		if _, err := credit.ReleaseTx(tx, order.ID, "order cancelled"); err != nil {
			return err
		}
		if _, err := credit.ReverseDebitIfPostedTx(tx, order.ID, types.JSONMap{"reason": "order cancelled"}); err != nil {
			return err
		}
		if err := s.offers.RejectOthersTx(tx, order.ID, uuid.Nil); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: actorID},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				SupplierID:  order.SupplierID,
				CancelledAt: time.Now().UTC(),
				Reason:      reason,
			},
		}); err != nil {
			return err
		}
		return audit.AppendTx(tx, audit.Record{
			ActorID:  actorID,
			Action:   enums.AuditOrderTransition,
			TargetID: order.ID,
			Reason:   "cancelled: " + reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.sender.NotifyBuyer(ctx, messaging.Message{
		RecipientID: order.BuyerID,
		OrderID:     order.ID,
		Kind:        "order.cancelled",
		Body:        "Your order was cancelled.",
	})
	if order.SupplierID != nil {
		s.sender.NotifySupplier(ctx, messaging.Message{
			RecipientID: *order.SupplierID,
			OrderID:     order.ID,
			Kind:        "order.cancelled",
			Body:        "This order was cancelled.",
		})
	}
	return order, nil
}

// Get loads an order with its full history.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.repo.FindWithHistory(ctx, orderID)
}
