package decision

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/audit"
	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/statemachine"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	pkgdb "github.com/mandexhq/mandex-backend/pkg/db"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/metrics"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/outbox/payloads"
	"github.com/mandexhq/mandex-backend/pkg/types"

	"github.com/shopspring/decimal"
)

// Outcome labels returned alongside a decision result.
const (
	OutcomeAssigned   = metrics.DecisionOutcomeAssigned
	OutcomeIdempotent = metrics.DecisionOutcomeIdempotent
)

// Coordinator runs the winner decision: scoring, credit reservation, stock
// reservation, and assignment, all in one database transaction. Either the
// whole decision commits or the order stays BROADCASTING untouched.
type Coordinator struct {
	db        *gorm.DB
	orders    *orders.Repository
	auction   *auction.Service
	offers    *auction.Repository
	suppliers *suppliers.Repository
	events    *outbox.Service
	sender    messaging.Sender
	metrics   *metrics.DecisionMetrics
	cfg       config.DecisionConfig
	logg      *logger.Logger
}

// NewCoordinator wires the decision coordinator.
func NewCoordinator(db *gorm.DB, orderRepo *orders.Repository, auctionSvc *auction.Service, offerRepo *auction.Repository, supplierRepo *suppliers.Repository, events *outbox.Service, sender messaging.Sender, decisionMetrics *metrics.DecisionMetrics, cfg config.DecisionConfig, logg *logger.Logger) (*Coordinator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if orderRepo == nil || auctionSvc == nil || offerRepo == nil || supplierRepo == nil {
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
	return &Coordinator{
		db:        db,
		orders:    orderRepo,
		auction:   auctionSvc,
		offers:    offerRepo,
		suppliers: supplierRepo,
		events:    events,
		sender:    sender,
		metrics:   decisionMetrics,
		cfg:       cfg,
		logg:      logg,
	}, nil
}

// Input identifies the order to decide and who asked for the decision.
type Input struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	// Exclude skips these suppliers, used when re-deciding after a failed
	// winner.
	Exclude []uuid.UUID
}

// Result is the committed decision.
type Result struct {
	Order        *models.Order
	WinningOffer *models.VendorOffer
	Reservation  *models.CreditReservation
	Outcome      string
	Score        float64
}

// Decide selects and assigns the winner for a broadcasting order. Calling
// it on an already assigned order returns the existing winner. Concurrency
// conflicts retry with bounded exponential backoff; any other failure rolls
// the whole decision back.
func (c *Coordinator) Decide(ctx context.Context, input Input) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actorId is required")
	}

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxAttempts), retry.NewExponential(c.cfg.InitialBackoff))

	var result *Result
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		result, err = c.decideOnce(ctx, input)
		if err != nil && pkgdb.IsSerializationFailure(err) {
			c.metrics.IncRetry()
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	c.metrics.IncOutcome(result.Outcome)
	if result.Outcome == OutcomeAssigned {
		c.notify(ctx, result)
	}
	return result, nil
}

func (c *Coordinator) decideOnce(ctx context.Context, input Input) (*Result, error) {
	var result *Result
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := c.orders.LockTx(tx, input.OrderID)
		if err != nil {
			return err
		}

		// A concurrent decision may have won the race; hand back its result
		// instead of failing the caller.
		if order.Status == enums.OrderStatusAssigned ||
			order.Status == enums.OrderStatusCreditReserved {
			accepted, err := c.offers.AcceptedByOrderTx(tx, order.ID)
			if err != nil {
				return err
			}
			result = &Result{Order: order, WinningOffer: accepted, Outcome: OutcomeIdempotent}
			return nil
		}
		if order.Status != enums.OrderStatusBroadcasting {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting a decision").
				WithDetails(map[string]any{"status": order.Status})
		}

		ranked, err := c.auction.SelectWinnerTx(tx, order, input.Exclude)
		if err != nil {
			return err
		}
		if len(ranked) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no pending offers")
		}

		winner, reservation, err := c.reserveBestCandidate(ctx, tx, order, ranked)
		if err != nil {
			return err
		}

		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusCreditReserved,
			PerformedBy: input.ActorID,
		}); err != nil {
			return err
		}
		if err := statemachine.Transition(ctx, tx, order, statemachine.TransitionInput{
			To:          enums.OrderStatusAssigned,
			PerformedBy: input.ActorID,
		}); err != nil {
			return err
		}
		if err := tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("supplier_id", winner.Offer.SupplierID).Error; err != nil {
			return err
		}
		supplierID := winner.Offer.SupplierID
		order.SupplierID = &supplierID

		if err := c.offers.SetStatusTx(tx, winner.Offer.ID, enums.OfferStatusAccepted); err != nil {
			return err
		}
		if err := c.offers.RejectOthersTx(tx, order.ID, winner.Offer.ID); err != nil {
			return err
		}
		if err := c.suppliers.IncrementAssignedTx(tx, supplierID); err != nil {
			return err
		}

		actor := &outbox.ActorRef{ActorID: input.ActorID}
		if err := c.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderAssigned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderAssignedEvent{
				OrderID:      order.ID,
				BuyerID:      order.BuyerID,
				SupplierID:   supplierID,
				WinningBidID: winner.Offer.ID,
				PriceQuote:   winner.Offer.PriceQuote,
			},
		}); err != nil {
			return err
		}
		if err := c.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferAccepted,
			AggregateType: enums.AggregateVendorOffer,
			AggregateID:   winner.Offer.ID,
			Actor:         actor,
			Data: payloads.OfferAcceptedEvent{
				OfferID:    winner.Offer.ID,
				OrderID:    order.ID,
				SupplierID: supplierID,
				Score:      decimal.NewFromFloat(winner.Score),
			},
		}); err != nil {
			return err
		}
		for _, loser := range ranked {
			if loser.Offer.ID == winner.Offer.ID {
				continue
			}
			if err := c.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOfferRejected,
				AggregateType: enums.AggregateVendorOffer,
				AggregateID:   loser.Offer.ID,
				Actor:         actor,
				Data: payloads.OfferRejectedEvent{
					OfferID:    loser.Offer.ID,
					OrderID:    order.ID,
					SupplierID: loser.Offer.SupplierID,
				},
			}); err != nil {
				return err
			}
		}

		if err := audit.AppendTx(tx, audit.Record{
			ActorID:  input.ActorID,
			Action:   enums.AuditWinnerDecision,
			TargetID: order.ID,
			Reason:   "winner assigned",
			Metadata: types.JSONMap{
				"supplier_id": supplierID.String(),
				"offer_id":    winner.Offer.ID.String(),
				"score":       winner.Score,
			},
		}); err != nil {
			return err
		}

		winning := winner.Offer
		result = &Result{
			Order:        order,
			WinningOffer: &winning,
			Reservation:  reservation,
			Outcome:      OutcomeAssigned,
			Score:        winner.Score,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reserveBestCandidate walks the ranked offers best first, reserving credit
// and stock for the first candidate that can carry the order. Each attempt
// runs in a savepoint so a failed candidate leaves no partial holds behind.
func (c *Coordinator) reserveBestCandidate(ctx context.Context, tx *gorm.DB, order *models.Order, ranked []auction.ScoredOffer) (*auction.ScoredOffer, *models.CreditReservation, error) {
	var lastErr error
	for i := range ranked {
		candidate := ranked[i]
		var reservation *models.CreditReservation
		err := tx.Transaction(func(sp *gorm.DB) error {
			var err error
			reservation, err = credit.ReserveTx(sp, order.ID, order.BuyerID, candidate.Offer.SupplierID, candidate.Offer.PriceQuote)
			if err != nil {
				return err
			}
			return inventory.Reserve(ctx, sp, order.ID, candidate.Offer.SupplierID, order.Items)
		})
		if err == nil {
			return &ranked[i], reservation, nil
		}

		typed := pkgerrors.As(err)
		if typed == nil {
			return nil, nil, err
		}
		switch typed.Code() {
		case pkgerrors.CodeInsufficientResource, pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict:
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"order_id":    order.ID.String(),
				"supplier_id": candidate.Offer.SupplierID.String(),
				"code":        string(typed.Code()),
			})
			c.logg.Warn(logCtx, "candidate skipped, trying next ranked offer")
			lastErr = err
		default:
			return nil, nil, err
		}
	}
	if lastErr != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientResource, lastErr, "no ranked candidate could be funded and stocked")
	}
	return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no pending offers")
}

func (c *Coordinator) recordFailure(err error) {
	typed := pkgerrors.As(err)
	switch {
	case typed != nil && typed.Code() == pkgerrors.CodeInsufficientResource:
		c.metrics.IncOutcome(metrics.DecisionOutcomeInsufficient)
	case typed != nil && typed.Code() == pkgerrors.CodeStateConflict:
		c.metrics.IncOutcome(metrics.DecisionOutcomeNoBids)
	default:
		c.metrics.IncOutcome(metrics.DecisionOutcomeError)
	}
}

func (c *Coordinator) notify(ctx context.Context, result *Result) {
	if result.Order.SupplierID != nil {
		c.sender.NotifySupplier(ctx, messaging.Message{
			RecipientID: *result.Order.SupplierID,
			OrderID:     result.Order.ID,
			Kind:        "order.assigned",
			Body:        "You won this order. Please confirm.",
		})
	}
	c.sender.NotifyBuyer(ctx, messaging.Message{
		RecipientID: result.Order.BuyerID,
		OrderID:     result.Order.ID,
		Kind:        "order.assigned",
		Body:        "A supplier was selected for your order.",
	})
}
