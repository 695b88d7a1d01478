package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
)

type orderSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type supplierSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
}

// Service accepts bids against broadcasting orders.
type Service struct {
	cfg           config.AuctionConfig
	repo          *Repository
	orders        orderSource
	supplierStore supplierSource
	logg          *logger.Logger
}

// NewService wires the bid intake service.
func NewService(cfg config.AuctionConfig, repo *Repository, orders orderSource, supplierStore supplierSource, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("offer repository is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order source is required")
	}
	if supplierStore == nil {
		return nil, fmt.Errorf("supplier source is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		cfg:           cfg,
		repo:          repo,
		orders:        orders,
		supplierStore: supplierStore,
		logg:          logg,
	}, nil
}

// SubmitBidInput carries one raw bid from the messaging channel.
type SubmitBidInput struct {
	OrderID        uuid.UUID
	SupplierID     uuid.UUID
	Text           string
	StockConfirmed bool
}

// SubmitBid parses the bid text, validates the bidding window, and upserts
// the supplier's offer. Malformed text never writes a row.
func (s *Service) SubmitBid(ctx context.Context, input SubmitBidInput) (*models.VendorOffer, error) {
	if input.OrderID == uuid.Nil || input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId and supplierId are required")
	}

	parsed, err := ParseBidText(input.Text, s.cfg.DefaultEta)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusBroadcasting {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not accepting bids").
			WithDetails(map[string]any{"status": order.Status})
	}
	now := time.Now()
	if now.After(order.BiddingDeadline) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bidding window has closed")
	}

	supplier, err := s.supplierStore.FindByID(ctx, input.SupplierID)
	if err != nil {
		return nil, err
	}
	if !supplier.Active || !supplier.Verified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier is not allowed to bid")
	}

	offer, err := s.repo.Upsert(ctx, &models.VendorOffer{
		OrderID:        input.OrderID,
		SupplierID:     input.SupplierID,
		PriceQuote:     parsed.PriceQuote,
		DeliveryEtaRaw: parsed.EtaRaw,
		EtaHours:       parsed.EtaHours,
		StockConfirmed: input.StockConfirmed,
		SubmittedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    input.OrderID.String(),
		"supplier_id": input.SupplierID.String(),
		"price_quote": parsed.PriceQuote.String(),
		"eta_hours":   parsed.EtaHours,
	})
	s.logg.Info(logCtx, "bid recorded")
	return offer, nil
}

// OffersForOrder lists the current offers on an order.
func (s *Service) OffersForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorOffer, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

// SelectWinnerTx scores the order's pending offers inside the decision
// transaction and returns the ranked list, best first. Suppliers on the
// exclusion list are skipped (re-decision after a failed candidate).
func (s *Service) SelectWinnerTx(tx *gorm.DB, order *models.Order, exclude []uuid.UUID) ([]ScoredOffer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	offers, err := s.repo.PendingByOrderTx(tx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(exclude) > 0 {
		skip := make(map[uuid.UUID]bool, len(exclude))
		for _, id := range exclude {
			skip[id] = true
		}
		kept := offers[:0]
		for _, offer := range offers {
			if !skip[offer.SupplierID] {
				kept = append(kept, offer)
			}
		}
		offers = kept
	}
	if len(offers) == 0 {
		return nil, nil
	}

	supplierIDs := make([]uuid.UUID, 0, len(offers))
	for _, offer := range offers {
		supplierIDs = append(supplierIDs, offer.SupplierID)
	}
	var supplierRows []models.Supplier
	if err := tx.Where("id IN ?", supplierIDs).Find(&supplierRows).Error; err != nil {
		return nil, err
	}
	index := make(map[string]models.Supplier, len(supplierRows))
	for _, supplier := range supplierRows {
		index[supplier.ID.String()] = supplier
	}

	return RankOffers(s.cfg, offers, index, order.TotalAmount), nil
}

// IsNotFound reports whether err is a missing-row error from the offer store.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
