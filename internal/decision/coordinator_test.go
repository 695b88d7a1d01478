package decision

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/metrics"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:decision_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.OrderTransition{},
		&models.VendorOffer{}, &models.Supplier{}, &models.SupplierProduct{},
		&models.CreditAccount{}, &models.CreditReservation{}, &models.LedgerEntry{},
		&models.OutboxEvent{}, &models.AuditRecord{}, &models.StockReservation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	db          *gorm.DB
	coordinator *Coordinator
	order       *models.Order
	buyerID     uuid.UUID
	productID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})

	orderRepo := orders.NewRepository(db)
	supplierRepo := suppliers.NewRepository(db)
	offerRepo := auction.NewRepository(db)
	auctionSvc, err := auction.NewService(config.AuctionConfig{
		StockConfirmedBonus: 100,
		PriceWeight:         50,
		EtaWeight:           30,
		TrustWeight:         20,
		EtaHorizonHours:     72,
		DefaultEta:          24 * time.Hour,
	}, offerRepo, orderRepo, supplierRepo, logg)
	if err != nil {
		t.Fatalf("auction service: %v", err)
	}

	events := outbox.NewService(outbox.NewRepository(db), logg)
	coordinator, err := NewCoordinator(db, orderRepo, auctionSvc, offerRepo, supplierRepo,
		events, messaging.NewLogSender(logg), metrics.NewDecisionMetrics(nil),
		config.DecisionConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}, logg)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	buyerID := uuid.New()
	productID := uuid.New()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		TotalAmount:     decimal.NewFromInt(1000),
		Status:          enums.OrderStatusBroadcasting,
		BiddingDeadline: time.Now().Add(time.Hour),
		Items:           []models.OrderItem{{ID: uuid.New(), ProductID: productID, Quantity: 2}},
	}
	order.Items[0].OrderID = order.ID
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	return &fixture{
		db:          db,
		coordinator: coordinator,
		order:       order,
		buyerID:     buyerID,
		productID:   productID,
	}
}

// addCandidate seeds a supplier with stock, a credit account, and a pending
// offer at the given price.
func (f *fixture) addCandidate(t *testing.T, name string, price int64, creditLimit int64, stock int) *models.Supplier {
	t.Helper()
	supplier := models.Supplier{
		ID: uuid.New(), Name: name, Active: true, Verified: true,
		AssignedOrders: 10, CompletedOrders: 10, AvgRating: 5,
	}
	if err := f.db.Create(&supplier).Error; err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	if err := f.db.Create(&models.SupplierProduct{
		ID: uuid.New(), SupplierID: supplier.ID, ProductID: f.productID, Stock: stock,
	}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if creditLimit > 0 {
		if err := f.db.Create(&models.CreditAccount{
			ID: uuid.New(), BuyerID: f.buyerID, SupplierID: supplier.ID,
			CreditLimit: decimal.NewFromInt(creditLimit), IsActive: true,
		}).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	if err := f.db.Create(&models.VendorOffer{
		ID: uuid.New(), OrderID: f.order.ID, SupplierID: supplier.ID,
		PriceQuote: decimal.NewFromInt(price), EtaHours: 24,
		Status: enums.OfferStatusPending, StockConfirmed: true,
		SubmittedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return &supplier
}

func TestDecideAssignsBestFundedCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	cheap := f.addCandidate(t, "cheap", 800, 5000, 10)
	f.addCandidate(t, "pricey", 1200, 5000, 10)

	result, err := f.coordinator.Decide(ctx, Input{OrderID: f.order.ID, ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if result.Outcome != OutcomeAssigned {
		t.Fatalf("outcome %s", result.Outcome)
	}
	if result.WinningOffer.SupplierID != cheap.ID {
		t.Fatalf("winner %s", result.WinningOffer.SupplierID)
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", f.order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if order.Status != enums.OrderStatusAssigned || order.SupplierID == nil || *order.SupplierID != cheap.ID {
		t.Fatalf("order %+v", order)
	}

	// The path through CREDIT_RESERVED must be on record for delivery.
	var count int64
	if err := f.db.Model(&models.OrderTransition{}).
		Where("order_id = ? AND to_status = ?", f.order.ID, enums.OrderStatusCreditReserved).
		Count(&count).Error; err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if count != 1 {
		t.Fatalf("credit reserved transitions: %d", count)
	}

	var reservation models.CreditReservation
	if err := f.db.First(&reservation, "order_id = ?", f.order.ID).Error; err != nil {
		t.Fatalf("credit reservation: %v", err)
	}
	if reservation.Status != enums.CreditReservationActive || !reservation.ReservationAmount.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("reservation %+v", reservation)
	}

	var product models.SupplierProduct
	if err := f.db.First(&product, "supplier_id = ?", cheap.ID).Error; err != nil {
		t.Fatalf("stock: %v", err)
	}
	if product.ReservedStock != 2 {
		t.Fatalf("reserved stock %d", product.ReservedStock)
	}

	var losing int64
	if err := f.db.Model(&models.VendorOffer{}).
		Where("order_id = ? AND status = ?", f.order.ID, enums.OfferStatusRejected).
		Count(&losing).Error; err != nil {
		t.Fatalf("offers: %v", err)
	}
	if losing != 1 {
		t.Fatalf("rejected offers: %d", losing)
	}

	var events int64
	if err := f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderAssigned).
		Count(&events).Error; err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if events != 1 {
		t.Fatalf("assigned events: %d", events)
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	winner := f.addCandidate(t, "solo", 800, 5000, 10)

	first, err := f.coordinator.Decide(ctx, Input{OrderID: f.order.ID, ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("first decide: %v", err)
	}
	second, err := f.coordinator.Decide(ctx, Input{OrderID: f.order.ID, ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if second.Outcome != OutcomeIdempotent {
		t.Fatalf("outcome %s", second.Outcome)
	}
	if first.WinningOffer.ID != second.WinningOffer.ID || second.WinningOffer.SupplierID != winner.ID {
		t.Fatal("replay changed the winner")
	}

	var reservations int64
	if err := f.db.Model(&models.CreditReservation{}).Where("order_id = ?", f.order.ID).Count(&reservations).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if reservations != 1 {
		t.Fatalf("reservations: %d", reservations)
	}
}

func TestDecideFallsBackWhenBestCannotBeFunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	// Best score but the buyer has no credit line with this supplier.
	f.addCandidate(t, "unfunded", 500, 0, 10)
	funded := f.addCandidate(t, "funded", 900, 5000, 10)

	result, err := f.coordinator.Decide(ctx, Input{OrderID: f.order.ID, ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if result.WinningOffer.SupplierID != funded.ID {
		t.Fatalf("winner %s", result.WinningOffer.SupplierID)
	}

	// The skipped candidate must leave no partial holds.
	var reservations int64
	if err := f.db.Model(&models.CreditReservation{}).Count(&reservations).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if reservations != 1 {
		t.Fatalf("reservations: %d", reservations)
	}
}

func TestDecideFallsBackWhenStockRanOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	// Cheapest candidate confirmed stock at bid time but it ran out since.
	f.addCandidate(t, "outofstock", 500, 5000, 1)
	stocked := f.addCandidate(t, "stocked", 900, 5000, 10)

	result, err := f.coordinator.Decide(ctx, Input{OrderID: f.order.ID, ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if result.WinningOffer.SupplierID != stocked.ID {
		t.Fatalf("winner %s", result.WinningOffer.SupplierID)
	}
}

func TestDecideRejectsWithoutOffers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.coordinator.Decide(context.Background(), Input{OrderID: f.order.ID, ActorID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecideFailsWhenNoCandidateFits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Credit line too small for the only bid.
	f.addCandidate(t, "poor", 800, 100, 10)

	_, err := f.coordinator.Decide(context.Background(), Input{OrderID: f.order.ID, ActorID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientResource {
		t.Fatalf("unexpected error: %v", err)
	}

	// The order stays broadcasting so a later re-decision can run.
	var order models.Order
	if err := f.db.First(&order, "id = ?", f.order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if order.Status != enums.OrderStatusBroadcasting {
		t.Fatalf("status %s", order.Status)
	}
}

func TestDecideExcludesNamedSuppliers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	excluded := f.addCandidate(t, "excluded", 500, 5000, 10)
	fallback := f.addCandidate(t, "fallback", 900, 5000, 10)

	result, err := f.coordinator.Decide(ctx, Input{
		OrderID: f.order.ID,
		ActorID: uuid.New(),
		Exclude: []uuid.UUID{excluded.ID},
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if result.WinningOffer.SupplierID != fallback.ID {
		t.Fatalf("winner %s", result.WinningOffer.SupplierID)
	}
}
