package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.OrderTransition{},
		&models.VendorOffer{}, &models.Supplier{}, &models.SupplierProduct{},
		&models.StockReservation{}, &models.CreditAccount{}, &models.CreditReservation{},
		&models.LedgerEntry{}, &models.OutboxEvent{}, &models.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test"})
	svc, err := NewService(db, NewRepository(db), suppliers.NewRepository(db),
		auction.NewRepository(db), outbox.NewService(outbox.NewRepository(db), logg),
		messaging.NewLogSender(logg),
		config.AuctionConfig{BidWindow: 2 * time.Hour, DefaultEta: 24 * time.Hour},
		logg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	svc := newService(t, newTestDB(t))
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing buyer", CreateInput{
			Items:       []ItemInput{{ProductID: uuid.New(), Quantity: 1}},
			TotalAmount: decimal.NewFromInt(100),
		}},
		{"no items", CreateInput{
			BuyerID:     uuid.New(),
			TotalAmount: decimal.NewFromInt(100),
		}},
		{"zero quantity", CreateInput{
			BuyerID:     uuid.New(),
			Items:       []ItemInput{{ProductID: uuid.New(), Quantity: 0}},
			TotalAmount: decimal.NewFromInt(100),
		}},
		{"zero total", CreateInput{
			BuyerID: uuid.New(),
			Items:   []ItemInput{{ProductID: uuid.New(), Quantity: 1}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateAndValidate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		BuyerID:     uuid.New(),
		Items:       []ItemInput{{ProductID: uuid.New(), Quantity: 2}},
		TotalAmount: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != enums.OrderStatusCreated {
		t.Fatalf("status %s", order.Status)
	}

	validated, err := svc.Validate(ctx, order.ID, uuid.New())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.Status != enums.OrderStatusValidated {
		t.Fatalf("status %s", validated.Status)
	}

	var transitions int64
	if err := db.Model(&models.OrderTransition{}).Where("order_id = ?", order.ID).Count(&transitions).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if transitions != 1 {
		t.Fatalf("transitions: %d", transitions)
	}
}

func TestBroadcastFailsWithoutEligibleSuppliers(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		BuyerID:     uuid.New(),
		Items:       []ItemInput{{ProductID: uuid.New(), Quantity: 2}},
		TotalAmount: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Validate(ctx, order.ID, uuid.New()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	result, err := svc.Broadcast(ctx, order.ID, uuid.New())
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if result.Status != enums.OrderStatusFailed {
		t.Fatalf("status %s", result.Status)
	}
	if result.FailureReason == nil || *result.FailureReason != "no eligible suppliers" {
		t.Fatalf("failure reason %v", result.FailureReason)
	}

	var events int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderFailed).Count(&events).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if events != 1 {
		t.Fatalf("failed events: %d", events)
	}
}

func TestBroadcastOpensBidding(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	productID := uuid.New()

	supplier := models.Supplier{
		ID: uuid.New(), Name: "acme", Active: true, Verified: true,
		DeliveryRadiusKm: 100,
	}
	if err := db.Create(&supplier).Error; err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	if err := db.Create(&models.SupplierProduct{
		ID: uuid.New(), SupplierID: supplier.ID, ProductID: productID, Stock: 10,
	}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	order, err := svc.Create(ctx, CreateInput{
		BuyerID:     uuid.New(),
		Items:       []ItemInput{{ProductID: productID, Quantity: 2}},
		TotalAmount: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Validate(ctx, order.ID, uuid.New()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	before := time.Now()
	result, err := svc.Broadcast(ctx, order.ID, uuid.New())
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if result.Status != enums.OrderStatusBroadcasting {
		t.Fatalf("status %s", result.Status)
	}
	if result.BiddingDeadline.Before(before.Add(time.Hour)) {
		t.Fatalf("deadline not refreshed: %s", result.BiddingDeadline)
	}

	var events int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderBroadcast).Count(&events).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if events != 1 {
		t.Fatalf("broadcast events: %d", events)
	}
}

// seedAssigned builds an order that already went through the winner
// decision: supplier assigned, stock held, credit reserved, history
// containing CREDIT_RESERVED.
func seedAssigned(t *testing.T, db *gorm.DB) (*models.Order, *models.Supplier, *models.SupplierProduct) {
	t.Helper()
	ctx := context.Background()
	buyerID := uuid.New()
	productID := uuid.New()

	supplier := models.Supplier{ID: uuid.New(), Name: "winner", Active: true, Verified: true}
	if err := db.Create(&supplier).Error; err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	product := models.SupplierProduct{
		ID: uuid.New(), SupplierID: supplier.ID, ProductID: productID, Stock: 10,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if err := db.Create(&models.CreditAccount{
		ID: uuid.New(), BuyerID: buyerID, SupplierID: supplier.ID,
		CreditLimit: decimal.NewFromInt(10000), IsActive: true,
	}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	supplierID := supplier.ID
	order := models.Order{
		ID: uuid.New(), BuyerID: buyerID, SupplierID: &supplierID,
		TotalAmount: decimal.NewFromInt(1000), Status: enums.OrderStatusAssigned,
		BiddingDeadline: time.Now().Add(-time.Hour),
		Items:           []models.OrderItem{{ID: uuid.New(), ProductID: productID, Quantity: 2}},
	}
	order.Items[0].OrderID = order.ID
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if err := db.Create(&models.OrderTransition{
		ID: uuid.New(), OrderID: order.ID,
		FromStatus: enums.OrderStatusBroadcasting, ToStatus: enums.OrderStatusCreditReserved,
		PerformedBy: uuid.New(),
	}).Error; err != nil {
		t.Fatalf("seed transition: %v", err)
	}
	if err := db.Create(&models.VendorOffer{
		ID: uuid.New(), OrderID: order.ID, SupplierID: supplier.ID,
		PriceQuote: decimal.NewFromInt(900), EtaHours: 24,
		Status: enums.OfferStatusAccepted, SubmittedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := credit.ReserveTx(tx, order.ID, buyerID, supplier.ID, decimal.NewFromInt(900)); err != nil {
			return err
		}
		return inventory.Reserve(ctx, tx, order.ID, supplier.ID, order.Items)
	})
	if err != nil {
		t.Fatalf("seed holds: %v", err)
	}
	return &order, &supplier, &product
}

func TestDeliveryFlowSettlesEverything(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	order, supplier, product := seedAssigned(t, db)

	if _, err := svc.Confirm(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.MarkOutForDelivery(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	delivered, err := svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, ActorID: order.BuyerID})
	if err != nil {
		t.Fatalf("delivery: %v", err)
	}
	if delivered.Status != enums.OrderStatusDelivered {
		t.Fatalf("status %s", delivered.Status)
	}

	// Stock consumed, hold gone.
	var row models.SupplierProduct
	if err := db.First(&row, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("stock: %v", err)
	}
	if row.Stock != 8 || row.ReservedStock != 0 {
		t.Fatalf("stock %d reserved %d", row.Stock, row.ReservedStock)
	}

	// Reservation became a DEBIT at the offer price.
	var entry models.LedgerEntry
	if err := db.First(&entry, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if entry.EntryType != enums.LedgerEntryDebit || !entry.Amount.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("entry %+v", entry)
	}

	var winner models.Supplier
	if err := db.First(&winner, "id = ?", supplier.ID).Error; err != nil {
		t.Fatalf("supplier: %v", err)
	}
	if winner.CompletedOrders != 1 {
		t.Fatalf("completed orders %d", winner.CompletedOrders)
	}

	var events int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderDelivered).Count(&events).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if events != 1 {
		t.Fatalf("delivered events: %d", events)
	}
}

func TestConfirmRejectsWrongSupplier(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	order, _, _ := seedAssigned(t, db)

	_, err := svc.Confirm(context.Background(), order.ID, uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeliveryRequiresOutForDelivery(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	order, _, _ := seedAssigned(t, db)

	_, err := svc.ConfirmDelivery(context.Background(), DeliveryInput{OrderID: order.ID, ActorID: uuid.New()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReturnReversesDebit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	order, supplier, _ := seedAssigned(t, db)

	if _, err := svc.Confirm(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.MarkOutForDelivery(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	if _, err := svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, ActorID: order.BuyerID}); err != nil {
		t.Fatalf("delivery: %v", err)
	}

	returned, err := svc.Return(ctx, order.ID, order.BuyerID, "damaged goods")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != enums.OrderStatusReturned {
		t.Fatalf("status %s", returned.Status)
	}

	report, err := credit.VerifyChain(ctx, db, order.BuyerID, supplier.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Valid || report.Length != 2 || !report.Balance.IsZero() {
		t.Fatalf("report %+v", report)
	}
}

func TestCancelReleasesEverything(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	order, supplier, product := seedAssigned(t, db)

	cancelled, err := svc.Cancel(ctx, order.ID, order.BuyerID, "buyer changed their mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("status %s", cancelled.Status)
	}

	var row models.SupplierProduct
	if err := db.First(&row, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("stock: %v", err)
	}
	if row.Stock != 10 || row.ReservedStock != 0 {
		t.Fatalf("stock hold not released: stock %d reserved %d", row.Stock, row.ReservedStock)
	}

	var reservation models.CreditReservation
	if err := db.First(&reservation, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if reservation.Status != enums.CreditReservationReleased {
		t.Fatalf("credit hold not released: %s", reservation.Status)
	}

	// The supplier's credit line is fully usable again.
	available, err := credit.Available(ctx, db, order.BuyerID, supplier.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("available %s", available)
	}

	var events int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderCancelled).Count(&events).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if events != 1 {
		t.Fatalf("cancelled events: %d", events)
	}
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	order, supplier, _ := seedAssigned(t, db)

	if _, err := svc.Confirm(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.MarkOutForDelivery(ctx, order.ID, supplier.ID); err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	if _, err := svc.ConfirmDelivery(ctx, DeliveryInput{OrderID: order.ID, ActorID: order.BuyerID}); err != nil {
		t.Fatalf("delivery: %v", err)
	}

	_, err := svc.Cancel(ctx, order.ID, order.BuyerID, "too late")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}
