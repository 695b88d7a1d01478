package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/auction"
	"github.com/mandexhq/mandex-backend/internal/credit"
	"github.com/mandexhq/mandex-backend/internal/decision"
	"github.com/mandexhq/mandex-backend/internal/messaging"
	"github.com/mandexhq/mandex-backend/internal/orders"
	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/auth"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/metrics"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "mandex-test",
			ExpirationMinutes: 15,
		},
		Auction:  config.AuctionConfig{BidWindow: 2 * time.Hour, DefaultEta: 24 * time.Hour},
		Decision: config.DecisionConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}
}

func newRouterFixture(t *testing.T) (http.Handler, *gorm.DB, *config.Config) {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
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

	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test"})
	sender := messaging.NewLogSender(logg)
	events := outbox.NewService(outbox.NewRepository(db), logg)

	orderRepo := orders.NewRepository(db)
	supplierRepo := suppliers.NewRepository(db)
	offerRepo := auction.NewRepository(db)

	auctionSvc, err := auction.NewService(cfg.Auction, offerRepo, orderRepo, supplierRepo, logg)
	if err != nil {
		t.Fatalf("auction service: %v", err)
	}
	ordersSvc, err := orders.NewService(db, orderRepo, supplierRepo, offerRepo, events, sender, cfg.Auction, logg)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	coordinator, err := decision.NewCoordinator(db, orderRepo, auctionSvc, offerRepo, supplierRepo,
		events, sender, metrics.NewDecisionMetrics(prometheus.NewRegistry()), cfg.Decision, logg)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	handler := NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          db,
		OrdersRepo:  orderRepo,
		OrdersSvc:   ordersSvc,
		AuctionSvc:  auctionSvc,
		Coordinator: coordinator,
		SupplierRep: supplierRepo,
		CreditRepo:  credit.NewRepository(db),
	})
	return handler, db, cfg
}

func mintToken(t *testing.T, cfg *config.Config, actorID uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		ActorID: actorID,
		Role:    role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return envelope.Error
}

func TestHealthLiveIsPublic(t *testing.T) {
	handler, _, _ := newRouterFixture(t)

	rec := doRequest(t, handler, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestOrdersRequireAuth(t *testing.T) {
	handler, _, _ := newRouterFixture(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/orders", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/orders", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestBuyerRoutesRejectSupplierRole(t *testing.T) {
	handler, _, cfg := newRouterFixture(t)
	token := mintToken(t, cfg, uuid.New(), enums.RoleSupplier)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/orders", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for supplier on buyer route, got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Code != "FORBIDDEN" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	handler, db, cfg := newRouterFixture(t)
	buyerID := uuid.New()
	token := mintToken(t, cfg, buyerID, enums.RoleBuyer)

	body := map[string]any{
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "quantity": 3},
		},
		"total_amount": "149.99",
	}
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/orders", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var count int64
	if err := db.Model(&models.Order{}).Where("buyer_id = ?", buyerID).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one persisted order, got %d", count)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/orders", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing orders, got %d", rec.Code)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	handler, _, cfg := newRouterFixture(t)
	token := mintToken(t, cfg, uuid.New(), enums.RoleBuyer)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"items":        []map[string]any{},
		"total_amount": "10.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items, got %d (%s)", rec.Code, rec.Body.String())
	}
	apiErr := decodeError(t, rec)
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}
}

func TestSupplierStockRoundTrip(t *testing.T) {
	handler, db, cfg := newRouterFixture(t)
	supplierID := uuid.New()
	if err := db.Create(&models.Supplier{
		ID:       supplierID,
		Name:     "Stock Depot",
		Active:   true,
		Verified: true,
	}).Error; err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	token := mintToken(t, cfg, supplierID, enums.RoleSupplier)
	productID := uuid.New()

	rec := doRequest(t, handler, http.MethodPut, "/api/v1/supplier/stock", token, map[string]any{
		"product_id": productID.String(),
		"stock":      25,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting stock, got %d (%s)", rec.Code, rec.Body.String())
	}

	var row models.SupplierProduct
	if err := db.Where("supplier_id = ? AND product_id = ?", supplierID, productID).First(&row).Error; err != nil {
		t.Fatalf("load stock row: %v", err)
	}
	if row.Stock != 25 {
		t.Fatalf("expected stock 25, got %d", row.Stock)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/supplier/stock", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing stock, got %d", rec.Code)
	}
}

func TestAdminRoutesRejectBuyerRole(t *testing.T) {
	handler, _, cfg := newRouterFixture(t)
	token := mintToken(t, cfg, uuid.New(), enums.RoleBuyer)

	rec := doRequest(t, handler, http.MethodPost, "/api/admin/v1/suppliers", token, map[string]any{
		"name": "Side Door Supply",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer on admin route, got %d", rec.Code)
	}
}
