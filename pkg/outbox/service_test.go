package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	return db
}

func TestEmitStoresEnvelope(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()
	actor := &ActorRef{ActorID: uuid.New(), Role: "buyer"}

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data: payloads.OrderFailedEvent{
				OrderID:       orderID,
				BuyerID:       actor.ActorID,
				FailureReason: "NO_BIDS",
			},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := db.First(&row, "aggregate_id = ?", orderID).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if row.EventType != enums.EventOrderFailed {
		t.Fatalf("unexpected event type %s", row.EventType)
	}
	if row.PublishedAt != nil {
		t.Fatal("expected unpublished row")
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 || envelope.EventID == "" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if envelope.Actor == nil || envelope.Actor.Role != "buyer" {
		t.Fatalf("actor not carried: %+v", envelope.Actor)
	}

	var payload payloads.OrderFailedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.FailureReason != "NO_BIDS" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	productID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventStockInvariant,
		AggregateType: enums.AggregateOrder,
		AggregateID:   productID,
		Data:          payloads.StockInvariantViolationEvent{ProductID: productID, Stock: 1, ReservedStock: 3},
	}

	for i := 0; i < 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		if err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row, got %d", count)
	}
}

func TestFetchUnpublishedSkipsExhaustedRows(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	fresh := uuid.New()
	stale := uuid.New()
	for _, id := range []uuid.UUID{fresh, stale} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Data:          payloads.OrderCancelledEvent{OrderID: id, CancelledAt: time.Now()},
			})
		})
		if err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	if err := db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", stale).
		Update("attempt_count", 10).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 10)
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].AggregateID != fresh {
			t.Fatalf("unexpected batch: %+v", rows)
		}
		return repo.MarkPublishedTx(tx, rows[0].ID)
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 10)
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			t.Fatalf("expected drained batch, got %d rows", len(rows))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
}

func TestDeletePublishedBefore(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now()
	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderDelivered, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &old},
		{ID: uuid.New(), EventType: enums.EventOrderDelivered, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &recent},
		{ID: uuid.New(), EventType: enums.EventOrderDelivered, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().Add(-14*24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one deleted row, got %d", deleted)
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", count)
	}
}
