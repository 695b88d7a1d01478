package main

import (
	"context"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/outbox"
	"github.com/mandexhq/mandex-backend/pkg/outbox/registry"
)

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePubSub struct {
	pingErr error
}

func (f *fakePubSub) Ping(context.Context) error { return f.pingErr }

func (f *fakePubSub) Publisher(name string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeResolver struct {
	err   error
	topic string
}

func (f *fakeResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         f.topic,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now().UTC(),
		},
	}, nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.calls++
	return &fakeResult{err: f.err}
}

type fakeResult struct {
	err error
}

func (f *fakeResult) Get(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func testEvent(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderBroadcast,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func newTestService(t *testing.T, repo *fakeRepo, dlq *fakeDLQ, resolver registryResolver, pub publisher) *Service {
	t.Helper()
	cfg := &config.Config{
		Outbox: config.OutboxConfig{
			BatchSize:      10,
			PollIntervalMS: 5,
			MaxAttempts:    3,
		},
	}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSub{},
		Repository: repo,
		Registry:   resolver,
		PublisherFactory: func(topic string) publisher {
			return pub
		},
		DLQRepository: dlq,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestProcessBatchPublishes(t *testing.T) {
	event := testEvent(0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, dlq, &fakeResolver{topic: "domain-events"}, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report work")
	}
	if pub.calls != 1 {
		t.Fatalf("expected one publish, got %d", pub.calls)
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("expected empty dlq, got %d entries", len(dlq.entries))
	}
}

func TestProcessBatchMarksFailureForRetry(t *testing.T) {
	event := testEvent(0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}
	svc := newTestService(t, repo, dlq, &fakeResolver{topic: "domain-events"}, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("expected event marked failed, got %v", repo.failed)
	}
	if len(repo.terminal) != 0 || len(dlq.entries) != 0 {
		t.Fatal("retryable failure must not reach the dlq")
	}
}

func TestProcessBatchParksNonRetryable(t *testing.T) {
	event := testEvent(0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: registry.NewNonRetryableError(errors.New("payload rejected"))}
	svc := newTestService(t, repo, dlq, &fakeResolver{topic: "domain-events"}, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal mark, got %v", repo.terminal)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq reason %q", dlq.entries[0].ErrorReason)
	}
	if dlq.entries[0].EventID != event.ID {
		t.Fatalf("dlq entry points at wrong event %s", dlq.entries[0].EventID)
	}
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := testEvent(2)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}
	svc := newTestService(t, repo, dlq, &fakeResolver{topic: "domain-events"}, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retry mark, got %v", repo.failed)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal mark, got %v", repo.terminal)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max attempts dlq entry, got %+v", dlq.entries)
	}
}

func TestProcessBatchParksUnresolvableEvent(t *testing.T) {
	event := testEvent(0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	svc := newTestService(t, repo, dlq, &fakeResolver{err: errors.New("unknown event type")}, &fakePublisher{})

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	if err == nil {
		t.Fatal("expected error for empty params")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	current := base
	for i := 0; i < 20; i++ {
		current = nextBackoff(current, base, maxBackoff)
	}
	if current != maxBackoff {
		t.Fatalf("expected backoff capped at %v, got %v", maxBackoff, current)
	}
}
