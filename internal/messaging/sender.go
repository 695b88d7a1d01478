package messaging

import (
	"context"
	"encoding/json"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/pubsub"
)

// Message is one outbound notification to a supplier or buyer channel.
type Message struct {
	RecipientID uuid.UUID      `json:"recipientId"`
	OrderID     uuid.UUID      `json:"orderId"`
	Kind        string         `json:"kind"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	SentAt      time.Time      `json:"sentAt"`
}

// Sender dispatches notifications. Implementations never return an error:
// messaging is best effort and must not fail the business operation that
// triggered it.
type Sender interface {
	NotifySupplier(ctx context.Context, msg Message)
	NotifyBuyer(ctx context.Context, msg Message)
}

// PubSubSender publishes messages to the supplier and buyer topics.
type PubSubSender struct {
	suppliers *gcppubsub.Publisher
	buyers    *gcppubsub.Publisher
	logg      *logger.Logger
}

// NewPubSubSender wires the sender to the configured message topics.
func NewPubSubSender(client *pubsub.Client, logg *logger.Logger) *PubSubSender {
	return &PubSubSender{
		suppliers: client.SupplierPublisher(),
		buyers:    client.BuyerPublisher(),
		logg:      logg,
	}
}

// NotifySupplier publishes to the supplier topic. Failures are logged and
// swallowed.
func (s *PubSubSender) NotifySupplier(ctx context.Context, msg Message) {
	s.publish(ctx, s.suppliers, "supplier", msg)
}

// NotifyBuyer publishes to the buyer topic. Failures are logged and
// swallowed.
func (s *PubSubSender) NotifyBuyer(ctx context.Context, msg Message) {
	s.publish(ctx, s.buyers, "buyer", msg)
}

func (s *PubSubSender) publish(ctx context.Context, publisher *gcppubsub.Publisher, audience string, msg Message) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"audience":     audience,
		"recipient_id": msg.RecipientID.String(),
		"order_id":     msg.OrderID.String(),
		"kind":         msg.Kind,
	})
	if publisher == nil {
		s.logg.Warn(logCtx, "message topic not configured, dropping notification")
		return
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logg.Error(logCtx, "encoding notification failed", err)
		return
	}
	result := publisher.Publish(ctx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind":        msg.Kind,
			"recipientId": msg.RecipientID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		s.logg.Error(logCtx, "publishing notification failed", err)
		return
	}
	s.logg.Info(logCtx, "notification dispatched")
}

// LogSender writes notifications to the log instead of a broker. Used in
// development and tests.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender builds a log-only sender.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) NotifySupplier(ctx context.Context, msg Message) {
	s.log(ctx, "supplier", msg)
}

func (s *LogSender) NotifyBuyer(ctx context.Context, msg Message) {
	s.log(ctx, "buyer", msg)
}

func (s *LogSender) log(ctx context.Context, audience string, msg Message) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"audience":     audience,
		"recipient_id": msg.RecipientID.String(),
		"order_id":     msg.OrderID.String(),
		"kind":         msg.Kind,
		"body":         msg.Body,
	})
	s.logg.Info(logCtx, "notification dispatched")
}
