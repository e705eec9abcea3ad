package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"truefantix/internal/models"
	"truefantix/internal/realtime"

	"github.com/nats-io/stan.go"
)

// NotificationWriter - часть NotificationService, нужная консьюмерам
type NotificationWriter interface {
	FromOrderEvent(ctx context.Context, evt models.OrderEvent) ([]models.Notification, error)
	FromWaitlistEvent(ctx context.Context, evt models.WaitlistNotifiedEvent) ([]models.Notification, error)
}

// errMalformed - сообщение не разбирается; повторная доставка не поможет
var errMalformed = errors.New("malformed message")

type Handlers struct {
	notifications NotificationWriter
	notifier      realtime.Notifier
}

func NewHandlers(notifications NotificationWriter, notifier realtime.Notifier) *Handlers {
	if notifier == nil {
		notifier = realtime.NopNotifier{}
	}
	return &Handlers{
		notifications: notifications,
		notifier:      notifier,
	}
}

// HandleOrderEvent создает уведомления покупателю и продавцу и пушит их в PubNub
func (h *Handlers) HandleOrderEvent(m *stan.Msg) {
	ack(m, h.processOrderEvent(context.Background(), m.Data))
}

func (h *Handlers) HandleWaitlistNotified(m *stan.Msg) {
	ack(m, h.processWaitlistEvent(context.Background(), m.Data))
}

// HandleVerificationRequested только логирует: доставка email/SMS не подключена
func (h *Handlers) HandleVerificationRequested(m *stan.Msg) {
	ack(m, h.processVerificationRequested(m.Data))
}

func (h *Handlers) processOrderEvent(ctx context.Context, data []byte) error {
	var event models.OrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("Failed to unmarshal order event", "error", err)
		return errMalformed
	}

	slog.Info("Processing order event", "order_id", event.OrderID, "status", event.Status)

	created, err := h.notifications.FromOrderEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to create order notifications: %w", err)
	}
	h.push(ctx, created)
	return nil
}

func (h *Handlers) processWaitlistEvent(ctx context.Context, data []byte) error {
	var event models.WaitlistNotifiedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("Failed to unmarshal waitlist event", "error", err)
		return errMalformed
	}

	slog.Info("Processing waitlist event", "event_id", event.EventID, "users", len(event.UserIDs))

	created, err := h.notifications.FromWaitlistEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to create waitlist notifications: %w", err)
	}
	h.push(ctx, created)
	return nil
}

func (h *Handlers) processVerificationRequested(data []byte) error {
	var event models.VerificationRequestedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("Failed to unmarshal verification event", "error", err)
		return errMalformed
	}

	// код не пишем в лог целиком
	slog.Info("Verification code requested",
		"user_id", event.UserID,
		"channel", event.Channel,
		"destination", event.Destination,
		"expires_at", event.ExpiresAt)
	return nil
}

// push - best effort, ошибки только логируются
func (h *Handlers) push(ctx context.Context, items []models.Notification) {
	for _, n := range items {
		msg := map[string]any{
			"id":        n.ID,
			"type":      n.Type,
			"message":   n.Message,
			"createdAt": n.CreatedAt,
		}
		if n.Link != nil {
			msg["link"] = *n.Link
		}
		if err := h.notifier.Notify(ctx, n.UserID, msg); err != nil {
			slog.Warn("Failed to push realtime notification", "error", err, "user_id", n.UserID)
		}
	}
}

// ack подтверждает сообщение, кроме временных ошибок: их NATS доставит повторно
func ack(m *stan.Msg, err error) {
	if err != nil && !errors.Is(err, errMalformed) {
		slog.Error("Failed to process message, leaving for redelivery",
			"error", err, "subject", m.Subject, "sequence", m.Sequence, "redelivered", m.Redelivered)
		return
	}
	if ackErr := m.Ack(); ackErr != nil {
		slog.Error("Failed to ack message", "error", ackErr, "subject", m.Subject)
	}
}
