package consumers

import (
	"context"
	"log/slog"

	"truefantix/internal/messaging"
	"truefantix/internal/models"

	"github.com/nats-io/stan.go"
)

const queueGroup = "truefantix-consumers"

// Subscriber - queue-подписка NATS Streaming
type Subscriber interface {
	SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error)
}

type ConsumerService struct {
	nats     Subscriber
	handlers *Handlers
	extra    map[string]stan.MsgHandler
	subs     []stan.Subscription
}

func NewConsumerService(nats Subscriber, handlers *Handlers) *ConsumerService {
	return &ConsumerService{
		nats:     nats,
		handlers: handlers,
		extra:    make(map[string]stan.MsgHandler),
	}
}

// Handle добавляет обработчик subject, живущий вне пакета (например, индексацию)
func (cs *ConsumerService) Handle(subject string, handler stan.MsgHandler) {
	cs.extra[subject] = handler
}

// routes - subject -> обработчик
func (cs *ConsumerService) routes() map[string]stan.MsgHandler {
	routes := map[string]stan.MsgHandler{
		models.EventVerificationRequested: cs.handlers.HandleVerificationRequested,
		models.EventWaitlistNotified:      cs.handlers.HandleWaitlistNotified,
	}
	for _, subject := range []string{
		models.EventOrderCreated,
		models.EventOrderPaid,
		models.EventOrderDelivered,
		models.EventOrderCompleted,
		models.EventOrderCancelled,
		models.EventOrderReversed,
	} {
		routes[subject] = cs.handlers.HandleOrderEvent
	}
	for subject, h := range cs.extra {
		routes[subject] = h
	}
	return routes
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	for subject, handler := range cs.routes() {
		sub, err := cs.nats.SubscribeQueue(subject, queueGroup, handler)
		if err != nil {
			cs.unsubscribe()
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs))
	return nil
}

// Shutdown закрывает подписки; durable-позиция в очереди сохраняется
func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")
	cs.unsubscribe()
	return ctx.Err()
}

func (cs *ConsumerService) unsubscribe() {
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}
	cs.subs = nil
}

var _ Subscriber = (*messaging.NATSClient)(nil)
