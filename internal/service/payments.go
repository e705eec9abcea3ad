package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/external"
	"truefantix/internal/logger"
	"truefantix/internal/metrics"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
)

type PaymentService struct {
	*base
	gateway  external.PaymentGateway
	currency string
}

func configError(message string, status int) *apperrors.APIError {
	return apperrors.New(status, apperrors.CodeConfig, message)
}

// CreateIntent создает PaymentIntent на полную сумму заказа и сохраняет Payment(PENDING)
func (s *PaymentService) CreateIntent(ctx context.Context, buyer *models.User, req *models.CreateIntentRequest) (*models.CreateIntentResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, apperrors.Validation("orderId is required.")
	}
	if s.gateway == nil {
		return nil, configError("Payments are not configured.", http.StatusServiceUnavailable)
	}

	r := s.repos()
	order, err := loadOrder(ctx, r, orderID)
	if err != nil {
		return nil, err
	}
	if buyer.SellerID == nil || *buyer.SellerID != order.BuyerSellerID {
		return nil, apperrors.Forbidden("You can only pay for your own orders.")
	}
	if order.Status != models.OrderPending {
		return nil, apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidStatus,
			fmt.Sprintf("Order is %s, expected PENDING.", order.Status))
	}
	if err := checkReservations(ctx, r, order, s.now()); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, external.IntentRequest{
		OrderID:     order.ID,
		BuyerID:     buyer.ID,
		SellerID:    order.SellerID,
		AmountCents: order.TotalCents,
		Currency:    s.currency,
	})
	if apperrors.Is(err, external.ErrNotConfigured) {
		return nil, configError("Payments are not configured.", http.StatusServiceUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.Payment{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		Status:      models.PaymentPending,
		AmountCents: order.TotalCents,
		Currency:    models.CurrencyCAD,
		Provider:    models.ProviderStripe,
		ProviderRef: intent.ID,
		UpdatedAt:   s.now(),
	}
	if err := r.Payments.Upsert(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to upsert payment: %w", err)
	}

	return &models.CreateIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		AmountCents:     order.TotalCents,
		Currency:        strings.ToUpper(intent.Currency),
	}, nil
}

// HandleWebhook проверяет подпись и применяет событие шлюза.
// Повторная доставка того же события ничего не меняет.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return configError("Webhook secret is not configured.", http.StatusInternalServerError)
	}
	if signature == "" {
		return apperrors.New(http.StatusBadRequest, apperrors.CodeMissingSignature, "Missing Stripe-Signature header.")
	}

	event, err := s.gateway.ParseWebhook(payload, signature)
	switch {
	case apperrors.Is(err, external.ErrNotConfigured):
		return configError("Webhook secret is not configured.", http.StatusInternalServerError)
	case apperrors.Is(err, external.ErrInvalidSignature):
		logger.WithContext(ctx).Warn("Webhook signature verification failed", "error", err)
		return apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidSignature, "Invalid webhook signature.")
	case err != nil:
		return fmt.Errorf("failed to parse webhook: %w", err)
	}

	metrics.WebhookEvent(event.Type)
	log := logger.WithContext(ctx).With("stripe_event_id", event.ID, "event_type", event.Type, "order_id", event.OrderID)

	switch event.Type {
	case external.EventPaymentSucceeded:
		if event.OrderID == "" {
			log.Error("No orderId in payment intent metadata")
			return nil
		}
		return s.markPaid(ctx, event)
	case external.EventPaymentFailed:
		if event.OrderID == "" {
			log.Error("No orderId in payment intent metadata")
			return nil
		}
		return s.markFailed(ctx, event)
	case external.EventChargeRefunded:
		log.Info("Charge refunded", "payment_intent_id", event.IntentID)
	default:
		log.Debug("Unhandled webhook event")
	}
	return nil
}

func (s *PaymentService) markPaid(ctx context.Context, event *external.WebhookEvent) error {
	now := s.now()
	var order *models.Order
	var transitioned bool

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = r.Orders.GetForUpdate(ctx, event.OrderID)
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		if order == nil {
			return nil
		}

		if err := s.upsertStripePayment(ctx, r, order, event.IntentID, models.PaymentSucceeded, now); err != nil {
			return err
		}

		n, err := r.Orders.UpdateStatus(ctx, order.ID, []string{models.OrderPending}, models.OrderPaid, now)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if n == 1 {
			transitioned = true
			order.Status = models.OrderPaid
			order.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return err
	}

	log := logger.WithContext(ctx).With("order_id", event.OrderID, "payment_intent_id", event.IntentID)
	switch {
	case order == nil:
		log.Warn("Payment succeeded for unknown order")
	case !transitioned && order.Status != models.OrderPaid:
		log.Warn("Payment succeeded but order is not payable", "status", order.Status)
	case transitioned:
		log.Info("Payment succeeded")
		metrics.OrderTransition(models.OrderPaid)
		s.publish(ctx, models.EventOrderPaid, orderEvent(order, now, ""))
	}
	return nil
}

func (s *PaymentService) markFailed(ctx context.Context, event *external.WebhookEvent) error {
	now := s.now()
	return s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		order, err := r.Orders.GetByID(ctx, event.OrderID)
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		if order == nil {
			return nil
		}
		// успешный платеж не перетирается запоздавшим failed
		existing, err := r.Payments.GetByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if existing != nil && existing.Status == models.PaymentSucceeded {
			return nil
		}
		return s.upsertStripePayment(ctx, r, order, event.IntentID, models.PaymentFailed, now)
	})
}

func (s *PaymentService) upsertStripePayment(ctx context.Context, r *repository.Repositories, order *models.Order, intentID, status string, now time.Time) error {
	payment := &models.Payment{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		Status:      status,
		AmountCents: order.TotalCents,
		Currency:    models.CurrencyCAD,
		Provider:    models.ProviderStripe,
		ProviderRef: intentID,
		UpdatedAt:   now,
	}
	if err := r.Payments.Upsert(ctx, payment); err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}
