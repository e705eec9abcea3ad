package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrNotConfigured - ключи шлюза не заданы
	ErrNotConfigured = errors.New("payment gateway is not configured")
	// ErrInvalidSignature - подпись вебхука не сошлась
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Типы событий вебхука, которые обрабатывает сервис
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// IntentRequest - параметры PaymentIntent для заказа
type IntentRequest struct {
	OrderID     string
	BuyerID     string
	SellerID    string
	AmountCents int64
	Currency    string
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// WebhookEvent - проверенное событие шлюза в нейтральном виде
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
	Raw      json.RawMessage
}

// PaymentGateway - платежный шлюз, за которым сейчас стоит Stripe
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	currency      string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	g := &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		currency:      strings.ToLower(cfg.Currency),
	}
	if g.currency == "" {
		g.currency = "cad"
	}
	if cfg.SecretKey != "" {
		g.sc = client.New(cfg.SecretKey, nil)
	}
	return g
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if g.sc == nil {
		return nil, ErrNotConfigured
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)
	params.AddMetadata("buyerId", req.BuyerID)
	params.AddMetadata("sellerId", req.SellerID)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// ParseWebhook проверяет подпись и достает id PaymentIntent и orderId из metadata
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Raw:  event.Data.Raw,
	}

	switch result.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		result.IntentID = pi.ID
		result.OrderID = pi.Metadata["orderId"]
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			result.IntentID = ch.PaymentIntent.ID
		}
		result.OrderID = ch.Metadata["orderId"]
	}

	return result, nil
}
