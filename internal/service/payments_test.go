package service

import (
	"net/http"
	"testing"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/external"
	"truefantix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 10000, nil))

	res, err := f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, "pi_"+order.ID, res.PaymentIntentID)
	assert.Equal(t, int64(10875), res.AmountCents)
	assert.Equal(t, "CAD", res.Currency)

	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, "cad", f.gateway.requests[0].Currency)
	assert.Equal(t, *seller.SellerID, f.gateway.requests[0].SellerID)

	payment, err := f.store.Repos().Payments.GetByOrderID(f.ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, models.ProviderStripe, payment.Provider)
	assert.Equal(t, res.PaymentIntentID, payment.ProviderRef)
}

func TestCreateIntentRejections(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	stranger := f.user("stranger", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 10000, nil))

	_, err := f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)

	_, err = f.svc.Payments.CreateIntent(f.ctx, stranger, &models.CreateIntentRequest{OrderID: order.ID})
	requireAPIError(t, err, http.StatusForbidden, apperrors.CodeForbidden)

	f.advance(20 * time.Minute)
	_, err = f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{OrderID: order.ID})
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeReservationExpired)

	paid := f.checkout(buyer, f.ticket(seller, 10000, nil))
	_, err = f.svc.Orders.Capture(f.ctx, paid.ID)
	require.NoError(t, err)
	_, err = f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{OrderID: paid.ID})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeInvalidStatus)

	f.gateway.err = external.ErrNotConfigured
	other := f.checkout(buyer, f.ticket(seller, 10000, nil))
	_, err = f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{OrderID: other.ID})
	requireAPIError(t, err, http.StatusServiceUnavailable, apperrors.CodeConfig)

	f.svc.Payments.gateway = nil
	_, err = f.svc.Payments.CreateIntent(f.ctx, buyer, &models.CreateIntentRequest{OrderID: other.ID})
	requireAPIError(t, err, http.StatusServiceUnavailable, apperrors.CodeConfig)
}

func TestWebhookPaymentSucceeded(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 10000, nil))

	f.gateway.event = &external.WebhookEvent{
		ID:       "evt_1",
		Type:     external.EventPaymentSucceeded,
		IntentID: "pi_123",
		OrderID:  order.ID,
	}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "t=1,v1=sig"))

	assert.Equal(t, models.OrderPaid, f.getOrder(order.ID).Status)
	payment, err := f.store.Repos().Payments.GetByOrderID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.Equal(t, "pi_123", payment.ProviderRef)
	assert.Equal(t, 1, f.pub.count(models.EventOrderPaid))

	// повторная доставка
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "t=1,v1=sig"))
	assert.Equal(t, models.OrderPaid, f.getOrder(order.ID).Status)
	assert.Equal(t, 1, f.pub.count(models.EventOrderPaid))

	// запоздавший failed не перетирает успешный платеж
	f.gateway.event = &external.WebhookEvent{ID: "evt_2", Type: external.EventPaymentFailed, IntentID: "pi_123", OrderID: order.ID}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "t=1,v1=sig"))
	payment, err = f.store.Repos().Payments.GetByOrderID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 10000, nil))

	f.gateway.event = &external.WebhookEvent{ID: "evt_1", Type: external.EventPaymentFailed, IntentID: "pi_9", OrderID: order.ID}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig"))

	assert.Equal(t, models.OrderPending, f.getOrder(order.ID).Status)
	payment, err := f.store.Repos().Payments.GetByOrderID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)

	view, err := f.svc.Orders.Get(f.ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateFailed, view.EscrowState)
}

func TestWebhookIgnoresUnknownOrdersAndEvents(t *testing.T) {
	f := newFixture(t)

	f.gateway.event = &external.WebhookEvent{ID: "evt_1", Type: external.EventPaymentSucceeded, IntentID: "pi_1", OrderID: "missing"}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig"))

	f.gateway.event = &external.WebhookEvent{ID: "evt_2", Type: external.EventPaymentSucceeded, IntentID: "pi_1"}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig"))

	f.gateway.event = &external.WebhookEvent{ID: "evt_3", Type: "customer.created"}
	require.NoError(t, f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig"))

	assert.Equal(t, 0, f.pub.count(models.EventOrderPaid))
}

func TestWebhookSignatureErrors(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "")
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeMissingSignature)

	f.gateway.err = external.ErrInvalidSignature
	err = f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "bad")
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeInvalidSignature)

	f.gateway.err = external.ErrNotConfigured
	err = f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig")
	requireAPIError(t, err, http.StatusInternalServerError, apperrors.CodeConfig)

	f.svc.Payments.gateway = nil
	err = f.svc.Payments.HandleWebhook(f.ctx, []byte(`{}`), "sig")
	requireAPIError(t, err, http.StatusInternalServerError, apperrors.CodeConfig)
}
