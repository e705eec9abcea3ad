package service

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutCaptureDeliver(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	ticket := f.ticket(seller, 10000, nil)

	res, err := f.svc.Orders.Checkout(f.ctx, buyer, &models.CheckoutRequest{
		TicketIDs:      []string{ticket.ID, ticket.ID},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.False(t, res.Replay)
	order := res.Order
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, int64(10000), order.AmountCents)
	assert.Equal(t, int64(875), order.AdminFeeCents)
	assert.Equal(t, int64(10875), order.TotalCents)
	require.Len(t, order.Items, 1)
	require.NotNil(t, res.ReservedUntil)
	assert.Equal(t, f.clock.Add(15*time.Minute), *res.ReservedUntil)

	reserved := f.getTicket(ticket.ID)
	assert.True(t, reserved.ReservedBy(order.ID))
	assert.Equal(t, 1, f.pub.count(models.EventOrderCreated))

	f.advance(5 * time.Minute)
	captured, err := f.svc.Orders.Capture(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, captured.Order.Status)

	payment, err := f.store.Repos().Payments.GetByOrderID(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.Equal(t, models.ProviderManual, payment.Provider)
	assert.Equal(t, "manual_"+order.ID, payment.ProviderRef)
	assert.Equal(t, int64(10875), payment.AmountCents)

	delivered, err := f.svc.Orders.Deliver(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, delivered.Order.Status)

	sold := f.getTicket(ticket.ID)
	assert.Equal(t, models.TicketSold, sold.Status)
	assert.NotNil(t, sold.SoldAt)
	assert.Nil(t, sold.ReservedByOrderID)
	assert.Nil(t, sold.ReservedUntil)
}

func TestCheckoutReplay(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	ticket := f.ticket(seller, 5000, nil)
	req := &models.CheckoutRequest{TicketIDs: []string{ticket.ID}, IdempotencyKey: "same-key"}

	first, err := f.svc.Orders.Checkout(f.ctx, buyer, req)
	require.NoError(t, err)

	second, err := f.svc.Orders.Checkout(f.ctx, buyer, req)
	require.NoError(t, err)
	assert.True(t, second.Replay)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, f.pub.count(models.EventOrderCreated))
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	other := f.user("other", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)

	ticket := f.ticket(seller, 5000, nil)
	otherTicket := f.ticket(other, 5000, nil)
	unverified := f.ticket(seller, 5000, nil)
	unverified.VerificationStatus = models.VerificationNeedsReview
	require.NoError(t, f.store.Repos().Tickets.UpdateVerification(f.ctx, unverified))
	soldOut := f.event(true)
	soldOutTicket := f.ticket(seller, 5000, &soldOut.ID)

	many := make([]string, 11)
	for i := range many {
		many[i] = f.ticket(seller, 100, nil).ID
	}

	tests := []struct {
		name   string
		buyer  *models.User
		req    models.CheckoutRequest
		status int
		code   string
	}{
		{"missing key", buyer, models.CheckoutRequest{TicketIDs: []string{ticket.ID}}, http.StatusBadRequest, apperrors.CodeValidation},
		{"no tickets", buyer, models.CheckoutRequest{IdempotencyKey: "k1"}, http.StatusBadRequest, apperrors.CodeValidation},
		{"too many", buyer, models.CheckoutRequest{TicketIDs: many, IdempotencyKey: "k2"}, http.StatusBadRequest, apperrors.CodeValidation},
		{"unknown ticket", buyer, models.CheckoutRequest{TicketIDs: []string{"missing"}, IdempotencyKey: "k3"}, http.StatusNotFound, apperrors.CodeNotFound},
		{"mixed sellers", buyer, models.CheckoutRequest{TicketIDs: []string{ticket.ID, otherTicket.ID}, IdempotencyKey: "k4"}, http.StatusBadRequest, apperrors.CodeMixedSellers},
		{"own ticket", seller, models.CheckoutRequest{TicketIDs: []string{ticket.ID}, IdempotencyKey: "k5"}, http.StatusBadRequest, apperrors.CodeSelfPurchase},
		{"unverified", buyer, models.CheckoutRequest{TicketIDs: []string{unverified.ID}, IdempotencyKey: "k6"}, http.StatusConflict, apperrors.CodeTicketNotVerified},
		{"sold out without tokens", buyer, models.CheckoutRequest{TicketIDs: []string{soldOutTicket.ID}, IdempotencyKey: "k7"}, http.StatusBadRequest, apperrors.CodeInsufficientCredits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.svc.Orders.Checkout(f.ctx, tt.buyer, &req)
			requireAPIError(t, err, tt.status, tt.code)
		})
	}

	assert.Equal(t, models.TicketAvailable, f.getTicket(ticket.ID).Status)
	assert.Equal(t, 0, f.pub.count(models.EventOrderCreated))
}

func TestCheckoutTicketUnavailableRollsBack(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	first := f.user("first", models.SellerStatusPending)
	second := f.user("second", models.SellerStatusPending)
	free := f.ticket(seller, 5000, nil)
	taken := f.ticket(seller, 5000, nil)

	f.checkout(first, taken)

	_, err := f.svc.Orders.Checkout(f.ctx, second, &models.CheckoutRequest{
		TicketIDs:      []string{free.ID, taken.ID},
		IdempotencyKey: "k",
	})
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeTicketUnavailable)

	existing, err := f.store.Repos().Orders.GetByIdempotencyKey(f.ctx, *second.SellerID, "k")
	require.NoError(t, err)
	assert.Nil(t, existing)
	assert.Equal(t, models.TicketAvailable, f.getTicket(free.ID).Status)
}

func TestCheckoutTakesOverExpiredReservation(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	first := f.user("first", models.SellerStatusPending)
	second := f.user("second", models.SellerStatusPending)
	ticket := f.ticket(seller, 5000, nil)

	f.checkout(first, ticket)
	f.advance(16 * time.Minute)

	order := f.checkout(second, ticket)
	assert.True(t, f.getTicket(ticket.ID).ReservedBy(order.ID))
}

func TestExpiredReservationBlocksCaptureAndIsSwept(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	ticket := f.ticket(seller, 5000, nil)
	order := f.checkout(buyer, ticket)

	f.advance(16 * time.Minute)
	_, err := f.svc.Orders.Capture(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeReservationExpired)

	result, err := f.svc.Orders.ExpireReservations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.AffectedOrders)
	assert.Equal(t, 1, result.OrdersCancelled)
	assert.Equal(t, 1, result.TicketsReleased)
	assert.Equal(t, []string{order.ID}, result.OrderIDs)

	assert.Equal(t, models.OrderCancelled, f.getOrder(order.ID).Status)
	released := f.getTicket(ticket.ID)
	assert.Equal(t, models.TicketAvailable, released.Status)
	assert.Nil(t, released.ReservedByOrderID)
	assert.Equal(t, 1, f.pub.count(models.EventOrderCancelled))

	again, err := f.svc.Orders.ExpireReservations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)
}

func TestCaptureRejectsNonPending(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 5000, nil))

	_, err := f.svc.Orders.Capture(f.ctx, order.ID)
	require.NoError(t, err)

	_, err = f.svc.Orders.Capture(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeBadState)

	_, err = f.svc.Orders.Capture(f.ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)
}

func TestCaptureWithMissingTicket(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 5000, nil))

	err := f.store.Repos().Orders.AddItem(f.ctx, &models.OrderItem{
		ID:         "item-ghost",
		OrderID:    order.ID,
		TicketID:   "ghost-ticket",
		PriceCents: 5000,
	})
	require.NoError(t, err)

	_, err = f.svc.Orders.Capture(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeTicketMissing)
	assert.Equal(t, models.OrderPending, f.getOrder(order.ID).Status)
}

func TestConcurrentCheckoutSellsTicketOnce(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	ticket := f.ticket(seller, 5000, nil)

	const buyers = 8
	users := make([]*models.User, buyers)
	for i := range users {
		users[i] = f.user(fmt.Sprintf("buyer%d", i), models.SellerStatusPending)
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Orders.Checkout(f.ctx, users[i], &models.CheckoutRequest{
				TicketIDs:      []string{ticket.ID},
				IdempotencyKey: fmt.Sprintf("race-%d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireAPIError(t, err, http.StatusConflict, apperrors.CodeTicketUnavailable)
	}
	assert.Equal(t, 1, succeeded)

	reserved := f.getTicket(ticket.ID)
	assert.Equal(t, models.TicketReserved, reserved.Status)
	require.NotNil(t, reserved.ReservedByOrderID)
}

func TestConcurrentReverseRestoresOnce(t *testing.T) {
	f := newFixture(t)
	buyer, seller, ticket, order := soldOutSale(f)
	_, err := f.svc.Orders.Complete(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.balance(buyer))
	require.Equal(t, int64(1), f.balance(seller))

	const callers = 6
	results := make([]*models.ReverseResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Orders.Reverse(f.ctx, order.ID, nil)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Replay {
			applied++
			assert.Equal(t, int64(1), results[i].CreditsReversed)
		}
	}
	assert.Equal(t, 1, applied)

	assert.Equal(t, int64(2), f.balance(buyer))
	assert.Equal(t, int64(0), f.balance(seller))
	f.requireLedgerConsistent(buyer, seller)
	assert.Equal(t, models.TicketAvailable, f.getTicket(ticket.ID).Status)
	assert.Equal(t, 1, f.pub.count(models.EventOrderReversed))
}

func TestDeliverRequiresSucceededPayment(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 5000, nil))

	_, err := f.svc.Orders.Deliver(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeBadState)

	n, err := f.store.Repos().Orders.UpdateStatus(f.ctx, order.ID, []string{models.OrderPending}, models.OrderPaid, f.clock)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = f.svc.Orders.Deliver(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusConflict, apperrors.CodePaymentNotSucceeded)
}

func TestDeliverAfterReservationExpiredRollsBack(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	ticket := f.ticket(seller, 5000, nil)
	order := f.checkout(buyer, ticket)

	_, err := f.svc.Orders.Capture(f.ctx, order.ID)
	require.NoError(t, err)

	f.advance(20 * time.Minute)
	_, err = f.svc.Orders.Deliver(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeReservationExpired)

	assert.Equal(t, models.OrderPaid, f.getOrder(order.ID).Status)
	assert.Equal(t, models.TicketReserved, f.getTicket(ticket.ID).Status)
}

// soldOutSale доводит заказ на билет распроданного события до DELIVERED
func soldOutSale(f *fixture) (buyer, seller *models.User, ticket *models.Ticket, order *models.Order) {
	f.t.Helper()
	seller = f.user("seller", models.SellerStatusApproved)
	buyer = f.user("buyer", models.SellerStatusPending)
	event := f.event(true)
	ticket = f.ticket(seller, 20000, &event.ID)
	f.grant(buyer, 2)

	order = f.checkout(buyer, ticket)
	_, err := f.svc.Orders.Capture(f.ctx, order.ID)
	require.NoError(f.t, err)
	_, err = f.svc.Orders.Deliver(f.ctx, order.ID)
	require.NoError(f.t, err)
	return buyer, seller, ticket, order
}

func TestCompleteMovesAccessTokens(t *testing.T) {
	f := newFixture(t)
	buyer, seller, _, order := soldOutSale(f)
	assert.Equal(t, int64(2), f.balance(buyer), "checkout does not move tokens")

	res, err := f.svc.Orders.Complete(f.ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.Equal(t, models.OrderCompleted, res.Order.Status)

	assert.Equal(t, int64(1), f.balance(buyer))
	assert.Equal(t, int64(1), f.balance(seller))
	f.requireLedgerConsistent(buyer, seller)

	metrics, err := f.store.Repos().Sellers.GetMetrics(f.ctx, *seller.SellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), metrics.LifetimeSalesCents)
	assert.Equal(t, int64(1), metrics.LifetimeOrders)
	assert.Equal(t, int64(1), metrics.LifetimeTicketsSold)

	replay, err := f.svc.Orders.Complete(f.ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, replay.Replay)
	assert.Equal(t, int64(1), f.balance(buyer))
	assert.Equal(t, 1, f.pub.count(models.EventOrderCompleted))
}

func TestCompleteWithoutTokensRollsBack(t *testing.T) {
	f := newFixture(t)
	buyer, seller, _, order := soldOutSale(f)

	_, err := f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{SellerID: *buyer.SellerID, AmountCredits: -2})
	require.NoError(t, err)

	_, err = f.svc.Orders.Complete(f.ctx, order.ID)
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeInsufficientCredits)

	assert.Equal(t, models.OrderDelivered, f.getOrder(order.ID).Status)
	assert.Equal(t, int64(0), f.balance(seller))
	f.requireLedgerConsistent(buyer, seller)
}

func TestReverseCompletedOrder(t *testing.T) {
	f := newFixture(t)
	buyer, seller, ticket, order := soldOutSale(f)

	_, err := f.svc.Escrow.ReleaseToBuyer(f.ctx, order.ID)
	require.NoError(t, err)
	_, err = f.svc.Orders.Complete(f.ctx, order.ID)
	require.NoError(t, err)

	res, err := f.svc.Orders.Reverse(f.ctx, order.ID, &models.ReverseRequest{Reason: "fraud"})
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.Equal(t, models.OrderCancelled, res.Order.Status)
	assert.Equal(t, 1, res.TicketsReleased)
	assert.Equal(t, int64(1), res.CreditsReversed)
	assert.Equal(t, 1, res.EscrowsReleased)

	assert.Equal(t, int64(2), f.balance(buyer))
	assert.Equal(t, int64(0), f.balance(seller))
	f.requireLedgerConsistent(buyer, seller)

	restored := f.getTicket(ticket.ID)
	assert.Equal(t, models.TicketAvailable, restored.Status)
	assert.Nil(t, restored.SoldAt)

	escrow, err := f.store.Repos().Escrows.GetByTicketID(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleasedBackToSeller, escrow.State)
	require.NotNil(t, escrow.Reason)
	assert.Equal(t, "Order reversed", *escrow.Reason)

	evt, ok := f.pub.last(models.EventOrderReversed).(models.OrderEvent)
	require.True(t, ok)
	assert.Equal(t, "fraud", evt.Reason)

	replay, err := f.svc.Orders.Reverse(f.ctx, order.ID, nil)
	require.NoError(t, err)
	assert.True(t, replay.Replay)
	assert.Equal(t, int64(2), f.balance(buyer))
	f.requireLedgerConsistent(buyer, seller)
}

func TestReverseClawbackMayGoNegative(t *testing.T) {
	f := newFixture(t)
	buyer, seller, _, order := soldOutSale(f)
	_, err := f.svc.Orders.Complete(f.ctx, order.ID)
	require.NoError(t, err)

	// продавец успел потратить заработанный токен
	_, err = f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{SellerID: *seller.SellerID, AmountCredits: -1})
	require.NoError(t, err)

	_, err = f.svc.Orders.Reverse(f.ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), f.balance(seller))
	f.requireLedgerConsistent(buyer, seller)
}

func TestReversePendingOrderWithoutLedger(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	ticket := f.ticket(seller, 5000, nil)
	order := f.checkout(buyer, ticket)

	res, err := f.svc.Orders.Reverse(f.ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.CreditsReversed)
	assert.Equal(t, models.TicketAvailable, f.getTicket(ticket.ID).Status)
}

func TestGetOrderAccess(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	stranger := f.user("stranger", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 5000, nil))

	for _, viewer := range []*models.User{buyer, seller, f.admin()} {
		view, err := f.svc.Orders.Get(f.ctx, viewer, order.ID)
		require.NoError(t, err)
		assert.Equal(t, EscrowStateNotFunded, view.EscrowState)
	}

	_, err := f.svc.Orders.Get(f.ctx, stranger, order.ID)
	requireAPIError(t, err, http.StatusForbidden, apperrors.CodeForbidden)

	orders, err := f.svc.Orders.List(f.ctx, buyer)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}
