package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/logger"
	"truefantix/internal/metrics"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
)

const (
	orderListLimit = 50
	reverseReason  = "Order reversed"
)

// errIdempotencyRace - параллельный checkout с тем же ключом успел создать заказ первым
var errIdempotencyRace = errors.New("order with idempotency key created concurrently")

// OrderService - резервирование билетов и машина состояний заказа
type OrderService struct {
	*base
	cfg     config.MarketplaceConfig
	credits *CreditService
}

// Checkout резервирует билеты за новым PENDING-заказом.
// Повтор с тем же ключом возвращает существующий заказ.
func (s *OrderService) Checkout(ctx context.Context, buyer *models.User, req *models.CheckoutRequest) (*models.CheckoutResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, apperrors.Validation("Idempotency-Key is required.")
	}
	if buyer.SellerID == nil {
		return nil, apperrors.Validation("Buyer wallet is missing.")
	}
	buyerSellerID := *buyer.SellerID

	if existing, err := s.repos().Orders.GetByIdempotencyKey(ctx, buyerSellerID, key); err != nil {
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	} else if existing != nil {
		return &models.CheckoutResult{Order: existing, Replay: true}, nil
	}

	ticketIDs := uniqueIDs(req.TicketIDs)
	if len(ticketIDs) == 0 {
		return nil, apperrors.Validation("ticketIds must contain at least one ticket.")
	}
	if len(ticketIDs) > s.cfg.MaxTicketsPerOrder {
		return nil, apperrors.Validation(fmt.Sprintf("At most %d tickets per order.", s.cfg.MaxTicketsPerOrder))
	}

	now := s.now()
	reservedUntil := now.Add(s.cfg.ReservationWindow)
	order := &models.Order{
		ID:             uuid.New().String(),
		BuyerSellerID:  buyerSellerID,
		Status:         models.OrderPending,
		IdempotencyKey: key,
		CreatedAt:      now,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		tickets, err := r.Tickets.GetByIDs(ctx, ticketIDs)
		if err != nil {
			return fmt.Errorf("failed to get tickets: %w", err)
		}
		if len(tickets) != len(ticketIDs) {
			return apperrors.NotFound("One or more tickets were not found.")
		}

		sellerID := tickets[0].SellerID
		for _, t := range tickets {
			if t.SellerID != sellerID {
				return apperrors.New(http.StatusBadRequest, apperrors.CodeMixedSellers, "All tickets in an order must come from one seller.")
			}
			if t.SellerID == buyerSellerID {
				return apperrors.New(http.StatusBadRequest, apperrors.CodeSelfPurchase, "You cannot buy your own tickets.")
			}
			if t.VerificationStatus != models.VerificationVerified {
				return apperrors.Conflict(apperrors.CodeTicketNotVerified, "Ticket is not verified yet.")
			}
		}

		soldOut, err := soldOutEvents(ctx, r, tickets)
		if err != nil {
			return err
		}
		if required := countSoldOut(tickets, soldOut) * s.cfg.SoldOutCreditCost; required > 0 {
			wallet, err := r.Sellers.GetByID(ctx, buyerSellerID)
			if err != nil {
				return fmt.Errorf("failed to get buyer wallet: %w", err)
			}
			if wallet == nil || wallet.CreditBalanceCredits < required {
				return apperrors.New(http.StatusBadRequest, apperrors.CodeInsufficientCredits,
					fmt.Sprintf("Sold-out events require %d access tokens.", required))
			}
		}

		var amount int64
		for _, t := range tickets {
			amount += t.PriceCents
		}
		order.SellerID = sellerID
		order.AmountCents = amount
		order.AdminFeeCents = models.FeeCents(amount, s.cfg.AdminFeeBps)
		order.TotalCents = amount + order.AdminFeeCents

		if err := r.Orders.Create(ctx, order); err != nil {
			if apperrors.Is(err, apperrors.ErrDuplicate) {
				return errIdempotencyRace
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, t := range tickets {
			n, err := r.Tickets.Reserve(ctx, t.ID, order.ID, reservedUntil, now)
			if err != nil {
				return fmt.Errorf("failed to reserve ticket: %w", err)
			}
			if n != 1 {
				return apperrors.Conflict(apperrors.CodeTicketUnavailable, "One or more tickets are no longer available.")
			}

			item := models.OrderItem{
				ID:             uuid.New().String(),
				OrderID:        order.ID,
				TicketID:       t.ID,
				PriceCents:     t.PriceCents,
				FaceValueCents: t.FaceValueCents,
			}
			if err := r.Orders.AddItem(ctx, &item); err != nil {
				return fmt.Errorf("failed to add order item: %w", err)
			}
			order.Items = append(order.Items, item)
		}
		return nil
	})
	if errors.Is(err, errIdempotencyRace) {
		existing, getErr := s.repos().Orders.GetByIdempotencyKey(ctx, buyerSellerID, key)
		if getErr != nil || existing == nil {
			return nil, fmt.Errorf("failed to reload order after idempotency race: %w", err)
		}
		return &models.CheckoutResult{Order: existing, Replay: true}, nil
	}
	if err != nil {
		return nil, err
	}

	order.UpdatedAt = now
	metrics.OrderTransition(models.OrderPending)
	s.publish(ctx, models.EventOrderCreated, orderEvent(order, now, ""))

	return &models.CheckoutResult{Order: order, ReservedUntil: &reservedUntil}, nil
}

// ExpireReservations отменяет PENDING-заказы с истекшим резервом и возвращает билеты в продажу.
// Каждый заказ обрабатывается в своей транзакции.
func (s *OrderService) ExpireReservations(ctx context.Context) (*models.SweepResult, error) {
	defer metrics.ObserveSweep("expire_reservations", time.Now())

	now := s.now()
	expired, err := s.repos().Tickets.ListExpiredReserved(ctx, now, s.cfg.ExpireBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	result := &models.SweepResult{Scanned: len(expired), OrderIDs: []string{}}
	for _, t := range expired {
		if t.ReservedByOrderID != nil && !slices.Contains(result.OrderIDs, *t.ReservedByOrderID) {
			result.OrderIDs = append(result.OrderIDs, *t.ReservedByOrderID)
		}
	}
	result.AffectedOrders = len(result.OrderIDs)

	for _, orderID := range result.OrderIDs {
		var cancelled bool
		var released int64
		err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
			n, err := r.Orders.UpdateStatus(ctx, orderID, []string{models.OrderPending}, models.OrderCancelled, now)
			if err != nil {
				return fmt.Errorf("failed to cancel order: %w", err)
			}
			cancelled = n == 1

			released, err = r.Tickets.ReleaseExpiredForOrder(ctx, orderID, now)
			if err != nil {
				return fmt.Errorf("failed to release tickets: %w", err)
			}
			return nil
		})
		if err != nil {
			logger.WithContext(ctx).Error("Failed to expire reservation",
				"error", err,
				"order_id", orderID)
			continue
		}

		result.TicketsReleased += int(released)
		metrics.TicketsReleased("expired", released)
		if cancelled {
			result.OrdersCancelled++
			metrics.OrderTransition(models.OrderCancelled)
			if order, err := s.repos().Orders.GetByID(ctx, orderID); err == nil && order != nil {
				s.publish(ctx, models.EventOrderCancelled, orderEvent(order, now, "Reservation expired"))
			}
		}
	}

	return result, nil
}

// Capture - ручная оплата администратором: PENDING -> PAID
func (s *OrderService) Capture(ctx context.Context, orderID string) (*models.TransitionResult, error) {
	now := s.now()
	var order *models.Order

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			return apperrors.BadState(fmt.Sprintf("Order is %s, expected PENDING.", order.Status))
		}
		if len(order.Items) == 0 {
			return apperrors.BadState("Order has no items.")
		}
		if err := checkReservations(ctx, r, order, now); err != nil {
			return err
		}

		payment := &models.Payment{
			ID:          uuid.New().String(),
			OrderID:     order.ID,
			Status:      models.PaymentSucceeded,
			AmountCents: order.TotalCents,
			Currency:    models.CurrencyCAD,
			Provider:    models.ProviderManual,
			ProviderRef: "manual_" + order.ID,
			UpdatedAt:   now,
		}
		if err := r.Payments.Upsert(ctx, payment); err != nil {
			return fmt.Errorf("failed to upsert payment: %w", err)
		}

		return s.transition(ctx, r, order, models.OrderPending, models.OrderPaid, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransition(models.OrderPaid)
	s.publish(ctx, models.EventOrderPaid, orderEvent(order, now, ""))
	return &models.TransitionResult{Order: order}, nil
}

// Deliver переводит билеты в SOLD одним CAS-апдейтом: PAID -> DELIVERED
func (s *OrderService) Deliver(ctx context.Context, orderID string) (*models.TransitionResult, error) {
	now := s.now()
	var order *models.Order

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPaid {
			return apperrors.Conflict(apperrors.CodeBadState, fmt.Sprintf("Order is %s, expected PAID.", order.Status))
		}
		if err := requirePaymentSucceeded(ctx, r, order.ID); err != nil {
			return err
		}
		if err := checkReservations(ctx, r, order, now); err != nil {
			return err
		}

		n, err := r.Tickets.MarkSold(ctx, order.TicketIDs(), order.ID, now)
		if err != nil {
			return fmt.Errorf("failed to mark tickets sold: %w", err)
		}
		if n != int64(len(order.Items)) {
			return apperrors.Conflict(apperrors.CodeDeliveryConflict, "Tickets changed while delivering the order.")
		}

		return s.transition(ctx, r, order, models.OrderPaid, models.OrderDelivered, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransition(models.OrderDelivered)
	s.publish(ctx, models.EventOrderDelivered, orderEvent(order, now, ""))
	return &models.TransitionResult{Order: order}, nil
}

// Complete закрывает заказ: списывает токены покупателя и начисляет продавцу за билеты на sold-out события
func (s *OrderService) Complete(ctx context.Context, orderID string) (*models.TransitionResult, error) {
	now := s.now()
	var order *models.Order
	var replay bool

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCompleted {
			replay = true
			return nil
		}
		if order.Status != models.OrderDelivered {
			return apperrors.Conflict(apperrors.CodeBadState, fmt.Sprintf("Order is %s, expected DELIVERED.", order.Status))
		}
		if err := requirePaymentSucceeded(ctx, r, order.ID); err != nil {
			return err
		}

		tickets, err := r.Tickets.GetByIDs(ctx, order.TicketIDs())
		if err != nil {
			return fmt.Errorf("failed to get tickets: %w", err)
		}
		if len(tickets) != len(order.Items) {
			return apperrors.Conflict(apperrors.CodeTicketMissing, "One or more order tickets are missing.")
		}
		for _, t := range tickets {
			if t.Status != models.TicketSold {
				return apperrors.Conflict(apperrors.CodeBadState, "All tickets must be SOLD before completion.")
			}
		}

		if err := s.transition(ctx, r, order, models.OrderDelivered, models.OrderCompleted, now); err != nil {
			return err
		}

		soldOut, err := soldOutEvents(ctx, r, tickets)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if t.EventID == nil || !soldOut[*t.EventID] {
				continue
			}
			if err := s.settleSoldOut(ctx, r, order, t.ID); err != nil {
				return err
			}
		}

		if err := r.Sellers.AddMetrics(ctx, order.SellerID, order.AmountCents, 1, int64(len(order.Items)), now); err != nil {
			return fmt.Errorf("failed to update seller metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replay {
		return &models.TransitionResult{Order: order, Replay: true}, nil
	}

	metrics.OrderTransition(models.OrderCompleted)
	s.publish(ctx, models.EventOrderCompleted, orderEvent(order, now, ""))
	return &models.TransitionResult{Order: order}, nil
}

// settleSoldOut - пара записей журнала за один билет: SPENT покупателя и EARNED продавца
func (s *OrderService) settleSoldOut(ctx context.Context, r *repository.Repositories, order *models.Order, ticketID string) error {
	cost := s.cfg.SoldOutCreditCost

	spent := &models.CreditTransaction{
		SellerID:      order.BuyerSellerID,
		OrderID:       &order.ID,
		TicketID:      &ticketID,
		Type:          models.CreditSpent,
		Source:        models.CreditSourceSoldOutPurchase,
		AmountCredits: -cost,
	}
	if _, err := s.credits.post(ctx, r, spent, false); err != nil {
		if apperrors.Is(err, apperrors.ErrInsufficientCredits) {
			return apperrors.Conflict(apperrors.CodeInsufficientCredits, "Buyer does not have enough access tokens.")
		}
		return fmt.Errorf("failed to post buyer spend: %w", err)
	}

	earned := &models.CreditTransaction{
		SellerID:      order.SellerID,
		OrderID:       &order.ID,
		TicketID:      &ticketID,
		Type:          models.CreditEarned,
		Source:        models.CreditSourceSoldOutSale,
		AmountCredits: cost,
	}
	if _, err := s.credits.post(ctx, r, earned, true); err != nil {
		return fmt.Errorf("failed to post seller earning: %w", err)
	}
	return nil
}

// Reverse отменяет заказ администратором: билеты обратно в продажу, токены возвращаются покупателю.
// Продавец может уйти в минус (clawback).
func (s *OrderService) Reverse(ctx context.Context, orderID string, req *models.ReverseRequest) (*models.ReverseResult, error) {
	now := s.now()
	result := &models.ReverseResult{}

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		order, err := loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		result.Order = order

		switch order.Status {
		case models.OrderCancelled:
			result.Replay = true
			return nil
		case models.OrderRefunded:
			return apperrors.BadState("Refunded orders cannot be reversed.")
		}

		if err := s.transition(ctx, r, order, order.Status, models.OrderCancelled, now); err != nil {
			return err
		}

		reversed, err := s.reverseCredits(ctx, r, order)
		if err != nil {
			return err
		}
		result.CreditsReversed = reversed

		ticketIDs := order.TicketIDs()
		released, err := r.Tickets.Release(ctx, ticketIDs, true, now)
		if err != nil {
			return fmt.Errorf("failed to release tickets: %w", err)
		}
		result.TicketsReleased = int(released)

		escrows, err := r.Escrows.ListByTicketIDs(ctx, ticketIDs)
		if err != nil {
			return fmt.Errorf("failed to list escrows: %w", err)
		}
		for i := range escrows {
			if err := releaseBack(ctx, r, &escrows[i], order.ID, reverseReason, now); err != nil {
				return err
			}
		}
		result.EscrowsReleased = len(escrows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Replay {
		return result, nil
	}

	reason := reverseReason
	if req != nil && strings.TrimSpace(req.Reason) != "" {
		reason = strings.TrimSpace(req.Reason)
	}
	metrics.OrderTransition(models.OrderCancelled)
	metrics.TicketsReleased("reversed", int64(result.TicketsReleased))
	s.publish(ctx, models.EventOrderReversed, orderEvent(result.Order, now, reason))
	return result, nil
}

// reverseCredits пишет REVERSAL на каждый SPENT заказа без парной записи; возвращает сумму возврата покупателю
func (s *OrderService) reverseCredits(ctx context.Context, r *repository.Repositories, order *models.Order) (int64, error) {
	entries, err := r.Credits.ListByOrder(ctx, order.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list order ledger: %w", err)
	}

	type entryKey struct{ seller, ticket, txType string }
	seen := make(map[entryKey]bool, len(entries))
	for _, e := range entries {
		if e.TicketID != nil {
			seen[entryKey{e.SellerID, *e.TicketID, e.Type}] = true
		}
	}

	var total int64
	for _, e := range entries {
		if e.Type != models.CreditSpent || e.SellerID != order.BuyerSellerID || e.TicketID == nil {
			continue
		}
		ticketID := *e.TicketID
		if seen[entryKey{order.BuyerSellerID, ticketID, models.CreditReversal}] {
			continue
		}

		refund := -e.AmountCredits
		buyerEntry := &models.CreditTransaction{
			SellerID:      order.BuyerSellerID,
			OrderID:       &order.ID,
			TicketID:      &ticketID,
			Type:          models.CreditReversal,
			Source:        models.CreditSourceReversal,
			AmountCredits: refund,
		}
		if _, err := s.credits.post(ctx, r, buyerEntry, true); err != nil {
			return 0, fmt.Errorf("failed to post buyer reversal: %w", err)
		}
		total += refund

		if !seen[entryKey{order.SellerID, ticketID, models.CreditEarned}] {
			continue
		}
		sellerEntry := &models.CreditTransaction{
			SellerID:      order.SellerID,
			OrderID:       &order.ID,
			TicketID:      &ticketID,
			Type:          models.CreditReversal,
			Source:        models.CreditSourceReversal,
			AmountCredits: -refund,
		}
		if _, err := s.credits.post(ctx, r, sellerEntry, true); err != nil {
			return 0, fmt.Errorf("failed to post seller reversal: %w", err)
		}
	}
	return total, nil
}

// Get - заказ с платежом и состоянием escrow; доступен покупателю, продавцу и администратору
func (s *OrderService) Get(ctx context.Context, viewer *models.User, orderID string) (*models.OrderView, error) {
	r := s.repos()
	order, err := loadOrder(ctx, r, orderID)
	if err != nil {
		return nil, err
	}
	if !canViewOrder(viewer, order) {
		return nil, apperrors.Forbidden("You do not have access to this order.")
	}

	payment, err := r.Payments.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &models.OrderView{
		Order:       order,
		Payment:     payment,
		EscrowState: deriveEscrowState(order, payment),
	}, nil
}

// List - заказы покупателя, новые первыми
func (s *OrderService) List(ctx context.Context, buyer *models.User) ([]models.Order, error) {
	if buyer.SellerID == nil {
		return []models.Order{}, nil
	}
	orders, err := s.repos().Orders.ListByBuyer(ctx, *buyer.SellerID, orderListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// transition - CAS статуса заказа; проигранная гонка превращается в 409
func (s *OrderService) transition(ctx context.Context, r *repository.Repositories, order *models.Order, from, to string, now time.Time) error {
	n, err := r.Orders.UpdateStatus(ctx, order.ID, []string{from}, to, now)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n != 1 {
		return apperrors.Conflict(apperrors.CodeBadState, "Order status changed concurrently.")
	}
	order.Status = to
	order.UpdatedAt = now
	return nil
}

func loadOrder(ctx context.Context, r *repository.Repositories, orderID string) (*models.Order, error) {
	order, err := r.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, apperrors.NotFound("Order not found.")
	}
	return order, nil
}

func requirePaymentSucceeded(ctx context.Context, r *repository.Repositories, orderID string) error {
	payment, err := r.Payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil || payment.Status != models.PaymentSucceeded {
		return apperrors.Conflict(apperrors.CodePaymentNotSucceeded, "Payment has not succeeded.")
	}
	return nil
}

// checkReservations - все билеты заказа в живом резерве именно этого заказа
func checkReservations(ctx context.Context, r *repository.Repositories, order *models.Order, now time.Time) error {
	tickets, err := r.Tickets.GetByIDs(ctx, order.TicketIDs())
	if err != nil {
		return fmt.Errorf("failed to get tickets: %w", err)
	}
	byID := make(map[string]models.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}

	for _, item := range order.Items {
		t, ok := byID[item.TicketID]
		if !ok {
			return apperrors.New(http.StatusBadRequest, apperrors.CodeTicketMissing, "Ticket "+item.TicketID+" is missing.")
		}
		if !t.ReservedBy(order.ID) {
			return apperrors.Conflict(apperrors.CodeReservationMismatch, "Ticket is not reserved by this order.")
		}
		if t.ReservationExpired(now) {
			return apperrors.Conflict(apperrors.CodeReservationExpired, "Reservation has expired.")
		}
	}
	return nil
}

func soldOutEvents(ctx context.Context, r *repository.Repositories, tickets []models.Ticket) (map[string]bool, error) {
	var ids []string
	for _, t := range tickets {
		if t.EventID != nil && !slices.Contains(ids, *t.EventID) {
			ids = append(ids, *t.EventID)
		}
	}
	soldOut := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return soldOut, nil
	}

	events, err := r.Events.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	for id, e := range events {
		soldOut[id] = e.IsSoldOut()
	}
	return soldOut, nil
}

func countSoldOut(tickets []models.Ticket, soldOut map[string]bool) int64 {
	var n int64
	for _, t := range tickets {
		if t.EventID != nil && soldOut[*t.EventID] {
			n++
		}
	}
	return n
}

func canViewOrder(viewer *models.User, order *models.Order) bool {
	if viewer.IsAdmin() {
		return true
	}
	if viewer.SellerID == nil {
		return false
	}
	return *viewer.SellerID == order.BuyerSellerID || *viewer.SellerID == order.SellerID
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func orderEvent(order *models.Order, at time.Time, reason string) models.OrderEvent {
	return models.OrderEvent{
		OrderID:       order.ID,
		BuyerSellerID: order.BuyerSellerID,
		SellerID:      order.SellerID,
		Status:        order.Status,
		TotalCents:    order.TotalCents,
		TicketIDs:     order.TicketIDs(),
		Reason:        reason,
		Timestamp:     at,
	}
}
