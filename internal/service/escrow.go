package service

import (
	"context"
	"fmt"
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

// Производное состояние escrow заказа
const (
	EscrowStateNotFunded    = "NOT_FUNDED"
	EscrowStateFundsHeld    = "FUNDS_HELD"
	EscrowStateReleaseReady = "RELEASE_READY"
	EscrowStateReleased     = "RELEASED"
	EscrowStateRefunded     = "REFUNDED"
	EscrowStateFailed       = "FAILED"
	EscrowStateCancelled    = "CANCELLED"
)

const (
	escrowTimeoutReason  = "Escrow timeout - order expired"
	releaseBackReason    = "Released back to seller"
	escrowTimeoutBatch   = 200
	providerManualEscrow = "manual"
)

// EscrowService - метки хранения билетов. Денег сервис не держит.
type EscrowService struct {
	*base
	cfg config.MarketplaceConfig
}

func deriveEscrowState(order *models.Order, payment *models.Payment) string {
	paymentStatus := ""
	if payment != nil {
		paymentStatus = payment.Status
	}

	switch {
	case order.Status == models.OrderRefunded || paymentStatus == models.PaymentRefunded:
		return EscrowStateRefunded
	case paymentStatus == models.PaymentFailed:
		return EscrowStateFailed
	case order.Status == models.OrderCancelled:
		return EscrowStateCancelled
	case paymentStatus != models.PaymentSucceeded:
		return EscrowStateNotFunded
	case order.Status == models.OrderDelivered:
		return EscrowStateReleaseReady
	case order.Status == models.OrderCompleted:
		return EscrowStateReleased
	default:
		return EscrowStateFundsHeld
	}
}

// OrderEscrow - состояние escrow заказа; доступно покупателю, продавцу и администратору
func (s *EscrowService) OrderEscrow(ctx context.Context, viewer *models.User, orderID string) (*models.EscrowView, error) {
	order, err := loadOrder(ctx, s.repos(), orderID)
	if err != nil {
		return nil, err
	}
	if !canViewOrder(viewer, order) {
		return nil, apperrors.Forbidden("You do not have access to this order.")
	}
	return s.view(ctx, order)
}

func (s *EscrowService) view(ctx context.Context, order *models.Order) (*models.EscrowView, error) {
	r := s.repos()
	payment, err := r.Payments.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	escrows, err := r.Escrows.ListByTicketIDs(ctx, order.TicketIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}
	if escrows == nil {
		escrows = []models.TicketEscrow{}
	}

	return &models.EscrowView{
		OrderID:     order.ID,
		OrderStatus: order.Status,
		State:       deriveEscrowState(order, payment),
		Payment:     payment,
		Tickets:     escrows,
	}, nil
}

// TicketEscrow возвращает запись escrow билета или nil, если билет еще не депонирован
func (s *EscrowService) TicketEscrow(ctx context.Context, viewer *models.User, ticketID string) (*models.TicketEscrow, error) {
	r := s.repos()
	ticket, err := s.ownedTicket(ctx, r, viewer, ticketID)
	if err != nil {
		return nil, err
	}
	escrow, err := r.Escrows.GetByTicketID(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}
	return escrow, nil
}

// Deposit помечает билет как переданный на хранение
func (s *EscrowService) Deposit(ctx context.Context, viewer *models.User, ticketID string, req *models.EscrowDepositRequest) (*models.TicketEscrow, error) {
	now := s.now()
	var escrow *models.TicketEscrow

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		ticket, err := s.ownedTicket(ctx, r, viewer, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != models.TicketAvailable {
			return apperrors.Conflict(apperrors.CodeBadState, "Only AVAILABLE tickets can be deposited.")
		}
		if ticket.VerificationStatus == models.VerificationRejected {
			return apperrors.Conflict(apperrors.CodeBadState, "Rejected tickets cannot be deposited.")
		}

		provider := strings.TrimSpace(req.Provider)
		if provider == "" {
			provider = providerManualEscrow
		}
		escrow = &models.TicketEscrow{
			ID:          uuid.New().String(),
			TicketID:    ticket.ID,
			State:       models.EscrowInEscrow,
			Provider:    &provider,
			DepositedAt: &now,
			UpdatedAt:   now,
		}
		if ref := strings.TrimSpace(req.ProviderRef); ref != "" {
			escrow.ProviderRef = &ref
		}
		if err := r.Escrows.Upsert(ctx, escrow); err != nil {
			return fmt.Errorf("failed to upsert escrow: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// ReleaseToBuyer передает билеты оплаченного заказа покупателю
func (s *EscrowService) ReleaseToBuyer(ctx context.Context, orderID string) (*models.EscrowView, error) {
	now := s.now()
	var order *models.Order

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case models.OrderPaid, models.OrderDelivered, models.OrderCompleted:
		default:
			return apperrors.Conflict(apperrors.CodeBadState, fmt.Sprintf("Order is %s, it must be paid first.", order.Status))
		}

		for _, ticketID := range order.TicketIDs() {
			escrow := &models.TicketEscrow{
				ID:         uuid.New().String(),
				TicketID:   ticketID,
				OrderID:    &order.ID,
				State:      models.EscrowReleasedToBuyer,
				ReleasedAt: &now,
				UpdatedAt:  now,
			}
			if err := r.Escrows.Upsert(ctx, escrow); err != nil {
				return fmt.Errorf("failed to upsert escrow: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventEscrowReleased, models.EscrowReleasedEvent{
		OrderID:   order.ID,
		TicketIDs: order.TicketIDs(),
		State:     models.EscrowReleasedToBuyer,
		Timestamp: now,
	})
	return s.view(ctx, order)
}

// ReleaseBack возвращает непроданные билеты заказа в продажу и метит escrow как возвращенный продавцу
func (s *EscrowService) ReleaseBack(ctx context.Context, orderID string, req *models.EscrowReleaseRequest) (*models.EscrowView, error) {
	now := s.now()
	reason := releaseBackReason
	if req != nil && strings.TrimSpace(req.Reason) != "" {
		reason = strings.TrimSpace(req.Reason)
	}

	var order *models.Order
	var released int64
	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		order, err = loadOrder(ctx, r, orderID)
		if err != nil {
			return err
		}
		released, err = releaseOrderBack(ctx, r, order, reason, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.TicketsReleased("released_back", released)
	s.publish(ctx, models.EventEscrowReleased, models.EscrowReleasedEvent{
		OrderID:   order.ID,
		TicketIDs: order.TicketIDs(),
		State:     models.EscrowReleasedBackToSeller,
		Reason:    reason,
		Timestamp: now,
	})
	return s.view(ctx, order)
}

// SweepTimeouts отменяет оплаченные заказы, которые не были доставлены за EscrowTimeout
func (s *EscrowService) SweepTimeouts(ctx context.Context) (*models.EscrowTimeoutResult, error) {
	defer metrics.ObserveSweep("escrow_timeout", time.Now())

	now := s.now()
	orders, err := s.repos().Orders.ListPaidBefore(ctx, now.Add(-s.cfg.EscrowTimeout), escrowTimeoutBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list paid orders: %w", err)
	}

	result := &models.EscrowTimeoutResult{OrderIDs: []string{}}
	for i := range orders {
		order := &orders[i]
		var processed bool
		var released int64

		err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
			payment, err := r.Payments.GetByOrderID(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("failed to get payment: %w", err)
			}
			if payment == nil || payment.Status != models.PaymentSucceeded {
				return nil
			}

			n, err := r.Orders.UpdateStatus(ctx, order.ID, []string{models.OrderPaid}, models.OrderCancelled, now)
			if err != nil {
				return fmt.Errorf("failed to cancel order: %w", err)
			}
			if n != 1 {
				return nil
			}

			released, err = releaseOrderBack(ctx, r, order, escrowTimeoutReason, now)
			if err != nil {
				return err
			}
			processed = true
			return nil
		})
		if err != nil {
			logger.WithContext(ctx).Error("Failed to time out escrow",
				"error", err,
				"order_id", order.ID)
			continue
		}
		if !processed {
			continue
		}

		result.Processed++
		result.OrderIDs = append(result.OrderIDs, order.ID)
		order.Status = models.OrderCancelled
		metrics.OrderTransition(models.OrderCancelled)
		metrics.TicketsReleased("escrow_timeout", released)
		s.publish(ctx, models.EventOrderCancelled, orderEvent(order, now, escrowTimeoutReason))
	}

	return result, nil
}

// releaseOrderBack: непроданные билеты -> AVAILABLE, escrow каждого билета -> RELEASED_BACK_TO_SELLER
func releaseOrderBack(ctx context.Context, r *repository.Repositories, order *models.Order, reason string, now time.Time) (int64, error) {
	ticketIDs := order.TicketIDs()
	released, err := r.Tickets.Release(ctx, ticketIDs, false, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release tickets: %w", err)
	}
	for _, ticketID := range ticketIDs {
		escrow := &models.TicketEscrow{TicketID: ticketID}
		if err := releaseBack(ctx, r, escrow, order.ID, reason, now); err != nil {
			return 0, err
		}
	}
	return released, nil
}

func releaseBack(ctx context.Context, r *repository.Repositories, escrow *models.TicketEscrow, orderID, reason string, now time.Time) error {
	if escrow.ID == "" {
		escrow.ID = uuid.New().String()
	}
	escrow.OrderID = &orderID
	escrow.State = models.EscrowReleasedBackToSeller
	escrow.ReleasedAt = &now
	escrow.Reason = &reason
	escrow.UpdatedAt = now
	if err := r.Escrows.Upsert(ctx, escrow); err != nil {
		return fmt.Errorf("failed to upsert escrow: %w", err)
	}
	return nil
}

func (s *EscrowService) ownedTicket(ctx context.Context, r *repository.Repositories, viewer *models.User, ticketID string) (*models.Ticket, error) {
	ticket, err := r.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, apperrors.NotFound("Ticket not found.")
	}
	if !viewer.IsAdmin() && (viewer.SellerID == nil || *viewer.SellerID != ticket.SellerID) {
		return nil, apperrors.Forbidden("You do not own this ticket.")
	}
	return ticket, nil
}
