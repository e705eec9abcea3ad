package service

import (
	"context"
	"fmt"

	"truefantix/internal/models"
)

type OpsService struct {
	*base
}

// poolReporter реализует только Postgres-хранилище
type poolReporter interface {
	PoolStats() models.PoolStats
}

// Metrics - сводка по заказам и билетам для администратора
func (s *OpsService) Metrics(ctx context.Context) (*models.OpsMetrics, error) {
	r := s.repos()
	now := s.now()

	byStatus, err := r.Orders.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	for _, status := range []string{
		models.OrderPending, models.OrderPaid, models.OrderDelivered,
		models.OrderCompleted, models.OrderCancelled, models.OrderRefunded,
	} {
		if _, ok := byStatus[status]; !ok {
			byStatus[status] = 0
		}
	}

	reserved, expired, pending, err := r.Tickets.Stats(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket stats: %w", err)
	}

	out := &models.OpsMetrics{
		OrdersByStatus:      byStatus,
		ReservedTickets:     reserved,
		ExpiredReservations: expired,
		PendingVerification: pending,
		GeneratedAt:         now,
	}
	if p, ok := s.store.(poolReporter); ok {
		stats := p.PoolStats()
		out.Pool = &stats
	}
	return out, nil
}

// Ping проверяет доступность хранилища для health check
func (s *OpsService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
