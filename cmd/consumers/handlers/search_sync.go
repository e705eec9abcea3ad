package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/nats-io/stan.go"
)

// TicketLoader - чтение билета по id
type TicketLoader interface {
	Get(ctx context.Context, id string) (*models.Ticket, error)
}

// TicketIndexer - запись в поисковый индекс
type TicketIndexer interface {
	IndexTicket(ctx context.Context, t *models.Ticket) error
	DeleteTicket(ctx context.Context, id string) error
}

// SearchSyncHandler держит индекс Elasticsearch в соответствии с витриной
type SearchSyncHandler struct {
	tickets TicketLoader
	index   TicketIndexer
}

func NewSearchSyncHandler(tickets TicketLoader, index TicketIndexer) *SearchSyncHandler {
	return &SearchSyncHandler{
		tickets: tickets,
		index:   index,
	}
}

// HandleTicketChanged обрабатывает ticket.listed и ticket.updated
func (h *SearchSyncHandler) HandleTicketChanged(msg *stan.Msg) {
	var event models.TicketEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		slog.Error("Failed to unmarshal ticket event", "error", err)
		msg.Ack() // Acknowledge even on unmarshal error to avoid redelivery
		return
	}

	if err := h.Sync(context.Background(), event.TicketID); err != nil {
		slog.Error("Failed to sync ticket to search index", "error", err, "ticket_id", event.TicketID)
		// не подтверждаем: NATS доставит повторно после AckWait
		return
	}
	msg.Ack()
}

// Sync индексирует билет, если он виден в поиске, иначе удаляет документ
func (h *SearchSyncHandler) Sync(ctx context.Context, ticketID string) error {
	ticket, err := h.tickets.Get(ctx, ticketID)
	if apiErr, ok := apperrors.AsAPIError(err); ok && apiErr.Code == apperrors.CodeNotFound {
		return h.index.DeleteTicket(ctx, ticketID)
	}
	if err != nil {
		return fmt.Errorf("failed to load ticket: %w", err)
	}

	if !searchable(ticket) {
		slog.Debug("Removing ticket from search index", "ticket_id", ticket.ID, "status", ticket.Status)
		return h.index.DeleteTicket(ctx, ticket.ID)
	}

	if err := h.index.IndexTicket(ctx, ticket); err != nil {
		return err
	}
	slog.Info("Indexed ticket", "ticket_id", ticket.ID)
	return nil
}

func searchable(t *models.Ticket) bool {
	return t.Status == models.TicketAvailable && t.VerificationStatus == models.VerificationVerified
}
