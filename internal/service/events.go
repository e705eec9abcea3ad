package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
)

const eventListLimit = 100

type EventService struct {
	*base
}

// SelloutChange - результат смены статуса распродажи
type SelloutChange struct {
	Event    *models.Event `json:"event"`
	Notified int           `json:"waitlistNotified"`
}

func (s *EventService) List(ctx context.Context) ([]models.Event, error) {
	events, err := s.repos().Events.List(ctx, eventListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func (s *EventService) Create(ctx context.Context, req *models.CreateEventRequest) (*models.Event, error) {
	title := strings.TrimSpace(req.Title)
	venue := strings.TrimSpace(req.Venue)
	date := strings.TrimSpace(req.Date)
	if title == "" || len(title) > 200 {
		return nil, apperrors.Validation("Title is required (max 200 characters).")
	}
	if venue == "" || len(venue) > 200 {
		return nil, apperrors.Validation("Venue is required (max 200 characters).")
	}
	if date == "" || len(date) > 100 {
		return nil, apperrors.Validation("Date is required (max 100 characters).")
	}

	status, err := parseSellout(req.SelloutStatus, models.SelloutAvailable)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:            uuid.New().String(),
		Title:         title,
		Venue:         venue,
		Date:          date,
		SelloutStatus: status,
		CreatedAt:     s.now(),
	}
	if err := s.repos().Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

// UpdateSellout меняет статус распродажи.
// Возврат в AVAILABLE уведомляет активный лист ожидания.
func (s *EventService) UpdateSellout(ctx context.Context, id string, req *models.UpdateSelloutRequest) (*SelloutChange, error) {
	status, err := parseSellout(req.SelloutStatus, "")
	if err != nil {
		return nil, err
	}

	var event *models.Event
	var waiting []models.WaitlistEntry
	err = s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		event, err = r.Events.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get event: %w", err)
		}
		if event == nil {
			return apperrors.NotFound("Event not found.")
		}
		if err := r.Events.UpdateSellout(ctx, id, status); err != nil {
			return fmt.Errorf("failed to update sellout status: %w", err)
		}
		event.SelloutStatus = status

		if status != models.SelloutAvailable {
			return nil
		}
		waiting, err = r.Waitlist.ListActiveByEvent(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list waitlist: %w", err)
		}
		if len(waiting) == 0 {
			return nil
		}
		if _, err := r.Waitlist.MarkNotified(ctx, id); err != nil {
			return fmt.Errorf("failed to mark waitlist notified: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(waiting) > 0 {
		userIDs := make([]string, 0, len(waiting))
		for _, w := range waiting {
			userIDs = append(userIDs, w.UserID)
		}
		s.publish(ctx, models.EventWaitlistNotified, models.WaitlistNotifiedEvent{
			EventID:   event.ID,
			Title:     event.Title,
			UserIDs:   userIDs,
			Timestamp: s.now(),
		})
	}
	return &SelloutChange{Event: event, Notified: len(waiting)}, nil
}

func parseSellout(value, def string) (string, error) {
	status := strings.ToUpper(strings.TrimSpace(value))
	if status == "" && def != "" {
		return def, nil
	}
	if status != models.SelloutAvailable && status != models.SelloutSoldOut {
		return "", apperrors.Validation("selloutStatus must be AVAILABLE or SOLD_OUT.")
	}
	return status, nil
}
