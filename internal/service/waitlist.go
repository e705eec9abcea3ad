package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/google/uuid"
)

type WaitlistService struct {
	*base
}

func (s *WaitlistService) List(ctx context.Context, user *models.User, status string) ([]models.WaitlistEntry, error) {
	entries, err := s.repos().Waitlist.ListByUser(ctx, user.ID, strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	return entries, nil
}

// Join записывает пользователя в лист ожидания распроданного события.
// Повторная запись возвращает существующую.
func (s *WaitlistService) Join(ctx context.Context, user *models.User, req *models.JoinWaitlistRequest) (*models.WaitlistEntry, bool, error) {
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return nil, false, apperrors.Validation("eventId is required.")
	}

	r := s.repos()
	event, err := r.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, false, apperrors.NotFound("Event not found.")
	}
	if !event.IsSoldOut() {
		return nil, false, apperrors.New(http.StatusBadRequest, apperrors.CodeNotSoldOut, "Event is not sold out.")
	}

	existing, err := r.Waitlist.GetByUserEvent(ctx, user.ID, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	entry := &models.WaitlistEntry{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		EventID:   eventID,
		Status:    models.WaitlistActive,
		CreatedAt: s.now(),
	}
	if err := r.Waitlist.Create(ctx, entry); err != nil {
		if apperrors.Is(err, apperrors.ErrDuplicate) {
			existing, getErr := r.Waitlist.GetByUserEvent(ctx, user.ID, eventID)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return entry, true, nil
}
