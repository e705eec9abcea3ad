package service

import (
	"context"
	"fmt"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/google/uuid"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// Типы уведомлений
const (
	NotificationOrderUpdate    = "ORDER_UPDATE"
	NotificationSale           = "SALE"
	NotificationWaitlistOpened = "WAITLIST_OPENED"
)

type NotificationService struct {
	*base
}

func (s *NotificationService) List(ctx context.Context, user *models.User, filter models.NotificationFilter) (*models.NotificationPage, error) {
	filter.Limit = clampLimit(filter.Limit, defaultNotificationLimit, maxNotificationLimit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, unread, err := s.repos().Notifications.List(ctx, user.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &models.NotificationPage{Items: items, Total: total, UnreadCount: unread}, nil
}

// MarkRead отмечает прочитанными указанные id или все уведомления
func (s *NotificationService) MarkRead(ctx context.Context, user *models.User, req *models.MarkNotificationsRequest) (int64, error) {
	r := s.repos()
	var n int64
	var err error
	switch {
	case req.MarkAll:
		n, err = r.Notifications.MarkAllRead(ctx, user.ID)
	case len(req.IDs) > 0:
		n, err = r.Notifications.MarkRead(ctx, user.ID, uniqueIDs(req.IDs))
	default:
		return 0, apperrors.Validation("Provide ids or markAll.")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications: %w", err)
	}
	return n, nil
}

// Delete удаляет уведомления пользователя; olderThanDays=0 - без ограничения по возрасту
func (s *NotificationService) Delete(ctx context.Context, user *models.User, olderThanDays int, readOnly bool) (int64, error) {
	if olderThanDays < 0 {
		return 0, apperrors.Validation("olderThanDays must be a positive number.")
	}
	var olderThan *time.Time
	if olderThanDays > 0 {
		cutoff := s.now().AddDate(0, 0, -olderThanDays)
		olderThan = &cutoff
	}

	n, err := s.repos().Notifications.Delete(ctx, user.ID, olderThan, readOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return n, nil
}

// FromOrderEvent создает уведомления покупателю и продавцу по событию заказа
func (s *NotificationService) FromOrderEvent(ctx context.Context, evt models.OrderEvent) ([]models.Notification, error) {
	link := "/orders/" + evt.OrderID
	var created []models.Notification

	buyerMsg, sellerMsg := orderMessages(evt)
	targets := []struct {
		sellerID string
		kind     string
		message  string
	}{
		{evt.BuyerSellerID, NotificationOrderUpdate, buyerMsg},
		{evt.SellerID, NotificationSale, sellerMsg},
	}

	r := s.repos()
	for _, t := range targets {
		if t.sellerID == "" || t.message == "" {
			continue
		}
		user, err := r.Users.GetBySellerID(ctx, t.sellerID)
		if err != nil {
			return created, fmt.Errorf("failed to get user for seller: %w", err)
		}
		if user == nil {
			continue
		}
		n, err := s.create(ctx, user.ID, t.kind, t.message, &link)
		if err != nil {
			return created, err
		}
		created = append(created, *n)
	}
	return created, nil
}

// FromWaitlistEvent уведомляет лист ожидания, что событие снова в продаже
func (s *NotificationService) FromWaitlistEvent(ctx context.Context, evt models.WaitlistNotifiedEvent) ([]models.Notification, error) {
	link := "/events/" + evt.EventID
	message := fmt.Sprintf("Tickets for %s are available again.", evt.Title)

	created := make([]models.Notification, 0, len(evt.UserIDs))
	for _, userID := range evt.UserIDs {
		n, err := s.create(ctx, userID, NotificationWaitlistOpened, message, &link)
		if err != nil {
			return created, err
		}
		created = append(created, *n)
	}
	return created, nil
}

func (s *NotificationService) create(ctx context.Context, userID, kind, message string, link *string) (*models.Notification, error) {
	n := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		Link:      link,
		CreatedAt: s.now(),
	}
	if err := s.repos().Notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func orderMessages(evt models.OrderEvent) (buyer, seller string) {
	total := models.FormatCents(evt.TotalCents)
	switch evt.Status {
	case models.OrderPending:
		return fmt.Sprintf("Your order is reserved. Complete payment of $%s to keep your tickets.", total), ""
	case models.OrderPaid:
		return fmt.Sprintf("Payment of $%s received. Your tickets are held in escrow.", total),
			"You made a sale! Please prepare the tickets for delivery."
	case models.OrderDelivered:
		return "Your tickets have been delivered.", "Your tickets were delivered to the buyer."
	case models.OrderCompleted:
		return "Your order is complete. Enjoy the show!", "Your sale is complete."
	case models.OrderCancelled:
		reason := evt.Reason
		if reason == "" {
			reason = "Order cancelled"
		}
		return "Your order was cancelled: " + reason + ".", "An order for your tickets was cancelled: " + reason + "."
	}
	return "", ""
}
