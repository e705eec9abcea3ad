package models

import "time"

// NATS Event Types
const (
	EventOrderCreated          = "order.created"
	EventOrderPaid             = "order.paid"
	EventOrderDelivered        = "order.delivered"
	EventOrderCompleted        = "order.completed"
	EventOrderCancelled        = "order.cancelled"
	EventOrderReversed         = "order.reversed"
	EventTicketListed          = "ticket.listed"
	EventTicketUpdated         = "ticket.updated"
	EventEscrowReleased        = "escrow.released"
	EventVerificationRequested = "verification.requested"
	EventWaitlistNotified      = "waitlist.notified"
)

// OrderEvent - изменение статуса заказа
type OrderEvent struct {
	OrderID       string    `json:"order_id"`
	BuyerSellerID string    `json:"buyer_seller_id"`
	SellerID      string    `json:"seller_id"`
	Status        string    `json:"status"`
	TotalCents    int64     `json:"total_cents"`
	TicketIDs     []string  `json:"ticket_ids"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TicketEvent - билет создан или изменен, нужна переиндексация
type TicketEvent struct {
	TicketID  string    `json:"ticket_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// EscrowReleasedEvent - билеты переведены покупателю или возвращены продавцу
type EscrowReleasedEvent struct {
	OrderID   string    `json:"order_id"`
	TicketIDs []string  `json:"ticket_ids"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VerificationRequestedEvent - код подтверждения для доставки по email/SMS
type VerificationRequestedEvent struct {
	UserID      string    `json:"user_id"`
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// WaitlistNotifiedEvent - событие снова доступно для листа ожидания
type WaitlistNotifiedEvent struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	UserIDs   []string  `json:"user_ids"`
	Timestamp time.Time `json:"timestamp"`
}
