package service

import (
	"context"
	"time"

	"truefantix/internal/cache"
	"truefantix/internal/config"
	"truefantix/internal/external"
	"truefantix/internal/logger"
	"truefantix/internal/messaging"
	"truefantix/internal/repository"
)

// TicketSearcher - полнотекстовый поиск; возвращает id билетов по релевантности
type TicketSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Deps - внешние зависимости сервисов
type Deps struct {
	Store     repository.Store
	Publisher messaging.Publisher
	Payments  external.PaymentGateway
	Verifier  external.TicketVerifier
	Search    TicketSearcher
	Sessions  cache.SessionCache
	Auth      config.AuthConfig
	Market    config.MarketplaceConfig
	Currency  string
	Now       func() time.Time
}

type Services struct {
	Orders        *OrderService
	Escrow        *EscrowService
	Credits       *CreditService
	Payments      *PaymentService
	Auth          *AuthService
	Tickets       *TicketService
	Events        *EventService
	Sellers       *SellerService
	Notifications *NotificationService
	Forum         *ForumService
	Waitlist      *WaitlistService
	Ops           *OpsService
}

func NewServices(deps Deps) *Services {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sessions == nil {
		deps.Sessions = cache.NopSessionCache{}
	}
	if deps.Currency == "" {
		deps.Currency = "cad"
	}

	b := &base{store: deps.Store, pub: deps.Publisher, now: deps.Now}
	credits := &CreditService{base: b}

	return &Services{
		Orders:        &OrderService{base: b, cfg: deps.Market, credits: credits},
		Escrow:        &EscrowService{base: b, cfg: deps.Market},
		Credits:       credits,
		Payments:      &PaymentService{base: b, gateway: deps.Payments, currency: deps.Currency},
		Auth:          &AuthService{base: b, cfg: deps.Auth, sessions: deps.Sessions},
		Tickets:       &TicketService{base: b, verifier: deps.Verifier, search: deps.Search},
		Events:        &EventService{base: b},
		Sellers:       &SellerService{base: b},
		Notifications: &NotificationService{base: b},
		Forum:         &ForumService{base: b},
		Waitlist:      &WaitlistService{base: b},
		Ops:           &OpsService{base: b},
	}
}

// base - общее для всех сервисов: хранилище, шина событий и часы
type base struct {
	store repository.Store
	pub   messaging.Publisher
	now   func() time.Time
}

func (b *base) repos() *repository.Repositories {
	return b.store.Repos()
}

// publish отправляет событие после коммита; ошибка только логируется
func (b *base) publish(ctx context.Context, subject string, data any) {
	if b.pub == nil {
		return
	}
	if err := b.pub.Publish(subject, data); err != nil {
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err,
			"event_type", subject)
	}
}
