package repository

import (
	"context"
	"time"

	"truefantix/internal/models"
)

// Store - точка входа в хранилище.
// Все изменения состояния выполняются внутри WithTx: при ошибке fn транзакция откатывается целиком.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error
	Repos() *Repositories
	Ping(ctx context.Context) error
	Close() error
}

// Repositories - набор репозиториев, привязанных к одному соединению или транзакции.
// Get-методы возвращают nil, nil если запись не найдена.
type Repositories struct {
	Users             UserRepository
	Sessions          SessionRepository
	VerificationCodes VerificationCodeRepository
	Sellers           SellerRepository
	Events            EventRepository
	Tickets           TicketRepository
	Orders            OrderRepository
	Payments          PaymentRepository
	Escrows           EscrowRepository
	Credits           CreditRepository
	Notifications     NotificationRepository
	Forum             ForumRepository
	Waitlist          WaitlistRepository
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetBySellerID(ctx context.Context, sellerID string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	MarkVerified(ctx context.Context, id, channel string, at time.Time) error
	SetCanSell(ctx context.Context, id string, canSell bool) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type VerificationCodeRepository interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	GetLatestActive(ctx context.Context, userID, channel string, now time.Time) (*models.VerificationCode, error)
	IncrementAttempts(ctx context.Context, id string) error
	Consume(ctx context.Context, id string, at time.Time) (int64, error)
}

type SellerRepository interface {
	Create(ctx context.Context, seller *models.Seller) error
	GetByID(ctx context.Context, id string) (*models.Seller, error)
	List(ctx context.Context, status string, limit int) ([]models.Seller, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// AdjustCredits атомарно меняет баланс и возвращает новое значение.
	// ErrInsufficientCredits если баланс ушел бы в минус при allowNegative=false.
	AdjustCredits(ctx context.Context, id string, delta int64, allowNegative bool) (int64, error)
	GetMetrics(ctx context.Context, sellerID string) (*models.SellerMetrics, error)
	AddMetrics(ctx context.Context, sellerID string, salesCents, orders, tickets int64, at time.Time) error
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error)
	List(ctx context.Context, limit int) ([]models.Event, error)
	UpdateSellout(ctx context.Context, id, status string) error
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Ticket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error)
	FindLiveByBarcode(ctx context.Context, barcodeHash string, eventID *string) (*models.Ticket, error)
	// Reserve - CAS: AVAILABLE или просроченный RESERVED -> RESERVED за orderID
	Reserve(ctx context.Context, id, orderID string, until, now time.Time) (int64, error)
	// MarkSold - CAS: RESERVED за orderID и не просрочен -> SOLD
	MarkSold(ctx context.Context, ids []string, orderID string, now time.Time) (int64, error)
	// ReleaseExpiredForOrder - CAS: просроченные резервы заказа -> AVAILABLE
	ReleaseExpiredForOrder(ctx context.Context, orderID string, now time.Time) (int64, error)
	// Release возвращает билеты в AVAILABLE; проданные только при includeSold
	Release(ctx context.Context, ids []string, includeSold bool, now time.Time) (int64, error)
	ListExpiredReserved(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error)
	UpdateVerification(ctx context.Context, ticket *models.Ticket) error
	Withdraw(ctx context.Context, id, sellerID string, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (reserved, expired, pendingVerification int, err error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	AddItem(ctx context.Context, item *models.OrderItem) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetForUpdate(ctx context.Context, id string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, buyerSellerID, key string) (*models.Order, error)
	// UpdateStatus - CAS по текущему статусу
	UpdateStatus(ctx context.Context, id string, from []string, to string, now time.Time) (int64, error)
	ListByBuyer(ctx context.Context, buyerSellerID string, limit int) ([]models.Order, error)
	ListPaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type PaymentRepository interface {
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	Upsert(ctx context.Context, payment *models.Payment) error
}

type EscrowRepository interface {
	GetByTicketID(ctx context.Context, ticketID string) (*models.TicketEscrow, error)
	ListByTicketIDs(ctx context.Context, ticketIDs []string) ([]models.TicketEscrow, error)
	Upsert(ctx context.Context, escrow *models.TicketEscrow) error
}

type CreditRepository interface {
	Insert(ctx context.Context, tx *models.CreditTransaction) error
	Exists(ctx context.Context, sellerID, orderID, ticketID, txType string) (bool, error)
	List(ctx context.Context, sellerID string, filter models.CreditFilter) ([]models.CreditTransaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.CreditTransaction, error)
	SumBySeller(ctx context.Context, sellerID string) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID string, olderThan *time.Time, readOnly bool) (int64, error)
}

type ForumRepository interface {
	CreateThread(ctx context.Context, thread *models.ForumThread) error
	GetThread(ctx context.Context, id string) (*models.ForumThread, error)
	ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.ForumThread, error)
	SetLocked(ctx context.Context, id string, locked bool, now time.Time) error
	SetVisible(ctx context.Context, id string, visible bool, now time.Time) error
	CreatePost(ctx context.Context, post *models.ForumPost) error
	ListPosts(ctx context.Context, threadID string) ([]models.ForumPost, error)
}

type WaitlistRepository interface {
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	GetByUserEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error)
	ListByUser(ctx context.Context, userID, status string) ([]models.WaitlistEntry, error)
	ListActiveByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, eventID string) (int64, error)
}
