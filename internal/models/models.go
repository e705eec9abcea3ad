package models

import "time"

// Auth

type RegisterRequest struct {
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Password       string `json:"password"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	DisplayName    string `json:"displayName"`
	StreetAddress1 string `json:"streetAddress1"`
	StreetAddress2 string `json:"streetAddress2"`
	City           string `json:"city"`
	Region         string `json:"region"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	AcceptTerms    bool   `json:"acceptTerms"`
	AcceptPrivacy  bool   `json:"acceptPrivacy"`
}

type LoginRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Password     string `json:"password"`
}

type VerifySendRequest struct {
	Channel string `json:"channel"`
}

type VerifyConfirmRequest struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

// SessionInfo - метаданные клиента при создании сессии
type SessionInfo struct {
	IP        string
	UserAgent string
}

// AuthResult - пользователь и открытый токен новой сессии
type AuthResult struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// UserView - ответ /api/auth/me
type UserView struct {
	*User
	IsVerified       bool    `json:"isVerified"`
	IsSellerApproved bool    `json:"isSellerApproved"`
	IsAdmin          bool    `json:"isAdmin"`
	Seller           *Seller `json:"seller,omitempty"`
}

// Orders

type CheckoutRequest struct {
	TicketIDs      []string `json:"ticketIds"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

type CheckoutResult struct {
	Order         *Order     `json:"order"`
	Replay        bool       `json:"replay"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
}

// TransitionResult - результат перехода статуса заказа
type TransitionResult struct {
	Order  *Order `json:"order"`
	Replay bool   `json:"replay"`
}

type ReverseRequest struct {
	Reason string `json:"reason"`
}

// ReverseResult - отмена заказа с возвратом токенов
type ReverseResult struct {
	Order           *Order `json:"order"`
	Replay          bool   `json:"replay"`
	TicketsReleased int    `json:"ticketsReleased"`
	CreditsReversed int64  `json:"creditsReversed"`
	EscrowsReleased int    `json:"escrowsReleased"`
}

// OrderView - заказ с платежом и производным состоянием escrow
type OrderView struct {
	Order       *Order   `json:"order"`
	Payment     *Payment `json:"payment"`
	EscrowState string   `json:"escrowState"`
}

// SweepResult - результат sweep просроченных резервов
type SweepResult struct {
	Scanned         int      `json:"scanned"`
	AffectedOrders  int      `json:"affectedOrders"`
	OrdersCancelled int      `json:"ordersCancelled"`
	TicketsReleased int      `json:"ticketsReleased"`
	OrderIDs        []string `json:"orderIds"`
}

// Payments

type CreateIntentRequest struct {
	OrderID string `json:"orderId"`
}

type CreateIntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
}

// Escrow

type EscrowDepositRequest struct {
	Provider    string `json:"provider"`
	ProviderRef string `json:"providerRef"`
}

type EscrowReleaseRequest struct {
	Reason string `json:"reason"`
}

// EscrowView - производное состояние escrow заказа и записи по билетам
type EscrowView struct {
	OrderID     string         `json:"orderId"`
	OrderStatus string         `json:"orderStatus"`
	State       string         `json:"state"`
	Payment     *Payment       `json:"payment"`
	Tickets     []TicketEscrow `json:"tickets"`
}

// EscrowTimeoutResult - результат cron-обхода просроченных оплаченных заказов
type EscrowTimeoutResult struct {
	Processed int      `json:"processed"`
	OrderIDs  []string `json:"orderIds"`
}

// Tickets

type CreateTicketRequest struct {
	Title          string  `json:"title"`
	PriceCents     *int64  `json:"priceCents"`
	FaceValueCents *int64  `json:"faceValueCents"`
	Image          string  `json:"image"`
	Venue          string  `json:"venue"`
	Date           string  `json:"date"`
	EventID        *string `json:"eventId"`
	BarcodeData    string  `json:"barcodeData"`
	BarcodeType    string  `json:"barcodeType"`
}

type VerifyTicketRequest struct {
	VerificationStatus string `json:"verificationStatus"`
	VerificationScore  *int   `json:"verificationScore"`
	VerificationReason string `json:"verificationReason"`
}

// TicketFilter - фильтры списка билетов; Cursor - id последнего элемента
type TicketFilter struct {
	Statuses           []string
	SellerID           string
	EventID            string
	VerificationStatus string
	Query              string
	Cursor             string
	Limit              int
}

type TicketPage struct {
	Tickets    []Ticket `json:"tickets"`
	NextCursor *string  `json:"nextCursor"`
}

// Events

type CreateEventRequest struct {
	Title         string `json:"title"`
	Venue         string `json:"venue"`
	Date          string `json:"date"`
	SelloutStatus string `json:"selloutStatus"`
}

type UpdateSelloutRequest struct {
	SelloutStatus string `json:"selloutStatus"`
}

// Sellers & credits

type CreditAdjustmentRequest struct {
	SellerID      string `json:"sellerId"`
	AmountCredits int64  `json:"amountCredits"`
	Note          string `json:"note"`
}

type CreditFilter struct {
	Type   string
	Source string
	Cursor string
	Limit  int
}

type CreditLedgerPage struct {
	SellerID   string              `json:"sellerId"`
	Balance    int64               `json:"balanceCredits"`
	Items      []CreditTransaction `json:"items"`
	NextCursor *string             `json:"nextCursor"`
}

// SellerView - продавец с метриками
type SellerView struct {
	*Seller
	Metrics *SellerMetrics `json:"metrics"`
}

// Notifications

type NotificationFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

type NotificationPage struct {
	Items       []Notification `json:"items"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unreadCount"`
}

type MarkNotificationsRequest struct {
	IDs     []string `json:"ids"`
	MarkAll bool     `json:"markAll"`
}

// Forum

type CreateThreadRequest struct {
	Title     string `json:"title"`
	TopicType string `json:"topicType"`
	Topic     string `json:"topic"`
	Body      string `json:"body"`
}

type CreatePostRequest struct {
	Body string `json:"body"`
}

type ThreadFilter struct {
	TopicType     string
	Cursor        string
	Limit         int
	IncludeHidden bool
}

type ThreadPage struct {
	Threads    []ForumThread `json:"threads"`
	NextCursor *string       `json:"nextCursor"`
}

type ThreadView struct {
	Thread *ForumThread `json:"thread"`
	Posts  []ForumPost  `json:"posts"`
}

type LockThreadRequest struct {
	Locked *bool `json:"locked"`
}

type ThreadVisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Waitlist

type JoinWaitlistRequest struct {
	EventID string `json:"eventId"`
}

// OpsMetrics - сводка для администратора
type OpsMetrics struct {
	OrdersByStatus      map[string]int `json:"ordersByStatus"`
	ReservedTickets     int            `json:"reservedTickets"`
	ExpiredReservations int            `json:"expiredReservations"`
	PendingVerification int            `json:"pendingVerification"`
	Pool                *PoolStats     `json:"pool,omitempty"`
	GeneratedAt         time.Time      `json:"generatedAt"`
}

// PoolStats - состояние пула соединений Postgres
type PoolStats struct {
	MaxOpenConns      int           `json:"maxOpenConnections"`
	OpenConns         int           `json:"openConnections"`
	InUse             int           `json:"inUse"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"waitCount"`
	WaitDuration      time.Duration `json:"waitDuration"`
	MaxIdleClosed     int64         `json:"maxIdleClosed"`
	MaxLifetimeClosed int64         `json:"maxLifetimeClosed"`
}
