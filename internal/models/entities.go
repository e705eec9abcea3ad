package models

import (
	"time"
)

// Роли и статусы
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	SellerStatusPending   = "PENDING"
	SellerStatusApproved  = "APPROVED"
	SellerStatusSuspended = "SUSPENDED"

	SelloutAvailable = "AVAILABLE"
	SelloutSoldOut   = "SOLD_OUT"

	TicketAvailable = "AVAILABLE"
	TicketReserved  = "RESERVED"
	TicketSold      = "SOLD"
	TicketWithdrawn = "WITHDRAWN"

	VerificationPending     = "PENDING"
	VerificationVerified    = "VERIFIED"
	VerificationRejected    = "REJECTED"
	VerificationNeedsReview = "NEEDS_REVIEW"

	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderDelivered = "DELIVERED"
	OrderCompleted = "COMPLETED"
	OrderCancelled = "CANCELLED"
	OrderRefunded  = "REFUNDED"

	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"

	ProviderManual = "MANUAL"
	ProviderStripe = "STRIPE"

	EscrowInEscrow             = "IN_ESCROW"
	EscrowReleasedToBuyer      = "RELEASED_TO_BUYER"
	EscrowReleasedBackToSeller = "RELEASED_BACK_TO_SELLER"

	CreditEarned     = "EARNED"
	CreditSpent      = "SPENT"
	CreditReversal   = "REVERSAL"
	CreditAdjustment = "ADJUSTMENT"

	CreditSourceSoldOutPurchase = "SOLD_OUT_PURCHASE"
	CreditSourceSoldOutSale     = "SOLD_OUT_SALE"
	CreditSourceReversal        = "REVERSAL"
	CreditSourceAdmin           = "ADMIN"

	ChannelEmail = "EMAIL"
	ChannelPhone = "PHONE"

	WaitlistActive    = "ACTIVE"
	WaitlistNotified  = "NOTIFIED"
	WaitlistCancelled = "CANCELLED"

	CurrencyCAD = "CAD"
)

// User - учетная запись покупателя/продавца
type User struct {
	ID              string     `json:"id" db:"id"`
	Email           string     `json:"email" db:"email"`
	Phone           string     `json:"phone" db:"phone"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	FirstName       string     `json:"firstName" db:"first_name"`
	LastName        string     `json:"lastName" db:"last_name"`
	DisplayName     string     `json:"displayName" db:"display_name"`
	StreetAddress1  string     `json:"streetAddress1" db:"street_address1"`
	StreetAddress2  string     `json:"streetAddress2,omitempty" db:"street_address2"`
	City            string     `json:"city" db:"city"`
	Region          string     `json:"region" db:"region"`
	PostalCode      string     `json:"postalCode" db:"postal_code"`
	Country         string     `json:"country" db:"country"`
	Role            string     `json:"role" db:"role"`
	CanBuy          bool       `json:"canBuy" db:"can_buy"`
	CanSell         bool       `json:"canSell" db:"can_sell"`
	IsBanned        bool       `json:"isBanned" db:"is_banned"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt" db:"email_verified_at"`
	PhoneVerifiedAt *time.Time `json:"phoneVerifiedAt" db:"phone_verified_at"`
	SellerID        *string    `json:"sellerId" db:"seller_id"`
	LastLoginAt     *time.Time `json:"lastLoginAt" db:"last_login_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsVerified - подтверждены и email, и телефон
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil && u.PhoneVerifiedAt != nil
}

// Session - серверная сессия; в базе хранится только хэш токена
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// VerificationCode - одноразовый код подтверждения email/телефона
type VerificationCode struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"userId" db:"user_id"`
	Channel    string     `json:"channel" db:"channel"`
	CodeHash   string     `json:"-" db:"code_hash"`
	ExpiresAt  time.Time  `json:"expiresAt" db:"expires_at"`
	ConsumedAt *time.Time `json:"consumedAt" db:"consumed_at"`
	Attempts   int        `json:"attempts" db:"attempts"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// Seller - кошелек пользователя: продажи и баланс access-токенов
type Seller struct {
	ID                   string    `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	Status               string    `json:"status" db:"status"`
	Rating               float64   `json:"rating" db:"rating"`
	Reviews              int       `json:"reviews" db:"reviews"`
	CreditBalanceCredits int64     `json:"creditBalanceCredits" db:"credit_balance_credits"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

// SellerMetrics - накопительные показатели продаж
type SellerMetrics struct {
	SellerID            string    `json:"sellerId" db:"seller_id"`
	LifetimeSalesCents  int64     `json:"lifetimeSalesCents" db:"lifetime_sales_cents"`
	LifetimeOrders      int64     `json:"lifetimeOrders" db:"lifetime_orders"`
	LifetimeTicketsSold int64     `json:"lifetimeTicketsSold" db:"lifetime_tickets_sold"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}

// Event represents an event tickets are listed for
type Event struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Venue         string    `json:"venue" db:"venue"`
	Date          string    `json:"date" db:"date"`
	SelloutStatus string    `json:"selloutStatus" db:"sellout_status"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

func (e *Event) IsSoldOut() bool {
	return e != nil && e.SelloutStatus == SelloutSoldOut
}

// Ticket - единица инвентаря на перепродажу
type Ticket struct {
	ID                   string     `json:"id" db:"id"`
	SellerID             string     `json:"sellerId" db:"seller_id"`
	EventID              *string    `json:"eventId" db:"event_id"`
	Title                string     `json:"title" db:"title"`
	Venue                string     `json:"venue" db:"venue"`
	Date                 string     `json:"date" db:"date"`
	Image                string     `json:"image" db:"image"`
	PriceCents           int64      `json:"priceCents" db:"price_cents"`
	FaceValueCents       *int64     `json:"faceValueCents" db:"face_value_cents"`
	Status               string     `json:"status" db:"status"`
	VerificationStatus   string     `json:"verificationStatus" db:"verification_status"`
	VerificationScore    *int       `json:"verificationScore" db:"verification_score"`
	VerificationReason   *string    `json:"verificationReason" db:"verification_reason"`
	VerificationProvider *string    `json:"verificationProvider" db:"verification_provider"`
	VerifiedAt           *time.Time `json:"verifiedAt" db:"verified_at"`
	BarcodeHash          *string    `json:"-" db:"barcode_hash"`
	BarcodeLast4         *string    `json:"barcodeLast4,omitempty" db:"barcode_last4"`
	BarcodeType          *string    `json:"barcodeType,omitempty" db:"barcode_type"`
	ReservedByOrderID    *string    `json:"reservedByOrderId" db:"reserved_by_order_id"`
	ReservedUntil        *time.Time `json:"reservedUntil" db:"reserved_until"`
	SoldAt               *time.Time `json:"soldAt" db:"sold_at"`
	WithdrawnAt          *time.Time `json:"withdrawnAt" db:"withdrawn_at"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" db:"updated_at"`
}

// ReservationExpired - резерв логически истек, даже если sweep еще не прошел
func (t *Ticket) ReservationExpired(now time.Time) bool {
	return t.ReservedUntil == nil || !t.ReservedUntil.After(now)
}

// ReservedBy - билет в резерве именно у этого заказа
func (t *Ticket) ReservedBy(orderID string) bool {
	return t.Status == TicketReserved && t.ReservedByOrderID != nil && *t.ReservedByOrderID == orderID
}

// Reservable - AVAILABLE или просроченный RESERVED, не снят и не продан
func (t *Ticket) Reservable(now time.Time) bool {
	if t.WithdrawnAt != nil || t.SoldAt != nil {
		return false
	}
	return t.Status == TicketAvailable || (t.Status == TicketReserved && t.ReservationExpired(now))
}

// Order - одна попытка покупки
type Order struct {
	ID             string      `json:"id" db:"id"`
	BuyerSellerID  string      `json:"buyerSellerId" db:"buyer_seller_id"`
	SellerID       string      `json:"sellerId" db:"seller_id"`
	Status         string      `json:"status" db:"status"`
	IdempotencyKey string      `json:"idempotencyKey" db:"idempotency_key"`
	AmountCents    int64       `json:"amountCents" db:"amount_cents"`
	AdminFeeCents  int64       `json:"adminFeeCents" db:"admin_fee_cents"`
	TotalCents     int64       `json:"totalCents" db:"total_cents"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
	Items          []OrderItem `json:"items,omitempty"` // заполняется отдельно
}

// TicketIDs returns the ids of the order's items
func (o *Order) TicketIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.TicketID)
	}
	return ids
}

// OrderItem - позиция заказа со снимком цены
type OrderItem struct {
	ID             string `json:"id" db:"id"`
	OrderID        string `json:"orderId" db:"order_id"`
	TicketID       string `json:"ticketId" db:"ticket_id"`
	PriceCents     int64  `json:"priceCents" db:"price_cents"`
	FaceValueCents *int64 `json:"faceValueCents" db:"face_value_cents"`
}

// Payment - зеркало записи платежного шлюза, 1:1 с заказом
type Payment struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"orderId" db:"order_id"`
	Status      string    `json:"status" db:"status"`
	AmountCents int64     `json:"amountCents" db:"amount_cents"`
	Currency    string    `json:"currency" db:"currency"`
	Provider    string    `json:"provider" db:"provider"`
	ProviderRef string    `json:"providerRef" db:"provider_ref"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TicketEscrow - метка хранения билета, 1:1 с билетом
type TicketEscrow struct {
	ID          string     `json:"id" db:"id"`
	TicketID    string     `json:"ticketId" db:"ticket_id"`
	OrderID     *string    `json:"orderId" db:"order_id"`
	State       string     `json:"state" db:"state"`
	Provider    *string    `json:"provider" db:"provider"`
	ProviderRef *string    `json:"providerRef" db:"provider_ref"`
	DepositedAt *time.Time `json:"depositedAt" db:"deposited_at"`
	ReleasedAt  *time.Time `json:"releasedAt" db:"released_at"`
	Reason      *string    `json:"reason" db:"reason"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// CreditTransaction - строка append-only журнала access-токенов
type CreditTransaction struct {
	ID                  string    `json:"id" db:"id"`
	SellerID            string    `json:"sellerId" db:"seller_id"`
	OrderID             *string   `json:"orderId" db:"order_id"`
	TicketID            *string   `json:"ticketId" db:"ticket_id"`
	Type                string    `json:"type" db:"type"`
	Source              string    `json:"source" db:"source"`
	AmountCredits       int64     `json:"amountCredits" db:"amount_credits"`
	BalanceAfterCredits int64     `json:"balanceAfterCredits" db:"balance_after_credits"`
	Note                *string   `json:"note" db:"note"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
}

// Notification - уведомление пользователя
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Message   string    `json:"message" db:"message"`
	Link      *string   `json:"link" db:"link"`
	IsRead    bool      `json:"isRead" db:"is_read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ForumThread - тема форума
type ForumThread struct {
	ID           string    `json:"id" db:"id"`
	AuthorUserID string    `json:"authorUserId" db:"author_user_id"`
	Title        string    `json:"title" db:"title"`
	TopicType    string    `json:"topicType" db:"topic_type"`
	Topic        string    `json:"topic" db:"topic"`
	IsLocked     bool      `json:"isLocked" db:"is_locked"`
	IsVisible    bool      `json:"isVisible" db:"is_visible"`
	PostCount    int       `json:"postCount" db:"-"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ForumPost - сообщение в теме
type ForumPost struct {
	ID           string    `json:"id" db:"id"`
	ThreadID     string    `json:"threadId" db:"thread_id"`
	AuthorUserID string    `json:"authorUserId" db:"author_user_id"`
	Body         string    `json:"body" db:"body"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// WaitlistEntry - запись в лист ожидания распроданного события
type WaitlistEntry struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	EventID   string    `json:"eventId" db:"event_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
