package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"truefantix/internal/config"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/external"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type published struct {
	subject string
	data    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.subject == subject {
			n++
		}
	}
	return n
}

func (p *fakePublisher) last(subject string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].subject == subject {
			return p.events[i].data
		}
	}
	return nil
}

type fakeGateway struct {
	requests []external.IntentRequest
	event    *external.WebhookEvent
	err      error
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req external.IntentRequest) (*external.Intent, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &external.Intent{
		ID:           "pi_" + req.OrderID,
		ClientSecret: "pi_" + req.OrderID + "_secret",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*external.WebhookEvent, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.event, nil
}

type fakeVerifier struct{ confirmed bool }

func (v fakeVerifier) Verify(ctx context.Context, in external.VerificationInput) (*external.VerificationResult, error) {
	return &external.VerificationResult{Confirmed: v.confirmed, Confidence: 90, Provider: "test"}, nil
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *repository.MemoryStore
	svc     *Services
	pub     *fakePublisher
	gateway *fakeGateway
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   repository.NewMemoryStore(),
		pub:     &fakePublisher{},
		gateway: &fakeGateway{},
		clock:   time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
	f.svc = NewServices(Deps{
		Store:     f.store,
		Publisher: f.pub,
		Payments:  f.gateway,
		Verifier:  fakeVerifier{confirmed: true},
		Auth: config.AuthConfig{
			SessionSecret: "0123456789abcdef0123456789abcdef",
			SessionTTL:    30 * 24 * time.Hour,
			BcryptCost:    bcrypt.MinCost,
		},
		Market: config.MarketplaceConfig{
			ReservationWindow:  15 * time.Minute,
			EscrowTimeout:      60 * time.Minute,
			AdminFeeBps:        875,
			MaxTicketsPerOrder: 10,
			SoldOutCreditCost:  1,
			ExpireBatchSize:    200,
		},
		Now: func() time.Time { return f.clock },
	})
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// user создает проверенного пользователя с кошельком
func (f *fixture) user(name string, sellerStatus string) *models.User {
	f.t.Helper()
	r := f.store.Repos()
	now := f.clock
	seller := &models.Seller{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    sellerStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(f.t, r.Sellers.Create(f.ctx, seller))

	user := &models.User{
		ID:              uuid.New().String(),
		Email:           name + "@example.com",
		Phone:           "+1555" + uuid.New().String()[:7],
		FirstName:       name,
		LastName:        "Test",
		Role:            models.RoleUser,
		CanBuy:          true,
		CanSell:         sellerStatus == models.SellerStatusApproved,
		EmailVerifiedAt: &now,
		PhoneVerifiedAt: &now,
		SellerID:        &seller.ID,
		CreatedAt:       now,
	}
	require.NoError(f.t, r.Users.Create(f.ctx, user))
	return user
}

func (f *fixture) admin() *models.User {
	f.t.Helper()
	u := f.user("admin", models.SellerStatusPending)
	u.Role = models.RoleAdmin
	return u
}

func (f *fixture) event(soldOut bool) *models.Event {
	f.t.Helper()
	status := models.SelloutAvailable
	if soldOut {
		status = models.SelloutSoldOut
	}
	e := &models.Event{
		ID:            uuid.New().String(),
		Title:         "Arena Night",
		Venue:         "Scotiabank Arena",
		Date:          "2026-06-01",
		SelloutStatus: status,
		CreatedAt:     f.clock,
	}
	require.NoError(f.t, f.store.Repos().Events.Create(f.ctx, e))
	return e
}

// ticket - проверенный билет в продаже
func (f *fixture) ticket(seller *models.User, priceCents int64, eventID *string) *models.Ticket {
	f.t.Helper()
	t := &models.Ticket{
		ID:                 uuid.New().String(),
		SellerID:           *seller.SellerID,
		EventID:            eventID,
		Title:              "Floor seats",
		Venue:              "Scotiabank Arena",
		Date:               "2026-06-01",
		Image:              "https://img.example.com/t.png",
		PriceCents:         priceCents,
		Status:             models.TicketAvailable,
		VerificationStatus: models.VerificationVerified,
		CreatedAt:          f.clock,
	}
	require.NoError(f.t, f.store.Repos().Tickets.Create(f.ctx, t))
	return t
}

func (f *fixture) getTicket(id string) *models.Ticket {
	f.t.Helper()
	t, err := f.store.Repos().Tickets.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, t)
	return t
}

func (f *fixture) getOrder(id string) *models.Order {
	f.t.Helper()
	o, err := f.store.Repos().Orders.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, o)
	return o
}

func (f *fixture) balance(user *models.User) int64 {
	f.t.Helper()
	s, err := f.store.Repos().Sellers.GetByID(f.ctx, *user.SellerID)
	require.NoError(f.t, err)
	return s.CreditBalanceCredits
}

func (f *fixture) grant(user *models.User, credits int64) {
	f.t.Helper()
	_, err := f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{
		SellerID:      *user.SellerID,
		AmountCredits: credits,
		Note:          "test grant",
	})
	require.NoError(f.t, err)
}

func (f *fixture) requireLedgerConsistent(users ...*models.User) {
	f.t.Helper()
	for _, u := range users {
		audit, err := f.svc.Credits.Audit(f.ctx, *u.SellerID)
		require.NoError(f.t, err)
		require.True(f.t, audit.Consistent, "seller %s: balance %d ledger %d", u.FirstName, audit.Balance, audit.LedgerSum)
	}
}

func (f *fixture) checkout(buyer *models.User, tickets ...*models.Ticket) *models.Order {
	f.t.Helper()
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	res, err := f.svc.Orders.Checkout(f.ctx, buyer, &models.CheckoutRequest{TicketIDs: ids, IdempotencyKey: uuid.New().String()})
	require.NoError(f.t, err)
	return res.Order
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := apperrors.AsAPIError(err)
	require.True(t, ok, "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.Status, apiErr.Message)
	require.Equal(t, code, apiErr.Code, apiErr.Message)
}
