package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
)

// MemoryStore - Store в памяти процесса для локальной разработки и тестов.
// Транзакция держит мьютекс целиком и восстанавливает снимок состояния при ошибке.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	repos *Repositories
}

type memState struct {
	users         map[string]models.User
	sessions      map[string]models.Session // by token hash
	codes         map[string]models.VerificationCode
	sellers       map[string]models.Seller
	metrics       map[string]models.SellerMetrics
	events        map[string]models.Event
	tickets       map[string]models.Ticket
	orders        map[string]models.Order
	payments      map[string]models.Payment      // by order id
	escrows       map[string]models.TicketEscrow // by ticket id
	credits       []models.CreditTransaction
	notifications map[string]models.Notification
	threads       map[string]models.ForumThread
	posts         []models.ForumPost
	waitlist      map[string]models.WaitlistEntry
}

func newMemState() *memState {
	return &memState{
		users:         map[string]models.User{},
		sessions:      map[string]models.Session{},
		codes:         map[string]models.VerificationCode{},
		sellers:       map[string]models.Seller{},
		metrics:       map[string]models.SellerMetrics{},
		events:        map[string]models.Event{},
		tickets:       map[string]models.Ticket{},
		orders:        map[string]models.Order{},
		payments:      map[string]models.Payment{},
		escrows:       map[string]models.TicketEscrow{},
		notifications: map[string]models.Notification{},
		threads:       map[string]models.ForumThread{},
		waitlist:      map[string]models.WaitlistEntry{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	orders := make(map[string]models.Order, len(s.orders))
	for id, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		orders[id] = o
	}
	return &memState{
		users:         cloneMap(s.users),
		sessions:      cloneMap(s.sessions),
		codes:         cloneMap(s.codes),
		sellers:       cloneMap(s.sellers),
		metrics:       cloneMap(s.metrics),
		events:        cloneMap(s.events),
		tickets:       cloneMap(s.tickets),
		orders:        orders,
		payments:      cloneMap(s.payments),
		escrows:       cloneMap(s.escrows),
		credits:       slices.Clone(s.credits),
		notifications: cloneMap(s.notifications),
		threads:       cloneMap(s.threads),
		posts:         slices.Clone(s.posts),
		waitlist:      cloneMap(s.waitlist),
	}
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: newMemState()}
	s.repos = newMemRepositories(&memConn{s: s})
	return s
}

func newMemRepositories(c *memConn) *Repositories {
	return &Repositories{
		Users:             &memUsers{c},
		Sessions:          &memSessions{c},
		VerificationCodes: &memCodes{c},
		Sellers:           &memSellers{c},
		Events:            &memEvents{c},
		Tickets:           &memTickets{c},
		Orders:            &memOrders{c},
		Payments:          &memPayments{c},
		Escrows:           &memEscrows{c},
		Credits:           &memCredits{c},
		Notifications:     &memNotifications{c},
		Forum:             &memForum{c},
		Waitlist:          &memWaitlist{c},
	}
}

func (s *MemoryStore) Repos() *Repositories {
	return s.repos
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) (err error) {
	s.mu.Lock()
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
		s.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, newMemRepositories(&memConn{s: s, inTx: true})); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// memConn - доступ к состоянию; вне транзакции каждый вызов берет мьютекс сам
type memConn struct {
	s    *MemoryStore
	inTx bool
}

func (c *memConn) lock() func() {
	if c.inTx {
		return func() {}
	}
	c.s.mu.Lock()
	return c.s.mu.Unlock
}

func (c *memConn) st() *memState {
	return c.s.state
}

func newestFirst(aTime, bTime time.Time, aID, bID string) bool {
	if !aTime.Equal(bTime) {
		return aTime.After(bTime)
	}
	return aID > bID
}

// afterCursor отрезает элементы до cursor включительно
func afterCursor[T any](items []T, cursor string, id func(T) string) []T {
	if cursor == "" {
		return items
	}
	for i, item := range items {
		if id(item) == cursor {
			return items[i+1:]
		}
	}
	return nil
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func ptr[T any](v T) *T {
	return &v
}

// Users

type memUsers struct{ c *memConn }

func (r *memUsers) Create(ctx context.Context, u *models.User) error {
	defer r.c.lock()()
	st := r.c.st()
	for _, existing := range st.users {
		if existing.Email == u.Email || existing.Phone == u.Phone {
			return apperrors.ErrDuplicate
		}
	}
	u.UpdatedAt = u.CreatedAt
	st.users[u.ID] = *u
	return nil
}

func (r *memUsers) find(match func(models.User) bool) *models.User {
	for _, u := range r.c.st().users {
		if match(u) {
			return ptr(u)
		}
	}
	return nil
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.c.lock()()
	if u, ok := r.c.st().users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.c.lock()()
	return r.find(func(u models.User) bool { return u.Email == email }), nil
}

func (r *memUsers) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	defer r.c.lock()()
	return r.find(func(u models.User) bool { return u.Phone == phone }), nil
}

func (r *memUsers) GetBySellerID(ctx context.Context, sellerID string) (*models.User, error) {
	defer r.c.lock()()
	return r.find(func(u models.User) bool { return u.SellerID != nil && *u.SellerID == sellerID }), nil
}

func (r *memUsers) update(id string, fn func(*models.User)) {
	st := r.c.st()
	if u, ok := st.users[id]; ok {
		fn(&u)
		st.users[id] = u
	}
}

func (r *memUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	defer r.c.lock()()
	r.update(id, func(u *models.User) { u.LastLoginAt = ptr(at); u.UpdatedAt = at })
	return nil
}

func (r *memUsers) MarkVerified(ctx context.Context, id, channel string, at time.Time) error {
	defer r.c.lock()()
	r.update(id, func(u *models.User) {
		if channel == models.ChannelPhone {
			u.PhoneVerifiedAt = ptr(at)
		} else {
			u.EmailVerifiedAt = ptr(at)
		}
		u.UpdatedAt = at
	})
	return nil
}

func (r *memUsers) SetCanSell(ctx context.Context, id string, canSell bool) error {
	defer r.c.lock()()
	r.update(id, func(u *models.User) { u.CanSell = canSell })
	return nil
}

// Sessions

type memSessions struct{ c *memConn }

func (r *memSessions) Create(ctx context.Context, s *models.Session) error {
	defer r.c.lock()()
	st := r.c.st()
	if _, ok := st.sessions[s.TokenHash]; ok {
		return apperrors.ErrDuplicate
	}
	st.sessions[s.TokenHash] = *s
	return nil
}

func (r *memSessions) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	defer r.c.lock()()
	if s, ok := r.c.st().sessions[tokenHash]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *memSessions) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	defer r.c.lock()()
	delete(r.c.st().sessions, tokenHash)
	return nil
}

func (r *memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.c.lock()()
	var n int64
	for hash, s := range r.c.st().sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.c.st().sessions, hash)
			n++
		}
	}
	return n, nil
}

// Verification codes

type memCodes struct{ c *memConn }

func (r *memCodes) Create(ctx context.Context, code *models.VerificationCode) error {
	defer r.c.lock()()
	r.c.st().codes[code.ID] = *code
	return nil
}

func (r *memCodes) GetLatestActive(ctx context.Context, userID, channel string, now time.Time) (*models.VerificationCode, error) {
	defer r.c.lock()()
	var latest *models.VerificationCode
	for _, code := range r.c.st().codes {
		if code.UserID != userID || code.Channel != channel || code.ConsumedAt != nil || !code.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || code.CreatedAt.After(latest.CreatedAt) {
			latest = ptr(code)
		}
	}
	return latest, nil
}

func (r *memCodes) IncrementAttempts(ctx context.Context, id string) error {
	defer r.c.lock()()
	if code, ok := r.c.st().codes[id]; ok {
		code.Attempts++
		r.c.st().codes[id] = code
	}
	return nil
}

func (r *memCodes) Consume(ctx context.Context, id string, at time.Time) (int64, error) {
	defer r.c.lock()()
	code, ok := r.c.st().codes[id]
	if !ok || code.ConsumedAt != nil {
		return 0, nil
	}
	code.ConsumedAt = ptr(at)
	r.c.st().codes[id] = code
	return 1, nil
}

// Sellers

type memSellers struct{ c *memConn }

func (r *memSellers) Create(ctx context.Context, s *models.Seller) error {
	defer r.c.lock()()
	if _, ok := r.c.st().sellers[s.ID]; ok {
		return apperrors.ErrDuplicate
	}
	s.UpdatedAt = s.CreatedAt
	r.c.st().sellers[s.ID] = *s
	return nil
}

func (r *memSellers) GetByID(ctx context.Context, id string) (*models.Seller, error) {
	defer r.c.lock()()
	if s, ok := r.c.st().sellers[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *memSellers) List(ctx context.Context, status string, limit int) ([]models.Seller, error) {
	defer r.c.lock()()
	var sellers []models.Seller
	for _, s := range r.c.st().sellers {
		if status == "" || s.Status == status {
			sellers = append(sellers, s)
		}
	}
	sort.Slice(sellers, func(i, j int) bool {
		if sellers[i].Rating != sellers[j].Rating {
			return sellers[i].Rating > sellers[j].Rating
		}
		if sellers[i].Reviews != sellers[j].Reviews {
			return sellers[i].Reviews > sellers[j].Reviews
		}
		return sellers[i].ID < sellers[j].ID
	})
	return limitSlice(sellers, limit), nil
}

func (r *memSellers) UpdateStatus(ctx context.Context, id, status string) error {
	defer r.c.lock()()
	if s, ok := r.c.st().sellers[id]; ok {
		s.Status = status
		s.UpdatedAt = time.Now()
		r.c.st().sellers[id] = s
	}
	return nil
}

func (r *memSellers) AdjustCredits(ctx context.Context, id string, delta int64, allowNegative bool) (int64, error) {
	defer r.c.lock()()
	s, ok := r.c.st().sellers[id]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	if !allowNegative && s.CreditBalanceCredits+delta < 0 {
		return 0, apperrors.ErrInsufficientCredits
	}
	s.CreditBalanceCredits += delta
	s.UpdatedAt = time.Now()
	r.c.st().sellers[id] = s
	return s.CreditBalanceCredits, nil
}

func (r *memSellers) GetMetrics(ctx context.Context, sellerID string) (*models.SellerMetrics, error) {
	defer r.c.lock()()
	if m, ok := r.c.st().metrics[sellerID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (r *memSellers) AddMetrics(ctx context.Context, sellerID string, salesCents, orders, tickets int64, at time.Time) error {
	defer r.c.lock()()
	m := r.c.st().metrics[sellerID]
	m.SellerID = sellerID
	m.LifetimeSalesCents += salesCents
	m.LifetimeOrders += orders
	m.LifetimeTicketsSold += tickets
	m.UpdatedAt = at
	r.c.st().metrics[sellerID] = m
	return nil
}

// Events

type memEvents struct{ c *memConn }

func (r *memEvents) Create(ctx context.Context, e *models.Event) error {
	defer r.c.lock()()
	r.c.st().events[e.ID] = *e
	return nil
}

func (r *memEvents) GetByID(ctx context.Context, id string) (*models.Event, error) {
	defer r.c.lock()()
	if e, ok := r.c.st().events[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (r *memEvents) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error) {
	defer r.c.lock()()
	result := make(map[string]*models.Event, len(ids))
	for _, id := range ids {
		if e, ok := r.c.st().events[id]; ok {
			result[id] = ptr(e)
		}
	}
	return result, nil
}

func (r *memEvents) List(ctx context.Context, limit int) ([]models.Event, error) {
	defer r.c.lock()()
	var events []models.Event
	for _, e := range r.c.st().events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return newestFirst(events[i].CreatedAt, events[j].CreatedAt, events[i].ID, events[j].ID)
	})
	return limitSlice(events, limit), nil
}

func (r *memEvents) UpdateSellout(ctx context.Context, id, status string) error {
	defer r.c.lock()()
	if e, ok := r.c.st().events[id]; ok {
		e.SelloutStatus = status
		r.c.st().events[id] = e
	}
	return nil
}

// Tickets

type memTickets struct{ c *memConn }

func (r *memTickets) Create(ctx context.Context, t *models.Ticket) error {
	defer r.c.lock()()
	if _, ok := r.c.st().tickets[t.ID]; ok {
		return apperrors.ErrDuplicate
	}
	t.UpdatedAt = t.CreatedAt
	r.c.st().tickets[t.ID] = *t
	return nil
}

func (r *memTickets) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	defer r.c.lock()()
	if t, ok := r.c.st().tickets[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (r *memTickets) GetByIDs(ctx context.Context, ids []string) ([]models.Ticket, error) {
	defer r.c.lock()()
	var tickets []models.Ticket
	for _, id := range ids {
		if t, ok := r.c.st().tickets[id]; ok {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

func (r *memTickets) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error) {
	defer r.c.lock()()
	query := strings.ToLower(filter.Query)
	var tickets []models.Ticket
	for _, t := range r.c.st().tickets {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		if filter.SellerID != "" && t.SellerID != filter.SellerID {
			continue
		}
		if filter.EventID != "" && (t.EventID == nil || *t.EventID != filter.EventID) {
			continue
		}
		if filter.VerificationStatus != "" && t.VerificationStatus != filter.VerificationStatus {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title), query) && !strings.Contains(strings.ToLower(t.Venue), query) {
			continue
		}
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return newestFirst(tickets[i].CreatedAt, tickets[j].CreatedAt, tickets[i].ID, tickets[j].ID)
	})
	tickets = afterCursor(tickets, filter.Cursor, func(t models.Ticket) string { return t.ID })
	return limitSlice(tickets, filter.Limit), nil
}

func (r *memTickets) FindLiveByBarcode(ctx context.Context, barcodeHash string, eventID *string) (*models.Ticket, error) {
	defer r.c.lock()()
	for _, t := range r.c.st().tickets {
		if t.BarcodeHash == nil || *t.BarcodeHash != barcodeHash {
			continue
		}
		if t.Status == models.TicketWithdrawn || t.VerificationStatus == models.VerificationRejected {
			continue
		}
		if eventID != nil && (t.EventID == nil || *t.EventID != *eventID) {
			continue
		}
		return ptr(t), nil
	}
	return nil, nil
}

func (r *memTickets) Reserve(ctx context.Context, id, orderID string, until, now time.Time) (int64, error) {
	defer r.c.lock()()
	t, ok := r.c.st().tickets[id]
	if !ok || !t.Reservable(now) {
		return 0, nil
	}
	t.Status = models.TicketReserved
	t.ReservedByOrderID = ptr(orderID)
	t.ReservedUntil = ptr(until)
	t.UpdatedAt = now
	r.c.st().tickets[id] = t
	return 1, nil
}

func (r *memTickets) MarkSold(ctx context.Context, ids []string, orderID string, now time.Time) (int64, error) {
	defer r.c.lock()()
	var n int64
	for _, id := range ids {
		t, ok := r.c.st().tickets[id]
		if !ok || !t.ReservedBy(orderID) || t.ReservationExpired(now) {
			continue
		}
		t.Status = models.TicketSold
		t.SoldAt = ptr(now)
		t.ReservedByOrderID = nil
		t.ReservedUntil = nil
		t.UpdatedAt = now
		r.c.st().tickets[id] = t
		n++
	}
	return n, nil
}

func (r *memTickets) ReleaseExpiredForOrder(ctx context.Context, orderID string, now time.Time) (int64, error) {
	defer r.c.lock()()
	var n int64
	for id, t := range r.c.st().tickets {
		if !t.ReservedBy(orderID) || !t.ReservationExpired(now) {
			continue
		}
		t.Status = models.TicketAvailable
		t.ReservedByOrderID = nil
		t.ReservedUntil = nil
		t.UpdatedAt = now
		r.c.st().tickets[id] = t
		n++
	}
	return n, nil
}

func (r *memTickets) Release(ctx context.Context, ids []string, includeSold bool, now time.Time) (int64, error) {
	defer r.c.lock()()
	var n int64
	for _, id := range ids {
		t, ok := r.c.st().tickets[id]
		if !ok || t.WithdrawnAt != nil || (!includeSold && t.Status == models.TicketSold) {
			continue
		}
		t.Status = models.TicketAvailable
		t.ReservedByOrderID = nil
		t.ReservedUntil = nil
		t.SoldAt = nil
		t.UpdatedAt = now
		r.c.st().tickets[id] = t
		n++
	}
	return n, nil
}

func (r *memTickets) ListExpiredReserved(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	defer r.c.lock()()
	var tickets []models.Ticket
	for _, t := range r.c.st().tickets {
		if t.Status == models.TicketReserved && t.ReservationExpired(now) {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].ReservedUntil == nil || tickets[j].ReservedUntil == nil {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].ReservedUntil.Before(*tickets[j].ReservedUntil)
	})
	return limitSlice(tickets, limit), nil
}

func (r *memTickets) UpdateVerification(ctx context.Context, in *models.Ticket) error {
	defer r.c.lock()()
	t, ok := r.c.st().tickets[in.ID]
	if !ok {
		return nil
	}
	t.VerificationStatus = in.VerificationStatus
	t.VerificationScore = in.VerificationScore
	t.VerificationReason = in.VerificationReason
	t.VerificationProvider = in.VerificationProvider
	t.VerifiedAt = in.VerifiedAt
	t.UpdatedAt = in.UpdatedAt
	r.c.st().tickets[in.ID] = t
	return nil
}

func (r *memTickets) Withdraw(ctx context.Context, id, sellerID string, now time.Time) (int64, error) {
	defer r.c.lock()()
	t, ok := r.c.st().tickets[id]
	if !ok || t.SellerID != sellerID || t.Status != models.TicketAvailable {
		return 0, nil
	}
	t.Status = models.TicketWithdrawn
	t.WithdrawnAt = ptr(now)
	t.UpdatedAt = now
	r.c.st().tickets[id] = t
	return 1, nil
}

func (r *memTickets) Stats(ctx context.Context, now time.Time) (int, int, int, error) {
	defer r.c.lock()()
	var reserved, expired, pending int
	for _, t := range r.c.st().tickets {
		if t.Status == models.TicketReserved {
			reserved++
			if t.ReservationExpired(now) {
				expired++
			}
		}
		if t.VerificationStatus == models.VerificationPending || t.VerificationStatus == models.VerificationNeedsReview {
			pending++
		}
	}
	return reserved, expired, pending, nil
}

// Orders

type memOrders struct{ c *memConn }

func copyOrder(o models.Order) *models.Order {
	o.Items = slices.Clone(o.Items)
	return &o
}

func (r *memOrders) Create(ctx context.Context, o *models.Order) error {
	defer r.c.lock()()
	for _, existing := range r.c.st().orders {
		if existing.BuyerSellerID == o.BuyerSellerID && existing.IdempotencyKey == o.IdempotencyKey {
			return apperrors.ErrDuplicate
		}
	}
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = nil
	r.c.st().orders[o.ID] = stored
	return nil
}

func (r *memOrders) AddItem(ctx context.Context, item *models.OrderItem) error {
	defer r.c.lock()()
	o, ok := r.c.st().orders[item.OrderID]
	if !ok {
		return apperrors.ErrNotFound
	}
	o.Items = append(slices.Clone(o.Items), *item)
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].TicketID < o.Items[j].TicketID })
	r.c.st().orders[item.OrderID] = o
	return nil
}

func (r *memOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	defer r.c.lock()()
	if o, ok := r.c.st().orders[id]; ok {
		return copyOrder(o), nil
	}
	return nil, nil
}

func (r *memOrders) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memOrders) GetByIdempotencyKey(ctx context.Context, buyerSellerID, key string) (*models.Order, error) {
	defer r.c.lock()()
	for _, o := range r.c.st().orders {
		if o.BuyerSellerID == buyerSellerID && o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (r *memOrders) UpdateStatus(ctx context.Context, id string, from []string, to string, now time.Time) (int64, error) {
	defer r.c.lock()()
	o, ok := r.c.st().orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return 0, nil
	}
	o.Status = to
	o.UpdatedAt = now
	r.c.st().orders[id] = o
	return 1, nil
}

func (r *memOrders) ListByBuyer(ctx context.Context, buyerSellerID string, limit int) ([]models.Order, error) {
	defer r.c.lock()()
	var orders []models.Order
	for _, o := range r.c.st().orders {
		if o.BuyerSellerID == buyerSellerID {
			orders = append(orders, *copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return newestFirst(orders[i].CreatedAt, orders[j].CreatedAt, orders[i].ID, orders[j].ID)
	})
	return limitSlice(orders, limit), nil
}

func (r *memOrders) ListPaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	defer r.c.lock()()
	var orders []models.Order
	for _, o := range r.c.st().orders {
		if o.Status == models.OrderPaid && o.CreatedAt.Before(cutoff) {
			orders = append(orders, *copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return limitSlice(orders, limit), nil
}

func (r *memOrders) CountByStatus(ctx context.Context) (map[string]int, error) {
	defer r.c.lock()()
	counts := make(map[string]int)
	for _, o := range r.c.st().orders {
		counts[o.Status]++
	}
	return counts, nil
}

// Payments

type memPayments struct{ c *memConn }

func (r *memPayments) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	defer r.c.lock()()
	if p, ok := r.c.st().payments[orderID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *memPayments) Upsert(ctx context.Context, p *models.Payment) error {
	defer r.c.lock()()
	if existing, ok := r.c.st().payments[p.OrderID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = p.UpdatedAt
	}
	r.c.st().payments[p.OrderID] = *p
	return nil
}

// Escrows

type memEscrows struct{ c *memConn }

func (r *memEscrows) GetByTicketID(ctx context.Context, ticketID string) (*models.TicketEscrow, error) {
	defer r.c.lock()()
	if e, ok := r.c.st().escrows[ticketID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (r *memEscrows) ListByTicketIDs(ctx context.Context, ticketIDs []string) ([]models.TicketEscrow, error) {
	defer r.c.lock()()
	var escrows []models.TicketEscrow
	for _, id := range ticketIDs {
		if e, ok := r.c.st().escrows[id]; ok {
			escrows = append(escrows, e)
		}
	}
	sort.Slice(escrows, func(i, j int) bool { return escrows[i].TicketID < escrows[j].TicketID })
	return escrows, nil
}

func (r *memEscrows) Upsert(ctx context.Context, e *models.TicketEscrow) error {
	defer r.c.lock()()
	if existing, ok := r.c.st().escrows[e.TicketID]; ok {
		e.ID = existing.ID
		if e.OrderID == nil {
			e.OrderID = existing.OrderID
		}
		if e.Provider == nil {
			e.Provider = existing.Provider
		}
		if e.ProviderRef == nil {
			e.ProviderRef = existing.ProviderRef
		}
		if e.DepositedAt == nil {
			e.DepositedAt = existing.DepositedAt
		}
	}
	r.c.st().escrows[e.TicketID] = *e
	return nil
}

// Credits

type memCredits struct{ c *memConn }

func (r *memCredits) Insert(ctx context.Context, c *models.CreditTransaction) error {
	defer r.c.lock()()
	if c.OrderID != nil && c.TicketID != nil {
		for _, existing := range r.c.st().credits {
			if existing.SellerID == c.SellerID && existing.Type == c.Type &&
				existing.OrderID != nil && *existing.OrderID == *c.OrderID &&
				existing.TicketID != nil && *existing.TicketID == *c.TicketID {
				return apperrors.ErrDuplicate
			}
		}
	}
	r.c.st().credits = append(r.c.st().credits, *c)
	return nil
}

func (r *memCredits) Exists(ctx context.Context, sellerID, orderID, ticketID, txType string) (bool, error) {
	defer r.c.lock()()
	for _, c := range r.c.st().credits {
		if c.SellerID == sellerID && c.Type == txType &&
			c.OrderID != nil && *c.OrderID == orderID &&
			c.TicketID != nil && *c.TicketID == ticketID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCredits) List(ctx context.Context, sellerID string, filter models.CreditFilter) ([]models.CreditTransaction, error) {
	defer r.c.lock()()
	var items []models.CreditTransaction
	for _, c := range r.c.st().credits {
		if c.SellerID != sellerID {
			continue
		}
		if (filter.Type != "" && c.Type != filter.Type) || (filter.Source != "" && c.Source != filter.Source) {
			continue
		}
		items = append(items, c)
	}
	sortCreditsNewestFirst(items)
	items = afterCursor(items, filter.Cursor, func(c models.CreditTransaction) string { return c.ID })
	return limitSlice(items, filter.Limit), nil
}

// sortCreditsNewestFirst сохраняет порядок вставки для одинаковых created_at
func sortCreditsNewestFirst(items []models.CreditTransaction) {
	slices.Reverse(items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

func (r *memCredits) ListByOrder(ctx context.Context, orderID string) ([]models.CreditTransaction, error) {
	defer r.c.lock()()
	var items []models.CreditTransaction
	for _, c := range r.c.st().credits {
		if c.OrderID != nil && *c.OrderID == orderID {
			items = append(items, c)
		}
	}
	return items, nil
}

func (r *memCredits) SumBySeller(ctx context.Context, sellerID string) (int64, error) {
	defer r.c.lock()()
	var sum int64
	for _, c := range r.c.st().credits {
		if c.SellerID == sellerID {
			sum += c.AmountCredits
		}
	}
	return sum, nil
}

// Notifications

type memNotifications struct{ c *memConn }

func (r *memNotifications) Create(ctx context.Context, n *models.Notification) error {
	defer r.c.lock()()
	r.c.st().notifications[n.ID] = *n
	return nil
}

func (r *memNotifications) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, int, error) {
	defer r.c.lock()()
	var items []models.Notification
	total, unread := 0, 0
	for _, n := range r.c.st().notifications {
		if n.UserID != userID {
			continue
		}
		total++
		if !n.IsRead {
			unread++
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		items = append(items, n)
	}
	if filter.UnreadOnly {
		total = unread
	}
	sort.Slice(items, func(i, j int) bool {
		return newestFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	if filter.Offset >= len(items) {
		return nil, total, unread, nil
	}
	return limitSlice(items[filter.Offset:], filter.Limit), total, unread, nil
}

func (r *memNotifications) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	defer r.c.lock()()
	var count int64
	for _, id := range ids {
		n, ok := r.c.st().notifications[id]
		if !ok || n.UserID != userID || n.IsRead {
			continue
		}
		n.IsRead = true
		r.c.st().notifications[id] = n
		count++
	}
	return count, nil
}

func (r *memNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	defer r.c.lock()()
	var count int64
	for id, n := range r.c.st().notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			r.c.st().notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (r *memNotifications) Delete(ctx context.Context, userID string, olderThan *time.Time, readOnly bool) (int64, error) {
	defer r.c.lock()()
	var count int64
	for id, n := range r.c.st().notifications {
		if n.UserID != userID || (readOnly && !n.IsRead) || (olderThan != nil && !n.CreatedAt.Before(*olderThan)) {
			continue
		}
		delete(r.c.st().notifications, id)
		count++
	}
	return count, nil
}

// Forum

type memForum struct{ c *memConn }

func (r *memForum) withCount(th models.ForumThread) models.ForumThread {
	th.PostCount = 0
	for _, p := range r.c.st().posts {
		if p.ThreadID == th.ID {
			th.PostCount++
		}
	}
	return th
}

func (r *memForum) CreateThread(ctx context.Context, th *models.ForumThread) error {
	defer r.c.lock()()
	th.UpdatedAt = th.CreatedAt
	r.c.st().threads[th.ID] = *th
	return nil
}

func (r *memForum) GetThread(ctx context.Context, id string) (*models.ForumThread, error) {
	defer r.c.lock()()
	if th, ok := r.c.st().threads[id]; ok {
		return ptr(r.withCount(th)), nil
	}
	return nil, nil
}

func (r *memForum) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.ForumThread, error) {
	defer r.c.lock()()
	var threads []models.ForumThread
	for _, th := range r.c.st().threads {
		if (!filter.IncludeHidden && !th.IsVisible) || (filter.TopicType != "" && th.TopicType != filter.TopicType) {
			continue
		}
		threads = append(threads, r.withCount(th))
	}
	sort.Slice(threads, func(i, j int) bool {
		return newestFirst(threads[i].CreatedAt, threads[j].CreatedAt, threads[i].ID, threads[j].ID)
	})
	threads = afterCursor(threads, filter.Cursor, func(th models.ForumThread) string { return th.ID })
	return limitSlice(threads, filter.Limit), nil
}

func (r *memForum) SetLocked(ctx context.Context, id string, locked bool, now time.Time) error {
	defer r.c.lock()()
	if th, ok := r.c.st().threads[id]; ok {
		th.IsLocked = locked
		th.UpdatedAt = now
		r.c.st().threads[id] = th
	}
	return nil
}

func (r *memForum) SetVisible(ctx context.Context, id string, visible bool, now time.Time) error {
	defer r.c.lock()()
	if th, ok := r.c.st().threads[id]; ok {
		th.IsVisible = visible
		th.UpdatedAt = now
		r.c.st().threads[id] = th
	}
	return nil
}

func (r *memForum) CreatePost(ctx context.Context, p *models.ForumPost) error {
	defer r.c.lock()()
	th, ok := r.c.st().threads[p.ThreadID]
	if !ok {
		return apperrors.ErrNotFound
	}
	th.UpdatedAt = p.CreatedAt
	r.c.st().threads[p.ThreadID] = th
	r.c.st().posts = append(r.c.st().posts, *p)
	return nil
}

func (r *memForum) ListPosts(ctx context.Context, threadID string) ([]models.ForumPost, error) {
	defer r.c.lock()()
	var posts []models.ForumPost
	for _, p := range r.c.st().posts {
		if p.ThreadID == threadID {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// Waitlist

type memWaitlist struct{ c *memConn }

func (r *memWaitlist) Create(ctx context.Context, e *models.WaitlistEntry) error {
	defer r.c.lock()()
	for _, existing := range r.c.st().waitlist {
		if existing.UserID == e.UserID && existing.EventID == e.EventID {
			return apperrors.ErrDuplicate
		}
	}
	r.c.st().waitlist[e.ID] = *e
	return nil
}

func (r *memWaitlist) GetByUserEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error) {
	defer r.c.lock()()
	for _, e := range r.c.st().waitlist {
		if e.UserID == userID && e.EventID == eventID {
			return ptr(e), nil
		}
	}
	return nil, nil
}

func (r *memWaitlist) ListByUser(ctx context.Context, userID, status string) ([]models.WaitlistEntry, error) {
	defer r.c.lock()()
	var entries []models.WaitlistEntry
	for _, e := range r.c.st().waitlist {
		if e.UserID == userID && (status == "" || e.Status == status) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return newestFirst(entries[i].CreatedAt, entries[j].CreatedAt, entries[i].ID, entries[j].ID)
	})
	return entries, nil
}

func (r *memWaitlist) ListActiveByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	defer r.c.lock()()
	var entries []models.WaitlistEntry
	for _, e := range r.c.st().waitlist {
		if e.EventID == eventID && e.Status == models.WaitlistActive {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func (r *memWaitlist) MarkNotified(ctx context.Context, eventID string) (int64, error) {
	defer r.c.lock()()
	var n int64
	for id, e := range r.c.st().waitlist {
		if e.EventID == eventID && e.Status == models.WaitlistActive {
			e.Status = models.WaitlistNotified
			r.c.st().waitlist[id] = e
			n++
		}
	}
	return n, nil
}
