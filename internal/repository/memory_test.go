package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTicket(t *testing.T, s *MemoryStore, id string, created time.Time) {
	t.Helper()
	err := s.Repos().Tickets.Create(context.Background(), &models.Ticket{
		ID:                 id,
		SellerID:           "seller-1",
		Title:              "Show " + id,
		PriceCents:         5000,
		Status:             models.TicketAvailable,
		VerificationStatus: models.VerificationVerified,
		CreatedAt:          created,
	})
	require.NoError(t, err)
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Repos().Sellers.Create(ctx, &models.Seller{ID: "s1", Name: "A", Status: models.SellerStatusApproved}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, r *Repositories) error {
		if _, err := r.Sellers.AdjustCredits(ctx, "s1", 5, false); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	seller, err := s.Repos().Sellers.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seller.CreditBalanceCredits)
}

func TestMemoryStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Repos().Sellers.Create(ctx, &models.Seller{ID: "s1", Name: "A"}))

	err := s.WithTx(ctx, func(ctx context.Context, r *Repositories) error {
		_, err := r.Sellers.AdjustCredits(ctx, "s1", 3, false)
		return err
	})
	require.NoError(t, err)

	seller, _ := s.Repos().Sellers.GetByID(ctx, "s1")
	assert.Equal(t, int64(3), seller.CreditBalanceCredits)
}

func TestMemoryStore_AdjustCredits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Repos().Sellers.Create(ctx, &models.Seller{ID: "s1", Name: "A", CreditBalanceCredits: 1}))

	_, err := s.Repos().Sellers.AdjustCredits(ctx, "s1", -2, false)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredits)

	balance, err := s.Repos().Sellers.AdjustCredits(ctx, "s1", -2, true)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), balance)

	_, err = s.Repos().Sellers.AdjustCredits(ctx, "missing", 1, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryStore_ReserveIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	seedTicket(t, s, "t1", now)
	tickets := s.Repos().Tickets

	n, err := tickets.Reserve(ctx, "t1", "o1", now.Add(15*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tickets.Reserve(ctx, "t1", "o2", now.Add(15*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "live reservation must not be taken over")

	later := now.Add(16 * time.Minute)
	n, err = tickets.Reserve(ctx, "t1", "o2", later.Add(15*time.Minute), later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired reservation can be taken over")

	n, err = tickets.MarkSold(ctx, []string{"t1"}, "o1", later)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = tickets.MarkSold(ctx, []string{"t1"}, "o2", later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ticket, _ := tickets.GetByID(ctx, "t1")
	assert.Equal(t, models.TicketSold, ticket.Status)
	assert.Nil(t, ticket.ReservedByOrderID)
	assert.NotNil(t, ticket.SoldAt)
}

func TestMemoryStore_ReleaseSkipsSoldUnlessAsked(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	seedTicket(t, s, "t1", now)
	tickets := s.Repos().Tickets

	_, _ = tickets.Reserve(ctx, "t1", "o1", now.Add(time.Minute), now)
	_, _ = tickets.MarkSold(ctx, []string{"t1"}, "o1", now)

	n, err := tickets.Release(ctx, []string{"t1"}, false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = tickets.Release(ctx, []string{"t1"}, true, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ticket, _ := tickets.GetByID(ctx, "t1")
	assert.Equal(t, models.TicketAvailable, ticket.Status)
	assert.Nil(t, ticket.SoldAt)
}

func TestMemoryStore_TicketCursorPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	seedTicket(t, s, "a", base)
	seedTicket(t, s, "b", base.Add(time.Second))
	seedTicket(t, s, "c", base.Add(2*time.Second))

	page, err := s.Repos().Tickets.List(ctx, models.TicketFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	page, err = s.Repos().Tickets.List(ctx, models.TicketFilter{Limit: 2, Cursor: "b"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	page, err = s.Repos().Tickets.List(ctx, models.TicketFilter{Limit: 2, Cursor: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStore_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := s.Repos()

	require.NoError(t, r.Users.Create(ctx, &models.User{ID: "u1", Email: "a@x.io", Phone: "+1"}))
	assert.ErrorIs(t, r.Users.Create(ctx, &models.User{ID: "u2", Email: "a@x.io", Phone: "+2"}), apperrors.ErrDuplicate)

	require.NoError(t, r.Orders.Create(ctx, &models.Order{ID: "o1", BuyerSellerID: "b", IdempotencyKey: "k"}))
	assert.ErrorIs(t, r.Orders.Create(ctx, &models.Order{ID: "o2", BuyerSellerID: "b", IdempotencyKey: "k"}), apperrors.ErrDuplicate)

	orderID, ticketID := "o1", "t1"
	credit := &models.CreditTransaction{ID: "c1", SellerID: "b", OrderID: &orderID, TicketID: &ticketID, Type: models.CreditSpent}
	require.NoError(t, r.Credits.Insert(ctx, credit))
	dup := *credit
	dup.ID = "c2"
	assert.ErrorIs(t, r.Credits.Insert(ctx, &dup), apperrors.ErrDuplicate)

	exists, err := r.Credits.Exists(ctx, "b", "o1", "t1", models.CreditSpent)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, r.Waitlist.Create(ctx, &models.WaitlistEntry{ID: "w1", UserID: "u1", EventID: "e1", Status: models.WaitlistActive}))
	assert.ErrorIs(t, r.Waitlist.Create(ctx, &models.WaitlistEntry{ID: "w2", UserID: "u1", EventID: "e1"}), apperrors.ErrDuplicate)
}

func TestMemoryStore_OrderItemsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := s.Repos()

	require.NoError(t, r.Orders.Create(ctx, &models.Order{ID: "o1", BuyerSellerID: "b", IdempotencyKey: "k"}))
	require.NoError(t, r.Orders.AddItem(ctx, &models.OrderItem{ID: "i2", OrderID: "o1", TicketID: "t2"}))
	require.NoError(t, r.Orders.AddItem(ctx, &models.OrderItem{ID: "i1", OrderID: "o1", TicketID: "t1"}))

	order, err := r.Orders.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, order.TicketIDs())

	order.Items[0].TicketID = "mutated"
	again, _ := r.Orders.GetByID(ctx, "o1")
	assert.Equal(t, "t1", again.Items[0].TicketID)
}

func TestMemoryStore_NotificationsCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := s.Repos()
	now := time.Now()

	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, r.Notifications.Create(ctx, &models.Notification{
			ID: id, UserID: "u1", Type: "INFO", Message: id, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	n, err := r.Notifications.MarkRead(ctx, "u1", []string{"n1", "n1", "other"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	items, total, unread, err := r.Notifications.List(ctx, "u1", models.NotificationFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, unread)
	assert.Equal(t, "n3", items[0].ID)

	deleted, err := r.Notifications.Delete(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
