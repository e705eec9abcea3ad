package service

import (
	"net/http"
	"testing"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsAndWaitlist(t *testing.T) {
	f := newFixture(t)
	fan := f.user("fan", models.SellerStatusPending)

	event, err := f.svc.Events.Create(f.ctx, &models.CreateEventRequest{
		Title: "Leafs vs Habs", Venue: "Scotiabank Arena", Date: "2026-02-14",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SelloutAvailable, event.SelloutStatus)

	_, _, err = f.svc.Waitlist.Join(f.ctx, fan, &models.JoinWaitlistRequest{EventID: event.ID})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeNotSoldOut)

	change, err := f.svc.Events.UpdateSellout(f.ctx, event.ID, &models.UpdateSelloutRequest{SelloutStatus: "sold_out"})
	require.NoError(t, err)
	assert.Equal(t, models.SelloutSoldOut, change.Event.SelloutStatus)
	assert.Equal(t, 0, change.Notified)

	entry, created, err := f.svc.Waitlist.Join(f.ctx, fan, &models.JoinWaitlistRequest{EventID: event.ID})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.WaitlistActive, entry.Status)

	again, created, err := f.svc.Waitlist.Join(f.ctx, fan, &models.JoinWaitlistRequest{EventID: event.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entry.ID, again.ID)

	change, err = f.svc.Events.UpdateSellout(f.ctx, event.ID, &models.UpdateSelloutRequest{SelloutStatus: "AVAILABLE"})
	require.NoError(t, err)
	assert.Equal(t, 1, change.Notified)

	evt, ok := f.pub.last(models.EventWaitlistNotified).(models.WaitlistNotifiedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{fan.ID}, evt.UserIDs)

	active, err := f.svc.Waitlist.List(f.ctx, fan, "active")
	require.NoError(t, err)
	assert.Empty(t, active)

	events, err := f.svc.Events.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = f.svc.Events.UpdateSellout(f.ctx, event.ID, &models.UpdateSelloutRequest{SelloutStatus: "GONE"})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)
	_, err = f.svc.Events.UpdateSellout(f.ctx, "missing", &models.UpdateSelloutRequest{SelloutStatus: "SOLD_OUT"})
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)
	_, _, err = f.svc.Waitlist.Join(f.ctx, fan, &models.JoinWaitlistRequest{EventID: "missing"})
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)
}

func TestForumModeration(t *testing.T) {
	f := newFixture(t)
	author := f.user("author", models.SellerStatusPending)
	reader := f.user("reader", models.SellerStatusPending)
	admin := f.admin()

	view, err := f.svc.Forum.CreateThread(f.ctx, author, &models.CreateThreadRequest{
		Title:     "Best seats at the Rogers Centre?",
		TopicType: "team",
		Topic:     "Blue Jays",
		Body:      "Looking for shade on a day game.",
	})
	require.NoError(t, err)
	threadID := view.Thread.ID
	assert.Equal(t, "TEAM", view.Thread.TopicType)
	require.Len(t, view.Posts, 1)

	_, err = f.svc.Forum.CreatePost(f.ctx, reader, threadID, &models.CreatePostRequest{Body: "Section 130 and up."})
	require.NoError(t, err)

	thread, err := f.svc.Forum.GetThread(f.ctx, reader, threadID)
	require.NoError(t, err)
	assert.Len(t, thread.Posts, 2)

	locked := true
	_, err = f.svc.Forum.Lock(f.ctx, threadID, &models.LockThreadRequest{Locked: &locked})
	require.NoError(t, err)
	_, err = f.svc.Forum.CreatePost(f.ctx, reader, threadID, &models.CreatePostRequest{Body: "late reply"})
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeThreadLocked)

	hidden := false
	_, err = f.svc.Forum.SetVisibility(f.ctx, threadID, &models.ThreadVisibilityRequest{Visible: &hidden})
	require.NoError(t, err)

	_, err = f.svc.Forum.GetThread(f.ctx, reader, threadID)
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)
	_, err = f.svc.Forum.GetThread(f.ctx, admin, threadID)
	require.NoError(t, err)

	page, err := f.svc.Forum.ListThreads(f.ctx, reader, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Threads)
	page, err = f.svc.Forum.ListThreads(f.ctx, admin, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Threads, 1)

	_, err = f.svc.Forum.CreateThread(f.ctx, author, &models.CreateThreadRequest{Title: "Hi", Body: "x"})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)
	_, err = f.svc.Forum.Lock(f.ctx, threadID, &models.LockThreadRequest{})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)
	_, err = f.svc.Forum.Lock(f.ctx, "missing", &models.LockThreadRequest{Locked: &locked})
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)

	assert.Equal(t, "OTHER", normalizeTopicType("podcasts"))
}

func TestNotificationsFromOrderEvents(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	order := f.checkout(buyer, f.ticket(seller, 10000, nil))

	created, err := f.svc.Notifications.FromOrderEvent(f.ctx, orderEvent(order, f.clock, ""))
	require.NoError(t, err)
	require.Len(t, created, 1, "pending orders only notify the buyer")
	assert.Contains(t, created[0].Message, "$108.75")

	order.Status = models.OrderPaid
	created, err = f.svc.Notifications.FromOrderEvent(f.ctx, orderEvent(order, f.clock, ""))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, NotificationSale, created[1].Type)
	assert.Equal(t, seller.ID, created[1].UserID)

	page, err := f.svc.Notifications.List(f.ctx, buyer, models.NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.UnreadCount)

	n, err := f.svc.Notifications.MarkRead(f.ctx, buyer, &models.MarkNotificationsRequest{IDs: []string{page.Items[0].ID}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Notifications.MarkRead(f.ctx, buyer, &models.MarkNotificationsRequest{})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)

	deleted, err := f.svc.Notifications.Delete(f.ctx, buyer, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	f.advance(48 * time.Hour)
	deleted, err = f.svc.Notifications.Delete(f.ctx, buyer, 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.svc.Notifications.Delete(f.ctx, buyer, -1, false)
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)
}

func TestNotificationsFromWaitlistEvent(t *testing.T) {
	f := newFixture(t)
	fan := f.user("fan", models.SellerStatusPending)

	created, err := f.svc.Notifications.FromWaitlistEvent(f.ctx, models.WaitlistNotifiedEvent{
		EventID: "evt-1",
		Title:   "Arena Night",
		UserIDs: []string{fan.ID},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, NotificationWaitlistOpened, created[0].Type)
	require.NotNil(t, created[0].Link)
	assert.Equal(t, "/events/evt-1", *created[0].Link)
}

func TestSellerApproval(t *testing.T) {
	f := newFixture(t)
	user := f.user("newbie", models.SellerStatusPending)
	f.user("veteran", models.SellerStatusApproved)

	approved, err := f.svc.Sellers.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	seller, err := f.svc.Sellers.Approve(f.ctx, *user.SellerID)
	require.NoError(t, err)
	assert.Equal(t, models.SellerStatusApproved, seller.Status)

	stored, err := f.store.Repos().Users.GetByID(f.ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanSell)

	view, err := f.svc.Sellers.Get(f.ctx, *user.SellerID)
	require.NoError(t, err)
	require.NotNil(t, view.Metrics)
	assert.Zero(t, view.Metrics.LifetimeOrders)

	_, err = f.svc.Sellers.Approve(f.ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)
}

func TestCreditLedger(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner", models.SellerStatusApproved)
	other := f.user("other", models.SellerStatusApproved)
	f.grant(owner, 3)

	_, err := f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{SellerID: *owner.SellerID, AmountCredits: -5})
	requireAPIError(t, err, http.StatusConflict, apperrors.CodeInsufficientCredits)
	_, err = f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{SellerID: *owner.SellerID})
	requireAPIError(t, err, http.StatusBadRequest, apperrors.CodeValidation)
	_, err = f.svc.Credits.Adjust(f.ctx, &models.CreditAdjustmentRequest{SellerID: "missing", AmountCredits: 1})
	requireAPIError(t, err, http.StatusNotFound, apperrors.CodeNotFound)

	page, err := f.svc.Credits.Ledger(f.ctx, owner, *owner.SellerID, models.CreditFilter{Type: "adjustment"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Balance)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), page.Items[0].BalanceAfterCredits)

	_, err = f.svc.Credits.Ledger(f.ctx, other, *owner.SellerID, models.CreditFilter{})
	requireAPIError(t, err, http.StatusForbidden, apperrors.CodeForbidden)

	tokens, err := f.svc.Credits.AccountTokens(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tokens.Balance)

	f.requireLedgerConsistent(owner, other)
}

func TestOpsMetrics(t *testing.T) {
	f := newFixture(t)
	seller := f.user("seller", models.SellerStatusApproved)
	buyer := f.user("buyer", models.SellerStatusPending)
	f.checkout(buyer, f.ticket(seller, 5000, nil))
	f.advance(20 * time.Minute)

	m, err := f.svc.Ops.Metrics(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.OrdersByStatus[models.OrderPending])
	assert.Equal(t, 0, m.OrdersByStatus[models.OrderRefunded])
	assert.Len(t, m.OrdersByStatus, 6)
	assert.Equal(t, 1, m.ReservedTickets)
	assert.Equal(t, 1, m.ExpiredReservations)
	assert.Equal(t, f.clock, m.GeneratedAt)
	// у хранилища в памяти нет пула
	assert.Nil(t, m.Pool)

	require.NoError(t, f.svc.Ops.Ping(f.ctx))
}
