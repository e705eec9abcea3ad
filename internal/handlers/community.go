package handlers

import (
	"net/http"
	"strings"

	"truefantix/internal/models"

	"github.com/gin-gonic/gin"
)

// Notifications

// ListNotifications - GET /api/notifications?limit&offset&unreadOnly
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	offset, valid := queryInt(c, "offset", 0)
	if !valid {
		return
	}

	page, err := h.services.Notifications.List(c.Request.Context(), currentUser(c), models.NotificationFilter{
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: queryBool(c, "unreadOnly"),
	})
	if err != nil {
		fail(c, err, "list notifications")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": page.Items, "total": page.Total, "unreadCount": page.UnreadCount})
}

// MarkNotifications - PATCH /api/notifications
func (h *Handlers) MarkNotifications(c *gin.Context) {
	var req models.MarkNotificationsRequest
	if !bindJSON(c, &req, false) {
		return
	}

	n, err := h.services.Notifications.MarkRead(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "mark notifications")
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": n})
}

// DeleteNotifications - DELETE /api/notifications?olderThanDays&readOnly
func (h *Handlers) DeleteNotifications(c *gin.Context) {
	days, valid := queryInt(c, "olderThanDays", 0)
	if !valid {
		return
	}

	n, err := h.services.Notifications.Delete(c.Request.Context(), currentUser(c), days, queryBool(c, "readOnly"))
	if err != nil {
		fail(c, err, "delete notifications")
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": n})
}

// Forum

// ListThreads - GET /api/forum/threads
func (h *Handlers) ListThreads(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}

	page, err := h.services.Forum.ListThreads(c.Request.Context(), currentUser(c), models.ThreadFilter{
		TopicType: c.Query("topicType"),
		Cursor:    c.Query("cursor"),
		Limit:     limit,
	})
	if err != nil {
		fail(c, err, "list threads")
		return
	}
	ok(c, http.StatusOK, gin.H{"threads": page.Threads, "nextCursor": page.NextCursor})
}

// CreateThread - POST /api/forum/threads
func (h *Handlers) CreateThread(c *gin.Context) {
	var req models.CreateThreadRequest
	if !bindJSON(c, &req, false) {
		return
	}

	view, err := h.services.Forum.CreateThread(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "create thread")
		return
	}
	ok(c, http.StatusCreated, gin.H{"thread": view.Thread, "posts": view.Posts})
}

// GetThread - GET /api/forum/threads/:id
func (h *Handlers) GetThread(c *gin.Context) {
	view, err := h.services.Forum.GetThread(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		fail(c, err, "get thread")
		return
	}
	ok(c, http.StatusOK, gin.H{"thread": view.Thread, "posts": view.Posts})
}

// CreatePost - POST /api/forum/threads/:id/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	var req models.CreatePostRequest
	if !bindJSON(c, &req, false) {
		return
	}

	post, err := h.services.Forum.CreatePost(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "create post")
		return
	}
	ok(c, http.StatusCreated, gin.H{"post": post})
}

// LockThread - POST /api/admin/forum/threads/:id/lock
func (h *Handlers) LockThread(c *gin.Context) {
	var req models.LockThreadRequest
	if !bindJSON(c, &req, false) {
		return
	}

	thread, err := h.services.Forum.Lock(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "lock thread")
		return
	}
	ok(c, http.StatusOK, gin.H{"thread": thread})
}

// SetThreadVisibility - POST /api/admin/forum/threads/:id/visibility
func (h *Handlers) SetThreadVisibility(c *gin.Context) {
	var req models.ThreadVisibilityRequest
	if !bindJSON(c, &req, false) {
		return
	}

	thread, err := h.services.Forum.SetVisibility(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err, "set thread visibility")
		return
	}
	ok(c, http.StatusOK, gin.H{"thread": thread})
}

// Waitlist

// ListWaitlist - GET /api/waitlist?status
func (h *Handlers) ListWaitlist(c *gin.Context) {
	entries, err := h.services.Waitlist.List(c.Request.Context(), currentUser(c), strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if err != nil {
		fail(c, err, "list waitlist")
		return
	}
	ok(c, http.StatusOK, gin.H{"entries": entries})
}

// JoinWaitlist - POST /api/waitlist
// Повторная запись отдает существующую с 200
func (h *Handlers) JoinWaitlist(c *gin.Context) {
	var req models.JoinWaitlistRequest
	if !bindJSON(c, &req, false) {
		return
	}

	entry, created, err := h.services.Waitlist.Join(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err, "join waitlist")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, gin.H{"entry": entry, "created": created})
}

// OpsMetrics - GET /api/admin/ops/metrics
func (h *Handlers) OpsMetrics(c *gin.Context) {
	m, err := h.services.Ops.Metrics(c.Request.Context())
	if err != nil {
		fail(c, err, "load ops metrics")
		return
	}
	ok(c, http.StatusOK, gin.H{"metrics": m})
}
