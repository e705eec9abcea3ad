package repository

import (
	"context"
	"fmt"
	"time"

	"truefantix/internal/models"

	"github.com/lib/pq"
)

// Notifications

type NotificationPGRepository struct {
	q querier
}

func (r *NotificationPGRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Message, n.Link, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *NotificationPGRepository) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, int, error) {
	var total, unread int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		FROM notifications WHERE user_id = $1`, userID).Scan(&total, &unread)
	if err != nil {
		return nil, 0, 0, err
	}
	if filter.UnreadOnly {
		total = unread
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, type, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, userID, filter.UnreadOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	var items []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, 0, err
		}
		items = append(items, n)
	}
	return items, total, unread, rows.Err()
}

func (r *NotificationPGRepository) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	return affected(r.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND NOT is_read`, userID, pq.Array(ids)))
}

func (r *NotificationPGRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID))
}

func (r *NotificationPGRepository) Delete(ctx context.Context, userID string, olderThan *time.Time, readOnly bool) (int64, error) {
	return affected(r.q.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2::timestamptz)
		  AND (NOT $3 OR is_read)`, userID, olderThan, readOnly))
}

// Forum

type ForumPGRepository struct {
	q querier
}

const threadColumns = `t.id, t.author_user_id, t.title, t.topic_type, t.topic, t.is_locked, t.is_visible, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM forum_posts p WHERE p.thread_id = t.id)`

func scanThread(row rowScanner) (*models.ForumThread, error) {
	th := &models.ForumThread{}
	err := row.Scan(&th.ID, &th.AuthorUserID, &th.Title, &th.TopicType, &th.Topic, &th.IsLocked, &th.IsVisible,
		&th.CreatedAt, &th.UpdatedAt, &th.PostCount)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return th, nil
}

func (r *ForumPGRepository) CreateThread(ctx context.Context, th *models.ForumThread) error {
	query := `
		INSERT INTO forum_threads (id, author_user_id, title, topic_type, topic, is_locked, is_visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	_, err := r.q.ExecContext(ctx, query, th.ID, th.AuthorUserID, th.Title, th.TopicType, th.Topic,
		th.IsLocked, th.IsVisible, th.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	th.UpdatedAt = th.CreatedAt
	return nil
}

func (r *ForumPGRepository) GetThread(ctx context.Context, id string) (*models.ForumThread, error) {
	return scanThread(r.q.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM forum_threads t WHERE t.id = $1`, id))
}

func (r *ForumPGRepository) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]models.ForumThread, error) {
	var args []any
	query := `SELECT ` + threadColumns + ` FROM forum_threads t WHERE 1 = 1`

	if !filter.IncludeHidden {
		query += " AND t.is_visible"
	}
	if filter.TopicType != "" {
		args = append(args, filter.TopicType)
		query += fmt.Sprintf(" AND t.topic_type = $%d", len(args))
	}
	if filter.Cursor != "" {
		if !isID(filter.Cursor) {
			return nil, nil
		}
		args = append(args, filter.Cursor)
		query += fmt.Sprintf(" AND (t.created_at, t.id) < (SELECT created_at, id FROM forum_threads WHERE id = $%d)", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC, t.id DESC LIMIT $%d", len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []models.ForumThread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *th)
	}
	return threads, rows.Err()
}

func (r *ForumPGRepository) SetLocked(ctx context.Context, id string, locked bool, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE forum_threads SET is_locked = $2, updated_at = $3 WHERE id = $1`, id, locked, now)
	return err
}

func (r *ForumPGRepository) SetVisible(ctx context.Context, id string, visible bool, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE forum_threads SET is_visible = $2, updated_at = $3 WHERE id = $1`, id, visible, now)
	return err
}

func (r *ForumPGRepository) CreatePost(ctx context.Context, p *models.ForumPost) error {
	query := `
		INSERT INTO forum_posts (id, thread_id, author_user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.q.ExecContext(ctx, query, p.ID, p.ThreadID, p.AuthorUserID, p.Body, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	_, err := r.q.ExecContext(ctx, `UPDATE forum_threads SET updated_at = $2 WHERE id = $1`, p.ThreadID, p.CreatedAt)
	return err
}

func (r *ForumPGRepository) ListPosts(ctx context.Context, threadID string) ([]models.ForumPost, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, thread_id, author_user_id, body, created_at
		FROM forum_posts WHERE thread_id = $1
		ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.ForumPost
	for rows.Next() {
		var p models.ForumPost
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.AuthorUserID, &p.Body, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Waitlist

type WaitlistPGRepository struct {
	q querier
}

func (r *WaitlistPGRepository) Create(ctx context.Context, e *models.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (id, user_id, event_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query, e.ID, e.UserID, e.EventID, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", mapError(err))
	}
	return nil
}

func (r *WaitlistPGRepository) GetByUserEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error) {
	e := &models.WaitlistEntry{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, event_id, status, created_at
		FROM waitlist_entries WHERE user_id = $1 AND event_id = $2`, userID, eventID).
		Scan(&e.ID, &e.UserID, &e.EventID, &e.Status, &e.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *WaitlistPGRepository) query(ctx context.Context, query string, args ...any) ([]models.WaitlistEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventID, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *WaitlistPGRepository) ListByUser(ctx context.Context, userID, status string) ([]models.WaitlistEntry, error) {
	return r.query(ctx, `
		SELECT id, user_id, event_id, status, created_at
		FROM waitlist_entries
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, userID, status)
}

func (r *WaitlistPGRepository) ListActiveByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	return r.query(ctx, `
		SELECT id, user_id, event_id, status, created_at
		FROM waitlist_entries
		WHERE event_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at`, eventID)
}

func (r *WaitlistPGRepository) MarkNotified(ctx context.Context, eventID string) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = 'NOTIFIED' WHERE event_id = $1 AND status = 'ACTIVE'`, eventID))
}
