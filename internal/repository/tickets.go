package repository

import (
	"context"
	"fmt"
	"time"

	"truefantix/internal/models"

	"github.com/lib/pq"
)

type TicketPGRepository struct {
	q querier
}

const ticketColumns = `id, seller_id, event_id, title, venue, date, image, price_cents, face_value_cents,
	status, verification_status, verification_score, verification_reason, verification_provider, verified_at,
	barcode_hash, barcode_last4, barcode_type, reserved_by_order_id, reserved_until, sold_at, withdrawn_at,
	created_at, updated_at`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(
		&t.ID, &t.SellerID, &t.EventID, &t.Title, &t.Venue, &t.Date, &t.Image, &t.PriceCents, &t.FaceValueCents,
		&t.Status, &t.VerificationStatus, &t.VerificationScore, &t.VerificationReason, &t.VerificationProvider, &t.VerifiedAt,
		&t.BarcodeHash, &t.BarcodeLast4, &t.BarcodeType, &t.ReservedByOrderID, &t.ReservedUntil, &t.SoldAt, &t.WithdrawnAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TicketPGRepository) queryTickets(ctx context.Context, query string, args ...any) ([]models.Ticket, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *TicketPGRepository) Create(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $23)`

	_, err := r.q.ExecContext(ctx, query,
		t.ID, t.SellerID, t.EventID, t.Title, t.Venue, t.Date, t.Image, t.PriceCents, t.FaceValueCents,
		t.Status, t.VerificationStatus, t.VerificationScore, t.VerificationReason, t.VerificationProvider, t.VerifiedAt,
		t.BarcodeHash, t.BarcodeLast4, t.BarcodeType, t.ReservedByOrderID, t.ReservedUntil, t.SoldAt, t.WithdrawnAt,
		t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", mapError(err))
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (r *TicketPGRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	return scanTicket(r.q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

func (r *TicketPGRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Ticket, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`
	return r.queryTickets(ctx, query, pq.Array(ids))
}

func (r *TicketPGRepository) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error) {
	// по id не в формате uuid ничего не найдется
	for _, id := range []string{filter.SellerID, filter.EventID, filter.Cursor} {
		if id != "" && !isID(id) {
			return nil, nil
		}
	}

	var args []any
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1 = 1`

	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(filter.Statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}
	if filter.VerificationStatus != "" {
		args = append(args, filter.VerificationStatus)
		query += fmt.Sprintf(" AND verification_status = $%d", len(args))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR venue ILIKE $%d)", len(args), len(args))
	}
	if filter.Cursor != "" {
		args = append(args, filter.Cursor)
		query += fmt.Sprintf(" AND (created_at, id) < (SELECT created_at, id FROM tickets WHERE id = $%d)", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	return r.queryTickets(ctx, query, args...)
}

func (r *TicketPGRepository) FindLiveByBarcode(ctx context.Context, barcodeHash string, eventID *string) (*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE barcode_hash = $1
		  AND status IN ('AVAILABLE', 'RESERVED', 'SOLD')
		  AND verification_status IN ('PENDING', 'VERIFIED', 'NEEDS_REVIEW')
		  AND ($2::uuid IS NULL OR event_id = $2::uuid)
		LIMIT 1`
	return scanTicket(r.q.QueryRowContext(ctx, query, barcodeHash, eventID))
}

func (r *TicketPGRepository) Reserve(ctx context.Context, id, orderID string, until, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET status = 'RESERVED', reserved_by_order_id = $2, reserved_until = $3, updated_at = $4
		WHERE id = $1
		  AND withdrawn_at IS NULL
		  AND sold_at IS NULL
		  AND (status = 'AVAILABLE' OR (status = 'RESERVED' AND reserved_until <= $4))`
	return affected(r.q.ExecContext(ctx, query, id, orderID, until, now))
}

func (r *TicketPGRepository) MarkSold(ctx context.Context, ids []string, orderID string, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET status = 'SOLD', sold_at = $3, reserved_by_order_id = NULL, reserved_until = NULL, updated_at = $3
		WHERE id = ANY($1::uuid[])
		  AND status = 'RESERVED'
		  AND reserved_by_order_id = $2
		  AND reserved_until > $3`
	return affected(r.q.ExecContext(ctx, query, pq.Array(ids), orderID, now))
}

func (r *TicketPGRepository) ReleaseExpiredForOrder(ctx context.Context, orderID string, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET status = 'AVAILABLE', reserved_by_order_id = NULL, reserved_until = NULL, updated_at = $2
		WHERE reserved_by_order_id = $1
		  AND status = 'RESERVED'
		  AND reserved_until <= $2`
	return affected(r.q.ExecContext(ctx, query, orderID, now))
}

func (r *TicketPGRepository) Release(ctx context.Context, ids []string, includeSold bool, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET status = 'AVAILABLE', reserved_by_order_id = NULL, reserved_until = NULL, sold_at = NULL, updated_at = $3
		WHERE id = ANY($1::uuid[])
		  AND withdrawn_at IS NULL
		  AND ($2 OR status <> 'SOLD')`
	return affected(r.q.ExecContext(ctx, query, pq.Array(ids), includeSold, now))
}

func (r *TicketPGRepository) ListExpiredReserved(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status = 'RESERVED' AND reserved_until <= $1
		ORDER BY reserved_until
		LIMIT $2`
	return r.queryTickets(ctx, query, now, limit)
}

func (r *TicketPGRepository) UpdateVerification(ctx context.Context, t *models.Ticket) error {
	query := `
		UPDATE tickets
		SET verification_status = $2, verification_score = $3, verification_reason = $4,
		    verification_provider = $5, verified_at = $6, updated_at = $7
		WHERE id = $1`
	_, err := r.q.ExecContext(ctx, query, t.ID, t.VerificationStatus, t.VerificationScore,
		t.VerificationReason, t.VerificationProvider, t.VerifiedAt, t.UpdatedAt)
	return err
}

func (r *TicketPGRepository) Withdraw(ctx context.Context, id, sellerID string, now time.Time) (int64, error) {
	query := `
		UPDATE tickets
		SET status = 'WITHDRAWN', withdrawn_at = $3, updated_at = $3
		WHERE id = $1 AND seller_id = $2 AND status = 'AVAILABLE'`
	return affected(r.q.ExecContext(ctx, query, id, sellerID, now))
}

func (r *TicketPGRepository) Stats(ctx context.Context, now time.Time) (int, int, int, error) {
	var reserved, expired, pending int
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'RESERVED'),
			COUNT(*) FILTER (WHERE status = 'RESERVED' AND reserved_until <= $1),
			COUNT(*) FILTER (WHERE verification_status IN ('PENDING', 'NEEDS_REVIEW'))
		FROM tickets`
	err := r.q.QueryRowContext(ctx, query, now).Scan(&reserved, &expired, &pending)
	return reserved, expired, pending, err
}
