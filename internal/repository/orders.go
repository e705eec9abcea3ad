package repository

import (
	"context"
	"fmt"
	"time"

	"truefantix/internal/models"

	"github.com/lib/pq"
)

type OrderPGRepository struct {
	q querier
}

const orderColumns = `id, buyer_seller_id, seller_id, status, idempotency_key, amount_cents, admin_fee_cents, total_cents, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.BuyerSellerID, &o.SellerID, &o.Status, &o.IdempotencyKey,
		&o.AmountCents, &o.AdminFeeCents, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderPGRepository) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`
	_, err := r.q.ExecContext(ctx, query, o.ID, o.BuyerSellerID, o.SellerID, o.Status, o.IdempotencyKey,
		o.AmountCents, o.AdminFeeCents, o.TotalCents, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", mapError(err))
	}
	o.UpdatedAt = o.CreatedAt
	return nil
}

func (r *OrderPGRepository) AddItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, ticket_id, price_cents, face_value_cents)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query, item.ID, item.OrderID, item.TicketID, item.PriceCents, item.FaceValueCents)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", mapError(err))
	}
	return nil
}

func (r *OrderPGRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, ticket_id, price_cents, face_value_cents
		FROM order_items WHERE order_id = $1 ORDER BY ticket_id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Items = nil
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.TicketID, &item.PriceCents, &item.FaceValueCents); err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

func (r *OrderPGRepository) get(ctx context.Context, query string, args ...any) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err != nil || o == nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return o, nil
}

func (r *OrderPGRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUpdate блокирует строку заказа до конца транзакции
func (r *OrderPGRepository) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderPGRepository) GetByIdempotencyKey(ctx context.Context, buyerSellerID, key string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_seller_id = $1 AND idempotency_key = $2`,
		buyerSellerID, key)
}

func (r *OrderPGRepository) UpdateStatus(ctx context.Context, id string, from []string, to string, now time.Time) (int64, error) {
	query := `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	return affected(r.q.ExecContext(ctx, query, id, to, now, pq.Array(from)))
}

func (r *OrderPGRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, fmt.Errorf("failed to load order items: %w", err)
		}
	}
	return orders, nil
}

func (r *OrderPGRepository) ListByBuyer(ctx context.Context, buyerSellerID string, limit int) ([]models.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_seller_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, buyerSellerID, limit)
}

func (r *OrderPGRepository) ListPaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'PAID' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
}

func (r *OrderPGRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Payments

type PaymentPGRepository struct {
	q querier
}

func (r *PaymentPGRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	p := &models.Payment{}
	query := `
		SELECT id, order_id, status, amount_cents, currency, provider, provider_ref, created_at, updated_at
		FROM payments WHERE order_id = $1`
	err := r.q.QueryRowContext(ctx, query, orderID).Scan(
		&p.ID, &p.OrderID, &p.Status, &p.AmountCents, &p.Currency, &p.Provider, &p.ProviderRef, &p.CreatedAt, &p.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert по order_id; id и created_at существующей записи сохраняются
func (r *PaymentPGRepository) Upsert(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, status, amount_cents, currency, provider, provider_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_cents = EXCLUDED.amount_cents,
			currency = EXCLUDED.currency,
			provider = EXCLUDED.provider,
			provider_ref = EXCLUDED.provider_ref,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, p.ID, p.OrderID, p.Status, p.AmountCents, p.Currency,
		p.Provider, p.ProviderRef, p.UpdatedAt).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

// Escrows

type EscrowPGRepository struct {
	q querier
}

const escrowColumns = `id, ticket_id, order_id, state, provider, provider_ref, deposited_at, released_at, reason, updated_at`

func scanEscrow(row rowScanner) (*models.TicketEscrow, error) {
	e := &models.TicketEscrow{}
	err := row.Scan(&e.ID, &e.TicketID, &e.OrderID, &e.State, &e.Provider, &e.ProviderRef,
		&e.DepositedAt, &e.ReleasedAt, &e.Reason, &e.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EscrowPGRepository) GetByTicketID(ctx context.Context, ticketID string) (*models.TicketEscrow, error) {
	return scanEscrow(r.q.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM ticket_escrows WHERE ticket_id = $1`, ticketID))
}

func (r *EscrowPGRepository) ListByTicketIDs(ctx context.Context, ticketIDs []string) ([]models.TicketEscrow, error) {
	ticketIDs = validIDs(ticketIDs)
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+escrowColumns+` FROM ticket_escrows WHERE ticket_id = ANY($1::uuid[]) ORDER BY ticket_id`,
		pq.Array(ticketIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []models.TicketEscrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, rows.Err()
}

// Upsert по ticket_id; deposited_at не затирается NULL'ом
func (r *EscrowPGRepository) Upsert(ctx context.Context, e *models.TicketEscrow) error {
	query := `
		INSERT INTO ticket_escrows (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ticket_id) DO UPDATE SET
			order_id = COALESCE(EXCLUDED.order_id, ticket_escrows.order_id),
			state = EXCLUDED.state,
			provider = COALESCE(EXCLUDED.provider, ticket_escrows.provider),
			provider_ref = COALESCE(EXCLUDED.provider_ref, ticket_escrows.provider_ref),
			deposited_at = COALESCE(EXCLUDED.deposited_at, ticket_escrows.deposited_at),
			released_at = EXCLUDED.released_at,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at
		RETURNING id`
	err := r.q.QueryRowContext(ctx, query, e.ID, e.TicketID, e.OrderID, e.State, e.Provider, e.ProviderRef,
		e.DepositedAt, e.ReleasedAt, e.Reason, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert escrow: %w", err)
	}
	return nil
}
