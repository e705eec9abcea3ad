package repository

import (
	"context"
	"fmt"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
)

type SellerPGRepository struct {
	q querier
}

const sellerColumns = `id, name, status, rating, reviews, credit_balance_credits, created_at, updated_at`

func scanSeller(row rowScanner) (*models.Seller, error) {
	s := &models.Seller{}
	err := row.Scan(&s.ID, &s.Name, &s.Status, &s.Rating, &s.Reviews, &s.CreditBalanceCredits, &s.CreatedAt, &s.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SellerPGRepository) Create(ctx context.Context, s *models.Seller) error {
	query := `
		INSERT INTO sellers (id, name, status, rating, reviews, credit_balance_credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`
	_, err := r.q.ExecContext(ctx, query, s.ID, s.Name, s.Status, s.Rating, s.Reviews, s.CreditBalanceCredits, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert seller: %w", mapError(err))
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

func (r *SellerPGRepository) GetByID(ctx context.Context, id string) (*models.Seller, error) {
	return scanSeller(r.q.QueryRowContext(ctx, `SELECT `+sellerColumns+` FROM sellers WHERE id = $1`, id))
}

func (r *SellerPGRepository) List(ctx context.Context, status string, limit int) ([]models.Seller, error) {
	query := `
		SELECT ` + sellerColumns + `
		FROM sellers
		WHERE ($1 = '' OR status = $1)
		ORDER BY rating DESC, reviews DESC, id
		LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sellers []models.Seller
	for rows.Next() {
		s, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		sellers = append(sellers, *s)
	}
	return sellers, rows.Err()
}

func (r *SellerPGRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sellers SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *SellerPGRepository) AdjustCredits(ctx context.Context, id string, delta int64, allowNegative bool) (int64, error) {
	query := `
		UPDATE sellers
		SET credit_balance_credits = credit_balance_credits + $2, updated_at = NOW()
		WHERE id = $1 AND ($3 OR credit_balance_credits + $2 >= 0)
		RETURNING credit_balance_credits`

	var balance int64
	err := r.q.QueryRowContext(ctx, query, id, delta, allowNegative).Scan(&balance)
	if noRows(err) {
		seller, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		if seller == nil {
			return 0, apperrors.ErrNotFound
		}
		return 0, apperrors.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust credits: %w", err)
	}
	return balance, nil
}

func (r *SellerPGRepository) GetMetrics(ctx context.Context, sellerID string) (*models.SellerMetrics, error) {
	m := &models.SellerMetrics{}
	query := `
		SELECT seller_id, lifetime_sales_cents, lifetime_orders, lifetime_tickets_sold, updated_at
		FROM seller_metrics WHERE seller_id = $1`
	err := r.q.QueryRowContext(ctx, query, sellerID).Scan(
		&m.SellerID, &m.LifetimeSalesCents, &m.LifetimeOrders, &m.LifetimeTicketsSold, &m.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SellerPGRepository) AddMetrics(ctx context.Context, sellerID string, salesCents, orders, tickets int64, at time.Time) error {
	query := `
		INSERT INTO seller_metrics (seller_id, lifetime_sales_cents, lifetime_orders, lifetime_tickets_sold, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seller_id) DO UPDATE SET
			lifetime_sales_cents = seller_metrics.lifetime_sales_cents + EXCLUDED.lifetime_sales_cents,
			lifetime_orders = seller_metrics.lifetime_orders + EXCLUDED.lifetime_orders,
			lifetime_tickets_sold = seller_metrics.lifetime_tickets_sold + EXCLUDED.lifetime_tickets_sold,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.ExecContext(ctx, query, sellerID, salesCents, orders, tickets, at)
	return err
}

// Credits

type CreditPGRepository struct {
	q querier
}

const creditColumns = `id, seller_id, order_id, ticket_id, type, source, amount_credits, balance_after_credits, note, created_at`

func scanCredit(row rowScanner) (*models.CreditTransaction, error) {
	c := &models.CreditTransaction{}
	err := row.Scan(&c.ID, &c.SellerID, &c.OrderID, &c.TicketID, &c.Type, &c.Source,
		&c.AmountCredits, &c.BalanceAfterCredits, &c.Note, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CreditPGRepository) Insert(ctx context.Context, c *models.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (` + creditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.ExecContext(ctx, query, c.ID, c.SellerID, c.OrderID, c.TicketID, c.Type, c.Source,
		c.AmountCredits, c.BalanceAfterCredits, c.Note, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert credit transaction: %w", mapError(err))
	}
	return nil
}

func (r *CreditPGRepository) Exists(ctx context.Context, sellerID, orderID, ticketID, txType string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM credit_transactions
			WHERE seller_id = $1 AND order_id = $2 AND ticket_id = $3 AND type = $4
		)`
	err := r.q.QueryRowContext(ctx, query, sellerID, orderID, ticketID, txType).Scan(&exists)
	return exists, err
}

func (r *CreditPGRepository) List(ctx context.Context, sellerID string, filter models.CreditFilter) ([]models.CreditTransaction, error) {
	args := []any{sellerID}
	query := `SELECT ` + creditColumns + ` FROM credit_transactions WHERE seller_id = $1`

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Cursor != "" {
		if !isID(filter.Cursor) {
			return nil, nil
		}
		args = append(args, filter.Cursor)
		query += fmt.Sprintf(" AND (created_at, id) < (SELECT created_at, id FROM credit_transactions WHERE id = $%d)", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	return r.query(ctx, query, args...)
}

func (r *CreditPGRepository) ListByOrder(ctx context.Context, orderID string) ([]models.CreditTransaction, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_transactions WHERE order_id = $1 ORDER BY created_at, id`
	return r.query(ctx, query, orderID)
}

func (r *CreditPGRepository) query(ctx context.Context, query string, args ...any) ([]models.CreditTransaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CreditTransaction
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

func (r *CreditPGRepository) SumBySeller(ctx context.Context, sellerID string) (int64, error) {
	var sum int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_credits), 0) FROM credit_transactions WHERE seller_id = $1`, sellerID).Scan(&sum)
	return sum, err
}
