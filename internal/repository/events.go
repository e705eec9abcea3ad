package repository

import (
	"context"
	"fmt"

	"truefantix/internal/models"

	"github.com/lib/pq"
)

type EventPGRepository struct {
	q querier
}

const eventColumns = `id, title, venue, date, sellout_status, created_at`

func scanEvent(row rowScanner) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(&e.ID, &e.Title, &e.Venue, &e.Date, &e.SelloutStatus, &e.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EventPGRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, title, venue, date, sellout_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.ExecContext(ctx, query, e.ID, e.Title, e.Venue, e.Date, e.SelloutStatus, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", mapError(err))
	}
	return nil
}

func (r *EventPGRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (r *EventPGRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error) {
	result := make(map[string]*models.Event, len(ids))
	ids = validIDs(ids)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.q.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result[e.ID] = e
	}
	return result, rows.Err()
}

func (r *EventPGRepository) List(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *EventPGRepository) UpdateSellout(ctx context.Context, id, status string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE events SET sellout_status = $2 WHERE id = $1`, id, status)
	return err
}
