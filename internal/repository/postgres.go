package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"truefantix/internal/database"
	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// querier - общее подмножество *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore - Store поверх database/sql и lib/pq
type PostgresStore struct {
	db    *database.DB
	repos *Repositories
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		repos: newPostgresRepositories(db),
	}
}

func newPostgresRepositories(q querier) *Repositories {
	return &Repositories{
		Users:             &UserPGRepository{q: q},
		Sessions:          &SessionPGRepository{q: q},
		VerificationCodes: &VerificationCodePGRepository{q: q},
		Sellers:           &SellerPGRepository{q: q},
		Events:            &EventPGRepository{q: q},
		Tickets:           &TicketPGRepository{q: q},
		Orders:            &OrderPGRepository{q: q},
		Payments:          &PaymentPGRepository{q: q},
		Escrows:           &EscrowPGRepository{q: q},
		Credits:           &CreditPGRepository{q: q},
		Notifications:     &NotificationPGRepository{q: q},
		Forum:             &ForumPGRepository{q: q},
		Waitlist:          &WaitlistPGRepository{q: q},
	}
}

func (s *PostgresStore) Repos() *Repositories {
	return s.repos
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, newPostgresRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) PoolStats() models.PoolStats {
	return s.db.GetPoolStats()
}

const (
	codeUniqueViolation = "23505"
	// 22P02: строка не приводится к типу колонки, для нас - не uuid
	codeInvalidText = "22P02"
)

// mapError переводит ошибки драйвера в ошибки хранилища
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicate, pqErr.Constraint)
	case codeInvalidText:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, pqErr.Message)
	}
	return err
}

// noRows - запись не найдена. Id не в формате uuid найти тоже нельзя.
func noRows(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeInvalidText
}

func isID(s string) bool {
	return uuid.Validate(s) == nil
}

// validIDs оставляет только строки, которые Postgres примет как uuid
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isID(id) {
			out = append(out, id)
		}
	}
	return out
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
