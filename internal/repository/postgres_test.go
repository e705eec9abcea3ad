package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableQuerier падает на любом запросе: до базы дело доходить не должно
type unreachableQuerier struct{ t *testing.T }

func (q unreachableQuerier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	q.t.Fatal("unexpected ExecContext")
	return nil, nil
}

func (q unreachableQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	q.t.Fatal("unexpected QueryContext")
	return nil, nil
}

func (q unreachableQuerier) QueryRowContext(context.Context, string, ...any) *sql.Row {
	q.t.Fatal("unexpected QueryRowContext")
	return nil
}

func TestMapError(t *testing.T) {
	err := mapError(&pq.Error{Code: codeUniqueViolation, Constraint: "users_email_key"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	err = mapError(&pq.Error{Code: codeInvalidText, Message: `invalid input syntax for type uuid: "abc"`})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	other := &pq.Error{Code: "40001"}
	assert.Same(t, other, mapError(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapError(plain))
}

func TestNoRows(t *testing.T) {
	assert.True(t, noRows(sql.ErrNoRows))
	assert.True(t, noRows(&pq.Error{Code: codeInvalidText}))
	assert.False(t, noRows(&pq.Error{Code: codeUniqueViolation}))
	assert.False(t, noRows(errors.New("connection refused")))
}

func TestValidIDs(t *testing.T) {
	id := uuid.New().String()
	assert.True(t, isID(id))
	assert.False(t, isID("abc"))
	assert.False(t, isID(""))

	assert.Equal(t, []string{id}, validIDs([]string{"abc", id, "1; DROP TABLE tickets"}))
	assert.Empty(t, validIDs([]string{"t1", "t2"}))
}

func TestPGRepositoriesSkipNonUUIDIDs(t *testing.T) {
	ctx := context.Background()
	q := unreachableQuerier{t: t}

	tickets := &TicketPGRepository{q: q}
	got, err := tickets.GetByIDs(ctx, []string{"abc", "def"})
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, filter := range []models.TicketFilter{
		{SellerID: "seller-1"},
		{EventID: "not-an-event"},
		{Cursor: "page-2"},
	} {
		got, err := tickets.List(ctx, filter)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}
