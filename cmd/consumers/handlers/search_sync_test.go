package handlers

import (
	"context"
	"errors"
	"testing"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTickets map[string]*models.Ticket

func (s stubTickets) Get(ctx context.Context, id string) (*models.Ticket, error) {
	if id == "broken" {
		return nil, errors.New("connection reset")
	}
	t, ok := s[id]
	if !ok {
		return nil, apperrors.NotFound("Ticket not found.")
	}
	return t, nil
}

type recordingIndex struct {
	indexed []string
	deleted []string
}

func (r *recordingIndex) IndexTicket(ctx context.Context, t *models.Ticket) error {
	r.indexed = append(r.indexed, t.ID)
	return nil
}

func (r *recordingIndex) DeleteTicket(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func TestSearchSync(t *testing.T) {
	tickets := stubTickets{
		"live":      {ID: "live", Status: models.TicketAvailable, VerificationStatus: models.VerificationVerified},
		"sold":      {ID: "sold", Status: models.TicketSold, VerificationStatus: models.VerificationVerified},
		"in-review": {ID: "in-review", Status: models.TicketAvailable, VerificationStatus: models.VerificationNeedsReview},
	}
	index := &recordingIndex{}
	h := NewSearchSyncHandler(tickets, index)
	ctx := context.Background()

	for _, id := range []string{"live", "sold", "in-review", "gone"} {
		require.NoError(t, h.Sync(ctx, id))
	}
	assert.Equal(t, []string{"live"}, index.indexed)
	assert.Equal(t, []string{"sold", "in-review", "gone"}, index.deleted)

	err := h.Sync(ctx, "broken")
	assert.Error(t, err)
}
