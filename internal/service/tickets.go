package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/external"
	"truefantix/internal/logger"
	"truefantix/internal/models"

	"github.com/google/uuid"
)

const (
	defaultTicketLimit = 24
	maxTicketLimit     = 100

	autoRulesProvider   = "auto-rules-v1"
	manualAdminProvider = "manual-admin"
)

type TicketService struct {
	*base
	verifier external.TicketVerifier
	search   TicketSearcher
}

// List - витрина: по умолчанию проверенные билеты в статусах AVAILABLE и SOLD
func (s *TicketService) List(ctx context.Context, filter models.TicketFilter) (*models.TicketPage, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []string{models.TicketAvailable, models.TicketSold}
	}
	if filter.VerificationStatus == "" {
		filter.VerificationStatus = models.VerificationVerified
	}
	filter.Limit = clampLimit(filter.Limit, defaultTicketLimit, maxTicketLimit)

	tickets, err := s.repos().Tickets.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return ticketPage(tickets, filter.Limit), nil
}

// Search ищет через Elasticsearch; без него - ILIKE по title/venue в базе
func (s *TicketService) Search(ctx context.Context, query string, limit int) (*models.TicketPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Validation("q is required.")
	}
	limit = clampLimit(limit, defaultTicketLimit, maxTicketLimit)

	if s.search != nil {
		ids, err := s.search.Search(ctx, query, limit)
		if err == nil {
			return s.loadInOrder(ctx, ids)
		}
		logger.WithContext(ctx).Warn("Search index unavailable, falling back to database", "error", err)
	}

	tickets, err := s.repos().Tickets.List(ctx, models.TicketFilter{
		Statuses:           []string{models.TicketAvailable},
		VerificationStatus: models.VerificationVerified,
		Query:              query,
		Limit:              limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}
	return &models.TicketPage{Tickets: nonNilTickets(tickets)}, nil
}

// loadInOrder сохраняет порядок релевантности и отбрасывает устаревшие документы индекса
func (s *TicketService) loadInOrder(ctx context.Context, ids []string) (*models.TicketPage, error) {
	tickets, err := s.repos().Tickets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	byID := make(map[string]models.Ticket, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
	}

	page := &models.TicketPage{Tickets: []models.Ticket{}}
	for _, id := range ids {
		t, ok := byID[id]
		if !ok || t.Status != models.TicketAvailable || t.VerificationStatus != models.VerificationVerified {
			continue
		}
		page.Tickets = append(page.Tickets, t)
	}
	return page, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.repos().Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, apperrors.NotFound("Ticket not found.")
	}
	return ticket, nil
}

// Create выставляет билет продавца и сразу прогоняет автоматическую проверку
func (s *TicketService) Create(ctx context.Context, seller *models.User, req *models.CreateTicketRequest) (*models.Ticket, error) {
	if seller.SellerID == nil {
		return nil, apperrors.Conflict(apperrors.CodeSellerNotApproved, "Seller profile is missing.")
	}

	ticket, barcode, err := newTicketFromRequest(req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ticket.ID = uuid.New().String()
	ticket.SellerID = *seller.SellerID
	ticket.Status = models.TicketAvailable
	ticket.VerificationStatus = models.VerificationPending
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if barcode != "" {
		hash := sha256Hex(barcode)
		last4 := barcode[len(barcode)-4:]
		ticket.BarcodeHash = &hash
		ticket.BarcodeLast4 = &last4
	}

	r := s.repos()
	if ticket.EventID != nil {
		event, err := r.Events.GetByID(ctx, *ticket.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to get event: %w", err)
		}
		if event == nil {
			return nil, apperrors.NotFound("Event not found.")
		}
	}
	if ticket.BarcodeHash != nil {
		duplicate, err := r.Tickets.FindLiveByBarcode(ctx, *ticket.BarcodeHash, ticket.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to check barcode: %w", err)
		}
		if duplicate != nil {
			return nil, apperrors.Conflict(apperrors.CodeDuplicateBarcode,
				"This barcode appears to already be listed or used. Please contact support if this is incorrect.")
		}
	}

	providerConfirmed := false
	if s.verifier != nil {
		result, err := s.verifier.Verify(ctx, external.VerificationInput{
			EventID:     ticket.EventID,
			Title:       ticket.Title,
			Venue:       ticket.Venue,
			Date:        ticket.Date,
			BarcodeHash: ticket.BarcodeHash,
			BarcodeType: ticket.BarcodeType,
		})
		if err != nil {
			logger.WithContext(ctx).Warn("Ticket provider check failed", "error", err)
		} else {
			providerConfirmed = result.Confirmed
		}
	}
	applyDecision(ticket, scoreTicket(ticket, providerConfirmed), now)

	if err := r.Tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.publish(ctx, models.EventTicketListed, models.TicketEvent{
		TicketID:  ticket.ID,
		Status:    ticket.Status,
		Timestamp: now,
	})
	return ticket, nil
}

// Verify - ручное решение администратора по проверке билета
func (s *TicketService) Verify(ctx context.Context, id string, req *models.VerifyTicketRequest) (*models.Ticket, error) {
	status := strings.ToUpper(strings.TrimSpace(req.VerificationStatus))
	valid := []string{models.VerificationPending, models.VerificationVerified, models.VerificationRejected, models.VerificationNeedsReview}
	if !slices.Contains(valid, status) {
		return nil, apperrors.Validation("verificationStatus must be one of PENDING, VERIFIED, REJECTED, NEEDS_REVIEW.")
	}
	if req.VerificationScore != nil && (*req.VerificationScore < 0 || *req.VerificationScore > 100) {
		return nil, apperrors.Validation("verificationScore must be between 0 and 100.")
	}

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	provider := manualAdminProvider
	ticket.VerificationStatus = status
	ticket.VerificationScore = req.VerificationScore
	ticket.VerificationProvider = &provider
	ticket.VerificationReason = nil
	if reason := strings.TrimSpace(req.VerificationReason); reason != "" {
		ticket.VerificationReason = &reason
	}
	ticket.VerifiedAt = nil
	if status == models.VerificationVerified {
		ticket.VerifiedAt = &now
	}
	ticket.UpdatedAt = now

	if err := s.repos().Tickets.UpdateVerification(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to update verification: %w", err)
	}

	s.publish(ctx, models.EventTicketUpdated, models.TicketEvent{TicketID: ticket.ID, Status: ticket.Status, Timestamp: now})
	return ticket, nil
}

// Withdraw снимает билет с продажи: AVAILABLE -> WITHDRAWN
func (s *TicketService) Withdraw(ctx context.Context, seller *models.User, id string) (*models.Ticket, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if seller.SellerID == nil || *seller.SellerID != ticket.SellerID {
		return nil, apperrors.Forbidden("You do not own this ticket.")
	}

	now := s.now()
	n, err := s.repos().Tickets.Withdraw(ctx, id, ticket.SellerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw ticket: %w", err)
	}
	if n != 1 {
		return nil, apperrors.Conflict(apperrors.CodeBadState, fmt.Sprintf("Ticket is %s, only AVAILABLE tickets can be withdrawn.", ticket.Status))
	}

	ticket.Status = models.TicketWithdrawn
	ticket.WithdrawnAt = &now
	ticket.UpdatedAt = now
	s.publish(ctx, models.EventTicketUpdated, models.TicketEvent{TicketID: ticket.ID, Status: ticket.Status, Timestamp: now})
	return ticket, nil
}

// verificationDecision - итог автоматической проверки
type verificationDecision struct {
	Status string
	Score  int
	Reason string
}

// scoreTicket - правила автоматической проверки листинга
func scoreTicket(t *models.Ticket, providerConfirmed bool) verificationDecision {
	score := 0
	var reasons []string

	check := func(ok bool, points int, reason string) {
		if ok {
			score += points
		} else if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	check(len(strings.TrimSpace(t.Title)) >= 8, 20, "Title too short")
	check(len(strings.TrimSpace(t.Venue)) >= 4, 20, "Venue missing/too short")
	check(len(strings.TrimSpace(t.Date)) >= 6, 15, "Date missing/too short")
	check(strings.HasPrefix(t.Image, "http://") || strings.HasPrefix(t.Image, "https://") || strings.HasPrefix(t.Image, "/"),
		15, "Image format invalid")
	check(t.PriceCents > 0, 20, "Invalid price")
	check(t.FaceValueCents == nil || *t.FaceValueCents >= t.PriceCents, 10, "Face value lower than listing price")
	check(t.BarcodeHash != nil, 10, "No barcode evidence provided")
	check(providerConfirmed, 15, "")

	d := verificationDecision{Score: score, Reason: "Auto verification checks passed"}
	if len(reasons) > 0 {
		d.Reason = strings.Join(reasons, "; ")
	}
	switch {
	case score >= 85:
		d.Status = models.VerificationVerified
	case score >= 60:
		d.Status = models.VerificationNeedsReview
	default:
		d.Status = models.VerificationRejected
	}
	return d
}

func applyDecision(t *models.Ticket, d verificationDecision, now time.Time) {
	provider := autoRulesProvider
	t.VerificationStatus = d.Status
	t.VerificationScore = &d.Score
	t.VerificationReason = &d.Reason
	t.VerificationProvider = &provider
	t.VerifiedAt = nil
	if d.Status == models.VerificationVerified {
		t.VerifiedAt = &now
	}
}

func newTicketFromRequest(req *models.CreateTicketRequest) (*models.Ticket, string, error) {
	t := &models.Ticket{
		Title: strings.TrimSpace(req.Title),
		Image: strings.TrimSpace(req.Image),
		Venue: strings.TrimSpace(req.Venue),
		Date:  strings.TrimSpace(req.Date),
	}

	switch {
	case t.Title == "":
		return nil, "", apperrors.Validation("Title is required.")
	case len(t.Title) > 120:
		return nil, "", apperrors.Validation("Title must be 120 characters or less.")
	case req.PriceCents == nil:
		return nil, "", apperrors.Validation("Price is required.")
	case *req.PriceCents < 1:
		return nil, "", apperrors.Validation("Price must be at least 1 cent.")
	case req.FaceValueCents != nil && *req.FaceValueCents < 0:
		return nil, "", apperrors.Validation("Face value cannot be negative.")
	case t.Image == "":
		return nil, "", apperrors.Validation("Image URL is required.")
	case len(t.Image) > 2048:
		return nil, "", apperrors.Validation("Image URL is too long.")
	case t.Venue == "":
		return nil, "", apperrors.Validation("Venue is required.")
	case len(t.Venue) > 200:
		return nil, "", apperrors.Validation("Venue must be 200 characters or less.")
	case t.Date == "":
		return nil, "", apperrors.Validation("Date is required.")
	case len(t.Date) > 100:
		return nil, "", apperrors.Validation("Date must be 100 characters or less.")
	}
	t.PriceCents = *req.PriceCents
	t.FaceValueCents = req.FaceValueCents

	if req.EventID != nil {
		if id := strings.TrimSpace(*req.EventID); id != "" {
			t.EventID = &id
		}
	}
	if bt := strings.TrimSpace(req.BarcodeType); bt != "" {
		t.BarcodeType = &bt
	}

	barcode := strings.TrimSpace(req.BarcodeData)
	if barcode != "" && len(barcode) < 8 {
		return nil, "", apperrors.Validation("Barcode data is too short.")
	}
	if len(barcode) > 8192 {
		return nil, "", apperrors.Validation("Barcode data is too long.")
	}
	return t, barcode, nil
}

func ticketPage(tickets []models.Ticket, limit int) *models.TicketPage {
	page := &models.TicketPage{Tickets: nonNilTickets(tickets)}
	if len(tickets) == limit && limit > 0 {
		page.NextCursor = &tickets[len(tickets)-1].ID
	}
	return page
}

func nonNilTickets(tickets []models.Ticket) []models.Ticket {
	if tickets == nil {
		return []models.Ticket{}
	}
	return tickets
}
