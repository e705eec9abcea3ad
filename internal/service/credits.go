package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/metrics"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 100
)

// CreditService ведет журнал access-токенов.
// Баланс продавца и строка журнала всегда пишутся в одной транзакции.
type CreditService struct {
	*base
}

// CreditAudit - сверка денормализованного баланса с суммой журнала
type CreditAudit struct {
	SellerID   string `json:"sellerId"`
	Balance    int64  `json:"balanceCredits"`
	LedgerSum  int64  `json:"ledgerSumCredits"`
	Consistent bool   `json:"consistent"`
}

// post меняет баланс и добавляет запись журнала внутри транзакции вызывающего.
// Для записей, привязанных к заказу и билету, повтор пропускается: возвращает false.
func (s *CreditService) post(ctx context.Context, r *repository.Repositories, entry *models.CreditTransaction, allowNegative bool) (bool, error) {
	if entry.OrderID != nil && entry.TicketID != nil {
		exists, err := r.Credits.Exists(ctx, entry.SellerID, *entry.OrderID, *entry.TicketID, entry.Type)
		if err != nil {
			return false, fmt.Errorf("failed to check ledger entry: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	balance, err := r.Sellers.AdjustCredits(ctx, entry.SellerID, entry.AmountCredits, allowNegative)
	if err != nil {
		return false, err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.BalanceAfterCredits = balance

	if err := r.Credits.Insert(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	metrics.CreditEntry(entry.Type)
	return true, nil
}

func (s *CreditService) Ledger(ctx context.Context, viewer *models.User, sellerID string, filter models.CreditFilter) (*models.CreditLedgerPage, error) {
	if !viewer.IsAdmin() && (viewer.SellerID == nil || *viewer.SellerID != sellerID) {
		return nil, apperrors.Forbidden("You can only view your own ledger.")
	}
	return s.ledger(ctx, sellerID, filter)
}

func (s *CreditService) ledger(ctx context.Context, sellerID string, filter models.CreditFilter) (*models.CreditLedgerPage, error) {
	r := s.repos()

	seller, err := r.Sellers.GetByID(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get seller: %w", err)
	}
	if seller == nil {
		return nil, apperrors.NotFound("Seller not found.")
	}

	filter.Type = strings.ToUpper(filter.Type)
	filter.Source = strings.ToUpper(filter.Source)
	filter.Limit = clampLimit(filter.Limit, defaultLedgerLimit, maxLedgerLimit)

	items, err := r.Credits.List(ctx, sellerID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}

	page := &models.CreditLedgerPage{
		SellerID: sellerID,
		Balance:  seller.CreditBalanceCredits,
		Items:    items,
	}
	if page.Items == nil {
		page.Items = []models.CreditTransaction{}
	}
	if len(items) == filter.Limit {
		page.NextCursor = &items[len(items)-1].ID
	}
	return page, nil
}

// AccountTokens - баланс и последние записи журнала текущего пользователя
func (s *CreditService) AccountTokens(ctx context.Context, user *models.User) (*models.CreditLedgerPage, error) {
	if user.SellerID == nil {
		return &models.CreditLedgerPage{Items: []models.CreditTransaction{}}, nil
	}
	return s.ledger(ctx, *user.SellerID, models.CreditFilter{Limit: 20})
}

// Adjust - ручная корректировка администратором; в минус не уводит
func (s *CreditService) Adjust(ctx context.Context, req *models.CreditAdjustmentRequest) (*models.CreditTransaction, error) {
	if strings.TrimSpace(req.SellerID) == "" {
		return nil, apperrors.Validation("sellerId is required.")
	}
	if req.AmountCredits == 0 {
		return nil, apperrors.Validation("amountCredits must be a non-zero integer.")
	}

	entry := &models.CreditTransaction{
		SellerID:      req.SellerID,
		Type:          models.CreditAdjustment,
		Source:        models.CreditSourceAdmin,
		AmountCredits: req.AmountCredits,
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		entry.Note = &note
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		_, err := s.post(ctx, r, entry, false)
		return err
	})
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.NotFound("Seller not found.")
	case apperrors.Is(err, apperrors.ErrInsufficientCredits):
		return nil, apperrors.Conflict(apperrors.CodeInsufficientCredits, "Adjustment would make the balance negative.")
	case err != nil:
		return nil, fmt.Errorf("failed to adjust credits: %w", err)
	}
	return entry, nil
}

func (s *CreditService) Audit(ctx context.Context, sellerID string) (*CreditAudit, error) {
	r := s.repos()
	seller, err := r.Sellers.GetByID(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get seller: %w", err)
	}
	if seller == nil {
		return nil, apperrors.NotFound("Seller not found.")
	}
	sum, err := r.Credits.SumBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return &CreditAudit{
		SellerID:   sellerID,
		Balance:    seller.CreditBalanceCredits,
		LedgerSum:  sum,
		Consistent: sum == seller.CreditBalanceCredits,
	}, nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
