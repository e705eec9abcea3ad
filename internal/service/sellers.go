package service

import (
	"context"
	"fmt"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
	"truefantix/internal/repository"
)

const sellerListLimit = 100

type SellerService struct {
	*base
}

// List - одобренные продавцы, лучший рейтинг первым
func (s *SellerService) List(ctx context.Context) ([]models.Seller, error) {
	sellers, err := s.repos().Sellers.List(ctx, models.SellerStatusApproved, sellerListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sellers: %w", err)
	}
	if sellers == nil {
		sellers = []models.Seller{}
	}
	return sellers, nil
}

func (s *SellerService) Get(ctx context.Context, id string) (*models.SellerView, error) {
	r := s.repos()
	seller, err := r.Sellers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get seller: %w", err)
	}
	if seller == nil {
		return nil, apperrors.NotFound("Seller not found.")
	}

	metrics, err := r.Sellers.GetMetrics(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get seller metrics: %w", err)
	}
	if metrics == nil {
		metrics = &models.SellerMetrics{SellerID: id}
	}
	return &models.SellerView{Seller: seller, Metrics: metrics}, nil
}

// Approve одобряет продавца и открывает его пользователю продажи
func (s *SellerService) Approve(ctx context.Context, id string) (*models.Seller, error) {
	var seller *models.Seller
	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		var err error
		seller, err = r.Sellers.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get seller: %w", err)
		}
		if seller == nil {
			return apperrors.NotFound("Seller not found.")
		}
		if err := r.Sellers.UpdateStatus(ctx, id, models.SellerStatusApproved); err != nil {
			return fmt.Errorf("failed to approve seller: %w", err)
		}
		seller.Status = models.SellerStatusApproved

		user, err := r.Users.GetBySellerID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get seller user: %w", err)
		}
		if user != nil {
			if err := r.Users.SetCanSell(ctx, user.ID, true); err != nil {
				return fmt.Errorf("failed to enable selling: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seller, nil
}
