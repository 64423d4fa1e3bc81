package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

var ErrPriceLevelMissing = errors.New("customer has no price level")

type PricingResolver interface {
	// ResolvePrice fails with ErrPriceLevelMissing or model.ErrPriceNotFound;
	// either one aborts the whole checkout.
	ResolvePrice(ctx context.Context, productID uuid.UUID, priceLevelID *uuid.UUID) (decimal.Decimal, error)
}

func NewPricingResolver(repo model.PriceRepository) PricingResolver {
	return &pricingResolver{repo: repo}
}

type pricingResolver struct {
	repo model.PriceRepository
}

func (r *pricingResolver) ResolvePrice(ctx context.Context, productID uuid.UUID, priceLevelID *uuid.UUID) (decimal.Decimal, error) {
	if priceLevelID == nil {
		return decimal.Zero, ErrPriceLevelMissing
	}
	price, err := r.repo.FindActive(ctx, productID, *priceLevelID)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsActive {
		return decimal.Zero, model.ErrPriceNotFound
	}
	return price.Price, nil
}
