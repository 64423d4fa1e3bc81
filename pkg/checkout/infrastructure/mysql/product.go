package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

type productRow struct {
	ID              uuid.UUID       `db:"id"`
	SKU             string          `db:"sku"`
	Name            string          `db:"name"`
	CategoryID      uuid.UUID       `db:"category_id"`
	Cost            decimal.Decimal `db:"cost"`
	HasVirtualStock bool            `db:"has_virtual_stock"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

type productPriceRow struct {
	ID           uuid.UUID       `db:"id"`
	ProductID    uuid.UUID       `db:"product_id"`
	PriceLevelID uuid.UUID       `db:"price_level_id"`
	Price        decimal.Decimal `db:"price"`
	MinQuantity  int             `db:"min_quantity"`
	IsActive     bool            `db:"is_active"`
}

type productRepository struct {
	db sqlx.ExtContext
}

func (r *productRepository) Find(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT id, sku, name, category_id, cost, has_virtual_stock, updated_at FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find product")
	}
	return &model.Product{
		ID:              row.ID,
		SKU:             row.SKU,
		Name:            row.Name,
		CategoryID:      row.CategoryID,
		Cost:            row.Cost,
		HasVirtualStock: row.HasVirtualStock,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

func (r *productRepository) UpdateCost(ctx context.Context, id uuid.UUID, cost decimal.Decimal, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET cost = ?, updated_at = ? WHERE id = ?`, cost, updatedAt, id)
	if err != nil {
		return errors.Wrap(err, "update product cost")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for an unchanged row, so only fail when it is missing.
		if _, err := r.Find(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type priceRepository struct {
	db sqlx.ExtContext
}

func (r *priceRepository) FindActive(ctx context.Context, productID, priceLevelID uuid.UUID) (*model.ProductPrice, error) {
	var row productPriceRow
	err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, product_id, price_level_id, price, min_quantity, is_active
		FROM product_prices
		WHERE product_id = ? AND price_level_id = ? AND is_active = 1`, productID, priceLevelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPriceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find product price")
	}
	return &model.ProductPrice{
		ID:           row.ID,
		ProductID:    row.ProductID,
		PriceLevelID: row.PriceLevelID,
		Price:        row.Price,
		MinQuantity:  row.MinQuantity,
		IsActive:     row.IsActive,
	}, nil
}
