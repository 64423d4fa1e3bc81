package mysql

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

type productSupplierRow struct {
	ID               uuid.UUID       `db:"id"`
	ProductID        uuid.UUID       `db:"product_id"`
	SupplierID       uuid.UUID       `db:"supplier_id"`
	Cost             decimal.Decimal `db:"cost"`
	IsPrimary        bool            `db:"is_primary"`
	Priority         int             `db:"priority"`
	MinOrderQuantity int             `db:"min_order_quantity"`
	IsActive         bool            `db:"is_active"`
}

type supplierRepository struct {
	db sqlx.ExtContext
}

func (r *supplierRepository) ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]model.ProductSupplier, error) {
	var rows []productSupplierRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, product_id, supplier_id, cost, is_primary, priority, min_order_quantity, is_active
		FROM product_suppliers
		WHERE product_id = ? AND is_active = 1
		ORDER BY priority ASC, is_primary DESC, id ASC`, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list product suppliers")
	}

	suppliers := make([]model.ProductSupplier, 0, len(rows))
	for _, row := range rows {
		suppliers = append(suppliers, model.ProductSupplier{
			ID:               row.ID,
			ProductID:        row.ProductID,
			SupplierID:       row.SupplierID,
			Cost:             row.Cost,
			IsPrimary:        row.IsPrimary,
			Priority:         row.Priority,
			MinOrderQuantity: row.MinOrderQuantity,
			IsActive:         row.IsActive,
		})
	}
	return suppliers, nil
}
