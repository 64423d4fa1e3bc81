package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"checkout/pkg/checkout/domain/model"
)

var movementTypes = map[model.MovementType]string{
	model.Purchase:   "Purchase",
	model.Sale:       "Sale",
	model.Return:     "Return",
	model.Adjustment: "Adjustment",
}

type inventoryBalanceRow struct {
	ProductID         uuid.UUID `db:"product_id"`
	AvailableQuantity int       `db:"available_quantity"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type inventoryRepository struct {
	db sqlx.ExtContext
}

func (r *inventoryRepository) FindBalance(ctx context.Context, productID uuid.UUID) (*model.InventoryBalance, error) {
	var row inventoryBalanceRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT product_id, available_quantity, updated_at FROM inventory_balances WHERE product_id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.InventoryBalance{ProductID: productID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find inventory balance")
	}
	return &model.InventoryBalance{
		ProductID:         row.ProductID,
		AvailableQuantity: row.AvailableQuantity,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

func (r *inventoryRepository) StoreBalance(ctx context.Context, balance *model.InventoryBalance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_balances (product_id, available_quantity, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE available_quantity = VALUES(available_quantity), updated_at = VALUES(updated_at)`,
		balance.ProductID, balance.AvailableQuantity, balance.UpdatedAt)
	return errors.Wrap(err, "store inventory balance")
}

func (r *inventoryRepository) AppendMovement(ctx context.Context, movement *model.InventoryMovement) error {
	movementType, ok := movementTypes[movement.Type]
	if !ok {
		return errors.Errorf("unknown movement type %d", movement.Type)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, type, quantity, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		movement.ID, movement.ProductID, movementType, movement.Quantity, movement.ReferenceID, movement.CreatedAt)
	return errors.Wrap(err, "append inventory movement")
}

func (r *inventoryRepository) SumMovements(ctx context.Context, productID uuid.UUID) (int, error) {
	var sum int
	err := sqlx.GetContext(ctx, r.db, &sum,
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory_movements WHERE product_id = ?`, productID)
	if err != nil {
		return 0, errors.Wrap(err, "sum inventory movements")
	}
	return sum, nil
}

func (r *inventoryRepository) ListProductsWithMovements(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT DISTINCT product_id FROM inventory_movements ORDER BY product_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list products with movements")
	}
	return ids, nil
}
