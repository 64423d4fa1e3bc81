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

// unitPriceScale matches order_items.unit_price, which keeps the discounted
// price unrounded to cents.
const unitPriceScale = 6

type orderRow struct {
	ID                uuid.UUID       `db:"id"`
	OrderNumber       string          `db:"order_number"`
	UserID            uuid.UUID       `db:"user_id"`
	ShippingAddressID uuid.NullUUID   `db:"shipping_address_id"`
	Status            string          `db:"status"`
	Subtotal          decimal.Decimal `db:"subtotal"`
	Discount          decimal.Decimal `db:"discount"`
	Tax               decimal.Decimal `db:"tax"`
	ShippingCost      decimal.Decimal `db:"shipping_cost"`
	Total             decimal.Decimal `db:"total"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
	CompletedAt       sql.NullTime    `db:"completed_at"`
}

type orderItemRow struct {
	ID             uuid.UUID       `db:"id"`
	OrderID        uuid.UUID       `db:"order_id"`
	ProductID      uuid.UUID       `db:"product_id"`
	Quantity       int             `db:"quantity"`
	BasePrice      decimal.Decimal `db:"base_price"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	AverageCost    decimal.Decimal `db:"average_cost"`
}

type orderItemSupplierRow struct {
	ID          uuid.UUID       `db:"id"`
	OrderItemID uuid.UUID       `db:"order_item_id"`
	SupplierID  uuid.UUID       `db:"supplier_id"`
	Quantity    int             `db:"quantity"`
	UnitCost    decimal.Decimal `db:"unit_cost"`
	TotalCost   decimal.Decimal `db:"total_cost"`
}

type orderRepository struct {
	db sqlx.ExtContext
}

func (r *orderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	var shippingAddressID uuid.NullUUID
	if order.ShippingAddressID != nil {
		shippingAddressID = uuid.NullUUID{UUID: *order.ShippingAddressID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, shipping_address_id, status, subtotal, discount, tax,
		                    shipping_cost, total, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.UserID, shippingAddressID, order.Status.String(), order.Subtotal,
		order.Discount, order.Tax, order.ShippingCost, order.Total, order.CreatedAt, order.UpdatedAt, order.CompletedAt)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, item := range order.Items {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, quantity, base_price, unit_price,
			                         discount_amount, subtotal, average_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, order.ID, i, item.ProductID, item.Quantity, item.BasePrice, item.UnitPrice.Round(unitPriceScale),
			item.DiscountAmount, item.Subtotal, item.AverageCost)
		if err != nil {
			return errors.Wrap(err, "insert order item")
		}
		for j, supplier := range item.Suppliers {
			_, err := r.db.ExecContext(ctx, `
				INSERT INTO order_item_suppliers (id, order_item_id, position, supplier_id, quantity, unit_cost, total_cost)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				supplier.ID, item.ID, j, supplier.SupplierID, supplier.Quantity, supplier.UnitCost, supplier.TotalCost)
			if err != nil {
				return errors.Wrap(err, "insert order item supplier")
			}
		}
	}
	return nil
}

func (r *orderRepository) Find(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, order_number, user_id, shipping_address_id, status, subtotal, discount, tax, shipping_cost,
		       total, created_at, updated_at, completed_at
		FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	order, err := row.toModel()
	if err != nil {
		return nil, err
	}

	var items []orderItemRow
	err = sqlx.SelectContext(ctx, r.db, &items, `
		SELECT id, order_id, product_id, quantity, base_price, unit_price, discount_amount, subtotal, average_cost
		FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "load order items")
	}
	var suppliers []orderItemSupplierRow
	err = sqlx.SelectContext(ctx, r.db, &suppliers, `
		SELECT s.id, s.order_item_id, s.supplier_id, s.quantity, s.unit_cost, s.total_cost
		FROM order_item_suppliers s
		JOIN order_items i ON i.id = s.order_item_id
		WHERE i.order_id = ?
		ORDER BY i.position, s.position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "load order item suppliers")
	}

	byItem := make(map[uuid.UUID][]model.OrderItemSupplier)
	for _, s := range suppliers {
		byItem[s.OrderItemID] = append(byItem[s.OrderItemID], model.OrderItemSupplier{
			ID:          s.ID,
			OrderItemID: s.OrderItemID,
			SupplierID:  s.SupplierID,
			Quantity:    s.Quantity,
			UnitCost:    s.UnitCost,
			TotalCost:   s.TotalCost,
		})
	}
	for _, item := range items {
		order.Items = append(order.Items, model.OrderItem{
			ID:             item.ID,
			OrderID:        item.OrderID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			BasePrice:      item.BasePrice,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
			Subtotal:       item.Subtotal,
			AverageCost:    item.AverageCost,
			Suppliers:      byItem[item.ID],
		})
	}
	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *model.Order) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		order.Status.String(), order.UpdatedAt, order.CompletedAt, order.ID)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (row orderRow) toModel() (*model.Order, error) {
	status, err := model.ParseOrderStatus(row.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "order %s", row.ID)
	}
	order := &model.Order{
		ID:           row.ID,
		OrderNumber:  row.OrderNumber,
		UserID:       row.UserID,
		Status:       status,
		Subtotal:     row.Subtotal,
		Discount:     row.Discount,
		Tax:          row.Tax,
		ShippingCost: row.ShippingCost,
		Total:        row.Total,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.ShippingAddressID.Valid {
		id := row.ShippingAddressID.UUID
		order.ShippingAddressID = &id
	}
	if row.CompletedAt.Valid {
		completedAt := row.CompletedAt.Time
		order.CompletedAt = &completedAt
	}
	return order, nil
}
